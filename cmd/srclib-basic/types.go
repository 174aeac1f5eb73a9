package main

// CLIResult is the top-level JSON envelope for all query commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIUnit is a JSON-friendly stored unit.
type CLIUnit struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Dir          string   `json:"dir"`
	FileCount    int      `json:"file_count"`
	Dependencies []string `json:"dependencies,omitempty"`
	IndexedAt    string   `json:"indexed_at,omitempty"`
}

// CLIDef is a JSON-friendly definition. Line and column are 1-based and
// omitted when the file can no longer be read.
type CLIDef struct {
	Unit     string `json:"unit"`
	Key      string `json:"key"`
	Path     string `json:"path"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	File     string `json:"file"`
	Start    uint32 `json:"start"`
	End      uint32 `json:"end"`
	Line     int    `json:"line,omitempty"`
	Col      int    `json:"col,omitempty"`
	Exported bool   `json:"exported"`
	Local    bool   `json:"local,omitempty"`
	Test     bool   `json:"test,omitempty"`
}

// CLIRef is a JSON-friendly reference.
type CLIRef struct {
	Unit    string `json:"unit"`
	DefUnit string `json:"def_unit"`
	DefKey  string `json:"def_key"`
	DefPath string `json:"def_path"`
	Def     bool   `json:"def,omitempty"`
	File    string `json:"file"`
	Start   uint32 `json:"start"`
	End     uint32 `json:"end"`
}
