package graph

import (
	"net/url"
	"strconv"
	"strings"
)

// SegmentKind tags a key path segment. The set is open: frontends may use
// any kind, the kernel only compares them.
type SegmentKind string

const (
	SegmentNamespace SegmentKind = "namespace"
	SegmentType      SegmentKind = "type"
	SegmentFunction  SegmentKind = "function"
	SegmentMethod    SegmentKind = "method"
	SegmentProperty  SegmentKind = "property"
	SegmentConstant  SegmentKind = "constant"
	SegmentVariable  SegmentKind = "variable"
	SegmentField     SegmentKind = "field"
	SegmentScope     SegmentKind = "scope"
)

// Segment is one named step in a definition key path.
type Segment struct {
	Name string      `json:"name"`
	Kind SegmentKind `json:"kind"`
}

// Render returns the segment as it appears in a canonical path.
func (s Segment) Render() string {
	switch s.Kind {
	case SegmentFunction, SegmentMethod:
		return s.Name + "()"
	case SegmentProperty:
		return "$" + s.Name
	default:
		return s.Name
	}
}

// Category discriminates candidate keys from concrete ones.
type Category string

const (
	Concrete      Category = ""
	MaybeMethod   Category = "M"
	MaybeProperty Category = "P"
	MaybeConstant Category = "C"
	MaybeField    Category = "F"
	MaybeType     Category = "T"
	MaybeGlobal   Category = "G" // unit-level function, constant or variable
)

// DefKey identifies a definition. Unit is empty for "this unit". A key with a
// non-empty Candidate category is a pending lookup token whose meaning is
// known only to the frontend that produced it.
type DefKey struct {
	Unit      string    `json:"unit,omitempty"`
	Segments  []Segment `json:"segments"`
	Candidate Category  `json:"candidate,omitempty"`
	Receiver  string    `json:"receiver,omitempty"`
}

// NewKey builds a concrete key from segments.
func NewKey(segs ...Segment) DefKey {
	return DefKey{Segments: append([]Segment(nil), segs...)}
}

// NewCandidate builds a candidate key of the given category for name.
func NewCandidate(cat Category, name string) DefKey {
	return DefKey{
		Segments:  []Segment{{Name: name}},
		Candidate: cat,
	}
}

// WithReceiver returns a copy of a candidate key scoped to a receiver type.
func (k DefKey) WithReceiver(receiver string) DefKey {
	k.Segments = append([]Segment(nil), k.Segments...)
	k.Receiver = receiver
	return k
}

// Child returns a new key one level below k.
func (k DefKey) Child(name string, kind SegmentKind) DefKey {
	segs := make([]Segment, 0, len(k.Segments)+1)
	segs = append(segs, k.Segments...)
	segs = append(segs, Segment{Name: name, Kind: kind})
	return DefKey{Unit: k.Unit, Segments: segs}
}

// Parent returns the key of the enclosing entity. The parent of a
// single-segment key is the empty key.
func (k DefKey) Parent() DefKey {
	if len(k.Segments) == 0 {
		return k
	}
	return DefKey{Unit: k.Unit, Segments: append([]Segment(nil), k.Segments[:len(k.Segments)-1]...)}
}

// Name returns the last segment's name.
func (k DefKey) Name() string {
	if len(k.Segments) == 0 {
		return ""
	}
	return k.Segments[len(k.Segments)-1].Name
}

// Kind returns the last segment's kind.
func (k DefKey) Kind() SegmentKind {
	if len(k.Segments) == 0 {
		return ""
	}
	return k.Segments[len(k.Segments)-1].Kind
}

func (k DefKey) IsCandidate() bool { return k.Candidate != Concrete }

func (k DefKey) IsZero() bool { return len(k.Segments) == 0 && k.Candidate == Concrete }

// ID returns an injective encoding of k suitable as a map key. Keys that
// differ in any segment name, segment kind, unit, category or receiver never
// share an ID, whatever characters the names contain.
func (k DefKey) ID() string {
	var b strings.Builder
	b.WriteString(strconv.Quote(k.Unit))
	for _, s := range k.Segments {
		b.WriteByte('/')
		b.WriteString(strconv.Quote(string(s.Kind)))
		b.WriteByte(':')
		b.WriteString(strconv.Quote(s.Name))
	}
	if k.IsCandidate() {
		b.WriteString("?")
		b.WriteString(strconv.Quote(string(k.Candidate)))
		b.WriteString(strconv.Quote(k.Receiver))
	}
	return b.String()
}

func (k DefKey) Equal(o DefKey) bool { return k.ID() == o.ID() }

// Path renders the flat canonical path, e.g. "Base/m()". Candidate keys
// render as "(?M)m" or "(?M)Base::m".
func (k DefKey) Path() string {
	if k.IsCandidate() {
		name := k.Name()
		if k.Receiver != "" {
			name = k.Receiver + "::" + name
		}
		return "(?" + string(k.Candidate) + ")" + name
	}
	parts := make([]string, len(k.Segments))
	for i, s := range k.Segments {
		parts[i] = s.Render()
	}
	return strings.Join(parts, "/")
}

// Encode returns the unit-relative wire form of a concrete key, e.g.
// "type:Base/method:m". Unlike Path it keeps every segment kind, so a
// constant and a class of the same name in one namespace never share it.
// Output and storage join references to definitions on this form.
func (k DefKey) Encode() string {
	parts := make([]string, len(k.Segments))
	for i, s := range k.Segments {
		parts[i] = url.QueryEscape(string(s.Kind)) + ":" + url.QueryEscape(s.Name)
	}
	return strings.Join(parts, "/")
}

// TreePath renders the ancestor chain of plain names, e.g. "./Base/m".
func (k DefKey) TreePath() string {
	parts := make([]string, 0, len(k.Segments)+1)
	parts = append(parts, ".")
	for _, s := range k.Segments {
		parts = append(parts, s.Name)
	}
	return strings.Join(parts, "/")
}

func (k DefKey) String() string { return k.Path() }
