// Package scripts embeds the Risor graph and resolution scripts so the
// binary works without a scripts directory on disk.
package scripts

import "embed"

// FS holds graph/<lang>.risor and resolve/<lang>.risor.
//
//go:embed graph/*.risor resolve/*.risor
var FS embed.FS
