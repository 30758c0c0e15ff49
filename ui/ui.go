//go:build ui

package ui

import (
	"embed"
	"io/fs"
)

//go:embed all:dist
var distFS embed.FS

// DistFS returns the embedded admin frontend rooted at the dist/ directory.
// Requires the SPA build output to be present at ui/dist before compiling
// with the ui tag.
func DistFS() (fs.FS, error) {
	return fs.Sub(distFS, "dist")
}
