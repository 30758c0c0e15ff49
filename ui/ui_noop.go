//go:build !ui

package ui

import "io/fs"

// DistFS returns nil when built without the ui tag. A nil filesystem
// disables SPA mounting, leaving the server API-only.
func DistFS() (fs.FS, error) {
	return nil, nil
}
