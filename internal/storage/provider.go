// Package storage defines the root-confined file tree abstraction used by
// the scanning, watching, and serving surfaces.
package storage

import "github.com/starford/shatag/internal/models"

// Provider is the interface for read-only tree operations.
type Provider interface {
	// Root returns the absolute root directory.
	Root() string
	// Resolve turns a path relative to the root into an absolute path of an
	// existing regular file.
	Resolve(path string) (string, error)
	// Rel returns abs relative to the root.
	Rel(abs string) (string, error)
	// List returns every regular file under dir (relative to the root).
	List(dir string) ([]models.FileMeta, error)
}
