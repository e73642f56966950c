// Package models defines the domain types shared across shatag packages.
package models

import "time"

// FileMeta is a lightweight representation of a regular file returned by
// list operations.
type FileMeta struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}
