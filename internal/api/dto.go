package api

import (
	"github.com/starford/shatag/internal/history"
	"github.com/starford/shatag/internal/models"
)

// VerifyRequest is the request body for verifying a file.
type VerifyRequest struct {
	Path string `json:"path" example:"photos/2021/img_0001.jpg" validate:"required"`
}

// VerifyResponse describes one verification and the evidence behind it.
type VerifyResponse struct {
	Path            string  `json:"path" example:"photos/2021/img_0001.jpg" validate:"required"`
	Outcome         string  `json:"outcome" example:"ok" enums:"ok,outdated,corrupt,write_failure" validate:"required"`
	ExitStatus      int     `json:"exit_status" example:"0"`
	StoredChecksum  *string `json:"stored_checksum"`
	StoredTimestamp *string `json:"stored_timestamp" example:"1909669684.252460189"`
	ActualChecksum  string  `json:"actual_checksum"`
	ActualTimestamp string  `json:"actual_timestamp" example:"1909669684.252460189"`
	Error           string  `json:"error,omitempty"`
}

// HistoryEntry is a recorded verification (aliased from the history layer).
type HistoryEntry = history.Entry

// HistoryResponse wraps history listings.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries" validate:"required"`
}

// FileMeta is a regular file under the served root (aliased from the domain layer).
type FileMeta = models.FileMeta

// FilesResponse wraps file listings.
type FilesResponse struct {
	Files []FileMeta `json:"files" validate:"required"`
}
