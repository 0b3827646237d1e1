package types

import "time"

// FileRecord is the metadata for one stored upload. Fields are write-once:
// records are created at ingestion and never mutated afterwards.
type FileRecord struct {
	ID           string    `json:"fileId"`
	OriginalName string    `json:"originalName"`
	Extension    string    `json:"extension"`
	MimeType     string    `json:"mimeType"`
	SizeBytes    int64     `json:"size"`
	StoragePath  string    `json:"-"`
	UploadedAt   time.Time `json:"uploadedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	UploadedByIP string    `json:"uploadedBy"`
	SourceURL    string    `json:"sourceUrl,omitempty"`
}

// RemainingTime returns how long the record has left before expiry, floored
// at zero
func (r *FileRecord) RemainingTime(now time.Time) time.Duration {
	remaining := r.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AccessPath returns the public access path for the record
func (r *FileRecord) AccessPath() string {
	return "/ac/" + r.ID + "." + r.Extension
}

// RegistryStats aggregates counters over all live records
type RegistryStats struct {
	TotalFiles  int            `json:"totalFiles"`
	TotalBytes  int64          `json:"totalSize"`
	FilesByType map[string]int `json:"filesByType"`
}
