package subtitle

import "time"

// Source tags where a resolved subtitle descriptor came from
type Source string

const (
	SourceLocal    Source = "local"
	SourceCache    Source = "cache"
	SourceExternal Source = "external"
	SourceNotFound Source = "not_found"
)

// Metadata describes one subtitle file known to the system, whether it
// lives in the local store or at an external provider.
type Metadata struct {
	ID            string    `json:"id"`
	VideoID       string    `json:"video_id"`
	Language      string    `json:"language"`
	Title         string    `json:"title"`
	Source        Source    `json:"source"`
	FileURL       string    `json:"file_url,omitempty"`
	FileSize      int64     `json:"file_size"`
	DownloadCount int       `json:"download_count"`
	Rating        float64   `json:"rating"`
	ReleaseInfo   string    `json:"release_info"`
	Encoding      string    `json:"encoding"`
	ExternalID    string    `json:"external_id,omitempty"`
	Hash          string    `json:"hash,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"` // zero when the descriptor never expires
}

// Downloadable reports whether the descriptor points at fetchable content
func (m Metadata) Downloadable() bool {
	return m.FileURL != ""
}
