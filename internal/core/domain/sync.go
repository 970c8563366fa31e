package domain

type AdapterType string

const (
	AdapterHTTPMusicBrainz AdapterType = "http-musicbrainz"
	AdapterMusicBrainz     AdapterType = "musicbrainz"

	DefaultAdapter = AdapterHTTPMusicBrainz
)

// SyncJob asks the tracklist worker to resolve ExternalID for RecordID.
type SyncJob struct {
	RecordID   string      `json:"recordId"`
	ExternalID string      `json:"externalId"`
	Adapter    AdapterType `json:"adapter"`
}

type SyncResult struct {
	RecordID   string
	TrackCount int
}

// ReleaseMatch is one hit of a release search against the metadata source.
type ReleaseMatch struct {
	ExternalID string
	Title      string
	Score      int
	Status     string
	Country    string
	Date       string
	Format     string
	TrackCount int
}
