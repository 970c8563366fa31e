package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SyncStatus string

const (
	SyncStatusUnset   SyncStatus = "UNSET"
	SyncStatusPending SyncStatus = "PENDING"
	SyncStatusValid   SyncStatus = "VALID"
	SyncStatusInvalid SyncStatus = "INVALID"
)

type RecordFormat string

const (
	FormatVinyl    RecordFormat = "Vinyl"
	FormatCD       RecordFormat = "CD"
	FormatCassette RecordFormat = "Cassette"
	FormatDigital  RecordFormat = "Digital"
)

func (f RecordFormat) Valid() bool {
	switch f {
	case FormatVinyl, FormatCD, FormatCassette, FormatDigital:
		return true
	}
	return false
}

type RecordCategory string

const (
	CategoryRock        RecordCategory = "Rock"
	CategoryJazz        RecordCategory = "Jazz"
	CategoryHipHop      RecordCategory = "Hip-Hop"
	CategoryClassical   RecordCategory = "Classical"
	CategoryPop         RecordCategory = "Pop"
	CategoryAlternative RecordCategory = "Alternative"
	CategoryIndie       RecordCategory = "Indie"
)

func (c RecordCategory) Valid() bool {
	switch c {
	case CategoryRock, CategoryJazz, CategoryHipHop, CategoryClassical,
		CategoryPop, CategoryAlternative, CategoryIndie:
		return true
	}
	return false
}

const (
	MaxPrice = 100000
	MaxQty   = 99999
)

type Track struct {
	Title       string `json:"title"`
	Length      int    `json:"length"` // milliseconds
	Position    int    `json:"position"`
	ReleaseDate string `json:"releaseDate,omitempty"`
}

type Record struct {
	ID             string
	Artist         string
	Album          string
	Price          decimal.Decimal
	Qty            int
	Format         RecordFormat
	Category       RecordCategory
	ExternalID     string
	Tracks         []Track
	TracksSyncedAt *time.Time
	SyncStatus     SyncStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SyncState is the slice of a Record owned by the tracklist sync worker.
type SyncState struct {
	ExternalID string
	Status     SyncStatus
	Tracks     []Track
	SyncedAt   *time.Time
}

// ValidSyncState marks externalID as resolved to tracks at syncedAt.
func ValidSyncState(externalID string, tracks []Track, syncedAt time.Time) SyncState {
	return SyncState{
		ExternalID: externalID,
		Status:     SyncStatusValid,
		Tracks:     tracks,
		SyncedAt:   &syncedAt,
	}
}

// PendingSyncState arms a sync for externalID and drops whatever was cached for the previous id.
func PendingSyncState(externalID string) SyncState {
	return SyncState{ExternalID: externalID, Status: SyncStatusPending}
}

// InvalidSyncState records externalID as unresolvable. Tracks and sync time are cleared.
func InvalidSyncState(externalID string) SyncState {
	return SyncState{ExternalID: externalID, Status: SyncStatusInvalid}
}

// NeedsSync reports whether a sync for externalID would do any work.
func (r Record) NeedsSync(externalID string) bool {
	return r.ExternalID != externalID || len(r.Tracks) == 0
}

// NewRecord holds the caller supplied fields of a catalog entry.
type NewRecord struct {
	Artist     string
	Album      string
	Price      decimal.Decimal
	Qty        int
	Format     RecordFormat
	Category   RecordCategory
	ExternalID string
}

// RecordPatch is a partial update. Nil fields are left untouched.
type RecordPatch struct {
	Artist     *string
	Album      *string
	Price      *decimal.Decimal
	Qty        *int
	Format     *RecordFormat
	Category   *RecordCategory
	ExternalID *string
}

// ExternalIDChanged reports whether applying the patch re-arms a tracklist sync.
func (p RecordPatch) ExternalIDChanged(current string) bool {
	return p.ExternalID != nil && *p.ExternalID != "" && *p.ExternalID != current
}

// Apply returns r with the patch applied. A changed external id clears the cached tracks.
func (p RecordPatch) Apply(r Record) Record {
	if p.Artist != nil {
		r.Artist = *p.Artist
	}
	if p.Album != nil {
		r.Album = *p.Album
	}
	if p.Price != nil {
		r.Price = *p.Price
	}
	if p.Qty != nil {
		r.Qty = *p.Qty
	}
	if p.Format != nil {
		r.Format = *p.Format
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.ExternalIDChanged(r.ExternalID) {
		r.ExternalID = *p.ExternalID
		r.Tracks = nil
		r.TracksSyncedAt = nil
		r.SyncStatus = SyncStatusPending
	}
	return r
}

func validateFields(artist, album string, price decimal.Decimal, qty int, format RecordFormat, category RecordCategory) error {
	switch {
	case artist == "":
		return InvalidInputf("artist is required")
	case album == "":
		return InvalidInputf("album is required")
	case price.IsNegative() || price.GreaterThan(decimal.NewFromInt(MaxPrice)):
		return InvalidInputf("price must be between 0 and %d", MaxPrice)
	case qty < 0 || qty > MaxQty:
		return InvalidInputf("qty must be between 0 and %d", MaxQty)
	case !format.Valid():
		return InvalidInputf("unknown format %q", format)
	case !category.Valid():
		return InvalidInputf("unknown category %q", category)
	}
	return nil
}

func (n NewRecord) Validate() error {
	return validateFields(n.Artist, n.Album, n.Price, n.Qty, n.Format, n.Category)
}

// Validate checks the record that results from applying the patch.
func (r Record) Validate() error {
	return validateFields(r.Artist, r.Album, r.Price, r.Qty, r.Format, r.Category)
}
