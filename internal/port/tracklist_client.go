package port

import (
	"context"

	"github.com/rl1809/record-store/internal/core/domain"
)

type TracklistClient interface {
	// FetchTrackList looks up the ordered track list of a release
	FetchTrackList(ctx context.Context, externalID string) ([]domain.Track, error)

	// SearchRelease finds candidate releases for an artist/album/format triple
	SearchRelease(ctx context.Context, artist, album, format string) ([]domain.ReleaseMatch, error)
}

type TracklistResolver interface {
	// Client returns domain.ErrUnknownAdapter for tags outside the registered set
	Client(adapter domain.AdapterType) (TracklistClient, error)
}
