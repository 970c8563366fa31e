package tracklist

import (
	"fmt"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

// Registry picks a client by adapter tag. The set of tags is fixed at construction.
type Registry struct {
	clients map[domain.AdapterType]port.TracklistClient
}

var _ port.TracklistResolver = (*Registry)(nil)

func NewRegistry(cfg Config) *Registry {
	return &Registry{clients: map[domain.AdapterType]port.TracklistClient{
		domain.AdapterHTTPMusicBrainz: NewXMLClient(cfg),
		domain.AdapterMusicBrainz:     NewJSONClient(cfg),
	}}
}

func (r *Registry) Client(adapter domain.AdapterType) (port.TracklistClient, error) {
	c, ok := r.clients[adapter]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAdapter, adapter)
	}
	return c, nil
}
