package tracklist

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

// JSONClient talks to the MusicBrainz JSON web service (fmt=json).
type JSONClient struct {
	http *resty.Client
}

var _ port.TracklistClient = (*JSONClient)(nil)

func NewJSONClient(cfg Config) *JSONClient {
	return &JSONClient{
		http: newRestyClient(cfg).
			SetHeader("Accept", "application/json").
			SetQueryParam("fmt", "json"),
	}
}

type jsonRelease struct {
	ID         string      `json:"id"`
	Score      int         `json:"score"`
	Title      string      `json:"title"`
	Status     string      `json:"status"`
	Country    string      `json:"country"`
	Date       string      `json:"date"`
	TrackCount int         `json:"track-count"`
	Media      []jsonMedia `json:"media"`
}

type jsonMedia struct {
	Format     string      `json:"format"`
	TrackCount int         `json:"track-count"`
	Tracks     []jsonTrack `json:"tracks"`
}

type jsonTrack struct {
	Title     string `json:"title"`
	Position  int    `json:"position"`
	Length    int    `json:"length"`
	Recording struct {
		Title            string `json:"title"`
		FirstReleaseDate string `json:"first-release-date"`
	} `json:"recording"`
}

type jsonSearchResult struct {
	Releases []jsonRelease `json:"releases"`
}

func (c *JSONClient) FetchTrackList(ctx context.Context, externalID string) ([]domain.Track, error) {
	var release jsonRelease
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("mbid", externalID).
		SetQueryParam("inc", "recordings").
		SetResult(&release).
		ForceContentType("application/json").
		Get("/release/{mbid}")
	if err != nil {
		return nil, fmt.Errorf("musicbrainz lookup %s: %w", externalID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("musicbrainz lookup %s: status %d", externalID, resp.StatusCode())
	}

	var tracks []domain.Track
	for _, media := range release.Media {
		for _, t := range media.Tracks {
			title := t.Recording.Title
			if title == "" {
				title = t.Title
			}
			date := t.Recording.FirstReleaseDate
			if date == "" {
				date = release.Date
			}
			tracks = append(tracks, domain.Track{
				Title:       title,
				Length:      t.Length,
				Position:    t.Position,
				ReleaseDate: date,
			})
		}
	}
	return tracks, nil
}

func (c *JSONClient) SearchRelease(ctx context.Context, artist, album, format string) ([]domain.ReleaseMatch, error) {
	var result jsonSearchResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query": searchQuery(artist, album, format),
			"limit": searchLimit,
		}).
		SetResult(&result).
		ForceContentType("application/json").
		Get("/release/")
	if err != nil {
		return nil, fmt.Errorf("musicbrainz search: %w", err)
	}
	if resp.IsError() {
		return nil, nil
	}

	matches := make([]domain.ReleaseMatch, 0, len(result.Releases))
	for _, r := range result.Releases {
		match := domain.ReleaseMatch{
			ExternalID: r.ID,
			Title:      r.Title,
			Score:      r.Score,
			Status:     r.Status,
			Country:    r.Country,
			Date:       r.Date,
			Format:     "Unknown",
			TrackCount: r.TrackCount,
		}
		if len(r.Media) > 0 && r.Media[0].Format != "" {
			match.Format = r.Media[0].Format
		}
		if match.TrackCount == 0 {
			for _, m := range r.Media {
				match.TrackCount += m.TrackCount
			}
		}
		matches = append(matches, match)
	}
	return matches, nil
}
