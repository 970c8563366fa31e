package tracklist

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

// XMLClient talks to the MusicBrainz XML web service.
type XMLClient struct {
	http *resty.Client
}

var _ port.TracklistClient = (*XMLClient)(nil)

func NewXMLClient(cfg Config) *XMLClient {
	return &XMLClient{http: newRestyClient(cfg).SetHeader("Accept", "application/xml")}
}

type xmlMetadata struct {
	XMLName     xml.Name       `xml:"metadata"`
	Release     *xmlRelease    `xml:"release"`
	ReleaseList xmlReleaseList `xml:"release-list"`
}

type xmlReleaseList struct {
	Releases []xmlRelease `xml:"release"`
}

type xmlRelease struct {
	ID         string        `xml:"id,attr"`
	Score      int           `xml:"score,attr"`
	Title      string        `xml:"title"`
	Status     string        `xml:"status"`
	Country    string        `xml:"country"`
	Date       string        `xml:"date"`
	MediumList xmlMediumList `xml:"medium-list"`
}

type xmlMediumList struct {
	TrackCount int         `xml:"track-count"`
	Media      []xmlMedium `xml:"medium"`
}

type xmlMedium struct {
	Format    string       `xml:"format"`
	TrackList xmlTrackList `xml:"track-list"`
}

type xmlTrackList struct {
	Count  int        `xml:"count,attr"`
	Tracks []xmlTrack `xml:"track"`
}

type xmlTrack struct {
	Title     string `xml:"title"`
	Position  int    `xml:"position"`
	Length    int    `xml:"length"`
	Recording struct {
		Title string `xml:"title"`
	} `xml:"recording"`
}

func (c *XMLClient) FetchTrackList(ctx context.Context, externalID string) ([]domain.Track, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("mbid", externalID).
		SetQueryParam("inc", "recordings").
		Get("/release/{mbid}")
	if err != nil {
		return nil, fmt.Errorf("musicbrainz lookup %s: %w", externalID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("musicbrainz lookup %s: status %d", externalID, resp.StatusCode())
	}

	var md xmlMetadata
	if err := xml.Unmarshal(resp.Body(), &md); err != nil {
		return nil, fmt.Errorf("musicbrainz lookup %s: decode: %w", externalID, err)
	}
	if md.Release == nil {
		return nil, fmt.Errorf("musicbrainz lookup %s: no release in response", externalID)
	}

	var tracks []domain.Track
	for _, medium := range md.Release.MediumList.Media {
		for _, t := range medium.TrackList.Tracks {
			title := t.Recording.Title
			if title == "" {
				title = t.Title
			}
			tracks = append(tracks, domain.Track{
				Title:       title,
				Length:      t.Length,
				Position:    t.Position,
				ReleaseDate: md.Release.Date,
			})
		}
	}
	return tracks, nil
}

// SearchRelease returns no matches when the service answers with an error status.
func (c *XMLClient) SearchRelease(ctx context.Context, artist, album, format string) ([]domain.ReleaseMatch, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query": searchQuery(artist, album, format),
			"limit": searchLimit,
		}).
		Get("/release/")
	if err != nil {
		return nil, fmt.Errorf("musicbrainz search: %w", err)
	}
	if resp.IsError() {
		return nil, nil
	}

	var md xmlMetadata
	if err := xml.Unmarshal(resp.Body(), &md); err != nil {
		return nil, fmt.Errorf("musicbrainz search: decode: %w", err)
	}

	matches := make([]domain.ReleaseMatch, 0, len(md.ReleaseList.Releases))
	for _, r := range md.ReleaseList.Releases {
		match := domain.ReleaseMatch{
			ExternalID: r.ID,
			Title:      r.Title,
			Score:      r.Score,
			Status:     r.Status,
			Country:    r.Country,
			Date:       r.Date,
			Format:     "Unknown",
			TrackCount: r.MediumList.TrackCount,
		}
		if len(r.MediumList.Media) > 0 && r.MediumList.Media[0].Format != "" {
			match.Format = r.MediumList.Media[0].Format
		}
		if match.TrackCount == 0 {
			for _, m := range r.MediumList.Media {
				match.TrackCount += m.TrackList.Count
			}
		}
		matches = append(matches, match)
	}
	return matches, nil
}
