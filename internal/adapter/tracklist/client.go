package tracklist

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL    = "https://musicbrainz.org/ws/2"
	DefaultAppName    = "record-store"
	DefaultAppVersion = "0.1.0"
	DefaultTimeout    = 10 * time.Second

	searchLimit = "10"
)

type Config struct {
	BaseURL    string
	AppName    string
	AppVersion string
	Contact    string
	Timeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.AppName == "" {
		c.AppName = DefaultAppName
	}
	if c.AppVersion == "" {
		c.AppVersion = DefaultAppVersion
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// UserAgent follows the MusicBrainz etiquette: app/version (contact).
func (c Config) UserAgent() string {
	c = c.withDefaults()
	return fmt.Sprintf("%s/%s (%s)", c.AppName, c.AppVersion, c.Contact)
}

func newRestyClient(cfg Config) *resty.Client {
	cfg = cfg.withDefaults()
	return resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent())
}

var tagPattern = regexp.MustCompile(`<.*?>`)

func sanitize(s string) string {
	return tagPattern.ReplaceAllString(strings.TrimSpace(s), "")
}

// searchQuery builds the Lucene query for a release search.
func searchQuery(artist, album, format string) string {
	return fmt.Sprintf(`artist:"%s" AND release:"%s" AND format:"%s"`,
		sanitize(artist), sanitize(album), sanitize(format))
}
