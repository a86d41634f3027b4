// Package geocode turns a free-text cave location into coordinates.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/config"
)

const (
	defaultRequestTimeout = 10 * time.Second
	// CacheTTL is how long a geocoded query is remembered.
	CacheTTL = 24 * time.Hour
)

var latLngPattern = regexp.MustCompile(
	`^[-+]?([1-8]?\d(\.\d+)?|90(\.0+)?),\s*[-+]?(180(\.0+)?|((1[0-7]\d)|([1-9]?\d))(\.\d+)?)$`,
)

// Point is a latitude and longitude pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ParseLatLng parses a literal "lat, lng" pair.
func ParseLatLng(text string) (Point, bool) {
	text = strings.TrimSpace(text)
	if !latLngPattern.MatchString(text) {
		return Point{}, false
	}
	latRaw, lngRaw, _ := strings.Cut(text, ",")
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(lngRaw), 64)
	if errLat != nil || errLng != nil {
		return Point{}, false
	}
	return Point{Lat: lat, Lng: lng}, true
}

// Client resolves locations with the Google geocoding API.
type Client struct {
	apiKey string
	url    string
	client *http.Client
	cache  Cache
}

// NewClient constructs a Client. cache may be nil.
func NewClient(cfg config.GeocodeConfig, cache Cache) *Client {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Client{
		apiKey: strings.TrimSpace(cfg.APIKey),
		url:    strings.TrimSpace(cfg.URL),
		client: &http.Client{Timeout: defaultRequestTimeout},
		cache:  cache,
	}
}

type apiResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location Point `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
	ErrorMessage string `json:"error_message"`
}

// Geocode returns the coordinates of query. Literal coordinates are accepted
// without a lookup. A query with no match is a not found error.
func (c *Client) Geocode(ctx context.Context, query string) (Point, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Point{}, apperr.FieldError("cave_location", "This field is required.")
	}
	if p, ok := ParseLatLng(query); ok {
		return p, nil
	}
	if c == nil || c.apiKey == "" || c.url == "" {
		return Point{}, apperr.NotFound("location")
	}

	cacheKey := strings.ToLower(query)
	if p, ok := c.cache.Get(ctx, cacheKey); ok {
		return p, nil
	}
	p, errLookup := c.lookup(ctx, query)
	if errLookup != nil {
		return Point{}, errLookup
	}
	c.cache.Set(ctx, cacheKey, p, CacheTTL)
	return p, nil
}

func (c *Client) lookup(ctx context.Context, query string) (Point, error) {
	requestCtx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	params := url.Values{"address": {query}, "key": {c.apiKey}}
	endpoint := c.url + "?" + params.Encode()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Point{}, fmt.Errorf("geocode: build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Point{}, apperr.External("The location lookup failed.", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("geocode: close response body failed")
		}
	}()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Point{}, apperr.External("The location lookup failed.", fmt.Errorf("geocode: unexpected status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Point{}, apperr.External("The location lookup failed.", err)
	}

	var payload apiResponse
	if errDecode := json.Unmarshal(body, &payload); errDecode != nil {
		return Point{}, apperr.External("The location lookup failed.", errDecode)
	}
	switch payload.Status {
	case "OK":
		if len(payload.Results) > 0 {
			return payload.Results[0].Geometry.Location, nil
		}
		return Point{}, apperr.NotFound("location")
	case "ZERO_RESULTS":
		return Point{}, apperr.NotFound("location")
	default:
		return Point{}, apperr.External("The location lookup failed.",
			fmt.Errorf("geocode: status %s: %s", payload.Status, payload.ErrorMessage))
	}
}
