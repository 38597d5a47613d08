package itunes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"podtrack/internal/apierr"
	"podtrack/internal/domain"
)

// Client interacts with the iTunes Search API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client using the provided HTTP client. The baseURL can
// be overridden for testing; if empty the public API endpoint is used.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://itunes.apple.com"
	}
	return &Client{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// Search queries the catalog for podcasts matching the supplied term.
func (c *Client) Search(ctx context.Context, term string, limit int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(term) == "" {
		return nil, fmt.Errorf("search term cannot be empty")
	}
	if limit <= 0 {
		limit = 25
	}

	endpoint, err := url.Parse(c.baseURL + "/search")
	if err != nil {
		return nil, err
	}
	q := endpoint.Query()
	q.Set("media", "podcast")
	q.Set("term", term)
	q.Set("limit", strconv.Itoa(limit))
	endpoint.RawQuery = q.Encode()

	var payload searchResponse
	if err := c.getJSON(ctx, endpoint.String(), &payload); err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, 0, len(payload.Results))
	for _, item := range payload.Results {
		results = append(results, item.toSearchResult())
	}
	return results, nil
}

// Lookup retrieves metadata for a single podcast by its catalog track id.
func (c *Client) Lookup(ctx context.Context, trackID int64) (domain.SearchResult, error) {
	endpoint, err := url.Parse(c.baseURL + "/lookup")
	if err != nil {
		return domain.SearchResult{}, err
	}
	q := endpoint.Query()
	q.Set("id", strconv.FormatInt(trackID, 10))
	endpoint.RawQuery = q.Encode()

	var payload searchResponse
	if err := c.getJSON(ctx, endpoint.String(), &payload); err != nil {
		return domain.SearchResult{}, err
	}
	if len(payload.Results) == 0 {
		return domain.SearchResult{}, fmt.Errorf("podcast not found")
	}
	return payload.Results[0].toSearchResult(), nil
}

// Top returns the charting podcasts for a country from the toppodcasts feed.
func (c *Client) Top(ctx context.Context, country string, limit int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(country) == "" {
		country = "US"
	}
	if limit <= 0 {
		limit = 15
	}

	endpoint := fmt.Sprintf("%s/%s/rss/toppodcasts/limit=%d/explicit=true/json", c.baseURL, country, limit)

	var payload topResponse
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, 0, len(payload.Feed.Entries))
	for _, entry := range payload.Feed.Entries {
		trackID, _ := strconv.ParseInt(entry.ID.Attributes.TrackID, 10, 64)
		artwork := ""
		if n := len(entry.Images); n > 0 {
			artwork = entry.Images[n-1].Label
		}
		results = append(results, domain.SearchResult{
			TrackID: trackID,
			Title:   entry.Name.Label,
			Author:  entry.Artist.Label,
			Artwork: artwork,
			Genre:   entry.Category.Attributes.Label,
		})
	}
	return results, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apierr.Classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apierr.Server(resp.StatusCode, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apierr.Parse(err)
	}
	return nil
}

type searchResponse struct {
	Results []podcastResult `json:"results"`
}

type podcastResult struct {
	TrackID          int64  `json:"trackId"`
	CollectionName   string `json:"collectionName"`
	ArtistName       string `json:"artistName"`
	FeedURL          string `json:"feedUrl"`
	ArtworkURL100    string `json:"artworkUrl100"`
	PrimaryGenreName string `json:"primaryGenreName"`
}

func (p podcastResult) toSearchResult() domain.SearchResult {
	return domain.SearchResult{
		TrackID: p.TrackID,
		Title:   p.CollectionName,
		Author:  p.ArtistName,
		FeedURL: p.FeedURL,
		Artwork: p.ArtworkURL100,
		Genre:   p.PrimaryGenreName,
	}
}

type topResponse struct {
	Feed struct {
		Entries []topEntry `json:"entry"`
	} `json:"feed"`
}

type topEntry struct {
	Name struct {
		Label string `json:"label"`
	} `json:"im:name"`
	Artist struct {
		Label string `json:"label"`
	} `json:"im:artist"`
	Images []struct {
		Label string `json:"label"`
	} `json:"im:image"`
	Category struct {
		Attributes struct {
			Label string `json:"label"`
		} `json:"attributes"`
	} `json:"category"`
	ID struct {
		Attributes struct {
			TrackID string `json:"im:id"`
		} `json:"attributes"`
	} `json:"id"`
}
