// Package podcastindex is a minimal PodcastIndex API client covering the
// trending endpoint, which requires signed requests.
package podcastindex

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"podtrack/internal/apierr"
	"podtrack/internal/domain"
)

const trendingWindow = 1000000 // seconds of history the trending query covers

// Client calls the PodcastIndex API using the key/secret signing scheme.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	apiSecret  string
	userAgent  string
	now        func() time.Time
}

// NewClient creates a trending client. baseURL and now are overridable for
// testing; empty values select the public endpoint and wall-clock time.
func NewClient(httpClient *http.Client, baseURL, apiKey, apiSecret, userAgent string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.podcastindex.org"
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		userAgent:  userAgent,
		now:        time.Now,
	}
}

// WithClock replaces the clock used for request signing. Test hook.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// Trending returns the currently trending podcasts, optionally filtered by a
// category id.
func (c *Client) Trending(ctx context.Context, category string, max int) ([]domain.TrendingPodcast, error) {
	if max <= 0 {
		max = 10
	}

	epoch := c.now().Unix()

	endpoint, err := url.Parse(c.baseURL + "/api/1.0/podcasts/trending")
	if err != nil {
		return nil, err
	}
	q := endpoint.Query()
	q.Set("since", strconv.FormatInt(epoch-trendingWindow, 10))
	q.Set("max", strconv.Itoa(max))
	q.Set("lang", "en")
	if category != "" {
		q.Set("cat", category)
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	epochStr := strconv.FormatInt(epoch, 10)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Auth-Key", c.apiKey)
	req.Header.Set("X-Auth-Date", epochStr)
	req.Header.Set("Authorization", AuthToken(c.apiKey, c.apiSecret, epochStr))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierr.Classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apierr.Server(resp.StatusCode, resp.Status)
	}

	var payload trendingResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apierr.Parse(err)
	}

	results := make([]domain.TrendingPodcast, 0, len(payload.Feeds))
	for _, feed := range payload.Feeds {
		results = append(results, domain.TrendingPodcast{
			FeedID:   feed.ID,
			FeedURL:  feed.URL,
			Title:    feed.Title,
			Author:   feed.Author,
			Artwork:  feed.Artwork,
			ITunesID: feed.ITunesID,
			Score:    feed.TrendScore,
			Language: feed.Language,
		})
	}
	return results, nil
}

// AuthToken computes the PodcastIndex request signature: the hex SHA-1 of the
// key, secret and timestamp concatenated. The server validates freshness of
// the timestamp against the X-Auth-Date header.
func AuthToken(apiKey, apiSecret, epoch string) string {
	sum := sha1.Sum([]byte(apiKey + apiSecret + epoch))
	return hex.EncodeToString(sum[:])
}

type trendingResponse struct {
	Status string         `json:"status"`
	Count  int            `json:"count"`
	Feeds  []trendingFeed `json:"feeds"`
}

type trendingFeed struct {
	ID         int64  `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	Artwork    string `json:"artwork"`
	ITunesID   int64  `json:"itunesId"`
	TrendScore int    `json:"trendScore"`
	Language   string `json:"language"`
}
