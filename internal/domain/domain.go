package domain

import "time"

// Podcast is one feed subscription or discovery candidate. ID is the locally
// assigned surrogate key; TrackID cross-references the iTunes catalog for
// podcasts discovered through search before they are followed.
type Podcast struct {
	ID           int64
	TrackID      int64
	Subscribed   bool
	ETag         string
	LastModified string
	Link         string
	Title        string
	Description  string
	ImageURL     string
	FeedURL      string
	Category     string
}

// Episode is one item in a podcast feed. GUID is the feed-provided durable
// identity and the primary key; Progress and LastPlayed are user state and are
// never overwritten by a feed refresh.
type Episode struct {
	GUID        string
	PodcastID   int64
	LastPlayed  *time.Time
	Progress    float64
	Title       string
	Description string
	ImageURL    string
	AudioURL    string
	Duration    int64
	PubDate     string
}

// Played reports whether the episode has ever been listened to.
func (e Episode) Played() bool {
	return e.LastPlayed != nil
}

// PodcastWithEpisodes is a value snapshot of a podcast and its merged episode
// list. It stays renderable after the underlying rows are deleted.
type PodcastWithEpisodes struct {
	Podcast  Podcast
	Episodes []Episode
}

// SearchResult is a podcast summary returned by a directory search.
type SearchResult struct {
	TrackID int64
	Title   string
	Author  string
	FeedURL string
	Artwork string
	Genre   string
}

// TrendingPodcast is one entry from the trending endpoint.
type TrendingPodcast struct {
	FeedID   int64
	FeedURL  string
	Title    string
	Author   string
	Artwork  string
	ITunesID int64
	Score    int
	Language string
}
