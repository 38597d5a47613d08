package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"podtrack/internal/apierr"
	"podtrack/internal/domain"
	"podtrack/internal/feeds"
	"podtrack/internal/itunes"
	"podtrack/internal/opml"
	"podtrack/internal/podcastindex"
	"podtrack/internal/reconcile"
	"podtrack/internal/repository"
)

var (
	ErrMissingFeedURL          = errors.New("podcast feed URL missing")
	ErrAlreadySubscribed       = errors.New("already subscribed")
	ErrTrendingUnavailable     = errors.New("trending requires PodcastIndex credentials")
	ErrNoSubscriptionsToExport = errors.New("no subscriptions to export")
	ErrNoSubscriptionsInOPML   = errors.New("no subscriptions found in OPML file")
)

// ImportResult summarises one OPML import run.
type ImportResult struct {
	Imported int
	Skipped  int
	Errors   []string
}

// RefreshAllResult summarises a refresh sweep over every subscription.
type RefreshAllResult struct {
	Refreshed int
	Errors    []string
}

// Service orchestrates feed refreshes, discovery, and the follow lifecycle.
// All persistence goes through the store; fetching stays side-effect free so
// a failed refresh can still hand back the cached rows.
type Service struct {
	store      *repository.Store
	httpClient *http.Client
	itunes     *itunes.Client
	trending   *podcastindex.Client

	// refreshes of the same podcast coalesce; waiters share the in-flight
	// call's result instead of racing a second fetch.
	group singleflight.Group
}

func NewService(store *repository.Store, client *http.Client, itunesClient *itunes.Client, trendingClient *podcastindex.Client) *Service {
	return &Service{store: store, httpClient: client, itunes: itunesClient, trending: trendingClient}
}

// Subscriptions lists the followed podcasts ordered by title.
func (s *Service) Subscriptions(ctx context.Context) ([]domain.Podcast, error) {
	return s.store.ListPodcasts(ctx)
}

// Observe streams subscription snapshots; see repository.Store.ObservePodcasts.
func (s *Service) Observe(ctx context.Context) (<-chan []domain.Podcast, error) {
	return s.store.ObservePodcasts(ctx)
}

// Episodes returns the persisted episode list for one podcast.
func (s *Service) Episodes(ctx context.Context, podcastID int64) ([]domain.Episode, error) {
	return s.store.EpisodesByPodcast(ctx, podcastID)
}

// Refresh re-syncs one podcast against its feed. On a 304 the persisted
// snapshot comes back untouched. On a fetch failure the persisted snapshot
// comes back alongside the typed error, so callers keep stale-but-valid data.
// Concurrent calls for the same podcast share a single fetch.
func (s *Service) Refresh(ctx context.Context, podcastID int64) (domain.PodcastWithEpisodes, error) {
	v, err, _ := s.group.Do(strconv.FormatInt(podcastID, 10), func() (interface{}, error) {
		return s.refresh(ctx, podcastID)
	})
	snapshot, _ := v.(domain.PodcastWithEpisodes)
	return snapshot, err
}

func (s *Service) refresh(ctx context.Context, podcastID int64) (domain.PodcastWithEpisodes, error) {
	podcast, err := s.store.GetPodcast(ctx, podcastID)
	if err != nil {
		return domain.PodcastWithEpisodes{}, err
	}
	existing, err := s.store.EpisodesByPodcast(ctx, podcastID)
	if err != nil {
		return domain.PodcastWithEpisodes{}, err
	}
	cached := domain.PodcastWithEpisodes{Podcast: podcast, Episodes: existing}

	outcome := feeds.Fetch(ctx, s.httpClient, podcast.FeedURL, podcast.ETag, podcast.LastModified)
	switch outcome.Status {
	case feeds.StatusNotModified:
		return cached, nil
	case feeds.StatusFailed:
		return cached, outcome.Err
	}

	updated := applyChannel(podcast, outcome)
	merged := reconcile.Merge(outcome.Channel.Items, podcast.ID, reconcile.ByGUID(existing), outcome.Channel.ImageURL)

	if err := s.store.SyncFeed(ctx, updated, merged); err != nil {
		return cached, err
	}
	return domain.PodcastWithEpisodes{Podcast: updated, Episodes: merged}, nil
}

// RefreshAll sweeps every subscription, continuing past individual failures.
func (s *Service) RefreshAll(ctx context.Context) (RefreshAllResult, error) {
	podcasts, err := s.store.ListPodcasts(ctx)
	if err != nil {
		return RefreshAllResult{}, err
	}

	var result RefreshAllResult
	for _, podcast := range podcasts {
		if _, err := s.Refresh(ctx, podcast.ID); err != nil {
			log.Printf("refresh %q: %v", podcast.Title, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", podcast.Title, err))
			continue
		}
		result.Refreshed++
	}
	return result, nil
}

// Preview fetches and reconciles a feed without persisting anything. The
// returned snapshot is what Follow would store.
func (s *Service) Preview(ctx context.Context, feedURL string, trackID int64) (domain.PodcastWithEpisodes, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return domain.PodcastWithEpisodes{}, ErrMissingFeedURL
	}

	outcome := feeds.Fetch(ctx, s.httpClient, feedURL, "", "")
	if outcome.Status != feeds.StatusFetched {
		err := outcome.Err
		if err == nil {
			err = apierr.New(apierr.KindUnknown, "unexpected not-modified response without validators")
		}
		return domain.PodcastWithEpisodes{}, err
	}

	podcast := applyChannel(domain.Podcast{TrackID: trackID, FeedURL: feedURL}, outcome)
	episodes := reconcile.Merge(outcome.Channel.Items, 0, nil, outcome.Channel.ImageURL)
	return domain.PodcastWithEpisodes{Podcast: podcast, Episodes: episodes}, nil
}

// Follow persists a previewed snapshot as a subscription. The preview is
// stored as-is, no second fetch.
func (s *Service) Follow(ctx context.Context, preview domain.PodcastWithEpisodes) (domain.PodcastWithEpisodes, error) {
	feedURL := strings.TrimSpace(preview.Podcast.FeedURL)
	if feedURL == "" {
		return domain.PodcastWithEpisodes{}, ErrMissingFeedURL
	}

	if _, err := s.store.GetPodcastByFeedURL(ctx, feedURL); err == nil {
		return domain.PodcastWithEpisodes{}, ErrAlreadySubscribed
	} else if !errors.Is(err, repository.ErrNotFound) {
		return domain.PodcastWithEpisodes{}, err
	}

	podcast := preview.Podcast
	podcast.Subscribed = true
	id, err := s.store.InsertPodcast(ctx, podcast)
	if err != nil {
		return domain.PodcastWithEpisodes{}, err
	}
	podcast.ID = id

	episodes := make([]domain.Episode, len(preview.Episodes))
	copy(episodes, preview.Episodes)
	for i := range episodes {
		episodes[i].PodcastID = id
	}
	if err := s.store.InsertEpisodes(ctx, episodes); err != nil {
		return domain.PodcastWithEpisodes{}, err
	}

	return domain.PodcastWithEpisodes{Podcast: podcast, Episodes: episodes}, nil
}

// FollowTrack resolves an iTunes track to its feed and follows it.
func (s *Service) FollowTrack(ctx context.Context, trackID int64) (domain.PodcastWithEpisodes, error) {
	if _, err := s.store.GetPodcastByTrackID(ctx, trackID); err == nil {
		return domain.PodcastWithEpisodes{}, ErrAlreadySubscribed
	} else if !errors.Is(err, repository.ErrNotFound) {
		return domain.PodcastWithEpisodes{}, err
	}

	result, err := s.itunes.Lookup(ctx, trackID)
	if err != nil {
		return domain.PodcastWithEpisodes{}, err
	}
	preview, err := s.Preview(ctx, result.FeedURL, trackID)
	if err != nil {
		return domain.PodcastWithEpisodes{}, err
	}
	return s.Follow(ctx, preview)
}

// Unfollow removes a subscription; its episodes cascade away with it.
func (s *Service) Unfollow(ctx context.Context, podcastID int64) (bool, error) {
	return s.store.DeletePodcast(ctx, podcastID)
}

// Search queries the iTunes directory.
func (s *Service) Search(ctx context.Context, term string, limit int) ([]domain.SearchResult, error) {
	return s.itunes.Search(ctx, term, limit)
}

// Lookup resolves one iTunes track id.
func (s *Service) Lookup(ctx context.Context, trackID int64) (domain.SearchResult, error) {
	return s.itunes.Lookup(ctx, trackID)
}

// Top returns the store chart for a country.
func (s *Service) Top(ctx context.Context, country string, limit int) ([]domain.SearchResult, error) {
	return s.itunes.Top(ctx, country, limit)
}

// Trending returns trending podcasts from PodcastIndex, when configured.
func (s *Service) Trending(ctx context.Context, category string, max int) ([]domain.TrendingPodcast, error) {
	if s.trending == nil {
		return nil, ErrTrendingUnavailable
	}
	return s.trending.Trending(ctx, category, max)
}

// ExportOPML writes the subscription list to an OPML file.
func (s *Service) ExportOPML(ctx context.Context, filePath string) (int, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return 0, errors.New("file path cannot be empty")
	}

	podcasts, err := s.store.ListPodcasts(ctx)
	if err != nil {
		return 0, err
	}
	if len(podcasts) == 0 {
		return 0, ErrNoSubscriptionsToExport
	}

	file, err := os.Create(filePath)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	subs := make([]opml.Subscription, len(podcasts))
	for i, podcast := range podcasts {
		subs[i] = opml.Subscription{Title: podcast.Title, FeedURL: podcast.FeedURL, SiteURL: podcast.Link}
	}

	if err := opml.Export(file, subs); err != nil {
		return 0, err
	}

	return len(subs), nil
}

// ImportOPML follows every feed in an OPML file through the preview path,
// skipping feeds already subscribed.
func (s *Service) ImportOPML(ctx context.Context, filePath string) (ImportResult, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return ImportResult{}, errors.New("file path cannot be empty")
	}

	file, err := os.Open(filePath)
	if err != nil {
		return ImportResult{}, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	subs, err := opml.Import(file)
	if err != nil {
		return ImportResult{}, err
	}
	if len(subs) == 0 {
		return ImportResult{}, ErrNoSubscriptionsInOPML
	}

	var result ImportResult
	for _, sub := range subs {
		if _, err := s.store.GetPodcastByFeedURL(ctx, sub.FeedURL); err == nil {
			result.Skipped++
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", sub.Title, err))
			continue
		}

		preview, err := s.Preview(ctx, sub.FeedURL, 0)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", sub.Title, err))
			continue
		}
		if preview.Podcast.Title == "" {
			preview.Podcast.Title = fallbackTitle(sub.Title)
		}

		if _, err := s.Follow(ctx, preview); err != nil {
			if errors.Is(err, ErrAlreadySubscribed) {
				result.Skipped++
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", sub.Title, err))
			continue
		}

		result.Imported++
	}

	return result, nil
}

// applyChannel folds a fetched channel into a podcast record. Validators are
// replaced with whatever the server sent, including empty values, so a feed
// that stops emitting them falls back to unconditional fetches.
func applyChannel(podcast domain.Podcast, outcome feeds.Outcome) domain.Podcast {
	channel := outcome.Channel
	podcast.ETag = outcome.ETag
	podcast.LastModified = outcome.LastModified
	podcast.Link = channel.Link
	podcast.Title = fallbackTitle(channel.Title, podcast.Title)
	podcast.Description = feeds.StripHTML(channel.Description)
	podcast.ImageURL = channel.ImageURL
	podcast.Category = channel.Category
	return podcast
}

func fallbackTitle(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return "Untitled Podcast"
}
