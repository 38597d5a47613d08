package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"podtrack/internal/domain"
	"podtrack/internal/repository"
	"podtrack/internal/storage"
)

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.Open(dbPath)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return repository.New(db)
}

func TestStorePodcastLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	podcast := domain.Podcast{
		TrackID:     101,
		Subscribed:  true,
		ETag:        `"v1"`,
		Title:       "Test Show",
		Description: "About tests",
		FeedURL:     "http://example.com/feed.xml",
		Category:    "Technology",
	}

	id, err := store.InsertPodcast(ctx, podcast)
	if err != nil {
		t.Fatalf("InsertPodcast: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero assigned id")
	}

	byID, err := store.GetPodcast(ctx, id)
	if err != nil {
		t.Fatalf("GetPodcast: %v", err)
	}
	if byID.Title != "Test Show" || !byID.Subscribed || byID.ETag != `"v1"` {
		t.Errorf("round-tripped podcast = %+v", byID)
	}

	byTrack, err := store.GetPodcastByTrackID(ctx, 101)
	if err != nil {
		t.Fatalf("GetPodcastByTrackID: %v", err)
	}
	if byTrack.ID != id {
		t.Errorf("track lookup id = %d, want %d", byTrack.ID, id)
	}

	byFeed, err := store.GetPodcastByFeedURL(ctx, "http://example.com/feed.xml")
	if err != nil {
		t.Fatalf("GetPodcastByFeedURL: %v", err)
	}
	if byFeed.ID != id {
		t.Errorf("feed lookup id = %d, want %d", byFeed.ID, id)
	}

	// Upsert replaces descriptive fields but never flips subscribed.
	byID.Title = "Renamed Show"
	byID.ETag = `"v2"`
	if err := store.UpsertPodcast(ctx, byID); err != nil {
		t.Fatalf("UpsertPodcast: %v", err)
	}
	updated, err := store.GetPodcast(ctx, id)
	if err != nil {
		t.Fatalf("GetPodcast after upsert: %v", err)
	}
	if updated.Title != "Renamed Show" || updated.ETag != `"v2"` {
		t.Errorf("upserted podcast = %+v", updated)
	}
	if !updated.Subscribed {
		t.Error("upsert must preserve the subscribed flag")
	}

	deleted, err := store.DeletePodcast(ctx, id)
	if err != nil {
		t.Fatalf("DeletePodcast: %v", err)
	}
	if !deleted {
		t.Error("expected delete to report true")
	}
	if _, err := store.GetPodcast(ctx, id); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("lookup after delete = %v, want ErrNotFound", err)
	}
}

func TestStoreEpisodeCascadeDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.InsertPodcast(ctx, domain.Podcast{Subscribed: true, Title: "Show", FeedURL: "http://example.com/f.xml"})
	if err != nil {
		t.Fatalf("InsertPodcast: %v", err)
	}
	err = store.InsertEpisodes(ctx, []domain.Episode{
		{GUID: "guid-a", PodcastID: id, Title: "A", AudioURL: "http://example.com/a.mp3"},
	})
	if err != nil {
		t.Fatalf("InsertEpisodes: %v", err)
	}

	if _, err := store.DeletePodcast(ctx, id); err != nil {
		t.Fatalf("DeletePodcast: %v", err)
	}
	if _, err := store.GetEpisode(ctx, "guid-a"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("episode survived cascade delete: %v", err)
	}
}

func TestSyncFeedPreservesUserState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.InsertPodcast(ctx, domain.Podcast{Subscribed: true, Title: "Show", FeedURL: "http://example.com/f.xml"})
	if err != nil {
		t.Fatalf("InsertPodcast: %v", err)
	}
	if err := store.InsertEpisodes(ctx, []domain.Episode{
		{GUID: "guid-a", PodcastID: id, Title: "Old Title"},
	}); err != nil {
		t.Fatalf("InsertEpisodes: %v", err)
	}

	lastPlayed := time.Now().UTC().Truncate(time.Millisecond)
	if err := store.UpdateEpisodeProgress(ctx, "guid-a", 42.5, lastPlayed); err != nil {
		t.Fatalf("UpdateEpisodeProgress: %v", err)
	}

	podcast, err := store.GetPodcast(ctx, id)
	if err != nil {
		t.Fatalf("GetPodcast: %v", err)
	}
	podcast.ETag = `"next"`
	err = store.SyncFeed(ctx, podcast, []domain.Episode{
		{GUID: "guid-a", PodcastID: id, Title: "New Title", Progress: 42.5},
		{GUID: "guid-b", PodcastID: id, Title: "Brand New"},
	})
	if err != nil {
		t.Fatalf("SyncFeed: %v", err)
	}

	a, err := store.GetEpisode(ctx, "guid-a")
	if err != nil {
		t.Fatalf("GetEpisode guid-a: %v", err)
	}
	if a.Progress != 42.5 {
		t.Errorf("guid-a progress = %v, want 42.5", a.Progress)
	}
	if a.LastPlayed == nil || !a.LastPlayed.Equal(lastPlayed) {
		t.Errorf("guid-a lastPlayed = %v, want %v", a.LastPlayed, lastPlayed)
	}
	if a.Title != "New Title" {
		t.Errorf("guid-a title = %q, want refreshed title", a.Title)
	}

	b, err := store.GetEpisode(ctx, "guid-b")
	if err != nil {
		t.Fatalf("GetEpisode guid-b: %v", err)
	}
	if b.Progress != 0 || b.LastPlayed != nil {
		t.Errorf("guid-b user state = (%v, %v), want fresh", b.Progress, b.LastPlayed)
	}

	refreshed, err := store.GetPodcast(ctx, id)
	if err != nil {
		t.Fatalf("GetPodcast after sync: %v", err)
	}
	if refreshed.ETag != `"next"` {
		t.Errorf("etag = %q, want %q", refreshed.ETag, `"next"`)
	}
}

func TestPlayedEpisodeQueries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.InsertPodcast(ctx, domain.Podcast{Subscribed: true, Title: "Show", FeedURL: "http://example.com/f.xml"})
	if err != nil {
		t.Fatalf("InsertPodcast: %v", err)
	}
	if err := store.InsertEpisodes(ctx, []domain.Episode{
		{GUID: "guid-a", PodcastID: id},
		{GUID: "guid-b", PodcastID: id},
		{GUID: "guid-c", PodcastID: id},
	}); err != nil {
		t.Fatalf("InsertEpisodes: %v", err)
	}

	base := time.Now().UTC()
	if err := store.UpdateEpisodeProgress(ctx, "guid-a", 10, base.Add(-time.Hour)); err != nil {
		t.Fatalf("UpdateEpisodeProgress a: %v", err)
	}
	if err := store.UpdateEpisodeProgress(ctx, "guid-b", 20, base); err != nil {
		t.Fatalf("UpdateEpisodeProgress b: %v", err)
	}

	last, err := store.LastPlayedEpisode(ctx)
	if err != nil {
		t.Fatalf("LastPlayedEpisode: %v", err)
	}
	if last.GUID != "guid-b" {
		t.Errorf("last played = %s, want guid-b", last.GUID)
	}

	played, err := store.PlayedEpisodes(ctx)
	if err != nil {
		t.Fatalf("PlayedEpisodes: %v", err)
	}
	if len(played) != 2 {
		t.Fatalf("played = %d episodes, want 2", len(played))
	}
	if played[0].GUID != "guid-b" || played[1].GUID != "guid-a" {
		t.Errorf("played order = %s, %s", played[0].GUID, played[1].GUID)
	}
}

func TestObservePodcastsNotifiesOnWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := newTestStore(t)

	updates, err := store.ObservePodcasts(ctx)
	if err != nil {
		t.Fatalf("ObservePodcasts: %v", err)
	}

	initial := <-updates
	if len(initial) != 0 {
		t.Fatalf("initial snapshot = %d podcasts, want 0", len(initial))
	}

	if _, err := store.InsertPodcast(ctx, domain.Podcast{Subscribed: true, Title: "B Show", FeedURL: "http://example.com/b.xml"}); err != nil {
		t.Fatalf("InsertPodcast: %v", err)
	}
	if _, err := store.InsertPodcast(ctx, domain.Podcast{Subscribed: true, Title: "A Show", FeedURL: "http://example.com/a.xml"}); err != nil {
		t.Fatalf("InsertPodcast: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snapshot := <-updates:
			if len(snapshot) == 2 {
				if snapshot[0].Title != "A Show" || snapshot[1].Title != "B Show" {
					t.Fatalf("snapshot order = %q, %q, want title ascending", snapshot[0].Title, snapshot[1].Title)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for observer snapshot")
		}
	}
}

func TestObservePodcastsNotifiesOnSyncFeed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := newTestStore(t)

	id, err := store.InsertPodcast(ctx, domain.Podcast{Subscribed: true, Title: "Old Title", FeedURL: "http://example.com/feed.xml"})
	if err != nil {
		t.Fatalf("InsertPodcast: %v", err)
	}

	updates, err := store.ObservePodcasts(ctx)
	if err != nil {
		t.Fatalf("ObservePodcasts: %v", err)
	}
	<-updates

	synced := domain.Podcast{ID: id, Title: "New Title", ETag: `"v2"`}
	if err := store.SyncFeed(ctx, synced, nil); err != nil {
		t.Fatalf("SyncFeed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snapshot := <-updates:
			if len(snapshot) == 1 && snapshot[0].Title == "New Title" {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for observer snapshot after SyncFeed")
		}
	}
}

func TestLastPlayedEpisodeEmpty(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.LastPlayedEpisode(ctx); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("LastPlayedEpisode on empty store = %v, want ErrNotFound", err)
	}
}
