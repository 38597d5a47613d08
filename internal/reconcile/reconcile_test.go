package reconcile_test

import (
	"reflect"
	"testing"
	"time"

	"podtrack/internal/domain"
	"podtrack/internal/feeds"
	"podtrack/internal/reconcile"
)

func TestMergePreservesProgressForExistingGUIDs(t *testing.T) {
	lastPlayed := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	existing := map[string]domain.Episode{
		"guid-a": {
			GUID:       "guid-a",
			PodcastID:  7,
			Progress:   42.5,
			LastPlayed: &lastPlayed,
			Title:      "Old Title",
		},
	}

	items := []feeds.Item{
		{
			GUID:        "guid-a",
			Title:       "New Title",
			Description: "<p>updated</p>",
			AudioURL:    "http://example.com/a.mp3",
			Duration:    "01:00:00",
			PubDate:     "Mon, 01 Sep 2025 14:45:00 +0000",
		},
	}

	merged := reconcile.Merge(items, 7, existing, "http://example.com/cover.jpg")
	if len(merged) != 1 {
		t.Fatalf("merged = %d episodes, want 1", len(merged))
	}

	episode := merged[0]
	if episode.Progress != 42.5 {
		t.Errorf("progress = %v, want 42.5", episode.Progress)
	}
	if episode.LastPlayed == nil || !episode.LastPlayed.Equal(lastPlayed) {
		t.Errorf("lastPlayed = %v, want %v", episode.LastPlayed, lastPlayed)
	}
	if episode.Title != "New Title" {
		t.Errorf("title = %q, want refreshed title", episode.Title)
	}
	if episode.Duration != 3600 {
		t.Errorf("duration = %d, want 3600", episode.Duration)
	}
	// Item has no image of its own, so the channel artwork applies.
	if episode.ImageURL != "http://example.com/cover.jpg" {
		t.Errorf("image = %q, want channel fallback", episode.ImageURL)
	}
}

func TestMergeNewEpisodesStartUnplayed(t *testing.T) {
	items := []feeds.Item{
		{GUID: "guid-new", Title: "Fresh", AudioURL: "http://example.com/n.mp3"},
	}

	merged := reconcile.Merge(items, 3, nil, "")
	if len(merged) != 1 {
		t.Fatalf("merged = %d episodes, want 1", len(merged))
	}
	if merged[0].Progress != 0 {
		t.Errorf("progress = %v, want 0", merged[0].Progress)
	}
	if merged[0].LastPlayed != nil {
		t.Errorf("lastPlayed = %v, want nil", merged[0].LastPlayed)
	}
	if merged[0].PodcastID != 3 {
		t.Errorf("podcastID = %d, want 3", merged[0].PodcastID)
	}
}

func TestMergeItemImageBeatsChannelImage(t *testing.T) {
	items := []feeds.Item{
		{GUID: "g", ImageURL: "http://example.com/item.jpg"},
	}
	merged := reconcile.Merge(items, 1, nil, "http://example.com/channel.jpg")
	if merged[0].ImageURL != "http://example.com/item.jpg" {
		t.Errorf("image = %q, want item-level artwork", merged[0].ImageURL)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	lastPlayed := time.Date(2025, 8, 20, 8, 0, 0, 0, time.UTC)
	existing := map[string]domain.Episode{
		"guid-a": {GUID: "guid-a", Progress: 10, LastPlayed: &lastPlayed},
	}
	items := []feeds.Item{
		{GUID: "guid-a", Title: "A", PubDate: "Mon, 01 Sep 2025 14:45:00 +0000"},
		{GUID: "guid-b", Title: "B", PubDate: "Tue, 02 Sep 2025 14:45:00 +0000"},
	}

	first := reconcile.Merge(items, 1, existing, "")
	second := reconcile.Merge(items, 1, reconcile.ByGUID(first), "")

	if !reflect.DeepEqual(first, second) {
		t.Errorf("merge is not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}
