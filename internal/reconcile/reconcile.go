// Package reconcile merges freshly fetched feed items into the locally
// persisted episode set without clobbering user progress.
package reconcile

import (
	"podtrack/internal/domain"
	"podtrack/internal/feeds"
)

// Merge derives one episode per remote item and folds in local user state.
// Episodes whose GUID already exists locally keep their Progress and
// LastPlayed verbatim; only descriptive fields are refreshed. Unknown GUIDs
// become new episodes with zero progress. The result is a full upsert list:
// episodes absent from the remote payload are never deleted, so local history
// survives feeds that rotate old items out of their window.
func Merge(items []feeds.Item, podcastID int64, existing map[string]domain.Episode, channelImage string) []domain.Episode {
	merged := make([]domain.Episode, 0, len(items))
	for _, item := range items {
		imageURL := item.ImageURL
		if imageURL == "" {
			imageURL = channelImage
		}

		episode := domain.Episode{
			GUID:        item.GUID,
			PodcastID:   podcastID,
			Title:       item.Title,
			Description: feeds.StripHTML(item.Description),
			ImageURL:    imageURL,
			AudioURL:    item.AudioURL,
			Duration:    feeds.ParseDuration(item.Duration),
			PubDate:     feeds.DisplayDate(item.PubDate),
		}

		if local, ok := existing[item.GUID]; ok {
			episode.Progress = local.Progress
			episode.LastPlayed = local.LastPlayed
		}

		merged = append(merged, episode)
	}
	return merged
}

// ByGUID indexes episodes for Merge lookups.
func ByGUID(episodes []domain.Episode) map[string]domain.Episode {
	index := make(map[string]domain.Episode, len(episodes))
	for _, episode := range episodes {
		index[episode.GUID] = episode
	}
	return index
}
