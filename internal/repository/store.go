package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"podtrack/internal/domain"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Store is the persistent podcast directory. Reads are safe for concurrent
// use; transactional writes retry on SQLITE_BUSY. Writes that change the
// subscribed podcast set wake ObservePodcasts subscribers.
type Store struct {
	db *sql.DB

	mu       sync.Mutex
	watchers map[int]chan struct{}
	nextID   int
}

func New(db *sql.DB) *Store {
	return &Store{db: db, watchers: make(map[int]chan struct{})}
}

func (s *Store) GetPodcast(ctx context.Context, id int64) (domain.Podcast, error) {
	row := s.db.QueryRowContext(ctx, podcastSelect+" WHERE id = ?", id)
	return scanPodcast(row)
}

func (s *Store) GetPodcastByTrackID(ctx context.Context, trackID int64) (domain.Podcast, error) {
	row := s.db.QueryRowContext(ctx, podcastSelect+" WHERE track_id = ?", trackID)
	return scanPodcast(row)
}

func (s *Store) GetPodcastByFeedURL(ctx context.Context, feedURL string) (domain.Podcast, error) {
	row := s.db.QueryRowContext(ctx, podcastSelect+" WHERE feed_url = ?", feedURL)
	return scanPodcast(row)
}

// InsertPodcast persists a first-time subscription and returns the assigned id.
func (s *Store) InsertPodcast(ctx context.Context, p domain.Podcast) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO podcasts
(track_id, subscribed, etag, last_modified, link, title, description, image_url, feed_url, category)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.TrackID, boolToInt(p.Subscribed), nullable(p.ETag), nullable(p.LastModified),
		nullable(p.Link), nullable(p.Title), nullable(p.Description), nullable(p.ImageURL),
		nullable(p.FeedURL), nullable(p.Category))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.notify()
	return id, nil
}

// UpsertPodcast replaces the descriptive fields and cache validators of an
// existing row. Identity and the subscribed flag are left alone.
func (s *Store) UpsertPodcast(ctx context.Context, p domain.Podcast) error {
	_, err := s.db.ExecContext(ctx, `UPDATE podcasts SET
etag = ?, last_modified = ?, link = ?, title = ?, description = ?, image_url = ?, feed_url = ?, category = ?
WHERE id = ?`,
		nullable(p.ETag), nullable(p.LastModified), nullable(p.Link), nullable(p.Title),
		nullable(p.Description), nullable(p.ImageURL), nullable(p.FeedURL), nullable(p.Category), p.ID)
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

// DeletePodcast removes a subscription; its episodes cascade away.
func (s *Store) DeletePodcast(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM podcasts WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		s.notify()
	}
	return affected > 0, nil
}

// ListPodcasts returns all subscribed podcasts sorted by title ascending.
func (s *Store) ListPodcasts(ctx context.Context) ([]domain.Podcast, error) {
	rows, err := s.db.QueryContext(ctx, podcastSelect+" WHERE subscribed = 1 ORDER BY LOWER(title)")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	podcasts := make([]domain.Podcast, 0, 8)
	for rows.Next() {
		p, err := scanPodcast(rows)
		if err != nil {
			return nil, err
		}
		podcasts = append(podcasts, p)
	}
	return podcasts, rows.Err()
}

// ObservePodcasts emits the subscribed podcast list immediately and again
// after every write that changes it, until ctx is cancelled. Delivery is
// cooperative: a slow receiver only ever misses intermediate snapshots, the
// latest one is always redelivered.
func (s *Store) ObservePodcasts(ctx context.Context) (<-chan []domain.Podcast, error) {
	initial, err := s.ListPodcasts(ctx)
	if err != nil {
		return nil, err
	}

	wake := make(chan struct{}, 1)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = wake
	s.mu.Unlock()

	out := make(chan []domain.Podcast, 1)
	out <- initial

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
			close(out)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-wake:
			}
			podcasts, err := s.ListPodcasts(ctx)
			if err != nil {
				continue
			}
			// Replace a pending snapshot rather than blocking on it.
			select {
			case <-out:
			default:
			}
			select {
			case out <- podcasts:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, wake := range s.watchers {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}

// SyncFeed applies the outcome of one reconciled refresh in a single
// transaction: the podcast's cache validators and descriptive fields, plus
// the full episode upsert. Either both land or neither is visible.
func (s *Store) SyncFeed(ctx context.Context, p domain.Podcast, episodes []domain.Episode) error {
	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		committed := false
		defer func() {
			if !committed {
				tx.Rollback()
			}
		}()

		if _, err := tx.ExecContext(ctx, `UPDATE podcasts SET
etag = ?, last_modified = ?, link = ?, title = ?, description = ?, image_url = ?, category = ?
WHERE id = ?`,
			nullable(p.ETag), nullable(p.LastModified), nullable(p.Link), nullable(p.Title),
			nullable(p.Description), nullable(p.ImageURL), nullable(p.Category), p.ID); err != nil {
			return err
		}

		for _, ep := range episodes {
			// The conflict clause refreshes descriptive fields only;
			// progress and last_played stay exactly as the user left them.
			if _, err := tx.ExecContext(ctx, `INSERT INTO episodes
(guid, podcast_id, last_played, progress, title, description, image_url, audio_url, duration, pub_date)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(guid) DO UPDATE SET
    podcast_id = excluded.podcast_id,
    title = excluded.title,
    description = excluded.description,
    image_url = excluded.image_url,
    audio_url = excluded.audio_url,
    duration = excluded.duration,
    pub_date = excluded.pub_date`,
				ep.GUID, ep.PodcastID, formatLastPlayed(ep.LastPlayed), ep.Progress,
				nullable(ep.Title), nullable(ep.Description), nullable(ep.ImageURL),
				nullable(ep.AudioURL), ep.Duration, nullable(ep.PubDate)); err != nil {
				return err
			}
		}

		if err := tx.Commit(); err != nil {
			return err
		}
		committed = true
		s.notify()
		return nil
	})
}

// InsertEpisodes persists the episode snapshot of a first-time follow.
func (s *Store) InsertEpisodes(ctx context.Context, episodes []domain.Episode) error {
	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		committed := false
		defer func() {
			if !committed {
				tx.Rollback()
			}
		}()

		for _, ep := range episodes {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO episodes
(guid, podcast_id, last_played, progress, title, description, image_url, audio_url, duration, pub_date)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				ep.GUID, ep.PodcastID, formatLastPlayed(ep.LastPlayed), ep.Progress,
				nullable(ep.Title), nullable(ep.Description), nullable(ep.ImageURL),
				nullable(ep.AudioURL), ep.Duration, nullable(ep.PubDate)); err != nil {
				return err
			}
		}

		if err := tx.Commit(); err != nil {
			return err
		}
		committed = true
		return nil
	})
}

func (s *Store) GetEpisode(ctx context.Context, guid string) (domain.Episode, error) {
	row := s.db.QueryRowContext(ctx, episodeSelect+" WHERE guid = ?", guid)
	return scanEpisode(row)
}

func (s *Store) EpisodesByPodcast(ctx context.Context, podcastID int64) ([]domain.Episode, error) {
	rows, err := s.db.QueryContext(ctx, episodeSelect+" WHERE podcast_id = ? ORDER BY pub_date DESC", podcastID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEpisodes(rows)
}

// LastPlayedEpisode returns the most recently played episode across all
// podcasts, or ErrNotFound when nothing has been played yet.
func (s *Store) LastPlayedEpisode(ctx context.Context) (domain.Episode, error) {
	row := s.db.QueryRowContext(ctx, episodeSelect+" WHERE last_played IS NOT NULL ORDER BY last_played DESC LIMIT 1")
	return scanEpisode(row)
}

// PlayedEpisodes returns every episode with listening history, most recent
// first.
func (s *Store) PlayedEpisodes(ctx context.Context) ([]domain.Episode, error) {
	rows, err := s.db.QueryContext(ctx, episodeSelect+" WHERE last_played IS NOT NULL ORDER BY last_played DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEpisodes(rows)
}

// UpdateEpisodeProgress writes the playback position for one episode, keyed
// by GUID so a write for a previously current episode lands on its own row.
func (s *Store) UpdateEpisodeProgress(ctx context.Context, guid string, progress float64, lastPlayed time.Time) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, "UPDATE episodes SET progress = ?, last_played = ? WHERE guid = ?",
			progress, lastPlayed.UTC().Format(time.RFC3339Nano), guid)
		return err
	})
}

const podcastSelect = `SELECT id, track_id, subscribed,
COALESCE(etag, ''), COALESCE(last_modified, ''), COALESCE(link, ''), COALESCE(title, ''),
COALESCE(description, ''), COALESCE(image_url, ''), COALESCE(feed_url, ''), COALESCE(category, '')
FROM podcasts`

const episodeSelect = `SELECT guid, podcast_id, last_played, progress,
COALESCE(title, ''), COALESCE(description, ''), COALESCE(image_url, ''),
COALESCE(audio_url, ''), duration, COALESCE(pub_date, '')
FROM episodes`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPodcast(row rowScanner) (domain.Podcast, error) {
	var p domain.Podcast
	var subscribed int
	err := row.Scan(&p.ID, &p.TrackID, &subscribed, &p.ETag, &p.LastModified,
		&p.Link, &p.Title, &p.Description, &p.ImageURL, &p.FeedURL, &p.Category)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Podcast{}, ErrNotFound
		}
		return domain.Podcast{}, err
	}
	p.Subscribed = subscribed != 0
	return p, nil
}

func scanEpisode(row rowScanner) (domain.Episode, error) {
	var ep domain.Episode
	var lastPlayed sql.NullString
	err := row.Scan(&ep.GUID, &ep.PodcastID, &lastPlayed, &ep.Progress,
		&ep.Title, &ep.Description, &ep.ImageURL, &ep.AudioURL, &ep.Duration, &ep.PubDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Episode{}, ErrNotFound
		}
		return domain.Episode{}, err
	}
	if lastPlayed.Valid {
		if parsed, err := time.Parse(time.RFC3339Nano, lastPlayed.String); err == nil {
			ep.LastPlayed = &parsed
		}
	}
	return ep, nil
}

func collectEpisodes(rows *sql.Rows) ([]domain.Episode, error) {
	episodes := make([]domain.Episode, 0, 32)
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

func nullable(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func formatLastPlayed(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = fn()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
		backoff := 50 * time.Millisecond * time.Duration(1<<i)
		if err := waitWithContext(ctx, backoff); err != nil {
			return err
		}
	}
	return err
}

func waitWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
