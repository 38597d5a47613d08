package playback

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"podtrack/internal/domain"
)

// ErrNothingLoaded is returned by playback controls when no episode is loaded.
var ErrNothingLoaded = errors.New("no episode loaded")

// State is the tracker's view of the playback lifecycle.
type State int

const (
	StateIdle State = iota
	StateLoaded
	StatePlaying
	StatePaused
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaded:
		return "loaded"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// ProgressStore is the persistence surface the tracker writes through.
type ProgressStore interface {
	UpdateEpisodeProgress(ctx context.Context, guid string, progress float64, lastPlayed time.Time) error
	LastPlayedEpisode(ctx context.Context) (domain.Episode, error)
}

// progressWrite captures the episode identity at enqueue time, so a write
// that lands late still updates its own row and never the current episode's.
type progressWrite struct {
	guid     string
	progress float64
	playedAt time.Time
}

// Tracker drives an Engine and persists listening progress. While playing it
// writes on a periodic tick; pause, seek, end, and episode switches write
// through immediately. All writes funnel through one goroutine.
type Tracker struct {
	engine   Engine
	store    ProgressStore
	interval time.Duration
	skip     float64
	now      func() time.Time

	mu            sync.Mutex
	state         State
	current       domain.Episode
	resumePending bool

	writeCh chan progressWrite
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithInterval sets the periodic persistence tick.
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

// WithSkip sets the skip step in seconds.
func WithSkip(seconds float64) Option {
	return func(t *Tracker) { t.skip = seconds }
}

// WithClock replaces the clock used for lastPlayed stamps. Test hook.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker starts the event and writer goroutines. Callers must Close.
func NewTracker(engine Engine, store ProgressStore, opts ...Option) *Tracker {
	t := &Tracker{
		engine:   engine,
		store:    store,
		interval: 15 * time.Second,
		skip:     30,
		now:      time.Now,
		writeCh:  make(chan progressWrite, 16),
	}
	for _, opt := range opts {
		opt(t)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.wg.Add(2)
	go t.writer(ctx)
	go t.run(ctx)
	return t
}

// Load prepares an episode for playback, flushing the outgoing episode's
// position first. The persisted progress is applied as a one-shot resume seek
// on the first Ready event for this item.
func (t *Tracker) Load(episode domain.Episode) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current.GUID != "" && t.current.GUID != episode.GUID &&
		(t.state == StatePlaying || t.state == StatePaused) {
		t.enqueueLocked(t.engine.Position())
	}

	if err := t.engine.Load(episode.GUID, episode.AudioURL); err != nil {
		return err
	}
	t.current = episode
	t.state = StateLoaded
	t.resumePending = episode.Progress > 0
	return nil
}

// ResumeLast loads and starts the most recently played episode.
func (t *Tracker) ResumeLast(ctx context.Context) (domain.Episode, error) {
	episode, err := t.store.LastPlayedEpisode(ctx)
	if err != nil {
		return domain.Episode{}, err
	}
	if err := t.Load(episode); err != nil {
		return domain.Episode{}, err
	}
	return episode, t.engine.Play()
}

func (t *Tracker) Play() error {
	t.mu.Lock()
	loaded := t.current.GUID != ""
	t.mu.Unlock()
	if !loaded {
		return ErrNothingLoaded
	}
	return t.engine.Play()
}

func (t *Tracker) Pause() error {
	t.mu.Lock()
	loaded := t.current.GUID != ""
	t.mu.Unlock()
	if !loaded {
		return ErrNothingLoaded
	}
	return t.engine.Pause()
}

// SeekTo jumps to an absolute position, clamped to [0, duration], and writes
// the new position through immediately. Play/pause state is untouched.
func (t *Tracker) SeekTo(seconds float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seekLocked(seconds)
}

// SkipForward jumps ahead by the configured step.
func (t *Tracker) SkipForward() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seekLocked(t.engine.Position() + t.skip)
}

// SkipBack jumps back by the configured step.
func (t *Tracker) SkipBack() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seekLocked(t.engine.Position() - t.skip)
}

func (t *Tracker) seekLocked(seconds float64) error {
	if t.current.GUID == "" {
		return ErrNothingLoaded
	}
	target := clamp(seconds, t.engine.Duration())
	if err := t.engine.SeekTo(target); err != nil {
		return err
	}
	t.enqueueLocked(target)
	return nil
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Current returns the loaded episode, zero when idle.
func (t *Tracker) Current() domain.Episode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Close flushes a final position write and stops both goroutines. Pending
// writes drain before Close returns.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.current.GUID != "" && (t.state == StatePlaying || t.state == StatePaused) {
		t.enqueueLocked(t.engine.Position())
	}
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}

func (t *Tracker) run(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	events := t.engine.Events()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			t.handleEvent(event)
		case <-ticker.C:
			t.tick()
		}
	}
}

func (t *Tracker) handleEvent(event Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Type {
	case EventReady:
		if t.resumePending && t.current.GUID != "" {
			if err := t.engine.SeekTo(clamp(t.current.Progress, t.engine.Duration())); err != nil {
				log.Printf("resume seek %s: %v", t.current.GUID, err)
			}
		}
		// One shot per loaded item; a second Ready must not rewind.
		t.resumePending = false

	case EventPlayingChanged:
		if event.Playing {
			if t.current.GUID != "" {
				t.state = StatePlaying
			}
		} else if t.state == StatePlaying {
			t.state = StatePaused
			t.enqueueLocked(t.engine.Position())
		}

	case EventSeekDiscontinuity:
		if t.current.GUID != "" {
			t.enqueueLocked(clamp(event.Position, t.engine.Duration()))
		}

	case EventEnded:
		if t.current.GUID != "" {
			t.state = StateEnded
			t.enqueueLocked(t.engine.Duration())
		}

	case EventItemTransition:
		t.resumePending = false
	}
}

func (t *Tracker) tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StatePlaying || t.current.GUID == "" {
		return
	}
	t.enqueueLocked(t.engine.Position())
}

// enqueueLocked hands a write to the writer goroutine without blocking the
// event loop. Drops are logged; the next tick carries a fresher position.
func (t *Tracker) enqueueLocked(progress float64) {
	write := progressWrite{guid: t.current.GUID, progress: progress, playedAt: t.now()}
	select {
	case t.writeCh <- write:
	default:
		log.Printf("progress queue full, dropping write for %s", write.guid)
	}
}

func (t *Tracker) writer(ctx context.Context) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case write := <-t.writeCh:
					t.persist(write)
				default:
					return
				}
			}
		case write := <-t.writeCh:
			t.persist(write)
		}
	}
}

func (t *Tracker) persist(write progressWrite) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.store.UpdateEpisodeProgress(ctx, write.guid, write.progress, write.playedAt); err != nil {
		log.Printf("save progress %s: %v", write.guid, err)
	}
}

func clamp(seconds, duration float64) float64 {
	if seconds < 0 {
		return 0
	}
	if duration > 0 && seconds > duration {
		return duration
	}
	return seconds
}
