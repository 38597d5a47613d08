// Package playback tracks listening progress against a media engine and
// persists it so playback resumes where the user left off.
package playback

// EventType identifies an engine notification.
type EventType int

const (
	// EventReady fires when the loaded item is prepared and seekable.
	EventReady EventType = iota
	// EventPlayingChanged fires when playback starts or stops; Playing
	// carries the new state.
	EventPlayingChanged
	// EventSeekDiscontinuity fires after the engine jumps position for a
	// reason other than normal playback; Position carries the new offset.
	EventSeekDiscontinuity
	// EventEnded fires when the current item plays to completion.
	EventEnded
	// EventItemTransition fires when the engine moves to a different item on
	// its own; MediaID names the new item.
	EventItemTransition
)

// Event is one engine notification.
type Event struct {
	Type     EventType
	MediaID  string
	Playing  bool
	Position float64
}

// Engine abstracts the media player. Implementations deliver notifications on
// the Events channel; positions and durations are in seconds.
type Engine interface {
	Load(mediaID, audioURL string) error
	Play() error
	Pause() error
	SeekTo(seconds float64) error
	Position() float64
	Duration() float64
	Playing() bool
	Events() <-chan Event
}
