package playback

import "sync"

// CarStatus describes the car head unit connection.
type CarStatus int

const (
	// CarNotConnected means no head unit has been seen this session.
	CarNotConnected CarStatus = iota
	// CarConnected means a native head unit session is active.
	CarConnected
	// CarConnectedProjection means a projected (screen mirroring) session is
	// active.
	CarConnectedProjection
	// CarDisconnected means a head unit was connected earlier and dropped.
	// Distinct from CarNotConnected so policy can react to the transition.
	CarDisconnected
)

func (s CarStatus) connected() bool {
	return s == CarConnected || s == CarConnectedProjection
}

// CarMonitor tracks the head unit connection across updates, downgrading a
// lost connection to CarDisconnected rather than back to CarNotConnected.
type CarMonitor struct {
	mu     sync.Mutex
	status CarStatus
}

// Update records a connection report and returns the resulting status.
func (m *CarMonitor) Update(connected, projection bool) CarStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case connected && projection:
		m.status = CarConnectedProjection
	case connected:
		m.status = CarConnected
	case m.status.connected():
		m.status = CarDisconnected
	}
	return m.status
}

// Status returns the last recorded connection state.
func (m *CarMonitor) Status() CarStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// ShouldAutoplay decides whether to start the last-played episode unprompted:
// only for a headless car session with nothing already playing.
func ShouldAutoplay(foreground bool, car CarStatus, playing bool) bool {
	return !foreground && car.connected() && !playing
}
