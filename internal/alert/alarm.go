package alert

import "sync"

// Alarm is the per-client view of the staff alarm. Muting is local to the
// client: it never acknowledges anything on the server and covers only the
// emergencies ringing at the moment it was pressed.
type Alarm struct {
	mu      sync.Mutex
	ringing map[string]struct{}
	muted   map[string]struct{}
	last    Stats
}

func NewAlarm() *Alarm {
	return &Alarm{
		ringing: make(map[string]struct{}),
		muted:   make(map[string]struct{}),
	}
}

// Observe records the latest server snapshot and reports whether the alarm
// should sound for this client.
func (a *Alarm) Observe(st Stats) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.last = st
	a.ringing = make(map[string]struct{}, len(st.RingingAppointmentIDs))
	for _, id := range st.RingingAppointmentIDs {
		a.ringing[id] = struct{}{}
	}

	// forget mutes for emergencies that stopped ringing
	for id := range a.muted {
		if _, ok := a.ringing[id]; !ok {
			delete(a.muted, id)
		}
	}

	return a.soundingLocked()
}

// Mute silences every emergency ringing right now.
func (a *Alarm) Mute() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id := range a.ringing {
		a.muted[id] = struct{}{}
	}
}

// Ringing reports whether some server-ringing emergency is not muted here.
func (a *Alarm) Ringing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.soundingLocked()
}

// Unmuted returns the ringing ids this client has not muted.
func (a *Alarm) Unmuted() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, 0, len(a.ringing))
	for _, id := range a.last.RingingAppointmentIDs {
		if _, muted := a.muted[id]; !muted {
			out = append(out, id)
		}
	}
	return out
}

func (a *Alarm) soundingLocked() bool {
	for id := range a.ringing {
		if _, muted := a.muted[id]; !muted {
			return true
		}
	}
	return false
}
