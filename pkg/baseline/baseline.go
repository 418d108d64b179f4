// Package baseline aggregates historical sessions into per-device reference
// profiles used by the risk classifier.
package baseline

import (
	"time"

	"github.com/netinvestigate/client-detective/pkg/session"
)

// Profile summarizes a device's behavior across the baseline window.
// Profiles are built once per run and read-only during classification.
type Profile struct {
	// DeviceID is the client identifier the profile describes.
	DeviceID string

	// SeenAfterHours is true when any baseline session overlapped the
	// after-hours band on any baseline day.
	SeenAfterHours bool

	// SeenCount is the total number of baseline sessions.
	SeenCount int

	// FirstSeen is the earliest baseline session start.
	FirstSeen time.Time

	// LastSeen is the latest baseline session end.
	LastSeen time.Time
}

// Index maps device IDs to their baseline profiles. A device with zero
// baseline sessions has no entry: "never seen" is distinct from "seen but
// not after-hours".
type Index map[string]*Profile

// BuildIndex aggregates baseline-window sessions into an Index, one profile
// per device observed at least once.
func BuildIndex(sessions map[string][]session.Session, afterHours session.Band) Index {
	idx := make(Index, len(sessions))
	for deviceID, deviceSessions := range sessions {
		if len(deviceSessions) == 0 {
			continue
		}

		profile := &Profile{
			DeviceID:  deviceID,
			FirstSeen: deviceSessions[0].Start,
			LastSeen:  deviceSessions[0].End,
		}
		for _, s := range deviceSessions {
			profile.SeenCount++
			if s.Start.Before(profile.FirstSeen) {
				profile.FirstSeen = s.Start
			}
			if s.End.After(profile.LastSeen) {
				profile.LastSeen = s.End
			}
			if afterHours.Overlaps(s) {
				profile.SeenAfterHours = true
			}
		}
		idx[deviceID] = profile
	}
	return idx
}

// Window returns the baseline window for an investigation: the given number
// of days immediately preceding the target window start, excluding the
// investigation period itself.
func Window(target session.Window, days int) session.Window {
	return session.Window{
		Start: target.Start.AddDate(0, 0, -days),
		End:   target.Start,
	}
}
