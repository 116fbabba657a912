package barge

import "time"

// Config holds the barge-in timing windows.
type Config struct {
	// Enabled turns on playback flushing and the recent-playback trigger.
	// In-flight responses are cancelled on user speech regardless.
	Enabled     bool
	RecentAudio time.Duration // playback this recent still counts as the assistant speaking
	Dedup       time.Duration // repeated speech starts inside this window are ignored
	Fallback    time.Duration // force-release the response slot if no ack arrives; 0 disables
}

// DefaultConfig mirrors the deployment defaults.
func DefaultConfig() Config {
	return Config{
		RecentAudio: 600 * time.Millisecond,
		Dedup:       500 * time.Millisecond,
		Fallback:    1500 * time.Millisecond,
	}
}

// Decision tells the session what to do about one speech start.
type Decision struct {
	Clear       bool          // flush the telephony playback buffer
	Cancel      bool          // send response.cancel
	ArmFallback time.Duration // start the fallback timer when > 0
	Suppressed  bool          // duplicate inside the dedup window
}

// Interrupts reports whether anything has to be sent.
func (d Decision) Interrupts() bool { return d.Clear || d.Cancel }
