package barge

import "time"

// Guard decides how to react when the model reports the caller started
// speaking. It is owned by one call loop and is not safe for concurrent use.
type Guard struct {
	cfg Config
	now func() time.Time

	lastPlayback time.Time
	lastTrigger  time.Time
	awaitingAck  bool
}

func NewGuard(cfg Config) *Guard {
	return &Guard{cfg: cfg, now: time.Now}
}

// NotePlayback records that assistant audio was just sent to the caller.
func (g *Guard) NotePlayback() { g.lastPlayback = g.now() }

// PlayingRecently reports whether assistant audio went out inside the recency window.
func (g *Guard) PlayingRecently() bool {
	if g.lastPlayback.IsZero() || g.cfg.RecentAudio <= 0 {
		return false
	}
	return g.now().Sub(g.lastPlayback) < g.cfg.RecentAudio
}

// OnSpeechStarted evaluates a speech start. responseInFlight is true while a
// response is pending or active on the model side.
func (g *Guard) OnSpeechStarted(responseInFlight bool) Decision {
	now := g.now()
	speaking := responseInFlight || (g.cfg.Enabled && g.PlayingRecently())
	if !speaking {
		return Decision{}
	}
	if !g.lastTrigger.IsZero() && g.cfg.Dedup > 0 && now.Sub(g.lastTrigger) < g.cfg.Dedup {
		return Decision{Suppressed: true}
	}
	g.lastTrigger = now
	d := Decision{Clear: g.cfg.Enabled}
	if responseInFlight && !g.awaitingAck {
		d.Cancel = true
		g.awaitingAck = true
		d.ArmFallback = g.cfg.Fallback
	}
	// audio still buffered at the carrier is stale once the caller talks over it
	g.lastPlayback = time.Time{}
	return d
}

// AwaitingAck reports whether a cancel was sent and not yet acknowledged.
func (g *Guard) AwaitingAck() bool { return g.awaitingAck }

// Acknowledge records response.done or response.cancelled for the cancelled response.
func (g *Guard) Acknowledge() { g.awaitingAck = false }

// FallbackExpired is called when the fallback timer fires. It returns true
// when the ack never came and the caller must release the response slot itself.
func (g *Guard) FallbackExpired() bool {
	if !g.awaitingAck {
		return false
	}
	g.awaitingAck = false
	return true
}
