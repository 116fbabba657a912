package session

import (
	"time"

	"github.com/chadiek/rice-call-gateway/internal/conversation"
)

type timerKey string

const (
	timerSilence       = timerKey(conversation.TimerSilence)
	timerNoHear        = timerKey(conversation.TimerNoHear)
	timerCommitGrace   = timerKey("commit_grace")
	timerBargeFallback = timerKey("barge_fallback")
)

type timerFire struct {
	key timerKey
	gen uint64
}

// timers posts expiries into the call loop. A fire whose generation no longer
// matches was stopped or replaced and is ignored.
type timers struct {
	fire chan<- timerFire
	done <-chan struct{}

	running map[timerKey]*time.Timer
	gen     map[timerKey]uint64
}

func newTimers(fire chan<- timerFire, done <-chan struct{}) *timers {
	return &timers{
		fire:    fire,
		done:    done,
		running: map[timerKey]*time.Timer{},
		gen:     map[timerKey]uint64{},
	}
}

func (t *timers) start(key timerKey, after time.Duration) {
	t.stop(key)
	gen := t.gen[key]
	t.running[key] = time.AfterFunc(after, func() {
		select {
		case t.fire <- timerFire{key: key, gen: gen}:
		case <-t.done:
		}
	})
}

func (t *timers) stop(key timerKey) {
	if tm, ok := t.running[key]; ok {
		tm.Stop()
		delete(t.running, key)
	}
	t.gen[key]++
}

// current reports whether f is the live fire for its key and forgets it.
func (t *timers) current(f timerFire) bool {
	if t.gen[f.key] != f.gen {
		return false
	}
	delete(t.running, f.key)
	t.gen[f.key]++
	return true
}

func (t *timers) stopAll() {
	for key := range t.running {
		t.stop(key)
	}
}
