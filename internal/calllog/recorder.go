package calllog

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const recorderQueue = 256

type op struct {
	name    string
	needsID bool
	run     func(ctx context.Context, id string) (string, error)
}

// Recorder is the per-call, fire-and-forget front of a Store. Operations run
// in order on one worker goroutine, each bounded by Timeout; failures are
// logged and never reach the caller. Operations needing the call id are
// skipped when CreateCall did not produce one.
type Recorder struct {
	store   Store
	timeout time.Duration
	log     logrus.FieldLogger

	ops  chan op
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewRecorder(store Store, timeout time.Duration, log logrus.FieldLogger) *Recorder {
	if store == nil {
		store = Nop{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Recorder{
		store:   store,
		timeout: timeout,
		log:     log,
		ops:     make(chan op, recorderQueue),
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Recorder) loop() {
	defer close(r.done)
	var id string
	for o := range r.ops {
		if o.needsID && id == "" {
			r.log.WithField("op", o.name).Debug("calllog.skip no call id")
			continue
		}
		ctx := context.Background()
		cancel := func() {}
		if r.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
		}
		newID, err := o.run(ctx, id)
		cancel()
		if err != nil {
			r.log.WithError(err).WithField("op", o.name).Warn("calllog.failed")
			continue
		}
		if newID != "" {
			id = newID
			r.log.WithField("call_log_id", id).Info("calllog.created")
		}
	}
}

func (r *Recorder) enqueue(o op) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.ops <- o:
	default:
		r.log.WithField("op", o.name).Warn("calllog.queue full, dropping")
	}
}

func (r *Recorder) CreateCall(c Call) {
	r.enqueue(op{name: "create_call", run: func(ctx context.Context, _ string) (string, error) {
		id, err := r.store.CreateCall(ctx, c)
		if err == nil && id == "" {
			if _, nop := r.store.(Nop); !nop {
				err = ErrNoID
			}
		}
		return id, err
	}})
}

func (r *Recorder) UpdateCall(u CallUpdate) {
	r.enqueue(op{name: "update_call", needsID: true, run: func(ctx context.Context, id string) (string, error) {
		return "", r.store.UpdateCall(ctx, id, u)
	}})
}

func (r *Recorder) AppendMessage(m Message) {
	r.enqueue(op{name: "append_message", needsID: true, run: func(ctx context.Context, id string) (string, error) {
		return "", r.store.AppendMessage(ctx, id, m)
	}})
}

// UpsertInquiry fills in the call id before writing.
func (r *Recorder) UpsertInquiry(in Inquiry) {
	r.enqueue(op{name: "upsert_inquiry", needsID: true, run: func(ctx context.Context, id string) (string, error) {
		in.CallID = id
		return "", r.store.UpsertInquiry(ctx, in)
	}})
}

// Close stops accepting operations and waits for queued ones to finish.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.ops)
	}
	r.mu.Unlock()
	<-r.done
}
