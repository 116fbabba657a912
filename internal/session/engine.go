// Package session bridges one Twilio media stream to one realtime speech
// model socket and drives the ordering dialogue for the call.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/chadiek/rice-call-gateway/internal/audio"
	"github.com/chadiek/rice-call-gateway/internal/barge"
	"github.com/chadiek/rice-call-gateway/internal/calllog"
	"github.com/chadiek/rice-call-gateway/internal/conversation"
	"github.com/chadiek/rice-call-gateway/internal/infra/storage"
	"github.com/chadiek/rice-call-gateway/internal/realtime"
	"github.com/chadiek/rice-call-gateway/internal/telephony"
	"github.com/chadiek/rice-call-gateway/internal/tools"
)

// Engine serves media stream connections. It is safe for concurrent use;
// each Serve call owns its own call state.
type Engine struct {
	cfg  Config
	deps Deps
	log  logrus.FieldLogger
}

func NewEngine(cfg Config, deps Deps, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if deps.Tools == nil {
		deps.Tools = tools.NewClient("", tools.DefaultTimeouts(), nil)
	}
	if cfg.CommitFrames <= 0 {
		cfg.CommitFrames = 10
	}
	return &Engine{cfg: cfg, deps: deps, log: log}
}

type telephonyMsg struct {
	frame telephony.Frame
	err   error
}

type modelMsg struct {
	ev  realtime.Event
	err error
}

type dialResult struct {
	conn *realtime.Conn
	err  error
}

// call is the state of one connection. Everything below is touched only by
// the loop goroutine.
type call struct {
	e   *Engine
	cfg Config
	id  string
	log *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	tel     TelephonyConn
	model   *realtime.Conn
	machine *conversation.Machine
	rec     *calllog.Recorder
	guard   *barge.Guard
	echo    *barge.EchoFilter
	timers  *timers

	telCh   chan telephonyMsg
	modelCh chan modelMsg
	dialCh  chan dialResult
	timerCh chan timerFire
	toolCh  chan conversation.ToolResult

	factor    int
	streamSid string
	callSid   string
	startedAt time.Time

	streamStarted  bool
	sessionReady   bool
	machineStarted bool
	hungUp         bool

	mediaIn       int
	mediaDropped  int
	mediaOut      int
	framesPending int

	// response lifecycle: at most one of pending/active at a time
	prompts          []string
	responsePending  bool
	pendingRequestID string
	activeResponseID string
	currentPrompt    string
	promptStartedAt  time.Time
	unexpected       map[string]bool
	cancelPending    bool // the pending response was released by the barge-in fallback
	assistantText    strings.Builder
	lastOutputItem   string

	awaitingTranscript bool
	seenItems          map[string]bool
	heldTranscripts    []heldTranscript

	turns []storage.Turn

	teardownOnce sync.Once
	finished     bool
	err          error
}

type heldTranscript struct {
	text       string
	confidence *float64
}

// Serve runs one call until either socket closes or the call fails. conn is
// closed on return.
func (e *Engine) Serve(ctx context.Context, conn TelephonyConn) error {
	id := uuid.NewString()
	log := e.log.WithField("call", id)
	if e.cfg.Session.TranscriptionModel == "" {
		log.WithError(ErrNoTranscriptionModel).Error("call.refused")
		e.deps.Metrics.SessionError("config")
		_ = conn.Close()
		return ErrNoTranscriptionModel
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &call{
		e:          e,
		cfg:        e.cfg,
		id:         id,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		tel:        conn,
		guard:      barge.NewGuard(e.cfg.Barge),
		echo:       barge.NewEchoFilter(e.cfg.EchoCooldown, e.cfg.EchoWindow),
		telCh:      make(chan telephonyMsg, 64),
		modelCh:    make(chan modelMsg, 64),
		dialCh:     make(chan dialResult, 1),
		timerCh:    make(chan timerFire, 8),
		toolCh:     make(chan conversation.ToolResult, 1),
		factor:     audio.ResampleFactor(e.cfg.Session.Encoding, e.cfg.Session.ModelRate()),
		startedAt:  time.Now(),
		unexpected: map[string]bool{},
		seenItems:  map[string]bool{},
	}
	c.timers = newTimers(c.timerCh, c.done)
	c.rec = calllog.NewRecorder(e.deps.Store, e.cfg.LogTimeout, log)
	e.deps.Metrics.CallStarted()
	log.WithField("audio", e.cfg.Session.Describe()).Info("call.connected")

	go c.readTelephony()
	c.loop()
	return c.err
}

func (c *call) loop() {
	for !c.finished {
		select {
		case m := <-c.telCh:
			if m.err != nil {
				c.log.WithError(m.err).Info("telephony.closed")
				c.teardown("ended")
				continue
			}
			c.onFrame(m.frame)
		case d := <-c.dialCh:
			c.onDialed(d)
		case m := <-c.modelCh:
			if m.err != nil {
				c.log.WithError(m.err).Warn("realtime.closed")
				c.teardown("ended")
				continue
			}
			c.onModelEvent(m.ev)
		case f := <-c.timerCh:
			if c.timers.current(f) {
				c.onTimer(f.key)
			}
		case res := <-c.toolCh:
			c.apply(c.machine.OnToolResult(res))
		case <-c.ctx.Done():
			c.teardown("ended")
		}
	}
}

func (c *call) readTelephony() {
	for {
		_, data, err := c.tel.ReadMessage()
		var m telephonyMsg
		if err != nil {
			m.err = err
		} else if m.frame, err = telephony.DecodeFrame(data); err != nil {
			c.log.WithError(err).Warn("telephony.decode")
			continue
		}
		select {
		case c.telCh <- m:
		case <-c.done:
			return
		}
		if m.err != nil {
			return
		}
	}
}

func (c *call) readModel(conn *realtime.Conn) {
	for {
		ev, err := conn.ReadEvent()
		select {
		case c.modelCh <- modelMsg{ev: ev, err: err}:
		case <-c.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *call) dial() {
	opts := c.cfg.Realtime
	go func() {
		conn, err := realtime.Dial(c.ctx, opts, c.log)
		select {
		case c.dialCh <- dialResult{conn: conn, err: err}:
		case <-c.done:
			if conn != nil {
				_ = conn.Close()
			}
		}
	}()
}

func (c *call) onDialed(d dialResult) {
	if d.err != nil {
		c.log.WithError(d.err).Error("realtime.dial")
		c.e.deps.Metrics.SessionError("dial")
		c.err = d.err
		c.teardown("failed")
		return
	}
	c.model = d.conn
	go c.readModel(d.conn)
	if err := c.model.Send(realtime.NewSessionUpdate(c.cfg.Session)); err != nil {
		c.log.WithError(err).Error("realtime.session_update")
		c.err = err
		c.teardown("failed")
		return
	}
	c.log.WithFields(logrus.Fields{
		"schema": c.cfg.Session.Schema,
		"audio":  c.cfg.Session.Describe(),
		"vad":    c.cfg.Session.VAD,
	}).Info("realtime.connected")
}

// maybeStartConversation starts the dialogue once both sides are ready.
func (c *call) maybeStartConversation() {
	if c.machineStarted || !c.sessionReady || !c.streamStarted {
		return
	}
	c.machineStarted = true
	if c.cfg.TestTone {
		c.sendTelephony(telephony.NewMediaBytes(c.streamSid, audio.Beep(440, 600*time.Millisecond)))
	}
	c.apply(c.machine.Start())
}

func (c *call) sendModel(v any) {
	if c.model == nil {
		return
	}
	if err := c.model.Send(v); err != nil {
		c.log.WithError(err).Warn("realtime.send")
	}
}

func (c *call) sendTelephony(v any) {
	if err := c.tel.WriteJSON(v); err != nil {
		c.log.WithError(err).Debug("telephony.send")
	}
}

func (c *call) apply(effects []conversation.Effect) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case conversation.Prompt:
			c.enqueuePrompt(e.Text)
		case conversation.InquiryUpdate:
			c.rec.UpsertInquiry(calllog.NewInquiry("", e.Brand, e.WeightKg, e.DeliveryAddress, e.DeliveryDate, e.Note))
		case conversation.ToolCall:
			c.runTool(e)
		case conversation.StartTimer:
			c.timers.start(timerKey(e.Timer), e.After)
		case conversation.StopTimers:
			c.timers.stop(timerSilence)
			c.timers.stop(timerNoHear)
		case conversation.Transition:
			c.e.deps.Metrics.Transition(string(e.From), string(e.To))
		}
	}
	c.maybeHangup()
}

func (c *call) runTool(tc conversation.ToolCall) {
	client := c.e.deps.Tools
	c.log.WithFields(logrus.Fields{"tool": tc.Kind, "product_id": tc.ProductID}).Info("tool.call")
	go func() {
		res := conversation.Execute(c.ctx, client, tc)
		select {
		case c.toolCh <- res:
		case <-c.done:
		}
	}()
}

func (c *call) onTimer(key timerKey) {
	switch key {
	case timerSilence, timerNoHear:
		c.apply(c.machine.OnTimer(conversation.TimerKind(key)))
	case timerCommitGrace:
		if !c.awaitingTranscript {
			return
		}
		c.awaitingTranscript = false
		c.log.Info("commit.grace_expired")
		c.apply(c.machine.OnUserCommitWithoutTranscript())
	case timerBargeFallback:
		c.onBargeFallback()
	}
}

// maybeHangup completes the call once the closing prompt has been spoken.
func (c *call) maybeHangup() {
	if c.hungUp || !c.cfg.HangupOnClose || c.machine == nil || !c.machine.Closed() {
		return
	}
	if c.machine.PromptsOutstanding() > 0 || c.responseInFlight() || len(c.prompts) > 0 {
		return
	}
	c.hungUp = true
	calls := c.e.deps.Calls
	if calls == nil || c.callSid == "" {
		c.log.Info("call.closing_without_hangup")
		return
	}
	sid, timeout, log := c.callSid, c.cfg.HangupTimeout, c.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := calls.Hangup(ctx, sid); err != nil {
			log.WithError(err).Warn("call.hangup")
			return
		}
		log.Info("call.hangup")
	}()
}

// teardown runs once per call whichever side ends it first.
func (c *call) teardown(status string) {
	c.teardownOnce.Do(func() {
		c.finished = true
		c.timers.stopAll()
		close(c.done)
		c.cancel()
		if c.model != nil {
			_ = c.model.Close()
		}
		_ = c.tel.Close()

		ended := time.Now()
		if c.assistantText.Len() > 0 || c.currentPrompt != "" {
			c.recordAssistant(ended)
		}
		duration := int(ended.Sub(c.startedAt).Seconds())
		c.rec.UpdateCall(calllog.CallUpdate{EndedAt: ended, DurationSec: &duration, Status: status})
		c.archive(ended, status)
		c.rec.Close()
		c.e.deps.Metrics.CallEnded(status, ended.Sub(c.startedAt))

		fields := logrus.Fields{
			"status":     status,
			"duration_s": duration,
			"media_in":   c.mediaIn,
			"media_out":  c.mediaOut,
		}
		if c.machine != nil {
			fields["state"] = c.machine.State()
		}
		c.log.WithFields(fields).Info("call.ended")
	})
}

func (c *call) archive(ended time.Time, status string) {
	up := c.e.deps.Archive
	if up == nil || len(c.turns) == 0 {
		return
	}
	t := storage.Transcript{
		CallID:    c.id,
		CallSid:   c.callSid,
		StreamSid: c.streamSid,
		StartedAt: c.startedAt,
		EndedAt:   ended,
		Status:    status,
		Turns:     c.turns,
	}
	if c.machine != nil {
		t.FinalState = string(c.machine.State())
		t.OrderID = c.machine.Context().OrderID
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ArchiveTimeout)
	defer cancel()
	key, err := storage.ArchiveTranscript(ctx, up, t)
	if err != nil {
		c.log.WithError(err).Warn("transcript.archive")
		return
	}
	c.log.WithField("key", key).Info("transcript.archived")
}

func (c *call) addTurn(role, text string, started, ended time.Time) {
	c.turns = append(c.turns, storage.Turn{Role: role, Text: text, StartedAt: started, EndedAt: ended})
	c.rec.AppendMessage(calllog.Message{Role: role, Content: text, StartedAt: started, EndedAt: ended})
}
