package session

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/chadiek/rice-call-gateway/internal/realtime"
	"github.com/chadiek/rice-call-gateway/internal/telephony"
)

func (c *call) onModelEvent(ev realtime.Event) {
	if payload, ok := ev.AudioPayload(); ok {
		c.onAssistantAudio(ev.ID(), payload)
		return
	}
	if text, conf, ok := ev.UserTranscript(); ok {
		c.onTranscript(transcriptKey(ev), text, conf)
		return
	}
	if delta, ok := ev.AssistantTranscriptDelta(); ok {
		if !c.unexpected[ev.ID()] {
			c.assistantText.WriteString(delta)
		}
		return
	}

	switch ev.Type {
	case realtime.TypeBinary:
		c.onAssistantAudio("", base64.StdEncoding.EncodeToString(ev.Binary))
	case realtime.TypeSessionCreated:
		c.log.Debug("realtime.session_created")
	case realtime.TypeSessionUpdated:
		c.onSessionUpdated(ev)
	case realtime.TypeSpeechStarted:
		c.onSpeechStarted()
	case realtime.TypeSpeechStopped:
		c.apply(c.machine.OnSpeechStopped())
	case realtime.TypeCommitted:
		c.onCommitted()
	case realtime.TypeResponseCreated:
		c.onResponseCreated(ev)
	case realtime.TypeResponseDone, realtime.TypeResponseCancelled:
		c.onResponseFinished(ev)
	case realtime.TypeOutputItemAdded:
		if ev.Item != nil && ev.Item.ID != "" {
			c.lastOutputItem = ev.Item.ID
		}
	case realtime.TypeItemRetrieved:
		if ev.Item != nil {
			c.log.WithField("item_id", ev.Item.ID).Debug("realtime.item_retrieved")
		}
	case realtime.TypeError:
		c.onModelError(ev)
	}
}

func (c *call) onSessionUpdated(ev realtime.Event) {
	if err := realtime.ValidateSession(c.cfg.Session, ev.Session); err != nil {
		c.failFast(err)
		return
	}
	if c.sessionReady {
		return
	}
	c.sessionReady = true
	c.log.WithField("audio", c.cfg.Session.Describe()).Info("realtime.session_ready")
	c.maybeStartConversation()
}

// failFast ends the call when the negotiated session is not what we asked for.
func (c *call) failFast(err error) {
	fields := logrus.Fields{}
	var ve *realtime.ValidationError
	if errors.As(err, &ve) {
		fields["field"] = ve.Field
		fields["want"] = ve.Want
		fields["got"] = ve.Got
	}
	c.log.WithFields(fields).WithError(err).Error("realtime.session_mismatch")
	c.e.deps.Metrics.SessionError("validation")
	c.err = err
	c.teardown("failed")
}

func (c *call) onModelError(ev realtime.Event) {
	code := ev.ErrorCode()
	fields := logrus.Fields{"code": code}
	if ev.Error != nil {
		fields["message"] = ev.Error.Message
	}
	c.log.WithFields(fields).Warn("realtime.error")
	if code != realtime.ErrCodeActiveResponseExists || !c.responsePending {
		return
	}
	// the create was refused; speak the prompt again after whatever is active
	c.responsePending = false
	c.pendingRequestID = ""
	if c.currentPrompt != "" {
		c.prompts = append([]string{c.currentPrompt}, c.prompts...)
		c.currentPrompt = ""
	}
}

func (c *call) responseInFlight() bool {
	return c.responsePending || c.activeResponseID != ""
}

func (c *call) enqueuePrompt(text string) {
	if strings.TrimSpace(text) == "" {
		text = c.cfg.TestPrompt
	}
	if strings.TrimSpace(text) == "" {
		c.log.Warn("prompt.empty")
		c.apply(c.machine.OnAssistantDone())
		return
	}
	c.prompts = append(c.prompts, text)
	c.pumpPrompts()
}

// pumpPrompts issues the next queued prompt when no response is in flight.
func (c *call) pumpPrompts() {
	if len(c.prompts) == 0 || c.responseInFlight() || c.guard.AwaitingAck() || c.model == nil {
		return
	}
	text := c.prompts[0]
	c.prompts = c.prompts[1:]

	reqID := uuid.NewString()
	c.currentPrompt = text
	c.promptStartedAt = time.Now()
	c.assistantText.Reset()
	c.echo.NotePrompt(text)
	c.responsePending = true
	c.pendingRequestID = reqID

	c.sendModel(realtime.NewVerbatimItem(text))
	c.sendModel(realtime.NewResponseCreate(c.cfg.Session, text, reqID))
	c.log.WithFields(logrus.Fields{"request_id": reqID, "queued": len(c.prompts)}).Info("prompt.sent")
}

func (c *call) onResponseCreated(ev realtime.Event) {
	id := ev.ID()
	reqID := ev.RequestID()
	ours := c.responsePending && (reqID == c.pendingRequestID || (reqID == "" && !c.cancelPending))
	if !ours {
		if reqID == "" {
			c.cancelPending = false
		}
		c.unexpected[id] = true
		c.e.deps.Metrics.Response("unexpected")
		c.log.WithFields(logrus.Fields{"response_id": id, "request_id": reqID}).Warn("response.unexpected")
		c.sendModel(realtime.NewResponseCancel(id))
		return
	}
	c.responsePending = false
	c.pendingRequestID = ""
	c.activeResponseID = id
	c.e.deps.Metrics.Response("created")
	c.log.WithField("response_id", id).Debug("response.created")
	c.apply(c.machine.OnAssistantStart())
}

func (c *call) onResponseFinished(ev realtime.Event) {
	id := ev.ID()
	if c.unexpected[id] {
		delete(c.unexpected, id)
		c.pumpPrompts()
		return
	}
	if c.guard.AwaitingAck() {
		c.guard.Acknowledge()
		c.timers.stop(timerBargeFallback)
	}
	if id != c.activeResponseID && !(c.activeResponseID == "" && c.responsePending) {
		c.log.WithField("response_id", id).Debug("response.stale")
		c.pumpPrompts()
		return
	}
	status := "done"
	if ev.Type == realtime.TypeResponseCancelled || (ev.Response != nil && ev.Response.Status == "cancelled") {
		status = "cancelled"
	}
	if ev.Type == realtime.TypeResponseDone && c.lastOutputItem != "" {
		c.sendModel(realtime.NewItemRetrieve(c.lastOutputItem))
	}
	c.finishResponse(status)
}

// finishResponse releases the response slot and reports the prompt as done.
func (c *call) finishResponse(status string) {
	c.activeResponseID = ""
	c.responsePending = false
	c.pendingRequestID = ""
	c.lastOutputItem = ""
	c.echo.NoteAssistantDone()
	c.recordAssistant(time.Now())
	c.e.deps.Metrics.Response(status)
	c.log.WithField("status", status).Info("response.finished")

	c.apply(c.machine.OnAssistantDone())
	c.releaseHeldTranscripts()
	c.pumpPrompts()
	c.maybeHangup()
}

func (c *call) recordAssistant(ended time.Time) {
	text := strings.TrimSpace(c.assistantText.String())
	if text == "" {
		text = c.currentPrompt
	}
	c.assistantText.Reset()
	c.currentPrompt = ""
	if text == "" {
		return
	}
	started := c.promptStartedAt
	if started.IsZero() {
		started = ended
	}
	c.addTurn("assistant", text, started, ended)
}

func (c *call) onSpeechStarted() {
	c.apply(c.machine.OnSpeechStarted())
	d := c.guard.OnSpeechStarted(c.responseInFlight())
	if d.Suppressed {
		c.log.Debug("bargein.suppressed")
		return
	}
	if !d.Interrupts() {
		return
	}
	fields := logrus.Fields{"clear": d.Clear, "cancel": d.Cancel}
	if d.Clear && c.streamSid != "" {
		c.sendTelephony(telephony.NewClear(c.streamSid))
		c.e.deps.Metrics.BargeIn("clear")
	}
	if d.Cancel {
		c.sendModel(realtime.NewResponseCancel(c.activeResponseID))
		c.e.deps.Metrics.BargeIn("cancel")
		fields["response_id"] = c.activeResponseID
	}
	if d.ArmFallback > 0 {
		c.timers.start(timerBargeFallback, d.ArmFallback)
	}
	c.log.WithFields(fields).Info("bargein")
}

// onBargeFallback releases the slot when the cancel was never acknowledged.
func (c *call) onBargeFallback() {
	if !c.guard.FallbackExpired() {
		return
	}
	c.log.WithField("response_id", c.activeResponseID).Warn("bargein.fallback")
	if c.activeResponseID != "" {
		c.unexpected[c.activeResponseID] = true
	} else if c.responsePending {
		c.cancelPending = true
	}
	c.finishResponse("cancelled")
}

func (c *call) onAssistantAudio(responseID, b64 string) {
	if responseID != "" && c.unexpected[responseID] {
		return
	}
	if c.guard.AwaitingAck() {
		return
	}
	c.playAssistantAudio(b64)
}

func (c *call) onCommitted() {
	c.framesPending = 0
	c.apply(c.machine.OnUserCommitted())
	c.awaitingTranscript = true
	c.timers.start(timerCommitGrace, c.cfg.CommitGrace)
}

func transcriptKey(ev realtime.Event) string {
	if ev.Item != nil && ev.Item.ID != "" {
		return ev.Item.ID
	}
	return ev.ItemID
}

func (c *call) onTranscript(itemID, text string, confidence *float64) {
	if itemID != "" {
		if c.seenItems[itemID] {
			return
		}
		c.seenItems[itemID] = true
	}
	if c.awaitingTranscript {
		c.awaitingTranscript = false
		c.timers.stop(timerCommitGrace)
	}
	if c.machine == nil || c.machine.Closed() {
		return
	}
	if reason := c.echo.Check(text); reason != "" {
		c.e.deps.Metrics.TranscriptDropped(reason)
		c.log.WithFields(logrus.Fields{"reason": reason, "text": text}).Info("transcript.dropped")
		return
	}
	if c.responseInFlight() {
		c.heldTranscripts = append(c.heldTranscripts, heldTranscript{text: text, confidence: confidence})
		c.log.WithField("held", len(c.heldTranscripts)).Debug("transcript.held")
		return
	}
	c.deliverTranscript(text, confidence)
}

func (c *call) deliverTranscript(text string, confidence *float64) {
	now := time.Now()
	fields := logrus.Fields{"text": text}
	if confidence != nil {
		fields["confidence"] = *confidence
	}
	c.log.WithFields(fields).Info("transcript.user")
	c.addTurn("user", text, now, now)
	c.apply(c.machine.OnUserTranscript(text, confidence))
}

func (c *call) releaseHeldTranscripts() {
	for len(c.heldTranscripts) > 0 && !c.responseInFlight() {
		h := c.heldTranscripts[0]
		c.heldTranscripts = c.heldTranscripts[1:]
		c.deliverTranscript(h.text, h.confidence)
	}
}
