package session

import (
	"github.com/sirupsen/logrus"

	"github.com/chadiek/rice-call-gateway/internal/audio"
	"github.com/chadiek/rice-call-gateway/internal/calllog"
	"github.com/chadiek/rice-call-gateway/internal/conversation"
	"github.com/chadiek/rice-call-gateway/internal/realtime"
	"github.com/chadiek/rice-call-gateway/internal/telephony"
)

const mediaLogEvery = 50

func (c *call) onFrame(f telephony.Frame) {
	switch f.Event {
	case telephony.EventConnected:
		c.log.Debug("telephony.connected")
	case telephony.EventStart:
		c.onStart(f)
	case telephony.EventMedia:
		c.onMedia(f)
	case telephony.EventMark:
		if f.Mark != nil {
			c.log.WithField("mark", f.Mark.Name).Debug("telephony.mark")
		}
	case telephony.EventStop:
		c.log.Info("telephony.stop")
		c.teardown("completed")
	default:
		c.log.WithField("event", f.Event).Debug("telephony.ignored")
	}
}

func (c *call) onStart(f telephony.Frame) {
	if c.streamStarted {
		c.log.Warn("telephony.duplicate_start")
		return
	}
	c.streamStarted = true
	c.streamSid = f.StreamSid
	if f.Start != nil {
		if f.Start.StreamSid != "" {
			c.streamSid = f.Start.StreamSid
		}
		c.callSid = f.Start.CallSid
	}
	c.log = c.log.WithFields(logrus.Fields{"stream_sid": c.streamSid, "call_sid": c.callSid})

	c.machine = conversation.New(c.cfg.Conversation, c.e.deps.Catalog, c.log)
	phone := f.CustomParameter(telephony.ParamCustomerPhone)
	c.machine.SetCustomerPhone(phone)
	c.machine.SetAddress(f.CustomParameter(telephony.ParamAddress))

	c.rec.CreateCall(calllog.Call{
		StartedAt:       c.startedAt,
		FromNumber:      phone,
		CallType:        "inbound",
		Status:          "in-progress",
		Provider:        "twilio",
		ProviderCallSid: c.callSid,
	})
	c.log.WithField("customer_phone", phone != "").Info("telephony.start")

	if c.model == nil {
		c.dial()
	}
	c.maybeStartConversation()
}

func (c *call) onMedia(f telephony.Frame) {
	if f.Media == nil || f.Media.Payload == "" {
		return
	}
	if !c.sessionReady || c.model == nil {
		c.mediaDropped++
		if c.mediaDropped == 1 {
			c.log.Debug("media.dropped_until_session_ready")
		}
		return
	}
	payload, ok := audio.TwilioToRealtime(f.Media.Payload, c.cfg.Session.Encoding, c.factor)
	if !ok {
		return
	}
	c.mediaIn++
	if c.mediaIn == 1 || c.mediaIn%mediaLogEvery == 0 {
		c.log.WithFields(logrus.Fields{"frames": c.mediaIn, "track": f.Media.Track}).Debug("media.in")
	}
	c.sendModel(realtime.NewAudioAppend(payload))

	if c.cfg.Session.VAD {
		return
	}
	c.framesPending++
	if c.framesPending >= c.cfg.CommitFrames {
		c.framesPending = 0
		c.sendModel(realtime.NewAudioCommit())
	}
}

// playAssistantAudio relays one model audio chunk to the caller.
func (c *call) playAssistantAudio(b64 string) {
	if c.streamSid == "" {
		return
	}
	out, ok := audio.RealtimeToTwilio(b64, c.cfg.Session.Encoding, c.factor)
	if !ok {
		return
	}
	c.sendTelephony(telephony.NewMedia(c.streamSid, out))
	c.guard.NotePlayback()
	c.mediaOut++
	if c.mediaOut == 1 || c.mediaOut%mediaLogEvery == 0 {
		c.log.WithField("frames", c.mediaOut).Debug("media.out")
	}
}
