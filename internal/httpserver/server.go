package httpserver

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/chadiek/rice-call-gateway/internal/metrics"
	"github.com/chadiek/rice-call-gateway/internal/middleware"
	"github.com/chadiek/rice-call-gateway/internal/session"
	"github.com/chadiek/rice-call-gateway/internal/telephony"
)

const (
	voicePath  = "/twilio/voice"
	streamPath = "/media-stream"
)

// Options configures the HTTP surface.
type Options struct {
	PublicBaseURL     string
	TwilioAuthToken   string
	ValidateSignature bool
	MediaStreamToken  string
}

// CallServer runs one media stream; *session.Engine implements it.
type CallServer interface {
	Serve(ctx context.Context, conn session.TelephonyConn) error
}

// Server bundles HTTP router and dependencies.
type Server struct {
	Router *echo.Echo

	opts  Options
	calls CallServer
	log   logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	// Twilio does not send an Origin header
	CheckOrigin: func(r *http.Request) bool { return true },
}

// New constructs the HTTP server with routes.
func New(opts Options, calls CallServer, m *metrics.Metrics, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{Router: newRouter(), opts: opts, calls: calls, log: log, ctx: ctx, cancel: cancel}

	s.Router.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if m != nil {
		s.Router.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	var voiceMW []echo.MiddlewareFunc
	if opts.ValidateSignature {
		token := opts.TwilioAuthToken
		voiceMW = append(voiceMW, middleware.TwilioAuth(func() string { return token }, opts.PublicBaseURL))
	}
	s.Router.POST(voicePath, s.handleVoice, voiceMW...)
	s.Router.GET(streamPath, s.handleStream)
	return s
}

// handleVoice answers an incoming call with <Connect><Stream>.
func (s *Server) handleVoice(c echo.Context) error {
	params, _ := c.Get(middleware.ParamsKey).(map[string]string)
	from := params["From"]
	if from == "" {
		from = c.FormValue("From")
	}
	address := c.QueryParam("address")
	if address == "" {
		address = c.FormValue("address")
	}

	streamURL := telephony.StreamURL(c.Request(), s.opts.PublicBaseURL, streamPath)
	twiml, err := telephony.ConnectStream(streamURL, map[string]string{
		telephony.ParamCustomerPhone: from,
		telephony.ParamAddress:       address,
	})
	if err != nil {
		s.log.WithError(err).Error("twiml.build")
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	s.log.WithFields(logrus.Fields{"call_sid": c.FormValue("CallSid"), "stream_url": streamURL}).Info("twilio.voice")
	return c.Blob(http.StatusOK, "text/xml", []byte(twiml))
}

// handleStream upgrades to WebSocket and hands the media stream to the call engine.
func (s *Server) handleStream(c echo.Context) error {
	r := c.Request()
	if !s.streamAuthorized(r) {
		return c.String(http.StatusUnauthorized, "unauthorized")
	}
	conn, err := wsUpgrader.Upgrade(c.Response(), r, nil)
	if err != nil {
		s.log.WithError(err).Warn("ws upgrade error")
		return nil
	}
	s.wg.Add(1)
	defer s.wg.Done()
	if err := s.calls.Serve(s.ctx, conn); err != nil {
		s.log.WithError(err).Warn("call ended with error")
	}
	return nil
}

func (s *Server) streamAuthorized(r *http.Request) bool {
	if s.opts.MediaStreamToken == "" {
		return true
	}
	if streamAuthOK(r, s.opts.MediaStreamToken) {
		return true
	}
	return s.opts.ValidateSignature && middleware.ValidSignature(s.opts.TwilioAuthToken, s.opts.PublicBaseURL, r, map[string]string{})
}

// streamAuthOK accepts ?token=, X-Auth-Token or an Authorization bearer.
func streamAuthOK(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	if r == nil {
		return false
	}
	if r.URL.Query().Get("token") == expected {
		return true
	}
	if r.Header.Get("X-Auth-Token") == expected {
		return true
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:]) == expected
	}
	return false
}

// CloseCalls ends live calls and waits for them to tear down.
func (s *Server) CloseCalls() {
	s.cancel()
	s.wg.Wait()
}
