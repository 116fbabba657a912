package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chadiek/rice-call-gateway/internal/audio"
	"github.com/chadiek/rice-call-gateway/internal/barge"
	"github.com/chadiek/rice-call-gateway/internal/calllog"
	"github.com/chadiek/rice-call-gateway/internal/catalog"
	"github.com/chadiek/rice-call-gateway/internal/config"
	"github.com/chadiek/rice-call-gateway/internal/conversation"
	httpserver "github.com/chadiek/rice-call-gateway/internal/httpserver"
	"github.com/chadiek/rice-call-gateway/internal/infra/storage"
	"github.com/chadiek/rice-call-gateway/internal/metrics"
	"github.com/chadiek/rice-call-gateway/internal/realtime"
	"github.com/chadiek/rice-call-gateway/internal/session"
	"github.com/chadiek/rice-call-gateway/internal/telephony"
	"github.com/chadiek/rice-call-gateway/internal/tools"
)

func main() {
	// Include sub-second precision in all log timestamps
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000000"})

	cfg := config.Load()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(lvl)
	} else {
		logrus.WithField("value", cfg.LogLevel).Warn("unknown LOG_LEVEL, using info")
	}
	log := logrus.StandardLogger()

	cat, err := catalog.Load(cfg.ProductCatalogPath)
	if err != nil {
		log.WithError(err).Fatal("catalog load failed")
	}
	inv, err := tools.LoadInventory(cfg.InventoryPath)
	if err != nil {
		log.WithError(err).Fatal("inventory load failed")
	}

	m := metrics.New("")
	toolClient := tools.NewClient(cfg.Tools.BaseURL, tools.Timeouts{
		Stock:    cfg.Tools.StockTimeout,
		Price:    cfg.Tools.PriceTimeout,
		Delivery: cfg.Tools.DeliveryTimeout,
		Order:    cfg.Tools.OrderTimeout,
	}, inv)
	toolClient.OnResult = m.ToolCall

	deps := session.Deps{Catalog: cat, Tools: toolClient, Store: callStore(cfg, log), Metrics: m}
	if archive, err := storage.NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket); err == nil {
		deps.Archive = archive
	} else {
		log.WithError(err).Info("transcript archive disabled")
	}
	if calls := telephony.NewCalls(cfg.TwilioAccountSID, cfg.TwilioAuthToken); calls != nil {
		deps.Calls = calls
	} else {
		log.Info("twilio credentials missing, calls will not be hung up from the server")
	}

	engine := session.NewEngine(sessionConfig(cfg), deps, log)
	srv := httpserver.New(httpserver.Options{
		PublicBaseURL:     cfg.PublicBaseURL,
		TwilioAuthToken:   cfg.TwilioAuthToken,
		ValidateSignature: cfg.TwilioValidateSignature,
		MediaStreamToken:  cfg.MediaStreamToken,
	}, engine, m, log)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Infof("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Infof("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Hijacked media sockets are invisible to Shutdown; end them first.
	srv.CloseCalls()
	if err := server.Shutdown(ctx); err != nil {
		log.Warnf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}

// callStore prefers the log API, then direct Supabase tables.
func callStore(cfg config.Config, log logrus.FieldLogger) calllog.Store {
	if cfg.LogAPIBaseURL != "" {
		return calllog.NewHTTPStore(cfg.LogAPIBaseURL)
	}
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey != "" {
		store, err := calllog.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey)
		if err == nil {
			return store
		}
		log.WithError(err).Warn("supabase call log unavailable")
	}
	log.Info("call logging disabled")
	return nil
}

func sessionConfig(cfg config.Config) session.Config {
	rt := cfg.Realtime
	enc := audio.EncodingPCMU
	if rt.AudioMode == "pcm16" {
		enc = audio.EncodingPCM16
	}

	sc := session.DefaultConfig()
	sc.Realtime = realtime.DialOptions{URL: rt.URL, Model: rt.Model, APIKey: rt.APIKey, BetaHeader: rt.BetaHeader}
	sc.Session = realtime.SessionConfig{
		Schema:             realtime.Schema(rt.Schema),
		Encoding:           enc,
		Rate:               rt.AudioRate,
		TranscriptionModel: rt.TranscriptionModel,
		Voice:              rt.Voice,
		Instructions:       rt.Instructions,
		VAD:                rt.VAD,
		VADSilenceMs:       rt.VADSilenceMs,
		InterruptResponse:  rt.InterruptResponse,
	}
	d := cfg.Dialogue
	sc.Conversation = conversation.Config{
		SilenceTimeout:      d.SilenceTimeout,
		NoHearTimeout:       d.NoHearTimeout,
		SilenceRetriesMax:   d.SilenceRetriesMax,
		NoHearRetriesMax:    d.NoHearRetriesMax,
		SilenceAutoPrompt:   d.SilenceAutoPrompt,
		NoHearAutoPrompt:    d.NoHearAutoPrompt,
		ConfidenceThreshold: d.ConfidenceThreshold,
		CorrectionKeywords:  d.CorrectionKeywords,
		OrderRetryMax:       d.OrderRetryMax,
		DeliveryRetryMax:    d.DeliveryRetryMax,
		OrderRetryBackoff:   d.OrderRetryBackoff,
	}
	sc.Barge = barge.Config{
		Enabled:     cfg.BargeInCancel,
		RecentAudio: cfg.BargeInRecentAudio,
		Dedup:       cfg.BargeInDedup,
		Fallback:    cfg.BargeInFallback,
	}
	sc.CommitGrace = cfg.CommitGrace
	sc.CommitFrames = rt.CommitFrames
	sc.EchoCooldown = cfg.EchoCooldown
	sc.EchoWindow = cfg.EchoWindow
	sc.TestPrompt = cfg.TestPrompt
	sc.TestTone = cfg.TestTone
	sc.HangupOnClose = cfg.HangupOnClose
	sc.LogTimeout = cfg.LogAPITimeout
	return sc
}
