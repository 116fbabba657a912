package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const defaultInstructions = "あなたは電話応対の読み上げ係です。会話の中で指示された文章だけを、日本語で一字一句そのまま読み上げてください。自分の判断で話したり、質問に答えたりしないでください。"

// Config holds application configuration.
type Config struct {
	HTTPAddress   string
	LogLevel      string
	PublicBaseURL string

	Realtime Realtime

	TestPrompt  string
	TestTone    bool
	CommitGrace time.Duration

	EchoCooldown time.Duration
	EchoWindow   time.Duration

	BargeInCancel      bool
	BargeInRecentAudio time.Duration
	BargeInDedup       time.Duration
	BargeInFallback    time.Duration

	Dialogue Dialogue
	Tools    Tools

	ProductCatalogPath string
	InventoryPath      string

	LogAPIBaseURL string
	LogAPITimeout time.Duration

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioValidateSignature bool
	HangupOnClose           bool

	MediaStreamToken string
}

// Realtime configures the speech model socket and session.
type Realtime struct {
	URL                string
	Model              string
	APIKey             string
	BetaHeader         bool
	Schema             string // flat | audio
	AudioMode          string // pcmu | pcm16
	AudioRate          int
	TranscriptionModel string
	Voice              string
	VAD                bool
	VADSilenceMs       int
	InterruptResponse  bool
	CommitFrames       int
	Instructions       string
}

// Dialogue tunes the ordering conversation.
type Dialogue struct {
	SilenceTimeout      time.Duration
	NoHearTimeout       time.Duration
	SilenceRetriesMax   int
	NoHearRetriesMax    int
	SilenceAutoPrompt   bool
	NoHearAutoPrompt    bool
	ConfidenceThreshold float64
	CorrectionKeywords  []string
	OrderRetryMax       int
	DeliveryRetryMax    int
	OrderRetryBackoff   time.Duration
}

// Tools locates the tool API and bounds each operation.
type Tools struct {
	BaseURL         string
	StockTimeout    time.Duration
	PriceTimeout    time.Duration
	DeliveryTimeout time.Duration
	OrderTimeout    time.Duration
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logrus.Info("config: no .env file loaded")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
		if port := os.Getenv("WS_PORT"); port != "" {
			addr = ":" + port
		}
	}

	rt := Realtime{
		URL:                envString("REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		Model:              envString("REALTIME_MODEL", "gpt-4o-realtime-preview"),
		APIKey:             os.Getenv("OPENAI_API_KEY"),
		BetaHeader:         envOnUnlessZero("REALTIME_BETA_HEADER"),
		Schema:             strings.ToLower(envString("REALTIME_SCHEMA", "flat")),
		AudioMode:          strings.ToLower(envString("REALTIME_AUDIO_MODE", "pcmu")),
		AudioRate:          envInt("REALTIME_AUDIO_RATE", 24000),
		TranscriptionModel: os.Getenv("REALTIME_TRANSCRIPTION_MODEL"),
		Voice:              envString("REALTIME_VOICE", "alloy"),
		VAD:                envOnUnlessZero("REALTIME_VAD"),
		VADSilenceMs:       envInt("REALTIME_VAD_SILENCE_MS", 800),
		InterruptResponse:  envOnUnlessZero("REALTIME_INTERRUPT_RESPONSE"),
		CommitFrames:       envInt("REALTIME_COMMIT_FRAMES", 10),
		Instructions:       envString("REALTIME_INSTRUCTIONS", defaultInstructions),
	}
	if rt.APIKey == "" {
		logrus.Warn("config: OPENAI_API_KEY not set - model sockets will not open")
	}
	if rt.TranscriptionModel == "" {
		logrus.Warn("config: REALTIME_TRANSCRIPTION_MODEL not set - calls will be refused")
	}
	if rt.Schema != "flat" && rt.Schema != "audio" {
		logrus.WithField("value", rt.Schema).Warn("config: unknown REALTIME_SCHEMA, using flat")
		rt.Schema = "flat"
	}
	if rt.AudioMode != "pcmu" && rt.AudioMode != "pcm16" {
		logrus.WithField("value", rt.AudioMode).Warn("config: unknown REALTIME_AUDIO_MODE, using pcmu")
		rt.AudioMode = "pcmu"
	}

	authToken := os.Getenv("TWILIO_AUTH_TOKEN")
	cfg := Config{
		HTTPAddress:   addr,
		LogLevel:      envString("LOG_LEVEL", "info"),
		PublicBaseURL: strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		Realtime:      rt,

		TestPrompt:  os.Getenv("TEST_PROMPT"),
		TestTone:    envOnlyOne("TEST_TWILIO_TONE"),
		CommitGrace: envMillis("COMMIT_GRACE_MS", 2000),

		EchoCooldown: envMillis("ECHO_COOLDOWN_MS", 800),
		EchoWindow:   envMillis("ECHO_WINDOW_MS", 3000),

		BargeInCancel:      envOnlyOne("BARGE_IN_CANCEL"),
		BargeInRecentAudio: envMillis("BARGE_IN_RECENT_AUDIO_MS", 600),
		BargeInDedup:       envMillis("BARGE_IN_DEDUP_MS", 500),
		BargeInFallback:    envMillis("BARGE_IN_FALLBACK_MS", 1500),

		Dialogue: Dialogue{
			SilenceTimeout:      envMillis("SILENCE_TIMEOUT_MS", 7000),
			NoHearTimeout:       envMillis("NOHEAR_TIMEOUT_MS", 3000),
			SilenceRetriesMax:   envInt("SILENCE_RETRIES_MAX", 2),
			NoHearRetriesMax:    envInt("NOHEAR_RETRIES_MAX", 2),
			SilenceAutoPrompt:   envOnlyOne("SILENCE_AUTO_PROMPT"),
			NoHearAutoPrompt:    envOnlyOne("NOHEAR_AUTO_PROMPT"),
			ConfidenceThreshold: envFloat("STT_CONFIDENCE_THRESHOLD", 0.55),
			CorrectionKeywords:  envList("CORRECTION_KEYWORDS", []string{"やっぱり", "違う", "他の", "間違えた", "キャンセル"}),
			OrderRetryMax:       envInt("ORDER_RETRY_MAX", 1),
			DeliveryRetryMax:    envInt("DELIVERY_RETRY_MAX", 1),
			OrderRetryBackoff:   envMillis("ORDER_RETRY_BACKOFF_MS", 1000),
		},
		Tools: Tools{
			BaseURL:         strings.TrimRight(os.Getenv("TOOL_BASE_URL"), "/"),
			StockTimeout:    envMillis("TOOL_STOCK_TIMEOUT_MS", 4000),
			PriceTimeout:    envMillis("TOOL_PRICE_TIMEOUT_MS", 4000),
			DeliveryTimeout: envMillis("TOOL_DELIVERY_TIMEOUT_MS", 6000),
			OrderTimeout:    envMillis("TOOL_ORDER_TIMEOUT_MS", 4000),
		},

		ProductCatalogPath: os.Getenv("PRODUCT_CATALOG_PATH"),
		InventoryPath:      os.Getenv("INVENTORY_PATH"),

		LogAPIBaseURL: strings.TrimRight(os.Getenv("LOG_API_BASE_URL"), "/"),
		LogAPITimeout: envMillis("LOG_API_TIMEOUT_MS", 3000),

		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:     envString("SUPABASE_BUCKET", "call-transcripts"),

		TwilioAccountSID:        os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:         authToken,
		TwilioValidateSignature: authToken != "" && os.Getenv("TWILIO_VALIDATE_SIGNATURE") != "0",
		HangupOnClose:           envOnUnlessZero("HANGUP_ON_CLOSE"),

		MediaStreamToken: os.Getenv("MEDIA_STREAM_TOKEN"),
	}

	if cfg.ProductCatalogPath == "" {
		logrus.Warn("config: PRODUCT_CATALOG_PATH not set - no products can be suggested")
	}
	if cfg.Tools.BaseURL == "" && cfg.InventoryPath == "" {
		logrus.Warn("config: neither TOOL_BASE_URL nor INVENTORY_PATH set - tool calls will fail")
	}
	if cfg.TwilioAuthToken == "" {
		logrus.Warn("config: TWILIO_AUTH_TOKEN not set - webhook signatures are not checked and calls cannot be hung up")
	}

	logrus.WithFields(logrus.Fields{
		"http_address": cfg.HTTPAddress,
		"schema":       rt.Schema,
		"audio_mode":   rt.AudioMode,
		"vad":          rt.VAD,
		"barge_in":     cfg.BargeInCancel,
		"tool_api":     cfg.Tools.BaseURL != "",
		"log_api":      cfg.LogAPIBaseURL != "",
		"supabase":     cfg.SupabaseURL != "",
	}).Info("config loaded")
	return cfg
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.WithField("key", key).WithField("value", v).Warn("config: not an integer, using default")
		return def
	}
	return n
}

func envMillis(key string, defMs int) time.Duration {
	return time.Duration(envInt(key, defMs)) * time.Millisecond
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logrus.WithField("key", key).WithField("value", v).Warn("config: not a number, using default")
		return def
	}
	return f
}

// envOnUnlessZero is true unless the variable is exactly "0".
func envOnUnlessZero(key string) bool { return strings.TrimSpace(os.Getenv(key)) != "0" }

// envOnlyOne is true only when the variable is exactly "1".
func envOnlyOne(key string) bool { return strings.TrimSpace(os.Getenv(key)) == "1" }

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
