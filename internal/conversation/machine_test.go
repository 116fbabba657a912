package conversation

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chadiek/rice-call-gateway/internal/catalog"
	"github.com/chadiek/rice-call-gateway/internal/tools"
)

type fakeTools struct {
	outOfStock map[string]bool
	orderFails int
	priceErr   error
	orders     []tools.OrderPayload
}

func (f *fakeTools) GetStock(_ context.Context, id string) (tools.Stock, error) {
	if f.outOfStock[id] {
		q := 0
		return tools.Stock{Available: false, Quantity: &q}, nil
	}
	q := 99
	return tools.Stock{Available: true, Quantity: &q}, nil
}

func (f *fakeTools) GetPrice(_ context.Context, _ string) (tools.Price, error) {
	if f.priceErr != nil {
		return tools.Price{}, f.priceErr
	}
	return tools.Price{Price: 2000, Currency: "JPY"}, nil
}

func (f *fakeTools) GetDeliveryDate(_ context.Context, _, _ string) (tools.Delivery, error) {
	return tools.Delivery{DeliveryDate: "2026-02-05"}, nil
}

func (f *fakeTools) SaveOrder(_ context.Context, p tools.OrderPayload) (tools.Order, error) {
	f.orders = append(f.orders, p)
	if f.orderFails > 0 {
		f.orderFails--
		return tools.Order{}, errors.New("order api down")
	}
	return tools.Order{OrderID: "ORDER-1"}, nil
}

type harness struct {
	t         *testing.T
	m         *Machine
	tools     *fakeTools
	prompts   []string
	played    int
	inquiries []InquiryUpdate
	timers    []StartTimer
	calls     []ToolCall
	// when set, tool calls are collected instead of executed
	manualTools bool
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SilenceTimeout = 999999 * time.Millisecond
	cfg.SilenceRetriesMax = 1
	cfg.NoHearRetriesMax = 1
	cfg.SilenceAutoPrompt = false
	cfg.NoHearAutoPrompt = false
	cfg.CorrectionKeywords = []string{"やっぱり", "違う"}
	return cfg
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	cat := catalog.New([]catalog.Product{
		{ID: "rice-1", Name: "コシヒカリ", Category: "コシヒカリ"},
		{ID: "rice-2", Name: "あきたこまち", Category: "あきたこまち"},
	})
	m := New(cfg, cat, log)
	m.now = func() time.Time { return time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC) }
	return &harness{t: t, m: m, tools: &fakeTools{outOfStock: map[string]bool{}}}
}

func (h *harness) apply(effects []Effect) {
	for _, e := range effects {
		switch v := e.(type) {
		case Prompt:
			h.prompts = append(h.prompts, v.Text)
		case InquiryUpdate:
			h.inquiries = append(h.inquiries, v)
		case StartTimer:
			h.timers = append(h.timers, v)
		case ToolCall:
			h.calls = append(h.calls, v)
			if h.manualTools {
				continue
			}
			call := v
			call.Delay = 0
			h.apply(h.m.OnToolResult(Execute(context.Background(), h.tools, call)))
		}
	}
}

// speakAll reports every emitted prompt as played.
func (h *harness) speakAll() {
	for h.played < len(h.prompts) {
		h.played++
		h.apply(h.m.OnAssistantDone())
	}
}

func (h *harness) bootstrap() {
	h.apply(h.m.Start())
	h.speakAll()
}

func (h *harness) say(texts ...string) {
	for _, text := range texts {
		conf := 0.9
		h.apply(h.m.OnUserTranscript(text, &conf))
	}
}

func (h *harness) lastPrompt() string {
	if len(h.prompts) == 0 {
		return ""
	}
	return h.prompts[len(h.prompts)-1]
}

func (h *harness) expectState(want State) {
	h.t.Helper()
	if got := h.m.State(); got != want {
		h.t.Fatalf("state = %s, want %s (last prompt %q)", got, want, h.lastPrompt())
	}
}

func TestRequirementFlows(t *testing.T) {
	cases := []struct {
		name       string
		utterances []string
		brand      string
		weight     float64
		state      State
	}{
		{"brand weight confirm then weight", []string{"コシヒカリ 5kg", "はい", "10kg"}, "コシヒカリ", 10, ProductSuggestion},
		{"weight while confirming brand", []string{"コシヒカリ 5kg", "10kg"}, "コシヒカリ", 10, ProductSuggestion},
		{"hiragana brand kanji weight", []string{"こしひかりを五キロ", "はい", "5kg"}, "コシヒカリ", 5, ProductSuggestion},
		{"yes with nothing to confirm", []string{"はい"}, "", 0, RequirementCheck},
		{"hesitant partial brand", []string{"えっと…コシ… 5キロ", "はい", "10kg"}, "コシヒカリ", 10, ProductSuggestion},
		{"wrong unit", []string{"10トン"}, "", 0, RequirementCheck},
		{"akitakomachi", []string{"あきたこまち 10キロ", "はい", "20kg"}, "あきたこまち", 20, ProductSuggestion},
		{"weight outside options", []string{"ゆめぴりか 0.5kg"}, "ゆめぴりか", 0, RequirementCheck},
		{"weight without brand", []string{"5kg"}, "", 0, RequirementCheck},
		{"brand only", []string{"コシヒカリ"}, "コシヒカリ", 0, RequirementCheck},
		{"yes with weight only", []string{"はい 5kg"}, "", 0, RequirementCheck},
		{"greeting", []string{"もしもし"}, "", 0, RequirementCheck},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, testConfig())
			h.bootstrap()
			h.say(tc.utterances...)
			ctx := h.m.Context()
			if ctx.RiceBrand != tc.brand {
				t.Fatalf("brand = %q, want %q", ctx.RiceBrand, tc.brand)
			}
			if ctx.RiceWeightKg != tc.weight {
				t.Fatalf("weight = %v, want %v", ctx.RiceWeightKg, tc.weight)
			}
			h.expectState(tc.state)
		})
	}
}

func TestRequirementPrompts(t *testing.T) {
	h := newHarness(t, testConfig())
	h.bootstrap()
	if len(h.prompts) != 1 || !strings.HasPrefix(h.prompts[0], "お電話ありがとうございます") {
		t.Fatalf("expected greeting only, got %v", h.prompts)
	}
	h.say("もしもし")
	if h.lastPrompt() != promptGreetingReply {
		t.Fatalf("greeting reply = %q", h.lastPrompt())
	}
	h.say("コシヒカリ")
	if h.lastPrompt() != "「コシヒカリ」でよろしいですか？" {
		t.Fatalf("brand confirm = %q", h.lastPrompt())
	}
	h.say("はい")
	if h.lastPrompt() != "5kg、10kg、20kgがあります。この中からお選びください。" {
		t.Fatalf("weight options = %q", h.lastPrompt())
	}
	h.say("いいえ")
	if h.lastPrompt() != "5kg、10kg、20kgがあります。この中からお選びください。" {
		t.Fatalf("weight options should repeat, got %q", h.lastPrompt())
	}
	h.say("じゅう")
	h.say("十で")
	h.expectState(ProductSuggestion)
	if h.m.Context().RiceWeightKg != 10 {
		t.Fatalf("loose kanji weight not accepted: %+v", h.m.Context())
	}
	if h.lastPrompt() != "かしこまりました。コシヒカリ10kgですね。こちらで登録しました。" {
		t.Fatalf("suggestion prompt = %q", h.lastPrompt())
	}
}

func TestBrandDeclined(t *testing.T) {
	h := newHarness(t, testConfig())
	h.bootstrap()
	h.say("コシヒカリ 5kg", "いいえ")
	ctx := h.m.Context()
	if ctx.RiceBrand != "" || ctx.RiceWeightKg != 0 || ctx.AwaitingBrandConfirm {
		t.Fatalf("brand should be cleared: %+v", ctx)
	}
	if h.lastPrompt() != promptBrandDeclined {
		t.Fatalf("prompt = %q", h.lastPrompt())
	}
}

func TestNewBrandWhileConfirming(t *testing.T) {
	h := newHarness(t, testConfig())
	h.bootstrap()
	h.say("コシヒカリ", "あきたこまち")
	if got := h.m.Context().RiceBrand; got != "あきたこまち" {
		t.Fatalf("brand = %q", got)
	}
	if h.lastPrompt() != "「あきたこまち」でよろしいですか？" {
		t.Fatalf("prompt = %q", h.lastPrompt())
	}
}

func TestLaterStatesIgnoreSlotExtraction(t *testing.T) {
	h := newHarness(t, testConfig())
	h.bootstrap()
	h.say("コシヒカリ 5kg", "はい", "5kg")
	h.expectState(ProductSuggestion)
	h.speakAll()
	h.expectState(PriceQuote)
	h.say("あきたこまち")
	ctx := h.m.Context()
	h.expectState(PriceQuote)
	if ctx.RiceBrand != "コシヒカリ" || ctx.RiceWeightKg != 5 {
		t.Fatalf("slots changed outside requirement check: %+v", ctx)
	}
}

func TestCommitWithoutTranscriptEntersNoHear(t *testing.T) {
	h := newHarness(t, testConfig())
	h.bootstrap()
	h.apply(h.m.OnUserCommitWithoutTranscript())
	h.expectState(NoHear)
	if h.lastPrompt() != promptNoHear {
		t.Fatalf("prompt = %q", h.lastPrompt())
	}
	// a real utterance resumes the interrupted state
	h.say("コシヒカリ")
	h.expectState(RequirementCheck)
	if h.m.Context().RiceBrand != "コシヒカリ" {
		t.Fatalf("utterance after resume was not processed")
	}
}

func TestCommitWithoutTranscriptDuringGreeting(t *testing.T) {
	h := newHarness(t, testConfig())
	h.apply(h.m.Start())
	h.apply(h.m.OnUserCommitWithoutTranscript())
	h.expectState(NoHear)
	h.say("5kg")
	h.expectState(RequirementCheck)
}

func TestGreetingQueuesTranscripts(t *testing.T) {
	h := newHarness(t, testConfig())
	h.apply(h.m.Start())
	h.say("コシヒカリ 5kg")
	h.expectState(Greeting)
	if len(h.prompts) != 1 {
		t.Fatalf("transcript during greeting should be queued, prompts %v", h.prompts)
	}
	h.speakAll()
	h.expectState(RequirementCheck)
	ctx := h.m.Context()
	if ctx.RiceBrand != "コシヒカリ" || ctx.RiceWeightKg != 5 || !ctx.AwaitingBrandConfirm {
		t.Fatalf("queued transcript not replayed: %+v", ctx)
	}
}

func TestCommitExitsGreeting(t *testing.T) {
	h := newHarness(t, testConfig())
	h.apply(h.m.Start())
	h.say("あきたこまち")
	h.apply(h.m.OnUserCommitted())
	h.expectState(RequirementCheck)
	if h.m.Context().RiceBrand != "あきたこまち" {
		t.Fatalf("queue not flushed on commit")
	}
}

func TestFullOrder(t *testing.T) {
	h := newHarness(t, testConfig())
	h.bootstrap()
	h.say("コシヒカリ 5kg", "はい", "5kg")
	h.speakAll()
	h.expectState(PriceQuote)
	if h.lastPrompt() != "価格は2000円です。よろしいですか？" {
		t.Fatalf("price prompt = %q", h.lastPrompt())
	}
	if !containsPrompt(h.prompts, "在庫を確認しました。現在99点ございます。") {
		t.Fatalf("stock prompt missing: %v", h.prompts)
	}

	h.say("はい")
	h.expectState(AddressConfirm)
	if h.lastPrompt() != promptAddressAsk {
		t.Fatalf("address prompt = %q", h.lastPrompt())
	}
	h.say("東京都千代田区丸の内1-1")
	if h.lastPrompt() != "配送先は東京都千代田区丸の内1-1でよろしいでしょうか？" {
		t.Fatalf("address confirm = %q", h.lastPrompt())
	}
	h.say("はい")
	h.expectState(DeliveryCheck)
	if h.lastPrompt() != "配送は2026-02-05の予定です。よろしいですか？" {
		t.Fatalf("delivery prompt = %q", h.lastPrompt())
	}
	h.say("はい")
	h.expectState(OrderConfirmation)
	if h.lastPrompt() != promptPhoneAsk {
		t.Fatalf("phone prompt = %q", h.lastPrompt())
	}
	h.say("09012345678")
	h.expectState(OrderConfirmation)
	if h.lastPrompt() != "ご注文内容は、商品:コシヒカリ、価格:2000円、配送:2026-02-05です。確定でよろしいですか？" {
		t.Fatalf("summary = %q", h.lastPrompt())
	}
	h.say("はい")
	h.expectState(Closing)
	ctx := h.m.Context()
	if ctx.OrderID != "ORDER-1" || ctx.ClosingReason != ClosingSuccess {
		t.Fatalf("order not recorded: %+v", ctx)
	}
	if h.lastPrompt() != promptClosingSuccess {
		t.Fatalf("closing prompt = %q", h.lastPrompt())
	}
	if len(h.tools.orders) != 1 {
		t.Fatalf("expected one order, got %d", len(h.tools.orders))
	}
	o := h.tools.orders[0]
	if o.ProductID != "rice-1" || o.Price != 2000 || o.CustomerPhone != "09012345678" || o.Address != "東京都千代田区丸の内1-1" || o.Timestamp != "2026-02-01T10:00:00.000Z" {
		t.Fatalf("order payload = %+v", o)
	}
	last := h.inquiries[len(h.inquiries)-1]
	if last.Brand != "コシヒカリ" || last.WeightKg != 5 || last.DeliveryDate != "2026-02-05" {
		t.Fatalf("inquiry = %+v", last)
	}
	h.say("はい")
	h.expectState(Closing)
}

func TestPresetPhoneAndAddress(t *testing.T) {
	h := newHarness(t, testConfig())
	h.m.SetCustomerPhone("+815012345678")
	h.m.SetAddress("大阪府大阪市北区1-2")
	h.bootstrap()
	h.say("コシヒカリ 5kg", "はい", "5kg")
	h.speakAll()
	h.say("はい")
	if h.lastPrompt() != "配送先は大阪府大阪市北区1-2でよろしいでしょうか？" {
		t.Fatalf("address confirm = %q", h.lastPrompt())
	}
	h.say("いいえ")
	if h.lastPrompt() != promptAddressRetry || h.m.Context().Address != "" {
		t.Fatalf("address should be cleared, prompt %q", h.lastPrompt())
	}
	h.say("京都府京都市中京区3-4", "はい", "はい")
	h.expectState(OrderConfirmation)
	if !strings.HasPrefix(h.lastPrompt(), "ご注文内容は") {
		t.Fatalf("phone should be preset, prompt %q", h.lastPrompt())
	}
}

func TestPriceQuoteAddressShortcut(t *testing.T) {
	h := newHarness(t, testConfig())
	h.bootstrap()
	h.say("コシヒカリ 5kg", "はい", "5kg")
	h.speakAll()
	h.say("えーと")
	if h.lastPrompt() != promptPriceYesNo {
		t.Fatalf("prompt = %q", h.lastPrompt())
	}
	h.say("東京都港区芝公園4-2")
	h.expectState(AddressConfirm)
	if !h.m.Context().AwaitingAddressConfirm {
		t.Fatalf("address should await confirmation")
	}
}

func TestPriceRejectedSuggestsAnother(t *testing.T) {
	h := newHarness(t, testConfig())
	h.bootstrap()
	h.say("コシヒカリ 5kg", "はい", "5kg")
	h.speakAll()
	h.say("いいえ")
	h.expectState(ProductSuggestion)
	h.speakAll()
	ctx := h.m.Context()
	if ctx.Product == nil || ctx.Product.ID != "rice-2" {
		t.Fatalf("expected a different product, got %+v", ctx.Product)
	}
}

func TestOutOfStockLoops(t *testing.T) {
	h := newHarness(t, testConfig())
	h.tools.outOfStock["rice-1"] = true
	h.bootstrap()
	h.say("コシヒカリ 5kg", "はい", "5kg")
	h.speakAll()
	h.expectState(PriceQuote)
	ctx := h.m.Context()
	if ctx.Product == nil || ctx.Product.ID != "rice-2" {
		t.Fatalf("expected fallback product rice-2, got %+v", ctx.Product)
	}
	if len(ctx.SuggestedProductIDs) != 1 || ctx.SuggestedProductIDs[0] != "rice-1" {
		t.Fatalf("suggested = %v", ctx.SuggestedProductIDs)
	}
	if !containsPrompt(h.prompts, promptOutOfStock) {
		t.Fatalf("out of stock prompt missing")
	}
}

func TestNothingInStockCloses(t *testing.T) {
	h := newHarness(t, testConfig())
	h.tools.outOfStock["rice-1"] = true
	h.tools.outOfStock["rice-2"] = true
	h.bootstrap()
	h.say("コシヒカリ 5kg", "はい", "5kg")
	h.speakAll()
	h.expectState(Closing)
	if h.m.Context().ClosingReason != ClosingError || !containsPrompt(h.prompts, promptNotFound) {
		t.Fatalf("expected not-found closing, prompts %v", h.prompts)
	}
}

func TestPriceToolErrorCloses(t *testing.T) {
	h := newHarness(t, testConfig())
	h.tools.priceErr = errors.New("boom")
	h.bootstrap()
	h.say("コシヒカリ 5kg", "はい", "5kg")
	h.speakAll()
	h.expectState(Closing)
	if !containsPrompt(h.prompts, promptPriceError) || h.lastPrompt() != promptClosingError {
		t.Fatalf("prompts = %v", h.prompts)
	}
}

func reachDelivery(h *harness) {
	h.bootstrap()
	h.say("コシヒカリ 5kg", "はい", "5kg")
	h.speakAll()
	h.say("はい", "東京都千代田区丸の内1-1", "はい")
	h.expectState(DeliveryCheck)
}

func TestDeliveryCancelDialogue(t *testing.T) {
	h := newHarness(t, testConfig())
	reachDelivery(h)
	h.say("いいえ")
	if h.lastPrompt() != promptDeliveryCancel {
		t.Fatalf("prompt = %q", h.lastPrompt())
	}
	h.say("いいえ")
	h.expectState(OrderConfirmation)

	h = newHarness(t, testConfig())
	reachDelivery(h)
	h.say("いいえ", "はい")
	h.expectState(Closing)
	if h.m.Context().ClosingReason != ClosingCancel {
		t.Fatalf("expected cancel")
	}
}

func TestDeliveryDateLikeAccepted(t *testing.T) {
	h := newHarness(t, testConfig())
	reachDelivery(h)
	h.say("2月5日で")
	h.expectState(OrderConfirmation)
}

func TestOrderRetry(t *testing.T) {
	h := newHarness(t, testConfig())
	h.tools.orderFails = 1
	h.m.SetCustomerPhone("0312345678")
	reachDelivery(h)
	h.say("はい", "はい")
	h.expectState(Closing)
	ctx := h.m.Context()
	if ctx.OrderRetries != 1 || ctx.OrderID != "ORDER-1" {
		t.Fatalf("retry not applied: %+v", ctx)
	}
	last := h.calls[len(h.calls)-1]
	if last.Kind != ToolOrder || last.Delay != time.Second {
		t.Fatalf("retry call = %+v", last)
	}

	h = newHarness(t, testConfig())
	h.tools.orderFails = 5
	h.m.SetCustomerPhone("0312345678")
	reachDelivery(h)
	h.say("はい", "はい")
	h.expectState(Closing)
	if h.m.Context().ClosingReason != ClosingError || len(h.tools.orders) != 2 {
		t.Fatalf("expected error after retries, orders %d", len(h.tools.orders))
	}
}

func TestCorrectionResets(t *testing.T) {
	h := newHarness(t, testConfig())
	h.bootstrap()
	h.say("コシヒカリ 5kg", "はい", "5kg")
	h.speakAll()
	h.say("やっぱり あきたこまち")
	h.expectState(RequirementCheck)
	ctx := h.m.Context()
	if ctx.RiceBrand != "" || ctx.Product != nil || ctx.Price != nil {
		t.Fatalf("context not reset: %+v", ctx)
	}
	if h.lastPrompt() != promptCollect {
		t.Fatalf("prompt = %q", h.lastPrompt())
	}
}

func TestLowConfidence(t *testing.T) {
	h := newHarness(t, testConfig())
	h.bootstrap()
	low := 0.2
	h.apply(h.m.OnUserTranscript("コシヒカリ", &low))
	h.expectState(NoHear)
	if h.m.Context().RiceBrand != "" {
		t.Fatalf("low confidence transcript must not fill slots")
	}
	h.apply(h.m.OnUserTranscript("コシヒカリ", &low))
	h.expectState(Closing)
	if h.m.Context().ClosingReason != ClosingError {
		t.Fatalf("expected error closing after no-hear retries")
	}
}

func TestSilenceTimer(t *testing.T) {
	cfg := testConfig()
	cfg.SilenceAutoPrompt = true
	cfg.SilenceTimeout = 5 * time.Second
	h := newHarness(t, cfg)
	h.bootstrap()
	if len(h.timers) == 0 || h.timers[len(h.timers)-1].Timer != TimerSilence {
		t.Fatalf("expected silence timer after greeting, got %v", h.timers)
	}
	h.apply(h.m.OnTimer(TimerSilence))
	h.expectState(Silence)
	if h.lastPrompt() != promptSilence {
		t.Fatalf("prompt = %q", h.lastPrompt())
	}
	h.apply(h.m.OnTimer(TimerSilence))
	h.expectState(Closing)

	h = newHarness(t, cfg)
	h.bootstrap()
	h.apply(h.m.OnSpeechStarted())
	h.apply(h.m.OnTimer(TimerSilence))
	h.expectState(RequirementCheck)
}

func TestNoHearTimerArmedOnSpeechStop(t *testing.T) {
	cfg := testConfig()
	cfg.NoHearAutoPrompt = true
	h := newHarness(t, cfg)
	h.bootstrap()
	h.apply(h.m.OnSpeechStarted())
	h.apply(h.m.OnSpeechStopped())
	if len(h.timers) != 1 || h.timers[0].Timer != TimerNoHear || h.timers[0].After != 3*time.Second {
		t.Fatalf("timers = %v", h.timers)
	}
	h.apply(h.m.OnTimer(TimerNoHear))
	h.expectState(NoHear)
}

func TestTranscriptsQueuedWhileToolPending(t *testing.T) {
	h := newHarness(t, testConfig())
	h.manualTools = true
	h.bootstrap()
	h.say("コシヒカリ 5kg", "はい", "5kg")
	h.speakAll()
	h.expectState(StockCheck)
	if !h.m.ToolPending() {
		t.Fatalf("stock call should be pending")
	}
	n := len(h.prompts)
	h.say("はい")
	if len(h.prompts) != n {
		t.Fatalf("transcript should wait for the tool result")
	}
	q := 3
	h.apply(h.m.OnToolResult(ToolResult{Kind: ToolStock, Stock: tools.Stock{Available: true, Quantity: &q}}))
	h.expectState(PriceQuote)
	h.apply(h.m.OnToolResult(ToolResult{Kind: ToolOrder}))
	h.expectState(PriceQuote)
	h.apply(h.m.OnToolResult(ToolResult{Kind: ToolPrice, Price: tools.Price{Price: 15, Currency: "USD"}}))
	// the queued yes is replayed against the price quote
	h.expectState(AddressConfirm)
	if !containsPrompt(h.prompts, "価格は15 USDです。よろしいですか？") {
		t.Fatalf("prompts = %v", h.prompts)
	}
}

func TestExecuteHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Execute(ctx, &fakeTools{}, ToolCall{Kind: ToolOrder, Delay: time.Hour})
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", res.Err)
	}
}

func containsPrompt(prompts []string, want string) bool {
	for _, p := range prompts {
		if p == want {
			return true
		}
	}
	return false
}
