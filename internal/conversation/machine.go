package conversation

import (
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chadiek/rice-call-gateway/internal/catalog"
	"github.com/chadiek/rice-call-gateway/internal/extract"
	"github.com/chadiek/rice-call-gateway/internal/tools"
)

type queuedTranscript struct {
	text       string
	confidence *float64
}

// Machine is the ordering dialogue for one call. Every entry point returns the
// effects the caller must perform, in order. A Machine is owned by a single
// goroutine and is not safe for concurrent use.
type Machine struct {
	cfg     Config
	catalog *catalog.Catalog
	log     logrus.FieldLogger
	now     func() time.Time

	state           State
	lastInteractive State
	ctx             Context

	waitingForCommit    bool
	skipRequirementOnce bool
	pendingTool         ToolKind
	queued              []queuedTranscript
	outstanding         int // prompts emitted but not yet reported done

	out []Effect
}

func New(cfg Config, cat *catalog.Catalog, log logrus.FieldLogger) *Machine {
	if cat == nil {
		cat = catalog.New(nil)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Machine{
		cfg:             cfg,
		catalog:         cat,
		log:             log,
		now:             time.Now,
		state:           Greeting,
		lastInteractive: Greeting,
		ctx:             Context{ClosingReason: ClosingSuccess},
	}
}

func (m *Machine) State() State { return m.state }

// Context returns a copy of the collected slots.
func (m *Machine) Context() Context { return m.ctx.clone() }

func (m *Machine) Closed() bool { return m.state == Closing }

// ToolPending reports whether a tool result is awaited.
func (m *Machine) ToolPending() bool { return m.pendingTool != "" }

func (m *Machine) flush() []Effect {
	out := m.out
	m.out = nil
	return out
}

func (m *Machine) emit(e Effect) { m.out = append(m.out, e) }

func (m *Machine) prompt(text string) {
	m.outstanding++
	m.emit(Prompt{Text: text})
}

func (m *Machine) inquiryUpdate() {
	var note []string
	if m.ctx.RiceNote != "" {
		note = append(note, m.ctx.RiceNote)
	}
	if m.ctx.RiceMilling != "" {
		note = append(note, m.ctx.RiceMilling)
	}
	m.emit(InquiryUpdate{
		Brand:           m.ctx.RiceBrand,
		WeightKg:        m.ctx.RiceWeightKg,
		DeliveryAddress: m.ctx.Address,
		DeliveryDate:    m.ctx.DeliveryDate,
		Note:            strings.Join(note, " / "),
	})
}

func (m *Machine) clearTimers() { m.emit(StopTimers{}) }

func (m *Machine) startSilenceTimer() {
	if m.waitingForCommit || !m.cfg.SilenceAutoPrompt {
		return
	}
	m.emit(StartTimer{Timer: TimerSilence, After: m.cfg.SilenceTimeout})
}

func (m *Machine) resetRetries() {
	m.ctx.SilenceRetries = 0
	m.ctx.NoHearRetries = 0
}

func (m *Machine) transition(from, to State, reason string) {
	fields := logrus.Fields{"from": from, "to": to, "reason": reason}
	if m.ctx.Product != nil {
		fields["product_id"] = m.ctx.Product.ID
	}
	if m.ctx.RiceWeightKg > 0 {
		fields["weight_kg"] = m.ctx.RiceWeightKg
	}
	m.log.WithFields(fields).Info("state.transition")
	m.emit(Transition{From: from, To: to, Reason: reason})
}

// Start enters Greeting and speaks the opening line.
func (m *Machine) Start() []Effect {
	m.enterState(Greeting, "start")
	return m.flush()
}

func (m *Machine) closeWith(reason ClosingReason, why string) {
	m.ctx.ClosingReason = reason
	m.enterState(Closing, why)
}

func (m *Machine) enterState(next State, reason string) {
	prev := m.state
	m.state = next
	if !next.Exception() {
		m.lastInteractive = next
	}
	m.transition(prev, next, reason)
	m.clearTimers()

	switch next {
	case Greeting:
		m.prompt(promptGreeting)

	case RequirementCheck:
		if m.skipRequirementOnce {
			m.skipRequirementOnce = false
			m.startSilenceTimer()
			return
		}
		switch {
		case m.ctx.AwaitingBrandConfirm && m.ctx.RiceBrand != "":
			m.prompt(promptBrandConfirm(m.ctx.RiceBrand))
		case m.ctx.BrandConfirmed && m.ctx.RiceWeightKg == 0:
			m.prompt(promptWeightOptions(m.catalog.WeightOptions()))
		case m.ctx.RiceBrand == "" && m.ctx.RiceWeightKg > 0:
			m.prompt(promptWeightNeedsBrand(m.ctx.RiceWeightKg))
		default:
			m.prompt(promptCollect)
		}
		m.startSilenceTimer()

	case ProductSuggestion:
		m.enterProductSuggestion()

	case StockCheck:
		if m.ctx.Product == nil {
			m.prompt(promptMissingProduct)
			m.closeWith(ClosingError, "stockcheck.missing_product")
			return
		}
		m.callTool(ToolCall{Kind: ToolStock, ProductID: m.ctx.Product.ID})

	case PriceQuote:
		if m.ctx.Product == nil {
			m.prompt(promptMissingProduct)
			m.closeWith(ClosingError, "pricequote.missing_product")
			return
		}
		m.callTool(ToolCall{Kind: ToolPrice, ProductID: m.ctx.Product.ID})

	case AddressConfirm:
		if m.ctx.Address != "" && m.ctx.AddressConfirmed {
			m.enterState(DeliveryCheck, "addressconfirm.already_confirmed")
			return
		}
		if m.ctx.Address != "" {
			m.ctx.AwaitingAddressConfirm = true
			m.prompt(promptAddressConfirm(m.ctx.Address))
		} else {
			m.prompt(promptAddressAsk)
		}
		m.startSilenceTimer()

	case DeliveryCheck:
		if m.ctx.AwaitingDeliveryCancelConfirm {
			m.prompt(promptDeliveryCancel)
			m.startSilenceTimer()
			return
		}
		if m.ctx.Product == nil || m.ctx.Address == "" {
			m.prompt(promptDeliveryMissing)
			m.closeWith(ClosingError, "deliverycheck.missing_requirements")
			return
		}
		m.callTool(ToolCall{Kind: ToolDelivery, ProductID: m.ctx.Product.ID, Address: m.ctx.Address})

	case OrderConfirmation:
		if m.ctx.Product == nil || m.ctx.Price == nil || m.ctx.DeliveryDate == "" {
			m.prompt(promptOrderMissing)
			m.closeWith(ClosingError, "orderconfirm.missing_requirements")
			return
		}
		if m.ctx.CustomerPhone == "" {
			m.prompt(promptPhoneAsk)
		} else {
			m.prompt(promptOrderSummary(m.ctx.Product.Name, priceText(*m.ctx.Price, m.ctx.Currency), m.ctx.DeliveryDate))
		}
		m.startSilenceTimer()

	case Closing:
		switch m.ctx.ClosingReason {
		case ClosingSuccess:
			m.prompt(promptClosingSuccess)
		case ClosingCancel:
			m.prompt(promptClosingCancel)
		default:
			m.prompt(promptClosingError)
		}

	case Silence:
		m.prompt(promptSilence)
		m.startSilenceTimer()

	case NoHear:
		m.prompt(promptNoHear)
		m.startSilenceTimer()
	}
}

func (m *Machine) enterProductSuggestion() {
	if m.ctx.RiceBrand == "" || m.ctx.RiceWeightKg == 0 {
		m.enterState(RequirementCheck, "productsuggestion.missing_brand_or_weight")
		return
	}
	m.ctx.Category = m.ctx.RiceBrand
	p, err := m.catalog.SelectRice(m.ctx.RiceBrand, m.ctx.RiceWeightKg, m.ctx.SuggestedProductIDs)
	if errors.Is(err, catalog.ErrProductNotFound) {
		p, err = m.catalog.Pick(m.ctx.Category, m.ctx.SuggestedProductIDs)
	}
	if err != nil {
		m.prompt(promptNotFound)
		m.closeWith(ClosingError, "productsuggestion.product_not_found")
		return
	}
	m.ctx.Product = &p
	if p.Description != "" {
		m.ctx.RiceNote = p.Description
	}
	m.inquiryUpdate()
	m.prompt(promptSuggestion(m.ctx.RiceBrand, m.ctx.RiceWeightKg))
}

func (m *Machine) callTool(call ToolCall) {
	m.pendingTool = call.Kind
	m.log.WithFields(logrus.Fields{"tool": call.Kind, "product_id": call.ProductID}).Debug("tool.call")
	m.emit(call)
}

// OnToolResult applies the outcome of the outstanding tool call.
func (m *Machine) OnToolResult(res ToolResult) []Effect {
	if res.Kind != m.pendingTool {
		m.log.WithFields(logrus.Fields{"tool": res.Kind, "pending": m.pendingTool}).Warn("tool.result.unexpected")
		return nil
	}
	m.pendingTool = ""
	if res.Err != nil {
		m.log.WithError(res.Err).WithField("tool", res.Kind).Warn("tool.failed")
	}
	switch res.Kind {
	case ToolStock:
		m.onStock(res)
	case ToolPrice:
		m.onPrice(res)
	case ToolDelivery:
		m.onDelivery(res)
	case ToolOrder:
		m.onOrder(res)
	}
	m.drainQueue()
	return m.flush()
}

func (m *Machine) onStock(res ToolResult) {
	if res.Err != nil {
		m.prompt(promptStockError)
		m.closeWith(ClosingError, "stockcheck.tool_error")
		return
	}
	if !res.Stock.Available {
		m.ctx.SuggestedProductIDs = append(m.ctx.SuggestedProductIDs, m.ctx.Product.ID)
		m.ctx.Product = nil
		m.prompt(promptOutOfStock)
		m.enterState(ProductSuggestion, "stockcheck.no_stock_retry")
		return
	}
	if res.Stock.Quantity != nil {
		m.prompt(promptStockQuantity(*res.Stock.Quantity))
	} else {
		m.prompt(promptStockAvailable)
	}
	m.enterState(PriceQuote, "stockcheck.available")
}

func (m *Machine) onPrice(res ToolResult) {
	if res.Err != nil {
		m.prompt(promptPriceError)
		m.closeWith(ClosingError, "pricequote.tool_error")
		return
	}
	price := res.Price.Price
	m.ctx.Price = &price
	m.ctx.Currency = res.Price.Currency
	if m.ctx.Currency == "" {
		m.ctx.Currency = "JPY"
	}
	m.prompt(promptPrice(priceText(price, m.ctx.Currency)))
	m.startSilenceTimer()
}

func (m *Machine) onDelivery(res ToolResult) {
	if res.Err != nil {
		m.prompt(promptDeliveryError)
		m.closeWith(ClosingError, "deliverycheck.tool_error")
		return
	}
	m.ctx.DeliveryDate = res.Delivery.DeliveryDate
	m.inquiryUpdate()
	m.prompt(promptDelivery(m.ctx.DeliveryDate))
	m.startSilenceTimer()
}

func (m *Machine) onOrder(res ToolResult) {
	if res.Err != nil {
		if m.ctx.OrderRetries < m.cfg.OrderRetryMax {
			m.ctx.OrderRetries++
			m.log.WithField("attempt", m.ctx.OrderRetries).Info("saveorder.retry")
			m.saveOrder(m.cfg.OrderRetryBackoff)
			return
		}
		m.closeWith(ClosingError, "saveorder.retry_exhausted")
		return
	}
	m.ctx.OrderID = res.Order.OrderID
	m.closeWith(ClosingSuccess, "saveorder.success")
}

func (m *Machine) saveOrder(delay time.Duration) {
	if m.ctx.Product == nil || m.ctx.Price == nil || m.ctx.DeliveryDate == "" || m.ctx.CustomerPhone == "" {
		m.closeWith(ClosingError, "saveorder.missing_requirements")
		return
	}
	if m.ctx.Address == "" || !m.ctx.AddressConfirmed {
		m.log.WithField("address", m.ctx.Address).Warn("saveorder.blocked: address unconfirmed")
		m.enterState(AddressConfirm, "saveorder.address_unconfirmed")
		return
	}
	m.callTool(ToolCall{
		Kind:  ToolOrder,
		Delay: delay,
		Order: tools.OrderPayload{
			ProductID:     m.ctx.Product.ID,
			Price:         *m.ctx.Price,
			DeliveryDate:  m.ctx.DeliveryDate,
			Address:       m.ctx.Address,
			CustomerPhone: m.ctx.CustomerPhone,
			Timestamp:     m.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		},
	})
}

// OnUserTranscript feeds one recognised utterance. confidence may be nil.
func (m *Machine) OnUserTranscript(text string, confidence *float64) []Effect {
	m.handleTranscript(text, confidence)
	return m.flush()
}

func (m *Machine) drainQueue() {
	for len(m.queued) > 0 && m.state != Greeting && m.pendingTool == "" {
		q := m.queued[0]
		m.queued = m.queued[1:]
		m.handleTranscript(q.text, q.confidence)
	}
}

func (m *Machine) handleTranscript(text string, confidence *float64) {
	if m.state.Exception() {
		prev := m.state
		m.state = m.lastInteractive
		m.transition(prev, m.state, "exception.resume")
	}
	if m.state == Greeting || m.pendingTool != "" {
		m.queued = append(m.queued, queuedTranscript{text: text, confidence: confidence})
		m.log.WithField("text", text).Debug("transcript.queued")
		return
	}
	if m.state == Closing {
		m.log.WithField("text", text).Debug("transcript.after_closing")
		return
	}

	normalized := extract.NormalizeText(text)
	if normalized == "" {
		return
	}
	allowFreeText := m.state == AddressConfirm || (m.state == OrderConfirmation && m.ctx.CustomerPhone == "")
	if !allowFreeText && extract.ShouldIgnoreTranscript(normalized) {
		m.log.WithField("text", normalized).Debug("transcript.ignored")
		return
	}

	m.clearTimers()

	if confidence != nil && *confidence < m.cfg.ConfidenceThreshold {
		m.log.WithFields(logrus.Fields{"confidence": *confidence, "text": normalized}).Info("stt.confidence.low")
		m.noHear("stt.low_confidence")
		return
	}

	m.resetRetries()

	for _, kw := range m.cfg.CorrectionKeywords {
		if kw != "" && strings.Contains(normalized, kw) {
			m.resetForCorrection()
			return
		}
	}

	if m.state == RequirementCheck {
		m.handleRequirement(normalized)
		return
	}

	_, hasWeight := extract.ExtractWeightKg(normalized)
	_, hasBrand := extract.ExtractRiceBrand(normalized)
	if !allowFreeText && !hasWeight && !hasBrand && !extract.HasJapanese(normalized) {
		m.log.WithField("text", normalized).Debug("transcript.skip_non_japanese")
		return
	}
	m.handleReply(normalized)
}

func (m *Machine) resetForCorrection() {
	m.ctx = Context{ClosingReason: ClosingSuccess}
	m.enterState(RequirementCheck, "correction.reset")
}

func (m *Machine) selectWeight(w float64, reason string) {
	m.ctx.RiceWeightKg = w
	m.ctx.AwaitingWeightChoice = false
	m.ctx.AwaitingBrandConfirm = false
	m.ctx.BrandConfirmed = true
	m.ctx.Category = m.ctx.RiceBrand
	m.inquiryUpdate()
	m.enterState(ProductSuggestion, reason)
}

func (m *Machine) handleRequirement(text string) {
	weight, hasWeight := extract.ExtractWeightKg(text)
	if !hasWeight && (m.ctx.AwaitingWeightChoice || m.ctx.AwaitingBrandConfirm) {
		if w, ok := extract.ExtractLooseWeightKg(text); ok {
			weight, hasWeight = w, true
			m.log.WithFields(logrus.Fields{"text": text, "weight_kg": w}).Debug("weight.loose_match")
		}
	}
	brand, hasBrand := extract.ExtractRiceBrand(text)
	if !hasWeight && !hasBrand && !extract.HasJapanese(text) {
		m.log.WithField("text", text).Debug("transcript.skip_non_japanese")
		return
	}
	allowedWeight := hasWeight && m.catalog.AllowsWeight(weight)
	if milling := extract.ExtractMilling(text); milling != "" {
		m.ctx.RiceMilling = milling
	}
	newBrand := hasBrand && brand.Name != m.ctx.RiceBrand

	if m.ctx.AwaitingBrandConfirm && m.ctx.RiceBrand != "" && !newBrand {
		switch {
		case extract.IsYes(text):
			if allowedWeight {
				m.selectWeight(weight, "requirement.brand_confirmed_and_weight_selected")
				return
			}
			// a weight given together with the brand is re-solicited once the brand is confirmed
			m.ctx.AwaitingBrandConfirm = false
			m.ctx.BrandConfirmed = true
			m.ctx.AwaitingWeightChoice = true
			m.ctx.RiceWeightKg = 0
			m.prompt(promptWeightOptions(m.catalog.WeightOptions()))
		case extract.IsNo(text):
			m.ctx.RiceBrand = ""
			m.ctx.RiceWeightKg = 0
			m.ctx.BrandConfirmed = false
			m.ctx.AwaitingBrandConfirm = false
			m.prompt(promptBrandDeclined)
		case allowedWeight:
			m.selectWeight(weight, "requirement.brand_confirmed_with_inline_weight")
			return
		default:
			m.prompt(promptBrandConfirm(m.ctx.RiceBrand))
		}
		m.startSilenceTimer()
		return
	}

	if m.ctx.AwaitingWeightChoice && !newBrand {
		if allowedWeight {
			m.selectWeight(weight, "requirement.weight_selected")
			return
		}
		m.prompt(promptWeightOptions(m.catalog.WeightOptions()))
		m.startSilenceTimer()
		return
	}

	if m.ctx.BrandConfirmed && m.ctx.RiceBrand != "" && m.ctx.RiceWeightKg == 0 && allowedWeight && !newBrand {
		m.selectWeight(weight, "requirement.weight_selected_after_brand_confirmed")
		return
	}

	if hasBrand {
		m.log.WithFields(logrus.Fields{"brand": brand.Name, "confidence": brand.Confidence}).Info("requirement.brand_candidate")
		m.ctx.RiceBrand = brand.Name
		m.ctx.BrandConfirmed = false
		m.ctx.AwaitingBrandConfirm = true
		m.ctx.AwaitingWeightChoice = false
		if allowedWeight {
			m.ctx.RiceWeightKg = weight
		} else {
			m.ctx.RiceWeightKg = 0
		}
		m.inquiryUpdate()
		m.prompt(promptBrandConfirm(m.ctx.RiceBrand))
		m.startSilenceTimer()
		return
	}

	if hasWeight {
		m.log.WithField("weight_kg", weight).Debug("requirement.weight_without_brand")
		m.prompt(promptBrandOnly)
		m.startSilenceTimer()
		return
	}

	if extract.IsGreeting(text) {
		m.prompt(promptGreetingReply)
	} else {
		m.prompt(promptCollect)
	}
	m.startSilenceTimer()
}

func (m *Machine) handleReply(text string) {
	switch m.state {
	case ProductSuggestion, StockCheck:
		// the suggestion is still being spoken
		return

	case PriceQuote:
		switch {
		case extract.IsYes(text):
			m.enterState(AddressConfirm, "pricequote.accepted")
		case extract.IsNo(text):
			if m.ctx.Product != nil {
				m.ctx.SuggestedProductIDs = append(m.ctx.SuggestedProductIDs, m.ctx.Product.ID)
				m.ctx.Product = nil
			}
			m.ctx.Price = nil
			m.enterState(ProductSuggestion, "pricequote.rejected")
		case extract.IsAddressLike(text):
			m.ctx.Address = text
			m.ctx.AddressConfirmed = false
			m.ctx.AwaitingAddressConfirm = true
			m.inquiryUpdate()
			m.enterState(AddressConfirm, "pricequote.address_provided")
		default:
			m.prompt(promptPriceYesNo)
			m.startSilenceTimer()
		}

	case AddressConfirm:
		m.handleAddress(text)

	case DeliveryCheck:
		m.handleDelivery(text)

	case OrderConfirmation:
		if m.ctx.CustomerPhone == "" {
			m.ctx.CustomerPhone = text
			m.inquiryUpdate()
			m.enterState(OrderConfirmation, "orderconfirm.phone_captured")
			return
		}
		switch {
		case extract.IsYes(text):
			m.saveOrder(0)
		case extract.IsNo(text):
			m.closeWith(ClosingCancel, "orderconfirm.rejected")
		default:
			m.prompt(promptOrderYesNo)
			m.startSilenceTimer()
		}

	default:
		m.log.WithFields(logrus.Fields{"text": text, "state": m.state}).Debug("transcript.noinfo")
	}
}

func (m *Machine) handleAddress(text string) {
	if m.ctx.AwaitingAddressConfirm {
		switch {
		case extract.IsYes(text):
			m.ctx.AddressConfirmed = true
			m.ctx.AwaitingAddressConfirm = false
			m.inquiryUpdate()
			m.enterState(DeliveryCheck, "addressconfirm.accepted")
			return
		case extract.IsNo(text):
			m.ctx.Address = ""
			m.ctx.AddressConfirmed = false
			m.ctx.AwaitingAddressConfirm = false
			m.prompt(promptAddressRetry)
		default:
			m.prompt(promptAddressConfirm(m.ctx.Address))
		}
		m.startSilenceTimer()
		return
	}
	if m.ctx.Address == "" {
		m.ctx.Address = text
		m.inquiryUpdate()
	}
	m.ctx.AwaitingAddressConfirm = true
	m.prompt(promptAddressConfirm(m.ctx.Address))
	m.startSilenceTimer()
}

func (m *Machine) handleDelivery(text string) {
	if m.ctx.AwaitingDeliveryCancelConfirm {
		switch {
		case extract.IsYes(text):
			m.ctx.AwaitingDeliveryCancelConfirm = false
			m.closeWith(ClosingCancel, "deliverycheck.cancel_confirmed")
		case extract.IsNo(text):
			m.ctx.AwaitingDeliveryCancelConfirm = false
			m.enterState(OrderConfirmation, "deliverycheck.cancel_declined")
		default:
			m.prompt(promptDeliveryCancel)
			m.startSilenceTimer()
		}
		return
	}
	switch {
	case extract.IsYes(text):
		m.enterState(OrderConfirmation, "deliverycheck.accepted")
	case extract.IsDateLike(text):
		m.enterState(OrderConfirmation, "deliverycheck.date_like_accepted")
	case extract.IsNo(text):
		m.ctx.DeliveryRetries++
		if m.ctx.DeliveryRetries > m.cfg.DeliveryRetryMax {
			m.closeWith(ClosingCancel, "deliverycheck.retry_exhausted")
			return
		}
		m.ctx.AwaitingDeliveryCancelConfirm = true
		m.prompt(promptDeliveryCancel)
		m.startSilenceTimer()
	default:
		m.prompt(promptDelivery(m.ctx.DeliveryDate))
		m.startSilenceTimer()
	}
}

func (m *Machine) noHear(reason string) {
	m.ctx.NoHearRetries++
	if m.ctx.NoHearRetries > m.cfg.NoHearRetriesMax {
		m.closeWith(ClosingError, "nohear.retry_exhausted")
		return
	}
	m.log.WithFields(logrus.Fields{"retries": m.ctx.NoHearRetries, "cause": reason}).Info("state.exception")
	m.enterState(NoHear, reason)
}

func (m *Machine) silence() {
	if m.waitingForCommit || !m.cfg.SilenceAutoPrompt || m.pendingTool != "" {
		m.log.WithField("waiting_for_commit", m.waitingForCommit).Debug("silence.skipped")
		return
	}
	m.ctx.SilenceRetries++
	if m.ctx.SilenceRetries > m.cfg.SilenceRetriesMax {
		m.closeWith(ClosingError, "silence.retry_exhausted")
		return
	}
	m.log.WithField("retries", m.ctx.SilenceRetries).Info("state.exception")
	m.enterState(Silence, "silence.timeout")
}

// OnTimer handles an expired conversation timer.
func (m *Machine) OnTimer(kind TimerKind) []Effect {
	if m.state == Closing {
		return nil
	}
	switch kind {
	case TimerSilence:
		m.silence()
	case TimerNoHear:
		if m.pendingTool == "" {
			m.noHear("nohear.timeout")
		}
	}
	return m.flush()
}

func (m *Machine) exitGreetingIfNeeded() {
	if m.state != Greeting {
		return
	}
	m.skipRequirementOnce = true
	m.enterState(RequirementCheck, "greeting.completed")
	m.drainQueue()
}

// OnUserCommitted marks the end of a caller turn on the model side.
func (m *Machine) OnUserCommitted() []Effect {
	m.waitingForCommit = false
	m.clearTimers()
	m.exitGreetingIfNeeded()
	return m.flush()
}

// OnUserCommitWithoutTranscript reports a committed turn whose transcript never arrived.
func (m *Machine) OnUserCommitWithoutTranscript() []Effect {
	if m.state == Closing || m.pendingTool != "" {
		return nil
	}
	m.log.Info("commit.no_transcript")
	m.exitGreetingIfNeeded()
	m.clearTimers()
	m.noHear("commit.no_transcript")
	return m.flush()
}

func (m *Machine) OnSpeechStarted() []Effect {
	m.waitingForCommit = true
	m.clearTimers()
	return m.flush()
}

// OnSpeechStopped arms the no-hear timer; a commit cancels it.
func (m *Machine) OnSpeechStopped() []Effect {
	if m.waitingForCommit && m.cfg.NoHearAutoPrompt && m.state != Closing {
		m.emit(StartTimer{Timer: TimerNoHear, After: m.cfg.NoHearTimeout})
	}
	return m.flush()
}

func (m *Machine) OnAssistantStart() []Effect {
	m.clearTimers()
	return m.flush()
}

// OnAssistantDone reports that one prompt finished playing (or was cut off).
func (m *Machine) OnAssistantDone() []Effect {
	if m.outstanding > 0 {
		m.outstanding--
	}
	if m.outstanding > 0 {
		return nil
	}
	switch m.state {
	case Greeting:
		m.exitGreetingIfNeeded()
	case ProductSuggestion:
		if m.ctx.Product != nil {
			m.enterState(StockCheck, "productsuggestion.prompt_done")
		}
	case Closing:
	default:
		if m.pendingTool == "" {
			m.startSilenceTimer()
		}
	}
	return m.flush()
}

// PromptsOutstanding is the number of prompts not yet reported done.
func (m *Machine) PromptsOutstanding() int { return m.outstanding }

func (m *Machine) SetCustomerPhone(phone string) {
	if phone != "" {
		m.ctx.CustomerPhone = phone
	}
}

func (m *Machine) SetAddress(address string) {
	if address != "" {
		m.ctx.Address = address
	}
}
