package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-reconciliation/internal"
	webhookdm "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/webhook"
	"github.com/frahmantamala/payment-reconciliation/internal/payment"
	"github.com/frahmantamala/payment-reconciliation/internal/transport"
	"github.com/frahmantamala/payment-reconciliation/internal/webhook"
)

type mockLedger struct {
	mu      sync.Mutex
	entries map[string]*webhookdm.Event
	byID    map[int64]*webhookdm.Event
	nextID  int64

	createError error
	marked      map[int64]string
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		entries: make(map[string]*webhookdm.Event),
		byID:    make(map[int64]*webhookdm.Event),
		marked:  make(map[int64]string),
	}
}

func (m *mockLedger) CreateIfNotExists(_ context.Context, event *webhookdm.Event) (bool, *webhookdm.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createError != nil {
		return false, nil, m.createError
	}
	key := event.Provider + "/" + event.ProviderEventID
	if existing, ok := m.entries[key]; ok {
		return false, existing, nil
	}
	m.nextID++
	event.ID = m.nextID
	m.entries[key] = event
	m.byID[event.ID] = event
	return true, event, nil
}

func (m *mockLedger) MarkProcessed(_ context.Context, id int64, processingError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked[id] = processingError
	if entry, ok := m.byID[id]; ok {
		now := time.Now()
		entry.ProcessedAt = &now
		entry.ProcessingError = processingError
	}
	return nil
}

func (m *mockLedger) ListUnprocessed(_ context.Context, limit int) ([]*webhookdm.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var unprocessed []*webhookdm.Event
	for _, entry := range m.byID {
		if len(unprocessed) >= limit {
			break
		}
		if entry.ProcessedAt == nil {
			unprocessed = append(unprocessed, entry)
		}
	}
	return unprocessed, nil
}

func (m *mockLedger) seedUnprocessed(eventType, reference string, payload []byte) *webhookdm.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry := &webhookdm.Event{
		ID:                   m.nextID,
		Provider:             "gateway",
		ProviderEventID:      fmt.Sprintf("seed-%d", m.nextID),
		EventType:            eventType,
		TransactionReference: reference,
		Payload:              payload,
		SignatureValid:       true,
		ReceivedAt:           time.Now(),
	}
	m.entries[entry.Provider+"/"+entry.ProviderEventID] = entry
	m.byID[entry.ID] = entry
	return entry
}

type chargeCall struct {
	reference string
	outcome   payment.Outcome
	hints     payment.MatchHints
}

type mockChargeProcessor struct {
	mu    sync.Mutex
	calls []chargeCall
	err   error
}

func (m *mockChargeProcessor) ProcessCharge(_ context.Context, reference string, out payment.Outcome, hints payment.MatchHints) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, chargeCall{reference: reference, outcome: out, hints: hints})
	return m.err
}

type resolveCall struct {
	reference string
	succeeded bool
	reason    string
}

type mockRefundResolver struct {
	mu    sync.Mutex
	calls []resolveCall
	err   error
}

func (m *mockRefundResolver) Resolve(_ context.Context, reference string, succeeded bool, reason string, _ json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, resolveCall{reference: reference, succeeded: succeeded, reason: reason})
	return m.err
}

var _ = Describe("Webhook Handler", func() {
	const secret = "sk_test_webhook_secret"

	var (
		handler *webhook.Handler
		ledger  *mockLedger
		charges *mockChargeProcessor
		refunds *mockRefundResolver
	)

	cfg := internal.WebhookConfig{
		Provider:        "gateway",
		SignatureHeader: "X-Gateway-Signature",
		Secret:          secret,
		ReplayWindow:    5 * time.Minute,
	}

	BeforeEach(func() {
		ledger = newMockLedger()
		charges = &mockChargeProcessor{}
		refunds = &mockRefundResolver{}
		handler = webhook.NewHandler(transport.NewBaseHandler(nil), ledger, charges, refunds, cfg)
	})

	deliver := func(body []byte, sign bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(body))
		if sign {
			req.Header.Set(cfg.SignatureHeader, signBody(body, secret))
		}
		rec := httptest.NewRecorder()
		handler.HandleWebhook(rec, req)
		return rec
	}

	chargeBody := func(event, reference string, amount int64, createdAt time.Time) []byte {
		return []byte(fmt.Sprintf(`{
			"event": %q,
			"data": {
				"reference": %q,
				"amount": %d,
				"currency": "NGN",
				"status": "success",
				"created_at": %q,
				"metadata": {"order_number": "ORD-001"}
			}
		}`, event, reference, amount, createdAt.Format(time.RFC3339)))
	}

	Context("when the signature is missing or invalid", func() {
		It("should return 401 and never touch the ledger", func() {
			rec := deliver(chargeBody("charge.success", "ref-1", 500000, time.Now()), false)

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(ledger.entries).To(BeEmpty())
			Expect(charges.calls).To(BeEmpty())
		})
	})

	Context("when the payload is unparseable", func() {
		It("should return 400 after signature verification", func() {
			body := []byte("definitely not json")
			rec := deliver(body, true)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(ledger.entries).To(BeEmpty())
		})
	})

	Context("when the event timestamp is older than the replay window", func() {
		It("should return 400 and not process the charge", func() {
			stale := time.Now().Add(-10 * time.Minute)
			rec := deliver(chargeBody("charge.success", "ref-1", 500000, stale), true)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(charges.calls).To(BeEmpty())
		})

		It("should accept an event just inside the window", func() {
			recent := time.Now().Add(-4 * time.Minute)
			rec := deliver(chargeBody("charge.success", "ref-1", 500000, recent), true)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(charges.calls).To(HaveLen(1))
		})

		It("should reject an event just outside the window", func() {
			stale := time.Now().Add(-6 * time.Minute)
			rec := deliver(chargeBody("charge.success", "ref-1", 500000, stale), true)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(charges.calls).To(BeEmpty())
			Expect(ledger.entries).To(BeEmpty())
		})
	})

	Context("when a charge.success event arrives", func() {
		It("should record the event, dispatch the charge and return 200", func() {
			rec := deliver(chargeBody("charge.success", "ref-1", 500000, time.Now()), true)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(ledger.entries).To(HaveLen(1))
			Expect(charges.calls).To(HaveLen(1))
			Expect(charges.calls[0].reference).To(Equal("ref-1"))
			Expect(charges.calls[0].outcome.Status).To(Equal(payment.OutcomeSuccess))
			Expect(charges.calls[0].outcome.Amount).To(Equal(int64(500000)))
			Expect(charges.calls[0].hints.OrderNumber).To(Equal("ORD-001"))
			Expect(ledger.marked[1]).To(Equal(""))
		})
	})

	Context("when the same delivery arrives twice", func() {
		It("should process the charge exactly once and acknowledge both", func() {
			body := chargeBody("charge.success", "ref-1", 500000, time.Now())

			first := deliver(body, true)
			second := deliver(body, true)

			Expect(first.Code).To(Equal(http.StatusOK))
			Expect(second.Code).To(Equal(http.StatusOK))
			Expect(charges.calls).To(HaveLen(1))
			Expect(ledger.entries).To(HaveLen(1))

			var resp map[string]interface{}
			Expect(json.Unmarshal(second.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["duplicate"]).To(Equal(true))
		})
	})

	Context("when the charge processor fails", func() {
		It("should mark the ledger entry and return 500 so the gateway redelivers", func() {
			charges.err = fmt.Errorf("storage unavailable")
			rec := deliver(chargeBody("charge.success", "ref-1", 500000, time.Now()), true)

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(ledger.marked[1]).To(ContainSubstring("storage unavailable"))
		})
	})

	Context("when the gateway redelivers after a processing failure", func() {
		It("should run the dispatch again instead of acknowledging a duplicate", func() {
			body := chargeBody("charge.success", "ref-1", 500000, time.Now())

			charges.err = fmt.Errorf("storage unavailable")
			first := deliver(body, true)
			Expect(first.Code).To(Equal(http.StatusInternalServerError))
			Expect(ledger.marked[1]).To(ContainSubstring("storage unavailable"))

			charges.err = nil
			second := deliver(body, true)

			Expect(second.Code).To(Equal(http.StatusOK))
			Expect(charges.calls).To(HaveLen(2))
			Expect(ledger.entries).To(HaveLen(1))
			Expect(ledger.marked[1]).To(Equal(""))

			var resp map[string]interface{}
			Expect(json.Unmarshal(second.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp).ToNot(HaveKey("duplicate"))
		})
	})

	Context("when the verdict conflicts with settled state", func() {
		It("should surface the conflict status code", func() {
			charges.err = internal.ErrReconciliationConflict
			rec := deliver(chargeBody("charge.failed", "ref-1", 500000, time.Now()), true)

			Expect(rec.Code).To(Equal(http.StatusConflict))
			Expect(ledger.marked[1]).ToNot(Equal(""))
		})
	})

	Context("when a transfer.success event arrives", func() {
		It("should resolve the matching refund", func() {
			body := []byte(fmt.Sprintf(`{
				"event": "transfer.success",
				"data": {"reference": "rf-5", "status": "success", "created_at": %q}
			}`, time.Now().Format(time.RFC3339)))
			rec := deliver(body, true)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(refunds.calls).To(HaveLen(1))
			Expect(refunds.calls[0].reference).To(Equal("rf-5"))
			Expect(refunds.calls[0].succeeded).To(BeTrue())
		})
	})

	Context("when an unknown event type arrives", func() {
		It("should record it in the ledger and acknowledge with 200", func() {
			body := []byte(`{"event": "subscription.create", "data": {}}`)
			rec := deliver(body, true)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(ledger.entries).To(HaveLen(1))
			Expect(charges.calls).To(BeEmpty())
			Expect(refunds.calls).To(BeEmpty())
		})
	})

	Context("when the ledger holds entries that never finished processing", func() {
		It("should replay them through the dispatcher and mark them", func() {
			entry := ledger.seedUnprocessed("charge.success", "ref-9",
				chargeBody("charge.success", "ref-9", 750000, time.Now()))

			replayed, err := handler.ReplayUnprocessed(context.Background(), 10)

			Expect(err).ToNot(HaveOccurred())
			Expect(replayed).To(Equal(1))
			Expect(charges.calls).To(HaveLen(1))
			Expect(charges.calls[0].reference).To(Equal("ref-9"))
			Expect(ledger.marked[entry.ID]).To(Equal(""))
			Expect(entry.ProcessedAt).ToNot(BeNil())
		})

		It("should record the error and keep going when a replayed dispatch fails", func() {
			bad := ledger.seedUnprocessed("charge.success", "ref-9",
				chargeBody("charge.success", "ref-9", 750000, time.Now()))
			charges.err = fmt.Errorf("storage unavailable")

			replayed, err := handler.ReplayUnprocessed(context.Background(), 10)

			Expect(err).ToNot(HaveOccurred())
			Expect(replayed).To(Equal(0))
			Expect(ledger.marked[bad.ID]).To(ContainSubstring("storage unavailable"))
		})

		It("should do nothing when every entry is already processed", func() {
			deliver(chargeBody("charge.success", "ref-1", 500000, time.Now()), true)
			charges.calls = nil

			replayed, err := handler.ReplayUnprocessed(context.Background(), 10)

			Expect(err).ToNot(HaveOccurred())
			Expect(replayed).To(Equal(0))
			Expect(charges.calls).To(BeEmpty())
		})
	})
})
