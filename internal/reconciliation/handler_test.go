package reconciliation_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	orderdm "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/order"
	paymentdm "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-reconciliation/internal/core/events"
	paymentPkg "github.com/frahmantamala/payment-reconciliation/internal/payment"
	"github.com/frahmantamala/payment-reconciliation/internal/reconciliation"
	"github.com/frahmantamala/payment-reconciliation/internal/transport"
	"github.com/frahmantamala/payment-reconciliation/pkg/logger"
)

var _ = Describe("Reconciliation Handler", func() {
	var (
		transactions *memoryTransactionRepository
		orders       *stubOrderRepository
		gateway      *stubGateway
		handler      *reconciliation.Handler
	)

	BeforeEach(func() {
		transactions = newMemoryTransactionRepository()
		orders = newStubOrderRepository()
		transactions.orders = orders
		gateway = &stubGateway{
			outcomes: make(map[string]*paymentPkg.Outcome),
			errs:     make(map[string]error),
		}

		log := logger.LoggerWrapper()
		bus := events.NewEventBus(log)
		txService := paymentPkg.NewTransactionService(transactions, log)
		matcher := paymentPkg.NewMatcher(orders, log)
		transitioner := paymentPkg.NewTransitioner(transactions, bus, log)
		service := reconciliation.NewService(txService, orders, matcher, transitioner, gateway, 15*time.Minute, log)
		handler = reconciliation.NewHandler(transport.NewBaseHandler(nil), service, 10)
	})

	post := func(target string, body string, fn http.HandlerFunc) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader([]byte(body)))
		rec := httptest.NewRecorder()
		fn(rec, req)
		return rec
	}

	decode := func(rec *httptest.ResponseRecorder) map[string]interface{} {
		var resp map[string]interface{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		return resp
	}

	Describe("POST /payments/reconcile", func() {
		Context("when the action is missing or not recognized", func() {
			It("should reject a request without an action", func() {
				rec := post("/payments/reconcile", `{"reference": "ref-1"}`, handler.Reconcile)

				Expect(rec.Code).To(Equal(http.StatusBadRequest))
				resp := decode(rec)
				Expect(resp["status"]).To(Equal(false))
				Expect(resp["error"]).ToNot(BeEmpty())
			})

			It("should reject an unknown action", func() {
				rec := post("/payments/reconcile",
					`{"action": "reconcile_everything", "reference": "ref-1"}`, handler.Reconcile)

				Expect(rec.Code).To(Equal(http.StatusBadRequest))
				Expect(decode(rec)["status"]).To(Equal(false))
			})

			It("should reject a request without a reference", func() {
				rec := post("/payments/reconcile", `{"action": "reconcile_single"}`, handler.Reconcile)

				Expect(rec.Code).To(Equal(http.StatusBadRequest))
				Expect(decode(rec)["status"]).To(Equal(false))
			})
		})

		Context("when the reference reconciles", func() {
			It("should answer with the status envelope and the reconciled data", func() {
				ord := &orderdm.Order{
					ID:            1001,
					OrderNumber:   "ORD-1001",
					TotalAmount:   500000,
					Currency:      "NGN",
					PaymentStatus: orderdm.PaymentStatusPending,
					Status:        orderdm.StatusPending,
				}
				orders.add(ord)
				gateway.outcomes["ref-1"] = &paymentPkg.Outcome{
					Status: paymentPkg.OutcomeSuccess,
					Amount: 500000,
				}

				rec := post("/payments/reconcile",
					`{"action": "reconcile_single", "reference": "ref-1", "order_number": "ORD-1001"}`,
					handler.Reconcile)

				Expect(rec.Code).To(Equal(http.StatusOK))
				resp := decode(rec)
				Expect(resp["status"]).To(Equal(true))

				data, ok := resp["data"].(map[string]interface{})
				Expect(ok).To(BeTrue())
				Expect(data["reference"]).To(Equal("ref-1"))
				Expect(data["reconciled"]).To(Equal(true))
				Expect(data["transaction_status"]).To(Equal(paymentdm.StatusSuccess))
				Expect(data["order_number"]).To(Equal("ORD-1001"))
				Expect(data["order_id"]).To(BeNumerically("==", 1001))
			})
		})

		Context("when the gateway is down", func() {
			It("should answer with the error envelope", func() {
				gateway.errs["ref-1"] = fmt.Errorf("connection refused")

				rec := post("/payments/reconcile",
					`{"action": "reconcile_single", "reference": "ref-1"}`, handler.Reconcile)

				Expect(rec.Code).To(Equal(http.StatusBadGateway))
				resp := decode(rec)
				Expect(resp["status"]).To(Equal(false))
				Expect(resp["error"]).To(Equal("payment gateway is unavailable"))
			})
		})
	})

	Describe("POST /payments/verify", func() {
		Context("when the payment succeeded", func() {
			It("should include the customer email in the result", func() {
				ord := &orderdm.Order{
					ID:            7,
					OrderNumber:   "ORD-007",
					TotalAmount:   500000,
					Currency:      "NGN",
					PaymentStatus: orderdm.PaymentStatusPending,
					Status:        orderdm.StatusPending,
				}
				orders.add(ord)
				gateway.outcomes["ref-1"] = &paymentPkg.Outcome{
					Status:        paymentPkg.OutcomeSuccess,
					Amount:        500000,
					CustomerEmail: "shopper@example.com",
				}

				rec := post("/payments/verify",
					`{"reference": "ref-1", "order_id": 7}`, handler.VerifyPayment)

				Expect(rec.Code).To(Equal(http.StatusOK))
				resp := decode(rec)
				Expect(resp["success"]).To(Equal(true))
				Expect(resp["customer_email"]).To(Equal("shopper@example.com"))
				Expect(resp).ToNot(HaveKey("error"))
			})
		})

		Context("when the payment failed", func() {
			It("should answer 400 with the failure reason", func() {
				gateway.outcomes["ref-1"] = &paymentPkg.Outcome{
					Status: paymentPkg.OutcomeFailed,
					Amount: 500000,
				}

				rec := post("/payments/verify", `{"reference": "ref-1"}`, handler.VerifyPayment)

				Expect(rec.Code).To(Equal(http.StatusBadRequest))
				resp := decode(rec)
				Expect(resp["success"]).To(Equal(false))
				Expect(resp["error"]).To(Equal("payment was not successful"))
			})
		})

		Context("when the reference is missing", func() {
			It("should fail validation", func() {
				rec := post("/payments/verify", `{}`, handler.VerifyPayment)

				Expect(rec.Code).To(Equal(http.StatusBadRequest))
			})
		})
	})
})
