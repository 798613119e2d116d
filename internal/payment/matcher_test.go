package payment_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	orderdm "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/order"
	paymentPkg "github.com/frahmantamala/payment-reconciliation/internal/payment"
	"github.com/frahmantamala/payment-reconciliation/pkg/logger"
)

type mockOrderRepository struct {
	byID        map[int64]*orderdm.Order
	byNumber    map[string]*orderdm.Order
	byReference map[string]*orderdm.Order
	byAmount    *orderdm.Order
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{
		byID:        make(map[int64]*orderdm.Order),
		byNumber:    make(map[string]*orderdm.Order),
		byReference: make(map[string]*orderdm.Order),
	}
}

func (m *mockOrderRepository) add(ord *orderdm.Order) {
	m.byID[ord.ID] = ord
	m.byNumber[ord.OrderNumber] = ord
	if ord.PaymentReference != nil {
		m.byReference[*ord.PaymentReference] = ord
	}
}

func (m *mockOrderRepository) GetByID(_ context.Context, id int64) (*orderdm.Order, error) {
	if ord, ok := m.byID[id]; ok {
		return ord, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockOrderRepository) GetByOrderNumber(_ context.Context, number string) (*orderdm.Order, error) {
	if ord, ok := m.byNumber[number]; ok {
		return ord, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockOrderRepository) GetByPaymentReference(_ context.Context, reference string) (*orderdm.Order, error) {
	if ord, ok := m.byReference[reference]; ok {
		return ord, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockOrderRepository) FindPendingByAmount(_ context.Context, amount, tolerance int64, _ time.Time) (*orderdm.Order, error) {
	if m.byAmount == nil {
		return nil, gorm.ErrRecordNotFound
	}
	diff := m.byAmount.TotalAmount - amount
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		return nil, gorm.ErrRecordNotFound
	}
	return m.byAmount, nil
}

var _ = Describe("Matcher", func() {
	var (
		orders  *mockOrderRepository
		matcher *paymentPkg.Matcher
	)

	BeforeEach(func() {
		orders = newMockOrderRepository()
		matcher = paymentPkg.NewMatcher(orders, logger.LoggerWrapper())
	})

	Context("when an order id hint is present", func() {
		It("should win over every other strategy", func() {
			byID := pendingOrder(1, 500000)
			byNumber := pendingOrder(2, 500000)
			byNumber.OrderNumber = "ORD-002"
			orders.add(byID)
			orders.add(byNumber)

			id := int64(1)
			res, err := matcher.Match(context.Background(), "ref-1", 500000, paymentPkg.MatchHints{
				OrderID:     &id,
				OrderNumber: "ORD-002",
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(res.Order.ID).To(Equal(int64(1)))
			Expect(res.Strategy).To(Equal(paymentPkg.StrategyOrderID))
		})

		It("should fall through when the hinted order does not exist", func() {
			byNumber := pendingOrder(2, 500000)
			byNumber.OrderNumber = "ORD-002"
			orders.add(byNumber)

			missing := int64(99)
			res, err := matcher.Match(context.Background(), "ref-1", 500000, paymentPkg.MatchHints{
				OrderID:     &missing,
				OrderNumber: "ORD-002",
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(res.Order.ID).To(Equal(int64(2)))
			Expect(res.Strategy).To(Equal(paymentPkg.StrategyOrderNumber))
		})
	})

	Context("when both the payment reference and the amount heuristic match", func() {
		It("should prefer the exact reference match", func() {
			byReference := pendingOrder(3, 500000)
			ref := "ref-3"
			byReference.PaymentReference = &ref
			orders.add(byReference)

			byAmount := pendingOrder(4, 500000)
			byAmount.OrderNumber = "ORD-004"
			orders.byAmount = byAmount

			res, err := matcher.Match(context.Background(), "ref-3", 500000, paymentPkg.MatchHints{})

			Expect(err).ToNot(HaveOccurred())
			Expect(res.Order.ID).To(Equal(int64(3)))
			Expect(res.Strategy).To(Equal(paymentPkg.StrategyPaymentReference))
		})
	})

	Context("when only the payment reference matches", func() {
		It("should match by reference", func() {
			ord := pendingOrder(3, 500000)
			ref := "ref-3"
			ord.PaymentReference = &ref
			orders.add(ord)

			res, err := matcher.Match(context.Background(), "ref-3", 500000, paymentPkg.MatchHints{})

			Expect(err).ToNot(HaveOccurred())
			Expect(res.Order.ID).To(Equal(int64(3)))
			Expect(res.Strategy).To(Equal(paymentPkg.StrategyPaymentReference))
		})
	})

	Context("when only the amount heuristic can match", func() {
		It("should match a pending order within tolerance", func() {
			ord := pendingOrder(4, 500001)
			orders.byAmount = ord

			res, err := matcher.Match(context.Background(), "ref-4", 500000, paymentPkg.MatchHints{})

			Expect(err).ToNot(HaveOccurred())
			Expect(res.Order.ID).To(Equal(int64(4)))
			Expect(res.Strategy).To(Equal(paymentPkg.StrategyAmountHeuristic))
		})

		It("should not match an order outside tolerance", func() {
			ord := pendingOrder(4, 510000)
			orders.byAmount = ord

			res, err := matcher.Match(context.Background(), "ref-4", 500000, paymentPkg.MatchHints{})

			Expect(err).ToNot(HaveOccurred())
			Expect(res.Orphaned).To(BeTrue())
		})
	})

	Context("when nothing matches", func() {
		It("should report an orphan, not an error", func() {
			res, err := matcher.Match(context.Background(), "ref-unknown", 123456, paymentPkg.MatchHints{})

			Expect(err).ToNot(HaveOccurred())
			Expect(res.Orphaned).To(BeTrue())
			Expect(res.Order).To(BeNil())
		})
	})
})
