package saga

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/sumitak/ms-kafka-saga-dp/internal/history"
	"github.com/sumitak/ms-kafka-saga-dp/internal/messaging"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/config"
	"go.uber.org/zap"
)

type memHistory struct {
	mu      sync.Mutex
	entries map[uuid.UUID][]history.Status
}

func newMemHistory() *memHistory {
	return &memHistory{entries: make(map[uuid.UUID][]history.Status)}
}

func (m *memHistory) Add(_ context.Context, orderID uuid.UUID, status history.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.entries[orderID] {
		if s == status {
			return nil
		}
	}
	m.entries[orderID] = append(m.entries[orderID], status)
	return nil
}

func (m *memHistory) Contains(_ context.Context, orderID uuid.UUID, status history.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.entries[orderID] {
		if s == status {
			return true, nil
		}
	}
	return false, nil
}

func (m *memHistory) ForOrder(_ context.Context, orderID uuid.UUID) ([]history.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]history.Entry, 0, len(m.entries[orderID]))
	for _, s := range m.entries[orderID] {
		out = append(out, history.Entry{OrderID: orderID, Status: s})
	}
	return out, nil
}

type published struct {
	Topic   string
	Key     string
	MsgType string
	Payload any
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, topic, key, msgType string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{Topic: topic, Key: key, MsgType: msgType, Payload: payload})
	return nil
}

func (f *fakePublisher) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.sent))
	for _, p := range f.sent {
		out = append(out, p.MsgType)
	}
	return out
}

var testTopics = config.Topics{
	OrdersEvents:     "orders.events",
	OrdersCommands:   "orders.commands",
	ProductsEvents:   "products.events",
	ProductsCommands: "products.commands",
	PaymentsEvents:   "payments.events",
	PaymentsCommands: "payments.commands",
	DeadLetter:       "saga.dead-letter",
}

type fixture struct {
	coordinator *Coordinator
	publisher   *fakePublisher
	history     *memHistory
	orderID     uuid.UUID
	productID   uuid.UUID
}

func newFixture() *fixture {
	pub := &fakePublisher{}
	hist := newMemHistory()

	return &fixture{
		coordinator: NewCoordinator(pub, hist, testTopics, zap.NewNop()),
		publisher:   pub,
		history:     hist,
		orderID:     uuid.New(),
		productID:   uuid.New(),
	}
}

func envelope(t *testing.T, event string, payload any) *messaging.Envelope {
	t.Helper()

	raw, err := messaging.Encode(event, payload)
	require.NoError(t, err)

	env, err := messaging.Decode(raw)
	require.NoError(t, err)

	return env
}

func (f *fixture) orderCreated(t *testing.T) *messaging.Envelope {
	return envelope(t, messaging.EventOrderCreated, messaging.OrderCreatedEvent{
		OrderID:         f.orderID,
		CustomerID:      uuid.New(),
		ProductID:       f.productID,
		ProductQuantity: 2,
	})
}

func (f *fixture) productReserved(t *testing.T) *messaging.Envelope {
	return envelope(t, messaging.EventProductReserved, messaging.ProductReservedEvent{
		OrderID:         f.orderID,
		ProductID:       f.productID,
		ProductPrice:    1000,
		ProductQuantity: 2,
	})
}

func (f *fixture) paymentProcessed(t *testing.T) *messaging.Envelope {
	return envelope(t, messaging.EventPaymentProcessed, messaging.PaymentProcessedEvent{
		OrderID:   f.orderID,
		PaymentID: uuid.New(),
	})
}

func (f *fixture) paymentFailed(t *testing.T) *messaging.Envelope {
	return envelope(t, messaging.EventPaymentFailed, messaging.PaymentFailedEvent{
		OrderID:         f.orderID,
		ProductID:       f.productID,
		ProductQuantity: 2,
	})
}

func (f *fixture) reservationCancelled(t *testing.T) *messaging.Envelope {
	return envelope(t, messaging.EventProductReservationCancelled, messaging.ProductReservationCancelledEvent{
		ProductID: f.productID,
		OrderID:   f.orderID,
	})
}

func (f *fixture) orderApproved(t *testing.T) *messaging.Envelope {
	return envelope(t, messaging.EventOrderApproved, messaging.OrderApprovedEvent{OrderID: f.orderID})
}

func (f *fixture) statuses(t *testing.T) []history.Status {
	entries, err := f.history.ForOrder(context.Background(), f.orderID)
	require.NoError(t, err)

	out := make([]history.Status, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Status)
	}
	return out
}

func TestHappyPath(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, env := range []*messaging.Envelope{
		f.orderCreated(t),
		f.productReserved(t),
		f.paymentProcessed(t),
		f.orderApproved(t),
	} {
		require.NoError(t, f.coordinator.Handle(ctx, env))
	}

	require.Equal(t, []string{
		messaging.CommandReserveProduct,
		messaging.CommandProcessPayment,
		messaging.CommandApproveOrder,
	}, f.publisher.commands())

	require.Equal(t, []history.Status{
		history.StatusCreated,
		history.StatusProductReserved,
		history.StatusPaymentProcessed,
		history.StatusApproved,
	}, f.statuses(t))

	// every command is keyed by the order id
	for _, p := range f.publisher.sent {
		require.Equal(t, f.orderID.String(), p.Key)
	}
}

func TestReservationFailureRejectsWithoutCompensation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.coordinator.Handle(ctx, f.orderCreated(t)))
	require.NoError(t, f.coordinator.Handle(ctx, envelope(t, messaging.EventProductReservationFailed,
		messaging.ProductReservationFailedEvent{
			ProductID:       f.productID,
			OrderID:         f.orderID,
			ProductQuantity: 2,
		})))

	require.Equal(t, []string{
		messaging.CommandReserveProduct,
		messaging.CommandRejectOrder,
	}, f.publisher.commands())
	require.NotContains(t, f.publisher.commands(), messaging.CommandCancelProductReservation)

	require.Equal(t, []history.Status{
		history.StatusCreated,
		history.StatusRejected,
	}, f.statuses(t))
}

func TestPaymentFailureRunsCompensation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, env := range []*messaging.Envelope{
		f.orderCreated(t),
		f.productReserved(t),
		f.paymentFailed(t),
		f.reservationCancelled(t),
	} {
		require.NoError(t, f.coordinator.Handle(ctx, env))
	}

	require.Equal(t, []string{
		messaging.CommandReserveProduct,
		messaging.CommandProcessPayment,
		messaging.CommandCancelProductReservation,
		messaging.CommandRejectOrder,
	}, f.publisher.commands())

	require.Equal(t, []history.Status{
		history.StatusCreated,
		history.StatusProductReserved,
		history.StatusCompensating,
		history.StatusRejected,
	}, f.statuses(t))
	require.NotContains(t, f.statuses(t), history.StatusApproved)
}

func TestRedeliveryEmitsNothingNew(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	steps := []*messaging.Envelope{
		f.orderCreated(t),
		f.productReserved(t),
		f.paymentProcessed(t),
		f.orderApproved(t),
	}

	for _, env := range steps {
		require.NoError(t, f.coordinator.Handle(ctx, env))

		commandsBefore := len(f.publisher.commands())
		historyBefore := len(f.statuses(t))

		for i := 0; i < 3; i++ {
			require.NoError(t, f.coordinator.Handle(ctx, env))
		}

		require.Len(t, f.publisher.commands(), commandsBefore)
		require.Len(t, f.statuses(t), historyBefore)
	}
}

func TestRedeliveredPaymentFailedEmitsOneCancel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.coordinator.Handle(ctx, f.orderCreated(t)))
	require.NoError(t, f.coordinator.Handle(ctx, f.productReserved(t)))

	failed := f.paymentFailed(t)
	for i := 0; i < 4; i++ {
		require.NoError(t, f.coordinator.Handle(ctx, failed))
	}

	cancels := 0
	for _, cmd := range f.publisher.commands() {
		if cmd == messaging.CommandCancelProductReservation {
			cancels++
		}
	}
	require.Equal(t, 1, cancels)
}

func TestEventAfterTerminalStateIsDropped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, env := range []*messaging.Envelope{
		f.orderCreated(t),
		f.productReserved(t),
		f.paymentProcessed(t),
		f.orderApproved(t),
	} {
		require.NoError(t, f.coordinator.Handle(ctx, env))
	}

	commandsBefore := len(f.publisher.commands())

	// a stray failure after approval must not trigger compensation
	require.NoError(t, f.coordinator.Handle(ctx, f.paymentFailed(t)))

	require.Len(t, f.publisher.commands(), commandsBefore)
	require.NotContains(t, f.statuses(t), history.StatusCompensating)
	require.NotContains(t, f.statuses(t), history.StatusRejected)
}

func TestOutOfOrderEventIsDropped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// ProductReserved without a preceding OrderCreated
	require.NoError(t, f.coordinator.Handle(ctx, f.productReserved(t)))

	require.Empty(t, f.publisher.commands())
	require.Empty(t, f.statuses(t))
}

func TestUnknownEventTypeIsIgnored(t *testing.T) {
	f := newFixture()

	env := envelope(t, "SomethingElseEntirely", map[string]any{"order_id": f.orderID})
	require.NoError(t, f.coordinator.Handle(context.Background(), env))
	require.Empty(t, f.publisher.commands())
}

func TestMalformedPayloadIsPermanent(t *testing.T) {
	f := newFixture()

	env, err := messaging.Decode([]byte(`{"event":"OrderCreated","payload":{"order_id":42}}`))
	require.NoError(t, err)

	err = f.coordinator.Handle(context.Background(), env)
	require.ErrorIs(t, err, messaging.ErrMalformed)
}

func TestPublisherFailureIsRetriable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.publisher.err = errors.New("broker unreachable")
	err := f.coordinator.Handle(ctx, f.orderCreated(t))
	require.Error(t, err)

	// nothing recorded, so the redelivered event replays cleanly
	require.Empty(t, f.statuses(t))

	f.publisher.err = nil
	require.NoError(t, f.coordinator.Handle(ctx, f.orderCreated(t)))

	require.Equal(t, []string{messaging.CommandReserveProduct}, f.publisher.commands())
	require.Equal(t, []history.Status{history.StatusCreated}, f.statuses(t))
}

func TestExactlyOneTerminalState(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, env := range []*messaging.Envelope{
		f.orderCreated(t),
		f.productReserved(t),
		f.paymentFailed(t),
		f.reservationCancelled(t),
	} {
		require.NoError(t, f.coordinator.Handle(ctx, env))
	}

	// late approval events must not flip the terminal state
	require.NoError(t, f.coordinator.Handle(ctx, f.orderApproved(t)))

	statuses := f.statuses(t)
	require.Contains(t, statuses, history.StatusRejected)
	require.NotContains(t, statuses, history.StatusApproved)
}
