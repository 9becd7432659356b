package tests

import (
	"time"

	"github.com/sumitak/ms-kafka-saga-dp/internal/messaging"
)

func (s *IntegrationTestSuite) TestPlaceOrder_StagesOrderCreated() {
	order := s.placeOrder()

	var eventType string
	var payload []byte
	err := s.DbPool.QueryRow(
		s.Ctx,
		`SELECT event_type, payload FROM outbox WHERE aggregate_id = $1`,
		order.ID.String(),
	).Scan(&eventType, &payload)
	s.Require().NoError(err)
	s.Require().Equal(messaging.EventOrderCreated, eventType)

	env, err := messaging.Decode(payload)
	s.Require().NoError(err)

	var event messaging.OrderCreatedEvent
	s.Require().NoError(env.Unmarshal(&event))
	s.Require().Equal(order.ID, event.OrderID)
	s.Require().Equal(order.Quantity, event.ProductQuantity)
}

func (s *IntegrationTestSuite) TestPlaceOrder_OutboxWorkerPublishes() {
	order := s.placeOrder()

	s.Require().Eventually(func() bool {
		var publishedAt *time.Time

		err := s.DbPool.QueryRow(
			s.Ctx,
			`SELECT published_at FROM outbox WHERE aggregate_id = $1`,
			order.ID.String(),
		).Scan(&publishedAt)

		return err == nil && publishedAt != nil
	}, 5*time.Second, 100*time.Millisecond)
}
