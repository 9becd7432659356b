package tests

import (
	"github.com/google/uuid"
	"github.com/sumitak/ms-kafka-saga-dp/internal/messaging"
	"github.com/sumitak/ms-kafka-saga-dp/internal/payments/domain"
)

func (s *IntegrationTestSuite) processPayment(orderID uuid.UUID) error {
	cmd := &messaging.ProcessPaymentCommand{
		OrderID:         orderID,
		ProductID:       uuid.New(),
		ProductPrice:    5350,
		ProductQuantity: 2,
	}

	return s.PaymentService.ProcessPayment(s.Ctx, cmd)
}

func (s *IntegrationTestSuite) stagedEvents(orderID uuid.UUID) []string {
	rows, err := s.DbPool.Query(
		s.Ctx,
		`SELECT event_type FROM outbox WHERE aggregate_id = $1 ORDER BY id`,
		orderID.String(),
	)
	s.Require().NoError(err)
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		s.Require().NoError(rows.Scan(&t))
		types = append(types, t)
	}

	return types
}

func (s *IntegrationTestSuite) TestProcessPayment_SuccessRecordsAndStagesProcessed() {
	orderID := uuid.New()

	s.Require().NoError(s.processPayment(orderID))

	payment, err := s.PaymentRepo.GetByOrderID(s.Ctx, orderID)
	s.Require().NoError(err)
	s.Require().NotNil(payment)
	s.Require().Equal(domain.PaymentSucceeded, payment.Status)
	s.Require().EqualValues(10700, payment.Amount)
	s.Require().Equal("txn-1", payment.TransactionID)

	s.Require().Equal([]string{messaging.EventPaymentProcessed}, s.stagedEvents(orderID))
}

func (s *IntegrationTestSuite) TestProcessPayment_DeclineRecordsFailure() {
	s.declineGateway()
	orderID := uuid.New()

	s.Require().NoError(s.processPayment(orderID))

	payment, err := s.PaymentRepo.GetByOrderID(s.Ctx, orderID)
	s.Require().NoError(err)
	s.Require().NotNil(payment)
	s.Require().Equal(domain.PaymentFailed, payment.Status)

	s.Require().Equal([]string{messaging.EventPaymentFailed}, s.stagedEvents(orderID))
}

func (s *IntegrationTestSuite) TestProcessPayment_UnavailableProcessorRecordsFailure() {
	s.unavailableGateway()
	orderID := uuid.New()

	s.Require().NoError(s.processPayment(orderID))

	payment, err := s.PaymentRepo.GetByOrderID(s.Ctx, orderID)
	s.Require().NoError(err)
	s.Require().NotNil(payment)
	s.Require().Equal(domain.PaymentFailed, payment.Status)

	s.Require().Equal([]string{messaging.EventPaymentFailed}, s.stagedEvents(orderID))
}

func (s *IntegrationTestSuite) TestProcessPayment_RedeliveryChargesOnce() {
	orderID := uuid.New()

	s.Require().NoError(s.processPayment(orderID))
	s.Require().NoError(s.processPayment(orderID))
	s.Require().NoError(s.processPayment(orderID))

	s.Require().Equal(1, s.Gateway.calls)
	s.Require().Equal([]string{messaging.EventPaymentProcessed}, s.stagedEvents(orderID))
}

func (s *IntegrationTestSuite) TestProcessPayment_FailedOutcomeIsFinal() {
	s.declineGateway()
	orderID := uuid.New()

	s.Require().NoError(s.processPayment(orderID))

	// even if the card would now be accepted, the recorded outcome stands
	s.Gateway.err = nil
	s.Require().NoError(s.processPayment(orderID))

	payment, err := s.PaymentRepo.GetByOrderID(s.Ctx, orderID)
	s.Require().NoError(err)
	s.Require().Equal(domain.PaymentFailed, payment.Status)
	s.Require().Equal([]string{messaging.EventPaymentFailed}, s.stagedEvents(orderID))
}
