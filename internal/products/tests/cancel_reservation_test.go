package tests

import (
	"github.com/google/uuid"
	"github.com/sumitak/ms-kafka-saga-dp/internal/messaging"
	"github.com/sumitak/ms-kafka-saga-dp/internal/products/repository"
)

func (s *IntegrationTestSuite) TestCancel_RestoresStockAndStagesCancelled() {
	product := s.seedProduct(5350, 10)
	orderID := uuid.New()

	reserve := &messaging.ReserveProductCommand{
		ProductID:       product.ID,
		OrderID:         orderID,
		ProductQuantity: 4,
	}
	s.Require().NoError(s.ProductService.ReserveProduct(s.Ctx, reserve))
	s.Require().EqualValues(6, s.stockOf(product.ID))

	cancel := &messaging.CancelProductReservationCommand{
		ProductID:       product.ID,
		OrderID:         orderID,
		ProductQuantity: 4,
	}
	s.Require().NoError(s.ProductService.CancelReservation(s.Ctx, cancel))

	s.Require().EqualValues(10, s.stockOf(product.ID))
	s.Require().Equal(
		[]string{messaging.EventProductReserved, messaging.EventProductReservationCancelled},
		s.outboxEvents(orderID),
	)
}

func (s *IntegrationTestSuite) TestCancel_RedeliveryRestoresOnce() {
	product := s.seedProduct(5350, 10)
	orderID := uuid.New()

	reserve := &messaging.ReserveProductCommand{
		ProductID:       product.ID,
		OrderID:         orderID,
		ProductQuantity: 4,
	}
	s.Require().NoError(s.ProductService.ReserveProduct(s.Ctx, reserve))

	cancel := &messaging.CancelProductReservationCommand{
		ProductID:       product.ID,
		OrderID:         orderID,
		ProductQuantity: 4,
	}
	s.Require().NoError(s.ProductService.CancelReservation(s.Ctx, cancel))
	s.Require().NoError(s.ProductService.CancelReservation(s.Ctx, cancel))
	s.Require().NoError(s.ProductService.CancelReservation(s.Ctx, cancel))

	s.Require().EqualValues(10, s.stockOf(product.ID))

	// the cancelled event is staged only for the delivery that flipped the
	// reservation
	s.Require().Equal(
		[]string{messaging.EventProductReserved, messaging.EventProductReservationCancelled},
		s.outboxEvents(orderID),
	)
}

func (s *IntegrationTestSuite) TestCancel_UnknownReservationFails() {
	cancel := &messaging.CancelProductReservationCommand{
		ProductID:       uuid.New(),
		OrderID:         uuid.New(),
		ProductQuantity: 1,
	}

	err := s.ProductService.CancelReservation(s.Ctx, cancel)
	s.Require().ErrorIs(err, repository.ErrReservationNotFound)
}

func (s *IntegrationTestSuite) TestReserveAfterCancel_DoesNotReReserve() {
	product := s.seedProduct(5350, 10)
	orderID := uuid.New()

	reserve := &messaging.ReserveProductCommand{
		ProductID:       product.ID,
		OrderID:         orderID,
		ProductQuantity: 4,
	}
	s.Require().NoError(s.ProductService.ReserveProduct(s.Ctx, reserve))

	cancel := &messaging.CancelProductReservationCommand{
		ProductID:       product.ID,
		OrderID:         orderID,
		ProductQuantity: 4,
	}
	s.Require().NoError(s.ProductService.CancelReservation(s.Ctx, cancel))

	// a late redelivered reserve must not undo the compensation
	s.Require().NoError(s.ProductService.ReserveProduct(s.Ctx, reserve))
	s.Require().EqualValues(10, s.stockOf(product.ID))
}
