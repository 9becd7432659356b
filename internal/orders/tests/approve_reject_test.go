package tests

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sumitak/ms-kafka-saga-dp/internal/messaging"
	"github.com/sumitak/ms-kafka-saga-dp/internal/orders/domain"
	"github.com/sumitak/ms-kafka-saga-dp/internal/orders/repository"
	outboxUtils "github.com/sumitak/ms-kafka-saga-dp/pkg/outbox/utils"
	"go.uber.org/zap"
)

func (s *IntegrationTestSuite) inTx(fn func(tx pgx.Tx) error) error {
	tx, err := s.DbPool.Begin(s.Ctx)
	s.Require().NoError(err)
	defer func() { _ = tx.Rollback(s.Ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(s.Ctx)
}

func (s *IntegrationTestSuite) TestApprove_SetsStatusAndEmitsOrderApproved() {
	order := s.placeOrder()

	err := s.inTx(func(tx pgx.Tx) error {
		return s.OrderService.Approve(s.Ctx, tx, order.ID)
	})
	s.Require().NoError(err)

	got, _, err := s.OrderService.Status(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusApproved, got.Status)

	var count int
	err = s.DbPool.QueryRow(
		s.Ctx,
		`SELECT COUNT(*) FROM outbox WHERE aggregate_id = $1 AND event_type = $2`,
		order.ID.String(),
		messaging.EventOrderApproved,
	).Scan(&count)
	s.Require().NoError(err)
	s.Require().Equal(1, count)
}

func (s *IntegrationTestSuite) TestReject_SetsStatusWithoutEvent() {
	order := s.placeOrder()

	err := s.inTx(func(tx pgx.Tx) error {
		return s.OrderService.Reject(s.Ctx, tx, order.ID)
	})
	s.Require().NoError(err)

	got, _, err := s.OrderService.Status(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusRejected, got.Status)

	var count int
	err = s.DbPool.QueryRow(
		s.Ctx,
		`SELECT COUNT(*) FROM outbox WHERE aggregate_id = $1 AND event_type = $2`,
		order.ID.String(),
		messaging.EventOrderApproved,
	).Scan(&count)
	s.Require().NoError(err)
	s.Require().Equal(0, count)
}

func (s *IntegrationTestSuite) TestApprove_UnknownOrderFails() {
	err := s.inTx(func(tx pgx.Tx) error {
		return s.OrderService.Approve(s.Ctx, tx, uuid.New())
	})
	s.Require().ErrorIs(err, repository.ErrOrderNotFound)
}

func (s *IntegrationTestSuite) TestApprove_DeduplicatedAcrossRedelivery() {
	order := s.placeOrder()
	key := fmt.Sprintf("%s:%s", messaging.CommandApproveOrder, order.ID)

	approve := func() error {
		return outboxUtils.ProcessWithDeduplication(s.Ctx, s.DbPool, zap.NewNop(), key, func(tx pgx.Tx) error {
			return s.OrderService.Approve(s.Ctx, tx, order.ID)
		})
	}

	s.Require().NoError(approve())
	// second delivery is absorbed without re-running the action
	s.Require().NoError(approve())

	var count int
	err := s.DbPool.QueryRow(
		s.Ctx,
		`SELECT COUNT(*) FROM outbox WHERE aggregate_id = $1 AND event_type = $2`,
		order.ID.String(),
		messaging.EventOrderApproved,
	).Scan(&count)
	s.Require().NoError(err)
	s.Require().Equal(1, count)
}

func (s *IntegrationTestSuite) TestHistory_DuplicateStatusRecordedOnce() {
	orderID := uuid.New()

	s.Require().NoError(s.HistoryStore.Add(s.Ctx, orderID, "CREATED"))
	s.Require().NoError(s.HistoryStore.Add(s.Ctx, orderID, "CREATED"))
	s.Require().NoError(s.HistoryStore.Add(s.Ctx, orderID, "PRODUCT_RESERVED"))

	entries, err := s.HistoryStore.ForOrder(s.Ctx, orderID)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)

	contains, err := s.HistoryStore.Contains(s.Ctx, orderID, "PRODUCT_RESERVED")
	s.Require().NoError(err)
	s.Require().True(contains)

	contains, err = s.HistoryStore.Contains(s.Ctx, orderID, "APPROVED")
	s.Require().NoError(err)
	s.Require().False(contains)
}
