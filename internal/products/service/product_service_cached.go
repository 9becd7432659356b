package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sumitak/ms-kafka-saga-dp/internal/messaging"
	"github.com/sumitak/ms-kafka-saga-dp/internal/products/domain"
)

// cachedProductService is a read-through cache in front of ProductService.
// Stock mutations invalidate the cached product so reads never serve a
// stale quantity for longer than one round trip.
type cachedProductService struct {
	next        ProductService
	redisClient *redis.Client
	cacheTTL    time.Duration
}

func NewCachedProductService(next ProductService, redisClient *redis.Client) ProductService {
	return &cachedProductService{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    time.Minute * 10,
	}
}

func (s *cachedProductService) Create(ctx context.Context, product *domain.Product) error {
	return s.next.Create(ctx, product)
}

func (s *cachedProductService) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	key := productKey(id)

	val, err := s.redisClient.Get(ctx, key).Result()
	if err == nil {
		var product domain.Product
		if err := json.Unmarshal([]byte(val), &product); err == nil {
			return &product, nil
		}
	}

	product, err := s.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(product); err == nil {
		s.redisClient.Set(ctx, key, data, s.cacheTTL)
	}

	return product, nil
}

func (s *cachedProductService) ReserveProduct(ctx context.Context, cmd *messaging.ReserveProductCommand) error {
	if err := s.next.ReserveProduct(ctx, cmd); err != nil {
		return err
	}

	s.redisClient.Del(ctx, productKey(cmd.ProductID))
	return nil
}

func (s *cachedProductService) CancelReservation(ctx context.Context, cmd *messaging.CancelProductReservationCommand) error {
	if err := s.next.CancelReservation(ctx, cmd); err != nil {
		return err
	}

	s.redisClient.Del(ctx, productKey(cmd.ProductID))
	return nil
}

func productKey(id uuid.UUID) string {
	return fmt.Sprintf("product:%s", id)
}
