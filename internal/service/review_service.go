package service

import (
	"context"
	"errors"

	"github.com/reviewstore/services/reviews/internal/db"
	"github.com/reviewstore/services/reviews/internal/events"
	"github.com/reviewstore/services/reviews/internal/metrics"
	"github.com/reviewstore/services/reviews/internal/repo"
	"github.com/reviewstore/services/reviews/internal/serializer"
	"go.uber.org/zap"
)

// EventPublisher publishes domain events
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// ReviewService is the entry point for callers that build responses from
// customers, items and reviews
type ReviewService struct {
	repo       *repo.ReviewRepository
	serializer *serializer.Serializer
	publisher  EventPublisher
	metrics    *metrics.Exporter
	log        *zap.Logger
}

// NewReviewService creates a new review service
func NewReviewService(repository *repo.ReviewRepository, ser *serializer.Serializer, publisher EventPublisher, exporter *metrics.Exporter, log *zap.Logger) *ReviewService {
	return &ReviewService{
		repo:       repository,
		serializer: ser,
		publisher:  publisher,
		metrics:    exporter,
		log:        log,
	}
}

// CreateCustomer stores a new customer and announces it
func (s *ReviewService) CreateCustomer(ctx context.Context, name string) (*db.Customer, error) {
	customer := db.NewCustomer(name)
	if err := s.repo.CreateCustomer(ctx, customer); err != nil {
		return nil, err
	}

	s.publishRecord(ctx, events.EventTypeCustomerCreated, customer)
	return customer, nil
}

// CreateItem stores a new item and announces it
func (s *ReviewService) CreateItem(ctx context.Context, name string, price float64) (*db.Item, error) {
	item := db.NewItem(name, price)
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, err
	}

	s.publishRecord(ctx, events.EventTypeItemCreated, item)
	return item, nil
}

// CreateReview stores a review for existing customer and item
func (s *ReviewService) CreateReview(ctx context.Context, customerID, itemID uint, comment string) (*db.Review, error) {
	review := &db.Review{Comment: comment, CustomerID: customerID, ItemID: itemID}
	if err := s.repo.CreateReview(ctx, review); err != nil {
		return nil, err
	}
	return s.announceReview(ctx, review), nil
}

// AddItemToCustomer adds item to the customer's items, creating one review
func (s *ReviewService) AddItemToCustomer(ctx context.Context, customerID, itemID uint) (*db.Review, error) {
	review, err := s.repo.AddItemToCustomer(ctx, customerID, itemID, "")
	if err != nil {
		return nil, err
	}
	return s.announceReview(ctx, review), nil
}

// CustomerItems returns the items reachable through the customer's reviews
func (s *ReviewService) CustomerItems(ctx context.Context, customerID uint) ([]*db.Item, error) {
	return s.repo.CustomerItems(ctx, customerID)
}

// DeleteCustomer removes a customer without reviews
func (s *ReviewService) DeleteCustomer(ctx context.Context, id uint) error {
	return s.repo.DeleteCustomer(ctx, id)
}

// DeleteItem removes an item without reviews
func (s *ReviewService) DeleteItem(ctx context.Context, id uint) error {
	return s.repo.DeleteItem(ctx, id)
}

// DeleteReview removes a review and announces it
func (s *ReviewService) DeleteReview(ctx context.Context, id uint) error {
	if err := s.repo.DeleteReview(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, events.EventTypeReviewDeleted, map[string]interface{}{"id": id})
	return nil
}

// SerializeCustomer returns the customer with its reviews and their items
func (s *ReviewService) SerializeCustomer(ctx context.Context, id uint, rules ...string) (map[string]any, error) {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.serialize(customer, rules...)
}

// SerializeItem returns the item with its reviews and their customers
func (s *ReviewService) SerializeItem(ctx context.Context, id uint, rules ...string) (map[string]any, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.serialize(item, rules...)
}

// SerializeReview returns the review with its customer and item
func (s *ReviewService) SerializeReview(ctx context.Context, id uint, rules ...string) (map[string]any, error) {
	review, err := s.repo.GetReview(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.serialize(review, rules...)
}

// RefreshStats updates the entity gauges
func (s *ReviewService) RefreshStats(ctx context.Context) error {
	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		return err
	}
	s.metrics.UpdateStats(stats)
	return nil
}

// SeedDemo inserts a small data set when the database has no customers
func (s *ReviewService) SeedDemo(ctx context.Context) error {
	existing, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		s.log.Info("Seed skipped, customers already present", zap.Int("customers", len(existing)))
		return nil
	}

	ana, err := s.CreateCustomer(ctx, "Ana")
	if err != nil {
		return err
	}
	mug, err := s.CreateItem(ctx, "Mug", 9.99)
	if err != nil {
		return err
	}
	review, err := s.CreateReview(ctx, ana.ID, mug.ID, "Great")
	if err != nil {
		return err
	}

	s.log.Info("Demo data seeded", zap.Stringer("review", review))
	return nil
}

// announceReview reloads the committed review with its customer and item and
// publishes it. A failed reload is logged and the created review is returned as is.
func (s *ReviewService) announceReview(ctx context.Context, created *db.Review) *db.Review {
	review, err := s.repo.GetReview(ctx, created.ID)
	if err != nil {
		s.log.Warn("Failed to reload created review",
			zap.Uint("review_id", created.ID),
			zap.Error(err),
		)
		review = created
	}

	s.publishRecord(ctx, events.EventTypeReviewCreated, review)
	return review
}

func (s *ReviewService) serialize(rec serializer.Record, rules ...string) (map[string]any, error) {
	out, err := s.serializer.Serialize(rec, rules...)
	s.metrics.RecordSerialization(rec.Kind(), err)
	if err != nil {
		s.log.Error("Failed to serialize record",
			zap.String("kind", string(rec.Kind())),
			zap.Any("id", rec.Identity()),
			zap.Error(err),
		)
		return nil, err
	}
	return out, nil
}

// publishRecord publishes the serialized record; failures are logged only
func (s *ReviewService) publishRecord(ctx context.Context, eventType string, rec serializer.Record) {
	payload, err := s.serialize(rec)
	if err != nil {
		s.metrics.RecordEvent(eventType, err)
		return
	}
	s.publish(ctx, eventType, payload)
}

func (s *ReviewService) publish(ctx context.Context, eventType string, payload map[string]interface{}) {
	err := s.publisher.Publish(ctx, events.NewEvent(ctx, eventType, payload))
	s.metrics.RecordEvent(eventType, err)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error("Failed to publish event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
