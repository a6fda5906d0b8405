package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/reviewstore/services/reviews/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrCustomerNotFound is returned when a customer is not found
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrItemNotFound is returned when an item is not found
	ErrItemNotFound = errors.New("item not found")

	// ErrReviewNotFound is returned when a review is not found
	ErrReviewNotFound = errors.New("review not found")

	// ErrReferentialIntegrity is returned when a review references a missing customer or item
	ErrReferentialIntegrity = errors.New("referential integrity violation")

	// ErrHasDependents is returned when deleting a customer or item that still has reviews
	ErrHasDependents = errors.New("record has dependent reviews")
)

// ReviewRepository persists customers, items and the reviews linking them
type ReviewRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewReviewRepository creates a new review repository
func NewReviewRepository(database *db.DB, logger *zap.Logger) *ReviewRepository {
	return &ReviewRepository{
		db:  database,
		log: logger,
	}
}

// CreateCustomer inserts a customer; its reviews are not touched
func (r *ReviewRepository) CreateCustomer(ctx context.Context, customer *db.Customer) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(customer).Error; err != nil {
		r.log.Error("Failed to create customer", zap.String("name", customer.Name), zap.Error(err))
		return err
	}

	r.log.Info("Customer created", zap.Uint("customer_id", customer.ID))
	return nil
}

// GetCustomer retrieves a customer with its reviews and their items
func (r *ReviewRepository) GetCustomer(ctx context.Context, id uint) (*db.Customer, error) {
	var customer db.Customer
	err := r.db.WithContext(ctx).
		Preload("Reviews", orderByID).
		Preload("Reviews.Item").
		First(&customer, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		r.log.Error("Failed to get customer", zap.Uint("customer_id", id), zap.Error(err))
		return nil, err
	}

	return &customer, nil
}

// ListCustomers returns all customers without their reviews
func (r *ReviewRepository) ListCustomers(ctx context.Context) ([]*db.Customer, error) {
	var customers []*db.Customer
	if err := r.db.WithContext(ctx).Order("id").Find(&customers).Error; err != nil {
		r.log.Error("Failed to list customers", zap.Error(err))
		return nil, err
	}
	return customers, nil
}

// UpdateCustomerName renames a customer
func (r *ReviewRepository) UpdateCustomerName(ctx context.Context, id uint, name string) error {
	result := r.db.WithContext(ctx).Model(&db.Customer{}).Where("id = ?", id).Update("name", name)
	if result.Error != nil {
		r.log.Error("Failed to update customer", zap.Uint("customer_id", id), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCustomerNotFound
	}

	r.log.Info("Customer updated", zap.Uint("customer_id", id))
	return nil
}

// DeleteCustomer removes a customer that has no reviews
func (r *ReviewRepository) DeleteCustomer(ctx context.Context, id uint) error {
	return r.deleteParent(ctx, &db.Customer{}, "customer_id", id, ErrCustomerNotFound)
}

// CreateItem inserts an item; its reviews are not touched
func (r *ReviewRepository) CreateItem(ctx context.Context, item *db.Item) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(item).Error; err != nil {
		r.log.Error("Failed to create item", zap.String("name", item.Name), zap.Error(err))
		return err
	}

	r.log.Info("Item created", zap.Uint("item_id", item.ID))
	return nil
}

// GetItem retrieves an item with its reviews and their customers
func (r *ReviewRepository) GetItem(ctx context.Context, id uint) (*db.Item, error) {
	var item db.Item
	err := r.db.WithContext(ctx).
		Preload("Reviews", orderByID).
		Preload("Reviews.Customer").
		First(&item, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		r.log.Error("Failed to get item", zap.Uint("item_id", id), zap.Error(err))
		return nil, err
	}

	return &item, nil
}

// ListItems returns all items without their reviews
func (r *ReviewRepository) ListItems(ctx context.Context) ([]*db.Item, error) {
	var items []*db.Item
	if err := r.db.WithContext(ctx).Order("id").Find(&items).Error; err != nil {
		r.log.Error("Failed to list items", zap.Error(err))
		return nil, err
	}
	return items, nil
}

// UpdateItem changes the name and price of an item
func (r *ReviewRepository) UpdateItem(ctx context.Context, id uint, name string, price float64) error {
	result := r.db.WithContext(ctx).Model(&db.Item{}).Where("id = ?", id).
		Updates(map[string]interface{}{"name": name, "price": price})
	if result.Error != nil {
		r.log.Error("Failed to update item", zap.Uint("item_id", id), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrItemNotFound
	}

	r.log.Info("Item updated", zap.Uint("item_id", id))
	return nil
}

// DeleteItem removes an item that has no reviews
func (r *ReviewRepository) DeleteItem(ctx context.Context, id uint) error {
	return r.deleteParent(ctx, &db.Item{}, "item_id", id, ErrItemNotFound)
}

// CreateReview inserts a review after checking that its customer and item
// exist. Nothing is written when either is missing.
func (r *ReviewRepository) CreateReview(ctx context.Context, review *db.Review) error {
	syncForeignKeys(review)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return createReview(tx, review)
	})
	if err != nil {
		r.log.Error("Failed to create review",
			zap.Uint("customer_id", review.CustomerID),
			zap.Uint("item_id", review.ItemID),
			zap.Error(err),
		)
		return err
	}

	r.log.Info("Review created", zap.Uint("review_id", review.ID))
	return nil
}

// AddItemToCustomer is the write path of the customer's items view: it
// creates one review linking the customer to the item. Duplicates are allowed.
func (r *ReviewRepository) AddItemToCustomer(ctx context.Context, customerID, itemID uint, comment string) (*db.Review, error) {
	var review *db.Review

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var customer db.Customer
		if err := tx.First(&customer, customerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCustomerNotFound
			}
			return err
		}

		var item db.Item
		if err := tx.First(&item, itemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return err
		}

		review = customer.AddItem(&item)
		review.Comment = comment
		return createReview(tx, review)
	})
	if err != nil {
		r.log.Error("Failed to add item to customer",
			zap.Uint("customer_id", customerID),
			zap.Uint("item_id", itemID),
			zap.Error(err),
		)
		return nil, err
	}

	r.log.Info("Item added to customer",
		zap.Uint("customer_id", customerID),
		zap.Uint("item_id", itemID),
		zap.Uint("review_id", review.ID),
	)
	return review, nil
}

// CustomerItems reads the customer's items view
func (r *ReviewRepository) CustomerItems(ctx context.Context, customerID uint) ([]*db.Item, error) {
	customer, err := r.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return customer.Items(), nil
}

// GetReview retrieves a review with its customer and item
func (r *ReviewRepository) GetReview(ctx context.Context, id uint) (*db.Review, error) {
	var review db.Review
	err := r.db.WithContext(ctx).Preload("Customer").Preload("Item").First(&review, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReviewNotFound
		}
		r.log.Error("Failed to get review", zap.Uint("review_id", id), zap.Error(err))
		return nil, err
	}

	return &review, nil
}

// ListReviews returns all reviews with their customer and item
func (r *ReviewRepository) ListReviews(ctx context.Context) ([]*db.Review, error) {
	var reviews []*db.Review
	if err := r.db.WithContext(ctx).Preload("Customer").Preload("Item").Order("id").Find(&reviews).Error; err != nil {
		r.log.Error("Failed to list reviews", zap.Error(err))
		return nil, err
	}
	return reviews, nil
}

// UpdateReviewComment changes the comment of a review
func (r *ReviewRepository) UpdateReviewComment(ctx context.Context, id uint, comment string) error {
	result := r.db.WithContext(ctx).Model(&db.Review{}).Where("id = ?", id).Update("comment", comment)
	if result.Error != nil {
		r.log.Error("Failed to update review", zap.Uint("review_id", id), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReviewNotFound
	}

	r.log.Info("Review updated", zap.Uint("review_id", id))
	return nil
}

// DeleteReview removes a review
func (r *ReviewRepository) DeleteReview(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&db.Review{}, id)
	if result.Error != nil {
		r.log.Error("Failed to delete review", zap.Uint("review_id", id), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReviewNotFound
	}

	r.log.Info("Review deleted", zap.Uint("review_id", id))
	return nil
}

// Stats holds entity counts
type Stats struct {
	Customers int64
	Items     int64
	Reviews   int64
}

// GetStats returns entity counts for metrics
func (r *ReviewRepository) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	q := r.db.WithContext(ctx)

	if err := q.Model(&db.Customer{}).Count(&stats.Customers).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to count customers: %w", err)
	}
	if err := q.Model(&db.Item{}).Count(&stats.Items).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to count items: %w", err)
	}
	if err := q.Model(&db.Review{}).Count(&stats.Reviews).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to count reviews: %w", err)
	}

	return stats, nil
}

// deleteParent deletes a customer or item unless reviews still point at it
func (r *ReviewRepository) deleteParent(ctx context.Context, model interface{}, fkColumn string, id uint, notFound error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dependents int64
		if err := tx.Model(&db.Review{}).Where(fkColumn+" = ?", id).Count(&dependents).Error; err != nil {
			return err
		}
		if dependents > 0 {
			return fmt.Errorf("%w: %d reviews", ErrHasDependents, dependents)
		}

		result := tx.Delete(model, id)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrForeignKeyViolated) {
				return ErrHasDependents
			}
			return result.Error
		}
		if result.RowsAffected == 0 {
			return notFound
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, notFound) {
			r.log.Error("Failed to delete", zap.String("fk", fkColumn), zap.Uint("id", id), zap.Error(err))
		}
		return err
	}

	r.log.Info("Deleted", zap.String("fk", fkColumn), zap.Uint("id", id))
	return nil
}

// createReview checks both parents inside tx and inserts the review row only
func createReview(tx *gorm.DB, review *db.Review) error {
	var count int64
	if err := tx.Model(&db.Customer{}).Where("id = ?", review.CustomerID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: customer %d does not exist", ErrReferentialIntegrity, review.CustomerID)
	}

	if err := tx.Model(&db.Item{}).Where("id = ?", review.ItemID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: item %d does not exist", ErrReferentialIntegrity, review.ItemID)
	}

	if err := tx.Omit(clause.Associations).Create(review).Error; err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return fmt.Errorf("%w: %v", ErrReferentialIntegrity, err)
		}
		return err
	}
	return nil
}

// syncForeignKeys copies ids from loaded relations into the key columns
func syncForeignKeys(review *db.Review) {
	if review.Customer != nil && review.Customer.ID != 0 {
		review.CustomerID = review.Customer.ID
	}
	if review.Item != nil && review.Item.ID != 0 {
		review.ItemID = review.Item.ID
	}
}

func orderByID(tx *gorm.DB) *gorm.DB {
	return tx.Order("id")
}
