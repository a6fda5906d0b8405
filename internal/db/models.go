package db

import (
	"errors"
	"fmt"

	"github.com/reviewstore/services/reviews/internal/serializer"
)

// ErrUnresolvedRelation is returned when a review's customer or item is not loaded
var ErrUnresolvedRelation = serializer.ErrUnresolvedRelation

const (
	KindCustomer serializer.Kind = "customer"
	KindItem     serializer.Kind = "item"
	KindReview   serializer.Kind = "review"
)

// Customer represents a customer who writes reviews
type Customer struct {
	ID      uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name    string    `gorm:"type:varchar(255)" json:"name"`
	Reviews []*Review `gorm:"foreignKey:CustomerID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
}

// TableName specifies the table name for Customer model
func (Customer) TableName() string {
	return "customers"
}

// Item represents a reviewable item
type Item struct {
	ID      uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name    string    `gorm:"type:varchar(255)" json:"name"`
	Price   float64   `json:"price"`
	Reviews []*Review `gorm:"foreignKey:ItemID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
}

// TableName specifies the table name for Item model
func (Item) TableName() string {
	return "items"
}

// Review links one customer to one item
type Review struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Comment    string    `gorm:"type:text" json:"comment"`
	CustomerID uint      `gorm:"not null;index:idx_reviews_customer_id" json:"customer_id"`
	ItemID     uint      `gorm:"not null;index:idx_reviews_item_id" json:"item_id"`
	Customer   *Customer `gorm:"foreignKey:CustomerID" json:"-"`
	Item       *Item     `gorm:"foreignKey:ItemID" json:"-"`
}

// TableName specifies the table name for Review model
func (Review) TableName() string {
	return "reviews"
}

func NewCustomer(name string) *Customer {
	return &Customer{Name: name}
}

func NewItem(name string, price float64) *Item {
	return &Item{Name: name, Price: price}
}

// NewReview creates a review attached to both customer and item.
// Either side may be nil and set later.
func NewReview(comment string, customer *Customer, item *Item) *Review {
	r := &Review{Comment: comment}
	if customer != nil {
		r.SetCustomer(customer)
	}
	if item != nil {
		r.SetItem(item)
	}
	return r
}

// SetCustomer points the review at c and keeps c.Reviews consistent.
func (r *Review) SetCustomer(c *Customer) {
	if r.Customer == c {
		if c != nil && !containsReview(c.Reviews, r) {
			c.Reviews = append(c.Reviews, r)
		}
		return
	}
	if r.Customer != nil {
		r.Customer.Reviews = removeReview(r.Customer.Reviews, r)
	}

	r.Customer = c
	if c == nil {
		r.CustomerID = 0
		return
	}
	r.CustomerID = c.ID
	if !containsReview(c.Reviews, r) {
		c.Reviews = append(c.Reviews, r)
	}
}

// SetItem points the review at i and keeps i.Reviews consistent.
func (r *Review) SetItem(i *Item) {
	if r.Item == i {
		if i != nil && !containsReview(i.Reviews, r) {
			i.Reviews = append(i.Reviews, r)
		}
		return
	}
	if r.Item != nil {
		r.Item.Reviews = removeReview(r.Item.Reviews, r)
	}

	r.Item = i
	if i == nil {
		r.ItemID = 0
		return
	}
	r.ItemID = i.ID
	if !containsReview(i.Reviews, r) {
		i.Reviews = append(i.Reviews, r)
	}
}

// AddReview attaches r to the customer.
func (c *Customer) AddReview(r *Review) {
	r.SetCustomer(c)
}

// AddReview attaches r to the item.
func (i *Item) AddReview(r *Review) {
	r.SetItem(i)
}

// Items projects the loaded reviews onto their items. Duplicates are kept
// and reviews without a loaded item are skipped.
func (c *Customer) Items() []*Item {
	items := make([]*Item, 0, len(c.Reviews))
	for _, r := range c.Reviews {
		if r != nil && r.Item != nil {
			items = append(items, r.Item)
		}
	}
	return items
}

// AddItem creates a new review linking the customer to item and returns it.
// Adding the same item twice creates two reviews.
func (c *Customer) AddItem(item *Item) *Review {
	return NewReview("", c, item)
}

func (c *Customer) String() string {
	return fmt.Sprintf("<Customer %d, %s>", c.ID, c.Name)
}

func (i *Item) String() string {
	return fmt.Sprintf("<Item %d, %s, %v>", i.ID, i.Name, i.Price)
}

// Describe renders the review with the names of its customer and item.
// It fails with ErrUnresolvedRelation when either is not loaded.
func (r *Review) Describe() (string, error) {
	var missing []error
	if r.Customer == nil {
		missing = append(missing, fmt.Errorf("%w: review %d customer %d", ErrUnresolvedRelation, r.ID, r.CustomerID))
	}
	if r.Item == nil {
		missing = append(missing, fmt.Errorf("%w: review %d item %d", ErrUnresolvedRelation, r.ID, r.ItemID))
	}
	if len(missing) > 0 {
		return "", errors.Join(missing...)
	}
	return fmt.Sprintf("<Review %d, %s, %s, %s>", r.ID, r.Comment, r.Customer.Name, r.Item.Name), nil
}

// String is Describe for logging; unresolved names are shown as "?".
func (r *Review) String() string {
	if s, err := r.Describe(); err == nil {
		return s
	}
	customer, item := "?", "?"
	if r.Customer != nil {
		customer = r.Customer.Name
	}
	if r.Item != nil {
		item = r.Item.Name
	}
	return fmt.Sprintf("<Review %d, %s, %s, %s>", r.ID, r.Comment, customer, item)
}

func containsReview(reviews []*Review, r *Review) bool {
	for _, existing := range reviews {
		if existing == r {
			return true
		}
	}
	return false
}

// removeReview returns a new slice so callers holding the old one keep it intact
func removeReview(reviews []*Review, r *Review) []*Review {
	out := make([]*Review, 0, len(reviews))
	for _, existing := range reviews {
		if existing != r {
			out = append(out, existing)
		}
	}
	return out
}
