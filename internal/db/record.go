package db

import (
	"github.com/reviewstore/services/reviews/internal/serializer"
)

// SerializeRules cut the edge that leads back to where a traversal came from.
var SerializeRules = map[serializer.Kind][]string{
	KindCustomer: {"-reviews.customer"},
	KindItem:     {"-reviews.item"},
	KindReview:   {"-customer.reviews", "-item.reviews"},
}

// NewSerializer returns a serializer configured with SerializeRules.
func NewSerializer() (*serializer.Serializer, error) {
	rules, err := serializer.NewRuleset(SerializeRules)
	if err != nil {
		return nil, err
	}
	return serializer.New(rules), nil
}

func (c *Customer) Kind() serializer.Kind { return KindCustomer }
func (c *Customer) Identity() any         { return c.ID }

func (c *Customer) Attributes() []serializer.Attribute {
	return []serializer.Attribute{
		{Name: "id", Value: c.ID},
		{Name: "name", Value: c.Name},
	}
}

func (c *Customer) Edges() []serializer.Edge {
	return []serializer.Edge{serializer.Many("reviews", reviewRecords(c.Reviews))}
}

func (i *Item) Kind() serializer.Kind { return KindItem }
func (i *Item) Identity() any         { return i.ID }

func (i *Item) Attributes() []serializer.Attribute {
	return []serializer.Attribute{
		{Name: "id", Value: i.ID},
		{Name: "name", Value: i.Name},
		{Name: "price", Value: i.Price},
	}
}

func (i *Item) Edges() []serializer.Edge {
	return []serializer.Edge{serializer.Many("reviews", reviewRecords(i.Reviews))}
}

func (r *Review) Kind() serializer.Kind { return KindReview }
func (r *Review) Identity() any         { return r.ID }

// Attributes leaves out customer_id and item_id; the nested records carry them.
func (r *Review) Attributes() []serializer.Attribute {
	return []serializer.Attribute{
		{Name: "id", Value: r.ID},
		{Name: "comment", Value: r.Comment},
	}
}

func (r *Review) Edges() []serializer.Edge {
	// a typed nil must not reach the serializer as a non-nil Record
	var customer, item serializer.Record
	if r.Customer != nil {
		customer = r.Customer
	}
	if r.Item != nil {
		item = r.Item
	}
	return []serializer.Edge{
		serializer.One("customer", customer),
		serializer.One("item", item),
	}
}

func reviewRecords(reviews []*Review) []serializer.Record {
	out := make([]serializer.Record, 0, len(reviews))
	for _, r := range reviews {
		if r == nil {
			out = append(out, nil)
			continue
		}
		out = append(out, r)
	}
	return out
}
