package db

import (
	"gorm.io/gorm"
)

// RunMigrations runs all database migrations
func RunMigrations(db *DB) error {
	// Parents first so the review constraints can reference them
	if err := db.AutoMigrate(&Customer{}, &Item{}, &Review{}); err != nil {
		return err
	}

	// Create additional indexes if not exists
	if err := createIndexes(db.DB); err != nil {
		return err
	}

	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Lookups by name from the admin side
		`CREATE INDEX IF NOT EXISTS idx_customers_name ON customers(name)`,
		`CREATE INDEX IF NOT EXISTS idx_items_name ON items(name)`,

		// Composite index for the customer -> items view
		`CREATE INDEX IF NOT EXISTS idx_reviews_customer_item ON reviews(customer_id, item_id)`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}
