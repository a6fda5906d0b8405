package db

import (
	"fmt"

	"gorm.io/gorm/schema"
)

// NamingStrategy is gorm's default strategy with foreign key constraints
// named fk_<table>_<column>_<referenced-table>.
type NamingStrategy struct {
	schema.NamingStrategy
}

// RelationshipFKName implements schema.Namer
func (ns NamingStrategy) RelationshipFKName(rel schema.Relationship) string {
	for _, ref := range rel.References {
		if ref.ForeignKey == nil || ref.PrimaryKey == nil {
			continue
		}
		return ForeignKeyName(ref.ForeignKey.Schema.Table, ref.ForeignKey.DBName, ref.PrimaryKey.Schema.Table)
	}
	return ns.NamingStrategy.RelationshipFKName(rel)
}

// ForeignKeyName builds the constraint name for column on table referencing referenced.
func ForeignKeyName(table, column, referenced string) string {
	return fmt.Sprintf("fk_%s_%s_%s", table, column, referenced)
}
