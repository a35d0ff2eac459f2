// Package schema declares the feature-phone tables and creates them with
// ent's migration engine.
package schema

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
)

// Tables lists every table in dependency order.
var Tables = []*schema.Table{
	Respondents,
	Prompts,
	Responses,
}

// Create runs the migration against drv.
func Create(ctx context.Context, drv dialect.Driver, opts ...schema.MigrateOption) error {
	migrate, err := schema.NewMigrate(drv, opts...)
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return migrate.Create(ctx, Tables...)
}
