package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return createTables(ctx, db)
	}, func(ctx context.Context, db *bun.DB) error {
		for i := len(trackerModels) - 1; i >= 0; i-- {
			if _, err := db.NewDropTable().Model(trackerModels[i]).IfExists().Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}
