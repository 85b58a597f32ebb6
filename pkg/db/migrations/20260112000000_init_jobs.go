package migrations

import (
	"context"
	"fmt"

	"github.com/omex-energy/omex/pkg/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Print(" [up migration] ")

		// Create jobs table from struct
		_, err := db.NewCreateTable().
			Model((*models.Job)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return err
		}

		// Listing is filtered by user and by project
		_, err = db.NewCreateIndex().
			Model((*models.Job)(nil)).
			Index("jobs_user_name_idx").
			IfNotExists().
			Column("user_name").
			Exec(ctx)
		if err != nil {
			return err
		}

		_, err = db.NewCreateIndex().
			Model((*models.Job)(nil)).
			Index("jobs_project_name_idx").
			IfNotExists().
			Column("project_name").
			Exec(ctx)
		if err != nil {
			return err
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Print(" [down migration] ")

		_, err := db.NewDropTable().Model((*models.Job)(nil)).IfExists().Exec(ctx)
		return err
	})
}
