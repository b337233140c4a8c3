package migrations

import (
	"context"

	"github.com/quatton/batchffmpeg/pkg/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw("CREATE SCHEMA IF NOT EXISTS ffqm").Exec(ctx)
		if err != nil {
			return err
		}

		_, err = db.NewCreateTable().
			Model((*models.QualityMetrics)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return err
		}

		_, err = db.NewCreateIndex().
			Model((*models.QualityMetrics)(nil)).
			Index("ffqm_quality_metrics_job_idx").
			Unique().
			IfNotExists().
			Column("date", "job_queue", "compute_environment", "job_id").
			Exec(ctx)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewDropTable().Model((*models.QualityMetrics)(nil)).IfExists().Exec(ctx)
		if err != nil {
			return err
		}

		_, err = db.NewRaw("DROP SCHEMA IF EXISTS ffqm").Exec(ctx)
		return err
	})
}
