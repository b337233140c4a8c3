package db

import (
	"context"
	"fmt"
	"time"

	"github.com/quatton/batchffmpeg/pkg/db/models"
	"github.com/quatton/batchffmpeg/pkg/qart"
	"github.com/quatton/batchffmpeg/pkg/qmetrics"
	"github.com/uptrace/bun"
)

// Catalog indexes persisted metrics documents in Postgres so they can be
// queried without scanning the bucket.
type Catalog struct {
	db bun.IDB
}

func NewCatalog(db bun.IDB) *Catalog {
	return &Catalog{db: db}
}

// Record upserts the row for doc. A rerun of the same job on the same day
// replaces the previous row, like the document it points to.
func (c *Catalog) Record(ctx context.Context, loc qart.Location, doc *qmetrics.Document) error {
	row := NewQualityMetricsRow(loc, doc)
	if _, err := c.upsert(row).Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert quality metrics for job %s: %w", row.JobID, err)
	}
	return nil
}

func (c *Catalog) upsert(row *models.QualityMetrics) *bun.InsertQuery {
	return c.db.NewInsert().
		Model(row).
		On("CONFLICT (date, job_queue, compute_environment, job_id) DO UPDATE").
		Set("bucket = EXCLUDED.bucket").
		Set("document_key = EXCLUDED.document_key").
		Set("reference = EXCLUDED.reference").
		Set("distorted = EXCLUDED.distorted").
		Set("frames = EXCLUDED.frames").
		Set("ssim_avg = EXCLUDED.ssim_avg").
		Set("psnr_avg = EXCLUDED.psnr_avg").
		Set("vmaf_mean = EXCLUDED.vmaf_mean").
		Set("updated_at = current_timestamp")
}

// NewQualityMetricsRow summarizes doc for the catalog.
func NewQualityMetricsRow(loc qart.Location, doc *qmetrics.Document) *models.QualityMetrics {
	created := doc.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	created = created.UTC()

	row := &models.QualityMetrics{
		Date:               time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, time.UTC),
		JobQueue:           doc.Identity["AWS_BATCH_JQ_NAME"],
		ComputeEnvironment: doc.Identity["AWS_BATCH_CE_NAME"],
		JobID:              doc.Identity["AWS_BATCH_JOB_ID"],
		Bucket:             loc.Bucket,
		DocumentKey:        loc.Key,
		Reference:          doc.Reference,
		Distorted:          doc.Distorted,
		SSIMAvg:            average(doc, qmetrics.SSIM, "ssim_avg"),
		PSNRAvg:            average(doc, qmetrics.PSNR, "psnr_avg"),
		VMAFMean:           average(doc, qmetrics.VMAF, "vmaf"),
	}
	for _, frames := range doc.Frames {
		row.Frames = max(row.Frames, len(frames))
	}
	return row
}

func average(doc *qmetrics.Document, metric, component string) *float64 {
	stats, ok := doc.Global[metric][component]
	if !ok {
		return nil
	}
	v := stats.Average
	return &v
}
