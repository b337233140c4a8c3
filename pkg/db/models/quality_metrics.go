package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// QualityMetrics is the catalog row for one persisted metrics document.
type QualityMetrics struct {
	bun.BaseModel `bun:"table:ffqm.quality_metrics,alias:qm"`

	ID                 uuid.UUID `bun:"type:uuid,default:gen_random_uuid(),pk"`
	Date               time.Time `bun:"type:date,notnull"`
	JobQueue           string    `bun:",notnull"`
	ComputeEnvironment string    `bun:",notnull"`
	JobID              string    `bun:",notnull"`
	Bucket             string    `bun:",notnull"`
	DocumentKey        string    `bun:",notnull"`
	Reference          string    `bun:",nullzero"`
	Distorted          string    `bun:",nullzero"`
	Frames             int       `bun:",notnull,default:0"`
	SSIMAvg            *float64  `bun:"ssim_avg"`
	PSNRAvg            *float64  `bun:"psnr_avg"`
	VMAFMean           *float64  `bun:"vmaf_mean"`
	CreatedAt          time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}
