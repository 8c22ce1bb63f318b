package models

import "time"

// Pipeline stages that keep a watermark.
const (
	StageMatching   = "matching"
	StageRemedyPoll = "remedy_poll"
)

// Watermark records the newest inserted_at a pipeline stage has fully
// processed. It advances only after the stage completes without fatal
// error, so a crash mid-run replays data into idempotent stages.
type Watermark struct {
	Stage           string    `json:"stage" db:"stage"`
	LastProcessedAt time.Time `json:"last_processed_at" db:"last_processed_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}
