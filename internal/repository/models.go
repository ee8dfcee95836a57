// Package repository provides database abstraction for run/progress history.
package repository

import (
	"database/sql/driver"
	"errors"
	"time"
)

// TrainingRun represents the training_runs table: one row per worker or
// server process launched against a dataset shard or shard range.
type TrainingRun struct {
	ID           int64      `gorm:"column:id;primaryKey;autoIncrement"`
	RunUUID      string     `gorm:"column:run_uuid;type:varchar(64);uniqueIndex"`
	Role         string     `gorm:"column:role;type:varchar(16)"` // worker or server
	Algorithm    string     `gorm:"column:algorithm;type:varchar(16)"`
	NumShards    int        `gorm:"column:num_shards"`
	EmbeddingDim int        `gorm:"column:embedding_dim"`
	Status       string     `gorm:"column:status;type:varchar(16)"` // running, completed, failed
	StatusInfo   string     `gorm:"column:status_info;type:text"`
	CreateTime   time.Time  `gorm:"column:create_time;autoCreateTime"`
	BeginTime    *time.Time `gorm:"column:begin_time"`
	EndTime      *time.Time `gorm:"column:end_time"`
}

// TableName returns the table name for TrainingRun.
func (TrainingRun) TableName() string {
	return "training_runs"
}

// ProgressSnapshot represents the progress_snapshots table: one row per
// merged progress.Record a run reports, keyed by (run, pass number).
type ProgressSnapshot struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RunUUID      string    `gorm:"column:run_uuid;type:varchar(64);index"`
	PassNumber   int       `gorm:"column:pass_number"`
	RowsDone     int64     `gorm:"column:rows_done"`
	NewWeights   int64     `gorm:"column:new_weights"`
	NewEmbed     int64     `gorm:"column:new_embed"`
	ObjectiveSum float64   `gorm:"column:objective_sum"`
	AUC          float64   `gorm:"column:auc"`
	Extra        JSONField `gorm:"column:extra;type:json"`
	RecordedAt   time.Time `gorm:"column:recorded_at;autoCreateTime"`
}

// TableName returns the table name for ProgressSnapshot.
func (ProgressSnapshot) TableName() string {
	return "progress_snapshots"
}

// JSONField is a custom type for handling JSON fields in GORM.
type JSONField []byte

// Value implements driver.Valuer interface.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner interface.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = []byte(v)
		return nil
	default:
		return errors.New("unsupported type for JSONField")
	}
}

// MarshalJSON implements json.Marshaler interface.
func (j JSONField) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (j *JSONField) UnmarshalJSON(data []byte) error {
	if data == nil || string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}
