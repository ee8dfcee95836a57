package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// GormRunRepository implements RunRepository using GORM.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// CreateRun records the start of a new run.
func (r *GormRunRepository) CreateRun(ctx context.Context, run *TrainingRun) error {
	if run.Status == "" {
		run.Status = "running"
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRunByUUID retrieves a run by its UUID.
func (r *GormRunRepository) GetRunByUUID(ctx context.Context, uuid string) (*TrainingRun, error) {
	var run TrainingRun

	err := r.db.WithContext(ctx).Where("run_uuid = ?", uuid).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("run not found: %s", uuid)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return &run, nil
}

// MarkRunBegin stamps a run's begin time and sets it running.
func (r *GormRunRepository) MarkRunBegin(ctx context.Context, uuid string) error {
	now := time.Now()

	result := r.db.WithContext(ctx).
		Model(&TrainingRun{}).
		Where("run_uuid = ?", uuid).
		Updates(map[string]interface{}{
			"begin_time": &now,
			"status":     "running",
		})

	if result.Error != nil {
		return fmt.Errorf("failed to mark run begin: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("run not found: %s", uuid)
	}

	return nil
}

// CompleteRun marks a run finished, recording its terminal status.
func (r *GormRunRepository) CompleteRun(ctx context.Context, uuid string, status string, info string) error {
	now := time.Now()

	result := r.db.WithContext(ctx).
		Model(&TrainingRun{}).
		Where("run_uuid = ?", uuid).
		Updates(map[string]interface{}{
			"end_time":    &now,
			"status":      status,
			"status_info": info,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to complete run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("run not found: %s", uuid)
	}

	return nil
}

// ListRunning returns all runs currently in the running state.
func (r *GormRunRepository) ListRunning(ctx context.Context) ([]*TrainingRun, error) {
	var runs []*TrainingRun

	err := r.db.WithContext(ctx).
		Where("status = ?", "running").
		Order("create_time DESC").
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list running runs: %w", err)
	}

	return runs, nil
}

// GormProgressRepository implements ProgressRepository using GORM.
type GormProgressRepository struct {
	db *gorm.DB
}

// NewGormProgressRepository creates a new GormProgressRepository.
func NewGormProgressRepository(db *gorm.DB) *GormProgressRepository {
	return &GormProgressRepository{db: db}
}

// SaveSnapshot appends a progress snapshot for a run.
func (r *GormProgressRepository) SaveSnapshot(ctx context.Context, snap *ProgressSnapshot) error {
	if err := r.db.WithContext(ctx).Create(snap).Error; err != nil {
		return fmt.Errorf("failed to save progress snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recently recorded snapshot for a run.
func (r *GormProgressRepository) LatestSnapshot(ctx context.Context, runUUID string) (*ProgressSnapshot, error) {
	var snap ProgressSnapshot

	err := r.db.WithContext(ctx).
		Where("run_uuid = ?", runUUID).
		Order("pass_number DESC").
		First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no snapshots for run: %s", runUUID)
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	return &snap, nil
}

// ListSnapshots returns all snapshots for a run ordered by pass number.
func (r *GormProgressRepository) ListSnapshots(ctx context.Context, runUUID string) ([]*ProgressSnapshot, error) {
	var snaps []*ProgressSnapshot

	err := r.db.WithContext(ctx).
		Where("run_uuid = ?", runUUID).
		Order("pass_number ASC").
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	return snaps, nil
}
