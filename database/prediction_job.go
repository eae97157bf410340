package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/angas/netload-go/ems"
	"github.com/angas/netload-go/types"
)

// GetPredictionJob fetches a job by id, yielding ems.ErrJobNotFound when no
// such job exists.
func (d *Database) GetPredictionJob(ctx context.Context, jobID int) (types.PredictionJob, error) {
	var j types.PredictionJob
	err := d.read.QueryRowContext(ctx, `
		SELECT id, name, description, resolution, active
		FROM prediction_job
		WHERE id = ?`, jobID).
		Scan(&j.ID, &j.Name, &j.Description, &j.Resolution, &j.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return types.PredictionJob{}, fmt.Errorf("prediction job %d: %w", jobID, ems.ErrJobNotFound)
	}
	if err != nil {
		return types.PredictionJob{}, fmt.Errorf("fetching prediction job %d: %w", jobID, err)
	}
	return j, nil
}

// ActivePredictionJobs returns all jobs flagged active, ordered by id.
func (d *Database) ActivePredictionJobs(ctx context.Context) ([]types.PredictionJob, error) {
	rows, err := d.read.QueryContext(ctx, `
		SELECT id, name, description, resolution, active
		FROM prediction_job
		WHERE active = 1
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("fetching active prediction jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.PredictionJob
	for rows.Next() {
		var j types.PredictionJob
		if err := rows.Scan(&j.ID, &j.Name, &j.Description, &j.Resolution, &j.Active); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading prediction job rows: %w", err)
	}

	return jobs, nil
}

// SavePredictionJob inserts or updates a job row.
func (d *Database) SavePredictionJob(ctx context.Context, j types.PredictionJob) error {
	_, err := d.write.ExecContext(ctx, `
		INSERT INTO prediction_job (id, name, description, resolution, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			resolution = excluded.resolution,
			active = excluded.active`,
		j.ID, j.Name, j.Description, j.Resolution, j.Active)
	if err != nil {
		return fmt.Errorf("saving prediction job %d: %w", j.ID, err)
	}
	return nil
}

// CoupleSystem attaches a system to a prediction job. Coupling an already
// coupled pair is a no-op.
func (d *Database) CoupleSystem(ctx context.Context, jobID int, sid string) error {
	_, err := d.write.ExecContext(ctx, `
		INSERT INTO prediction_job_system (prediction_job_id, system_id)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING`, jobID, sid)
	if err != nil {
		return fmt.Errorf("coupling system %s to job %d: %w", sid, jobID, err)
	}
	return nil
}
