package database

import (
	"context"
	"fmt"
	"time"

	"github.com/angas/netload-go/timeseries"
)

// SaveNetLoad upserts a computed net load curve for a job. Recomputing a
// window overwrites the previous values bucket by bucket.
func (d *Database) SaveNetLoad(ctx context.Context, jobID int, load timeseries.Series) error {
	if load.IsEmpty() {
		return nil
	}

	tx, err := d.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start net load transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO net_load (prediction_job_id, timestamp, value)
		VALUES (?, ?, ?)
		ON CONFLICT (prediction_job_id, timestamp) DO UPDATE SET
			value = excluded.value`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare net load statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range load {
		if _, err := stmt.ExecContext(ctx, jobID, p.Time.UTC().Format(time.RFC3339), p.Value); err != nil {
			tx.Rollback()
			return fmt.Errorf("saving net load for job %d at %s: %w", jobID, p.Time, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit net load for job %d: %w", jobID, err)
	}
	return nil
}

// GetNetLoadSince returns the stored net load curve of a job from the given
// instant onwards, oldest first.
func (d *Database) GetNetLoadSince(ctx context.Context, jobID int, since time.Time) (timeseries.Series, error) {
	rows, err := d.read.QueryContext(ctx, `
		SELECT timestamp, value
		FROM net_load
		WHERE prediction_job_id = ? AND timestamp >= ?
		ORDER BY timestamp`,
		jobID, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("fetching net load for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var ts string
	var load timeseries.Series
	for rows.Next() {
		var p timeseries.Point
		if err := rows.Scan(&ts, &p.Value); err != nil {
			return nil, err
		}
		p.Time, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		load = append(load, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading net load rows: %w", err)
	}

	return load, nil
}

// PurgeNetLoad deletes net load rows older than the retention period.
func (d *Database) PurgeNetLoad(ctx context.Context, retentionDays int) error {
	if retentionDays < 1 {
		return nil
	}
	d.logger.Debug("purging net load")

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339)
	_, err := d.write.ExecContext(ctx,
		`DELETE FROM net_load WHERE timestamp < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("purging net load: %w", err)
	}
	return nil
}
