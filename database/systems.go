package database

import (
	"context"
	"fmt"
	"math"

	"github.com/angas/netload-go/ems"
	"github.com/angas/netload-go/types"
)

// SystemsForJob returns the systems coupled to a prediction job. A job that
// does not exist yields ems.ErrJobNotFound; an existing job without coupled
// systems yields an empty slice.
func (d *Database) SystemsForJob(ctx context.Context, jobID int) ([]types.System, error) {
	var exists int
	err := d.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM prediction_job WHERE id = ?`, jobID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking prediction job %d: %w", jobID, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("prediction job %d: %w", jobID, ems.ErrJobNotFound)
	}

	rows, err := d.read.QueryContext(ctx, `
		SELECT s.id, s.polarity, s.factor, s.region, s.lat, s.lon
		FROM system s
		JOIN prediction_job_system pjs ON pjs.system_id = s.id
		WHERE pjs.prediction_job_id = ?
		ORDER BY s.id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("fetching systems for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var systems []types.System
	for rows.Next() {
		var s types.System
		if err := rows.Scan(&s.ID, &s.Polarity, &s.Factor, &s.Region, &s.Lat, &s.Lon); err != nil {
			return nil, err
		}
		systems = append(systems, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading system rows: %w", err)
	}

	return systems, nil
}

// GetSystem fetches a single system by id.
func (d *Database) GetSystem(ctx context.Context, sid string) (types.System, error) {
	var s types.System
	err := d.read.QueryRowContext(ctx, `
		SELECT id, polarity, factor, region, lat, lon
		FROM system
		WHERE id = ?`, sid).
		Scan(&s.ID, &s.Polarity, &s.Factor, &s.Region, &s.Lat, &s.Lon)
	if err != nil {
		return types.System{}, fmt.Errorf("fetching system %s: %w", sid, err)
	}
	return s, nil
}

// SaveSystem inserts or updates a system row.
func (d *Database) SaveSystem(ctx context.Context, s types.System) error {
	_, err := d.write.ExecContext(ctx, `
		INSERT INTO system (id, polarity, factor, region, lat, lon)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			polarity = excluded.polarity,
			factor = excluded.factor,
			region = excluded.region,
			lat = excluded.lat,
			lon = excluded.lon`,
		s.ID, s.Polarity, s.Factor, s.Region, s.Lat, s.Lon)
	if err != nil {
		return fmt.Errorf("saving system %s: %w", s.ID, err)
	}
	return nil
}

// SystemsNearLocation returns systems with a known position within radiusKm
// of the given point, closest first. The distance math runs on the Go side
// since sqlite has no trigonometry built in.
func (d *Database) SystemsNearLocation(ctx context.Context, lat, lon, radiusKm float64) ([]types.System, error) {
	rows, err := d.read.QueryContext(ctx, `
		SELECT id, polarity, factor, region, lat, lon
		FROM system
		WHERE lat IS NOT NULL AND lon IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("fetching positioned systems: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		system types.System
		dist   float64
	}
	var candidates []candidate
	for rows.Next() {
		var s types.System
		if err := rows.Scan(&s.ID, &s.Polarity, &s.Factor, &s.Region, &s.Lat, &s.Lon); err != nil {
			return nil, err
		}
		dist := haversineKm(lat, lon, s.Lat.Float64, s.Lon.Float64)
		if dist <= radiusKm {
			candidates = append(candidates, candidate{system: s, dist: dist})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading system rows: %w", err)
	}

	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].dist < candidates[j-1].dist; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	systems := make([]types.System, len(candidates))
	for i, c := range candidates {
		systems[i] = c.system
	}
	return systems, nil
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
