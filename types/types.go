package types

import "database/sql"

// System is a single physical metering system (a meter behind a grid
// connection). Polarity tells whether the measured flow adds to or subtracts
// from the net load, Factor scales it. A polarity of 0 means "not configured"
// and is treated as +1 when the multiplier is computed. A factor of 0 is a
// valid configuration (the system is deliberately weighted out) and is never
// substituted.
type System struct {
	ID       string
	Polarity int
	Factor   float64
	Region   string
	Lat      sql.NullFloat64
	Lon      sql.NullFloat64
}

// PredictionJob is a forecasting job, the unit a net load curve is computed
// for. Resolution is the bucket width of the job's load curve, e.g. "15m".
type PredictionJob struct {
	ID          int
	Name        string
	Description string
	Resolution  string
	Active      bool
}
