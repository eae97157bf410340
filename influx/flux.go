package influx

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/angas/netload-go/timeseries"
)

// systemFilter builds the flux predicate matching any of the given system
// ids. Ids are quoted so they are safe to interpolate.
func systemFilter(sids []string) string {
	parts := make([]string, len(sids))
	for i, sid := range sids {
		parts[i] = fmt.Sprintf("r.system == %s", strconv.Quote(sid))
	}
	return strings.Join(parts, " or ")
}

func fluxTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func rawQuery(bucket string, sids []string, start, stop time.Time) string {
	return fmt.Sprintf(`
from(bucket: %q)
	|> range(start: %s, stop: %s)
	|> filter(fn: (r) => r._measurement == "power")
	|> filter(fn: (r) => r._field == "output")
	|> filter(fn: (r) => %s)`,
		bucket, fluxTime(start), fluxTime(stop), systemFilter(sids))
}

// aggregatedQuery computes per-system bucket means first, then sums them
// across systems per bucket ("load") and counts the contributing systems
// ("entries"). The caller is responsible for the window boundary correction.
func aggregatedQuery(bucket string, sids []string, start, stop time.Time, res timeseries.Resolution) string {
	every := res.Flux()
	return fmt.Sprintf(`
data = from(bucket: %q)
	|> range(start: %s, stop: %s)
	|> filter(fn: (r) => r._measurement == "power")
	|> filter(fn: (r) => r._field == "output")
	|> filter(fn: (r) => %s)
	|> aggregateWindow(every: %s, fn: mean)

data
	|> group()
	|> aggregateWindow(every: %s, fn: sum)
	|> yield(name: "load")

data
	|> group()
	|> aggregateWindow(every: %s, fn: count)
	|> yield(name: "entries")`,
		bucket, fluxTime(start), fluxTime(stop), systemFilter(sids), every, every, every)
}
