package influx

import (
	"strings"
	"testing"
	"time"

	"github.com/angas/netload-go/timeseries"
)

func TestSystemFilter(t *testing.T) {
	t.Run("single system", func(t *testing.T) {
		got := systemFilter([]string{"pv_123"})
		want := `r.system == "pv_123"`
		if got != want {
			t.Errorf("got %q, wanted %q", got, want)
		}
	})

	t.Run("multiple systems", func(t *testing.T) {
		got := systemFilter([]string{"a", "b", "c"})
		want := `r.system == "a" or r.system == "b" or r.system == "c"`
		if got != want {
			t.Errorf("got %q, wanted %q", got, want)
		}
	})

	t.Run("quotes hostile ids", func(t *testing.T) {
		got := systemFilter([]string{`x" or r.system != "`})
		want := `r.system == "x\" or r.system != \""`
		if got != want {
			t.Errorf("got %q, wanted %q", got, want)
		}
	})
}

func TestRawQuery(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	stop := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)

	q := rawQuery("realised", []string{"a", "b"}, start, stop)

	for _, want := range []string{
		`from(bucket: "realised")`,
		`range(start: 2024-03-01T10:00:00Z, stop: 2024-03-01T11:00:00Z)`,
		`r._measurement == "power"`,
		`r._field == "output"`,
		`r.system == "a" or r.system == "b"`,
	} {
		if !strings.Contains(q, want) {
			t.Errorf("query is missing %q:\n%s", want, q)
		}
	}
	if strings.Contains(q, "aggregateWindow") {
		t.Errorf("raw query must not aggregate:\n%s", q)
	}
}

func TestAggregatedQuery(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	stop := time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC)

	q := aggregatedQuery("realised", []string{"a"}, start, stop, timeseries.Resolution(15*time.Minute))

	for _, want := range []string{
		`range(start: 2024-03-01T10:00:00Z, stop: 2024-03-01T11:30:00Z)`,
		`aggregateWindow(every: 15m, fn: mean)`,
		`aggregateWindow(every: 15m, fn: sum)`,
		`aggregateWindow(every: 15m, fn: count)`,
		`yield(name: "load")`,
		`yield(name: "entries")`,
	} {
		if !strings.Contains(q, want) {
			t.Errorf("query is missing %q:\n%s", want, q)
		}
	}
}
