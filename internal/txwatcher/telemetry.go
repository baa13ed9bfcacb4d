package txwatcher

import (
	"github.com/gabapcia/txwatch/internal/pkg/telemetry"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var tracer = telemetry.Tracer("txwatcher")

type instruments struct {
	fetchCycles          metric.Int64Counter
	explorerFailures     metric.Int64Counter
	transactionsObserved metric.Int64Counter
	timestampsBackfilled metric.Int64Counter
}

func newInstruments() instruments {
	meter := telemetry.Meter("txwatcher")
	fallback := noop.Meter{}

	counter := func(name, description string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(description))
		if err != nil {
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	return instruments{
		fetchCycles:          counter("txwatcher.fetch.cycles", "Completed fetch cycles."),
		explorerFailures:     counter("txwatcher.explorer.failures", "Explorer queries abandoned after every retry."),
		transactionsObserved: counter("txwatcher.transactions.observed", "Records merged into the store."),
		timestampsBackfilled: counter("txwatcher.timestamps.backfilled", "Records that received a block timestamp."),
	}
}
