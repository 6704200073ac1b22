package output

import (
	"github.com/Crusty-rs/crusty/internal/dispatch"
	"github.com/Crusty-rs/crusty/internal/logging"
)

// RunSummary is the immutable fold of the result stream: aggregate counts
// plus every terminal result, in arrival order.
type RunSummary struct {
	Total     int
	Succeeded int
	Failed    int
	Results   []*dispatch.Result
}

// AllSucceeded reports whether the process exit code should be zero.
func (s *RunSummary) AllSucceeded() bool {
	return s.Failed == 0 && s.Total > 0
}

// Aggregator consumes the dispatcher's result stream, forwarding each
// result to the formatter the instant it arrives and folding the summary.
type Aggregator struct {
	formatter Formatter
	logger    *logging.Logger
}

// NewAggregator wires a formatter behind the result stream.
func NewAggregator(f Formatter, logger *logging.Logger) *Aggregator {
	return &Aggregator{formatter: f, logger: logger}
}

// Consume drains the stream to completion and returns the summary. A
// formatting failure is logged but never interrupts result collection; the
// run's outcome is decided by the results, not by rendering.
func (a *Aggregator) Consume(results <-chan *dispatch.Result) *RunSummary {
	summary := &RunSummary{}

	for r := range results {
		summary.Total++
		if r.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, r)

		if err := a.formatter.Format(r); err != nil {
			a.logger.LogFormatError(r.Target, err)
		}
	}

	if err := a.formatter.Finalize(); err != nil {
		a.logger.LogFinalizeError(err)
	}

	return summary
}
