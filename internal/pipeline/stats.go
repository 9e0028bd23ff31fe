package pipeline

// RunStats tracks per-target counters and output byte totals across one
// conversion run.
type RunStats struct {
	Planned     int
	Current     int
	Written     int
	Skipped     int
	Failed      int
	OutputBytes int64
}
