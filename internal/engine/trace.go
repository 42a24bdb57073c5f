package engine

// Record describes one processed action.
type Record struct {
	Seq       int64  `json:"seq"`
	Drain     int    `json:"drain"`
	Cascade   string `json:"cascade"`
	Depth     int    `json:"depth"`
	Action    any    `json:"action"`
	Accepted  bool   `json:"accepted"`
	RulesRun  int    `json:"rules_run"`
	FollowOns int    `json:"follow_ons"`
	// Checksum is the xxhash64 of the committed state after the action.
	Checksum uint64 `json:"checksum"`
}

// Tracer receives a Record after every processed action.
type Tracer interface {
	Trace(Record)
}

// TracerFunc adapts a function to Tracer.
type TracerFunc func(Record)

// Trace calls f(r).
func (f TracerFunc) Trace(r Record) { f(r) }

// Recorder is a Tracer that keeps every record in memory.
type Recorder struct {
	Records []Record
}

// Trace appends r.
func (r *Recorder) Trace(rec Record) {
	r.Records = append(r.Records, rec)
}
