package domain

// TimeRange holds the three load-timing marks ABR logic reads, in unix
// milliseconds: request start, first byte, completion.
type TimeRange struct {
	Start int64 `json:"start"`
	First int64 `json:"first"`
	End   int64 `json:"end"`
}

// ParseTiming holds parse start/end marks, in unix milliseconds.
type ParseTiming struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Stats is the per-request loader statistics object the player reads after
// every callback. Its shape matches the conventional network loader's, so
// downstream bandwidth estimation works the same on both delivery paths.
//
// When a payload is served by the backend, Total and Loaded are both set to
// the payload size before the first callback. That is a deliberate signal:
// a request whose total equals its loaded count from the start is already
// fully available, which suppresses progressive-loading heuristics in ABR
// controllers that watch partial progress.
type Stats struct {
	Aborted    bool        `json:"aborted"`
	ChunkCount int         `json:"chunkCount"`
	Loading    TimeRange   `json:"loading"`
	Buffering  TimeRange   `json:"buffering"`
	Parsing    ParseTiming `json:"parsing"`
	Total      int64       `json:"total"`
	Loaded     int64       `json:"loaded"`
	BWEstimate float64     `json:"bwEstimate"`
	Retry      int         `json:"retry"`
}
