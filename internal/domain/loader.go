package domain

// ContextType says what kind of resource a load request is for. Only
// fragment requests are eligible for backend delivery; playlist-type
// requests always go through the fallback loader.
type ContextType string

const (
	ContextFragment   ContextType = "fragment"
	ContextManifest   ContextType = "manifest"
	ContextLevel      ContextType = "level"
	ContextAudioTrack ContextType = "audioTrack"
)

// LoadContext describes a single resource request from the player.
// Range is already inclusive; construct it with RangeFromExclusive.
type LoadContext struct {
	URL   string
	Type  ContextType
	Range *ByteRange
	SN    uint64
}

// LoadPolicy carries the per-request loader tuning the player hands down.
// Retry policy belongs to the fallback loader; the coordinator itself never
// retries.
type LoadPolicy struct {
	TimeoutMS       int64
	MaxRetry        int
	RetryDelayMS    int64
	MaxRetryDelayMS int64
}

// LoadResponse is the payload handed to OnSuccess.
type LoadResponse struct {
	URL  string
	Data []byte
}

// LoadError is the normalized error surfaced to the player. Code stays at
// the zero sentinel unless a transport gave us something better.
type LoadError struct {
	Code int
	Text string
}

// LoaderCallbacks is the player's callback contract. Exactly one terminal
// callback (success, error or abort) fires per request; OnProgress is
// optional and may fire any number of times before the terminal one.
type LoaderCallbacks struct {
	OnSuccess  func(resp LoadResponse, stats *Stats, ctx *LoadContext)
	OnError    func(err LoadError, ctx *LoadContext, data []byte, stats *Stats)
	OnAbort    func(stats *Stats, ctx *LoadContext)
	OnProgress func(stats *Stats, ctx *LoadContext, chunk []byte)
}

// SegmentResponse is what a backend returns for a successful segment load.
// BandwidthBps is the backend-observed transfer rate in bits per second.
type SegmentResponse struct {
	Payload      []byte
	BandwidthBps float64
}
