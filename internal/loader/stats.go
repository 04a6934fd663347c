package loader

import (
	"time"

	"hybridstream/internal/domain"
)

// assumedFirstByteLatencyMS models the request-to-first-byte latency of a
// network load. The backend hands payloads over without real network timing,
// so synthesized timings assume this fixed latency.
const assumedFirstByteLatencyMS = 10

// SynthesizeTiming derives plausible start/first-byte/end marks for a load
// that completed at now, as if loadedBytes had been transferred at
// bandwidthBps. The result always satisfies Start <= First <= End. A zero or
// negative bandwidth yields a zero transfer time rather than garbage.
func SynthesizeTiming(bandwidthBps float64, loadedBytes int64, now time.Time) domain.TimeRange {
	end := now.UnixMilli()
	var transferMS int64
	if bandwidthBps > 0 && loadedBytes > 0 {
		// bytes -> bits, seconds -> milliseconds
		transferMS = int64(float64(loadedBytes) * 8000 / bandwidthBps)
	}
	first := end - transferMS
	return domain.TimeRange{
		Start: first - assumedFirstByteLatencyMS,
		First: first,
		End:   end,
	}
}
