package domain

import "strconv"

// SegmentID uniquely identifies a requested resource plus optional byte range.
// It is the join key between the player's segment model and the backend's.
type SegmentID string

// ByteRange is a closed byte interval [Start, End] within a resource.
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered by the range.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// RangeFromExclusive converts an end-exclusive byte range, as reported by
// players and playlists, into the inclusive form used for identity
// computation. This is the only place that conversion happens; both the
// fragment loader and the playlist reconciler go through it.
// Returns nil when the pair does not describe a valid non-empty range.
func RangeFromExclusive(start, endExclusive int64) *ByteRange {
	if start < 0 || endExclusive <= start {
		return nil
	}
	return &ByteRange{Start: start, End: endExclusive - 1}
}

// SegmentIDFor computes the identity for url with an optional inclusive byte
// range. Without a valid range the identity is the URL verbatim; with one it
// is the URL, a separator and the inclusive "start-end" pair. Identical
// (url, range) pairs always produce identical identities, distinct ranges of
// the same URL always produce distinct ones.
func SegmentIDFor(url string, rng *ByteRange) SegmentID {
	if rng == nil || rng.Start < 0 || rng.Start > rng.End {
		return SegmentID(url)
	}
	return SegmentID(url + "|" + strconv.FormatInt(rng.Start, 10) + "-" + strconv.FormatInt(rng.End, 10))
}

// Segment is one addressable chunk of a Stream. Segments are immutable:
// the reconciler adds and removes them wholesale, never mutates in place.
type Segment struct {
	ID         SegmentID
	URL        string
	ExternalID uint64 // live sequence number for live playlists, positional index for static ones
	Range      *ByteRange
	StartTime  float64 // presentation time, seconds
	EndTime    float64
}
