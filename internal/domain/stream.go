package domain

// StreamType tags a stream as a main rendition or a secondary (audio) track.
type StreamType string

const (
	StreamMain      StreamType = "main"
	StreamSecondary StreamType = "secondary"
)

// StreamDescriptor is the registration request for a playable track.
// ID is the track's first variant URL; SwarmSource optionally names the
// delivery-backend source (e.g. a magnet link) for the track's content.
type StreamDescriptor struct {
	ID          string
	Type        StreamType
	Index       int
	SwarmSource string
}

// Stream is one playable track known to the backend, holding the segments
// currently tracked for it. Created once per distinct track; destroyed only
// with the backend session.
type Stream struct {
	ID          string
	Type        StreamType
	Index       int
	SwarmSource string
	Segments    map[SegmentID]Segment
}

// Track describes one rendition or audio track discovered in a manifest.
// URLs holds the track's variant playlist URLs in manifest order; the first
// one doubles as the stream identity.
type Track struct {
	URLs        []string
	Bitrate     int64
	SwarmSource string
}

// ManifestUpdate carries everything learned from a full (multivariant)
// manifest: the renditions and audio tracks it lists, plus the final
// response URL after redirects.
type ManifestUpdate struct {
	ManifestURL string
	Renditions  []Track
	AudioTracks []Track
}

// PlaylistFragment is one fragment entry of a level or track playlist as
// reported by the player side. The byte range is end-exclusive; it is
// converted to the inclusive form in exactly one place (RangeFromExclusive).
type PlaylistFragment struct {
	URL        string
	SN         uint64 // media sequence number, meaningful for live playlists
	RangeStart int64
	RangeEnd   int64 // end-exclusive; RangeEnd <= RangeStart means no range
	Start      float64
	End        float64
}

// LevelUpdate carries one level/track playlist refresh for a previously
// registered stream, keyed by the track's playlist URL.
type LevelUpdate struct {
	TrackURL       string
	Type           StreamType
	Live           bool
	TargetDuration float64
	Fragments      []PlaylistFragment
}
