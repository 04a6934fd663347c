package backend

import (
	"maps"
	"testing"

	"hybridstream/internal/domain"
)

func seg(url string) domain.Segment {
	return domain.Segment{ID: domain.SegmentIDFor(url, nil), URL: url}
}

func TestRegistryAddStreamIdempotent(t *testing.T) {
	r := NewRegistry()
	desc := domain.StreamDescriptor{ID: "https://cdn.example.com/hi.m3u8", Type: domain.StreamMain}

	r.AddStreamIfNoneExists(desc)
	r.UpdateStream(desc.ID, []domain.Segment{seg("https://cdn.example.com/a.ts")}, nil)

	// Re-registering must not recreate the stream or lose its segments.
	r.AddStreamIfNoneExists(desc)

	s, ok := r.GetStream(desc.ID)
	if !ok {
		t.Fatal("stream vanished")
	}
	if len(s.Segments) != 1 {
		t.Fatalf("segments = %d, want 1 after re-registration", len(s.Segments))
	}
	if streams, _ := r.Counts(); streams != 1 {
		t.Fatalf("stream count = %d, want 1", streams)
	}
}

func TestRegistryUpdateStreamDelta(t *testing.T) {
	r := NewRegistry()
	const id = "https://cdn.example.com/hi.m3u8"
	r.AddStreamIfNoneExists(domain.StreamDescriptor{ID: id})

	a := seg("https://cdn.example.com/a.ts")
	bSeg := seg("https://cdn.example.com/b.ts")
	c := seg("https://cdn.example.com/c.ts")
	r.UpdateStream(id, []domain.Segment{a, bSeg}, nil)

	removed := map[domain.SegmentID]struct{}{a.ID: {}}
	r.UpdateStream(id, []domain.Segment{c}, maps.Keys(removed))

	s, _ := r.GetStream(id)
	if len(s.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(s.Segments))
	}
	if _, gone := s.Segments[a.ID]; gone {
		t.Fatal("removed segment still tracked")
	}
	if _, kept := s.Segments[bSeg.ID]; !kept {
		t.Fatal("untouched segment dropped")
	}
	if !r.HasSegment(c.ID) {
		t.Fatal("added segment not findable")
	}
}

func TestRegistryGetStreamSnapshot(t *testing.T) {
	r := NewRegistry()
	const id = "https://cdn.example.com/hi.m3u8"
	r.AddStreamIfNoneExists(domain.StreamDescriptor{ID: id})
	r.UpdateStream(id, []domain.Segment{seg("https://cdn.example.com/a.ts")}, nil)

	snapshot, _ := r.GetStream(id)
	delete(snapshot.Segments, seg("https://cdn.example.com/a.ts").ID)

	fresh, _ := r.GetStream(id)
	if len(fresh.Segments) != 1 {
		t.Fatal("mutating a snapshot leaked into the registry")
	}
}

func TestRegistryPlaybackState(t *testing.T) {
	r := NewRegistry()
	r.SetManifestResponseURL("https://cdn.example.com/master.m3u8")
	r.SetActiveLevelBitrate(4_500_000)
	r.SetIsLive(true)
	r.UpdatePlayback(42.5, 1.0)

	if r.ManifestResponseURL() != "https://cdn.example.com/master.m3u8" {
		t.Fatal("manifest URL lost")
	}
	if r.ActiveLevelBitrate() != 4_500_000 || !r.IsLive() {
		t.Fatal("level/live state lost")
	}
	if pos, rate := r.Playback(); pos != 42.5 || rate != 1.0 {
		t.Fatalf("playback = (%v, %v)", pos, rate)
	}
}
