package playlist

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"hybridstream/internal/domain"
)

const multivariantFixture = `#EXTM3U
#EXT-X-VERSION:4
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",NAME="English",LANGUAGE="en",DEFAULT=YES,AUTOSELECT=YES,URI="audio/en/index.m3u8"
#EXT-X-STREAM-INF:BANDWIDTH=4500000,CODECS="avc1.640028,mp4a.40.2",RESOLUTION=1920x1080,AUDIO="aud"
hi/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1500000,CODECS="avc1.64001f,mp4a.40.2",RESOLUTION=1280x720,AUDIO="aud"
lo/index.m3u8
`

const vodFixture = `#EXTM3U
#EXT-X-VERSION:4
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:7
#EXTINF:6.000,
seg7.ts
#EXTINF:5.500,
seg8.ts
#EXT-X-ENDLIST
`

const byterangeFixture = `#EXTM3U
#EXT-X-VERSION:4
#EXT-X-TARGETDURATION:4
#EXTINF:4.000,
#EXT-X-BYTERANGE:1000@0
all.ts
#EXTINF:4.000,
#EXT-X-BYTERANGE:500
all.ts
#EXTINF:4.000,
#EXT-X-BYTERANGE:300@5000
all.ts
`

func TestParseManifest(t *testing.T) {
	update, err := ParseManifest("https://cdn.example.com/live/master.m3u8", []byte(multivariantFixture))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if update.ManifestURL != "https://cdn.example.com/live/master.m3u8" {
		t.Fatalf("manifest URL = %q", update.ManifestURL)
	}
	if len(update.Renditions) != 2 {
		t.Fatalf("renditions = %d, want 2", len(update.Renditions))
	}
	if update.Renditions[0].URLs[0] != "https://cdn.example.com/live/hi/index.m3u8" {
		t.Fatalf("rendition URL = %q, want absolutized", update.Renditions[0].URLs[0])
	}
	if update.Renditions[0].Bitrate != 4_500_000 || update.Renditions[1].Bitrate != 1_500_000 {
		t.Fatalf("bitrates = %d, %d", update.Renditions[0].Bitrate, update.Renditions[1].Bitrate)
	}
	if len(update.AudioTracks) != 1 {
		t.Fatalf("audio tracks = %d, want 1", len(update.AudioTracks))
	}
	if update.AudioTracks[0].URLs[0] != "https://cdn.example.com/live/audio/en/index.m3u8" {
		t.Fatalf("audio URL = %q", update.AudioTracks[0].URLs[0])
	}
}

func TestParseManifestRejectsMediaPlaylist(t *testing.T) {
	if _, err := ParseManifest("https://cdn.example.com/hi.m3u8", []byte(vodFixture)); err == nil {
		t.Fatal("want error for media playlist handed to ParseManifest")
	}
}

func TestParseLevelVOD(t *testing.T) {
	update, err := ParseLevel("https://cdn.example.com/live/hi/index.m3u8", domain.StreamMain, []byte(vodFixture))
	if err != nil {
		t.Fatalf("ParseLevel: %v", err)
	}
	if update.Live {
		t.Fatal("ENDLIST playlist reported live")
	}
	if update.TargetDuration != 6 {
		t.Fatalf("target duration = %v", update.TargetDuration)
	}
	if len(update.Fragments) != 2 {
		t.Fatalf("fragments = %d, want 2", len(update.Fragments))
	}

	first, second := update.Fragments[0], update.Fragments[1]
	if first.SN != 7 || second.SN != 8 {
		t.Fatalf("sequence numbers = %d, %d", first.SN, second.SN)
	}
	if first.URL != "https://cdn.example.com/live/hi/seg7.ts" {
		t.Fatalf("fragment URL = %q", first.URL)
	}
	if first.RangeEnd > first.RangeStart {
		t.Fatal("rangeless fragment carries a byte range")
	}
	if first.Start != 0 || math.Abs(first.End-6.0) > 1e-9 {
		t.Fatalf("first timing = [%v, %v]", first.Start, first.End)
	}
	if math.Abs(second.Start-6.0) > 1e-9 || math.Abs(second.End-11.5) > 1e-9 {
		t.Fatalf("second timing = [%v, %v]", second.Start, second.End)
	}
}

func TestParseLevelByteRanges(t *testing.T) {
	update, err := ParseLevel("https://cdn.example.com/hi/index.m3u8", domain.StreamMain, []byte(byterangeFixture))
	if err != nil {
		t.Fatalf("ParseLevel: %v", err)
	}
	if !update.Live {
		t.Fatal("playlist without ENDLIST should be live")
	}
	if len(update.Fragments) != 3 {
		t.Fatalf("fragments = %d, want 3", len(update.Fragments))
	}

	want := []struct{ start, end int64 }{
		{0, 1000},    // explicit offset
		{1000, 1500}, // continues the previous range
		{5000, 5300}, // explicit offset resets the cursor
	}
	for i, w := range want {
		frag := update.Fragments[i]
		if frag.RangeStart != w.start || frag.RangeEnd != w.end {
			t.Fatalf("fragment %d range = [%d, %d), want [%d, %d)", i, frag.RangeStart, frag.RangeEnd, w.start, w.end)
		}
	}
}

func TestFetchManifestFollowsRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/master.m3u8":
			http.Redirect(w, r, "/live/master.m3u8", http.StatusFound)
		case "/live/master.m3u8":
			w.Write([]byte(multivariantFixture))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())
	update, err := f.FetchManifest(context.Background(), srv.URL+"/master.m3u8")
	if err != nil {
		t.Fatalf("FetchManifest: %v", err)
	}
	if update.ManifestURL != srv.URL+"/live/master.m3u8" {
		t.Fatalf("manifest URL = %q, want post-redirect URL", update.ManifestURL)
	}
	// Relative URIs resolve against the redirect target, not the request URL.
	if update.Renditions[0].URLs[0] != srv.URL+"/live/hi/index.m3u8" {
		t.Fatalf("rendition URL = %q", update.Renditions[0].URLs[0])
	}
}

func TestFetchLevelErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())
	if _, err := f.FetchLevel(context.Background(), srv.URL+"/hi.m3u8", domain.StreamMain); err == nil {
		t.Fatal("want error for 404 playlist")
	}
}
