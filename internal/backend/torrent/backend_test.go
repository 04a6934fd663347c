package torrent

import "testing"

func TestSegmentBaseName(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"plain", "https://cdn.example.com/vod/seg42.ts", "seg42.ts"},
		{"query ignored", "https://cdn.example.com/vod/seg42.ts?token=abc", "seg42.ts"},
		{"nested path", "https://cdn.example.com/a/b/c/init.mp4", "init.mp4"},
		{"no path", "https://cdn.example.com", ""},
		{"root path", "https://cdn.example.com/", ""},
		{"unparsable", "http://cdn.example.com/%zz", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := segmentBaseName(tt.url); got != tt.want {
				t.Errorf("segmentBaseName(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}
