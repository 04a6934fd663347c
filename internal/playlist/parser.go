// Package playlist turns HLS manifests into the domain's track and
// fragment shapes. Parsing is delegated to gohlslib; this package only
// maps its types onto ManifestUpdate/LevelUpdate and absolutizes URIs
// against the playlist's own URL.
package playlist

import (
	"fmt"
	"net/url"

	gohls "github.com/bluenviron/gohlslib/v2/pkg/playlist"

	"hybridstream/internal/domain"
)

// ParseManifest interprets data as a multivariant playlist fetched from
// manifestURL. Variant and rendition URIs come back absolute.
func ParseManifest(manifestURL string, data []byte) (domain.ManifestUpdate, error) {
	parsed, err := gohls.Unmarshal(data)
	if err != nil {
		return domain.ManifestUpdate{}, fmt.Errorf("parse manifest: %w", err)
	}
	mv, ok := parsed.(*gohls.Multivariant)
	if !ok {
		return domain.ManifestUpdate{}, fmt.Errorf("parse manifest: %s is a media playlist, expected multivariant", manifestURL)
	}

	update := domain.ManifestUpdate{ManifestURL: manifestURL}
	for _, variant := range mv.Variants {
		if variant == nil || variant.URI == "" {
			continue
		}
		update.Renditions = append(update.Renditions, domain.Track{
			URLs:    []string{absolutize(manifestURL, variant.URI)},
			Bitrate: int64(variant.Bandwidth),
		})
	}
	for _, rendition := range mv.Renditions {
		if rendition == nil || rendition.Type != gohls.MultivariantRenditionTypeAudio || rendition.URI == nil || *rendition.URI == "" {
			continue
		}
		update.AudioTracks = append(update.AudioTracks, domain.Track{
			URLs: []string{absolutize(manifestURL, *rendition.URI)},
		})
	}
	return update, nil
}

// ParseLevel interprets data as a media playlist for the track at
// trackURL. Fragment byte ranges stay end-exclusive here; sequence
// numbers count up from the playlist's media sequence, and start/end
// times accumulate from segment durations.
func ParseLevel(trackURL string, streamType domain.StreamType, data []byte) (domain.LevelUpdate, error) {
	parsed, err := gohls.Unmarshal(data)
	if err != nil {
		return domain.LevelUpdate{}, fmt.Errorf("parse level playlist: %w", err)
	}
	media, ok := parsed.(*gohls.Media)
	if !ok {
		return domain.LevelUpdate{}, fmt.Errorf("parse level playlist: %s is a multivariant playlist, expected media", trackURL)
	}

	update := domain.LevelUpdate{
		TrackURL:       trackURL,
		Type:           streamType,
		Live:           !media.Endlist,
		TargetDuration: float64(media.TargetDuration),
	}

	var elapsed float64
	// A byterange without an offset continues where the previous
	// fragment of the same file stopped.
	var nextOffset uint64
	for i, seg := range media.Segments {
		if seg == nil {
			continue
		}
		frag := domain.PlaylistFragment{
			URL:   absolutize(trackURL, seg.URI),
			SN:    uint64(media.MediaSequence) + uint64(i),
			Start: elapsed,
			End:   elapsed + seg.Duration.Seconds(),
		}
		if seg.ByteRangeLength != nil {
			offset := nextOffset
			if seg.ByteRangeStart != nil {
				offset = *seg.ByteRangeStart
			}
			frag.RangeStart = int64(offset)
			frag.RangeEnd = int64(offset + *seg.ByteRangeLength)
			nextOffset = offset + *seg.ByteRangeLength
		}
		elapsed = frag.End
		update.Fragments = append(update.Fragments, frag)
	}
	return update, nil
}

func absolutize(playlistURL, uri string) string {
	base, err := url.Parse(playlistURL)
	if err != nil {
		return uri
	}
	ref, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	return base.ResolveReference(ref).String()
}
