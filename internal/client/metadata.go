package client

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/stemdeck/api/internal/model"
)

const (
	unknownTrack  = "Unknown Track"
	unknownArtist = "Unknown Artist"
	defaultGenre  = "Pop"
)

// VideoInfo is the subset of yt-dlp's --dump-single-json output we read.
type VideoInfo struct {
	Track     string   `json:"track"`
	Title     string   `json:"title"`
	Artist    string   `json:"artist"`
	Uploader  string   `json:"uploader"`
	Channel   string   `json:"channel"`
	Creator   string   `json:"creator"`
	Thumbnail string   `json:"thumbnail"`
	Duration  *float64 `json:"duration"`
	Genre     string   `json:"genre"`
	MusicKey  string   `json:"music_key"`
	Key       string   `json:"key"`
}

// MapMetadata applies the fallback chains that turn raw extractor output
// into display metadata. now seeds the placeholder thumbnail.
func MapMetadata(info *VideoInfo, now time.Time) model.TrackMetadata {
	title := firstNonEmpty(info.Track, info.Title, unknownTrack)
	meta := model.TrackMetadata{
		Title:     title,
		Artist:    firstNonEmpty(info.Artist, info.Uploader, info.Channel, info.Creator, unknownArtist),
		Thumbnail: info.Thumbnail,
		Duration:  model.FormatDuration(durationSeconds(info.Duration)),
		Genre:     firstNonEmpty(info.Genre, defaultGenre),
	}
	if strings.TrimSpace(meta.Thumbnail) == "" {
		meta.Thumbnail = fmt.Sprintf("https://picsum.photos/300/300?random=%d", now.UnixMilli())
	}

	if key := NormalizeKey(firstNonEmpty(info.MusicKey, info.Key)); key != nil {
		meta.Key = key
	} else {
		meta.Key = DetectKey(title)
	}
	return meta
}

// keyPattern matches a standalone note letter with optional accidental and
// minor marker, e.g. "A", "C#", "Bb", "Am", "F#m".
var keyPattern = regexp.MustCompile(`(?:^|[^\w#])([A-G][#b]?m?)(?:$|[^\w#])`)

// DetectKey scans text for a musical key token and returns it uppercased,
// or nil when none is present.
func DetectKey(text string) *string {
	match := keyPattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	return NormalizeKey(match[1])
}

// NormalizeKey trims and uppercases raw; blank input yields nil.
func NormalizeKey(raw string) *string {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func durationSeconds(d *float64) int {
	if d == nil || math.IsNaN(*d) || *d <= 0 {
		return 0
	}
	return int(math.Floor(*d))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
