package model

import (
	"math"
	"time"
)

type Song struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist"`
	Genre      string    `json:"genre"`
	Duration   string    `json:"duration"`
	BPM        *int      `json:"bpm,omitempty"`
	Key        *string   `json:"key,omitempty"`
	FilePath   string    `json:"filePath"`
	Thumbnail  string    `json:"thumbnail"`
	UserID     string    `json:"userId"`
	HistoryID  string    `json:"historyId"`
	Favorite   bool      `json:"favorite"`
	UploadedAt time.Time `json:"uploadedAt"`
	Stems      []Stem    `json:"stems,omitempty"`
}

// StemKind identifies one isolated component of a separated track.
type StemKind string

const (
	StemVocal StemKind = "VOCAL"
	StemDrums StemKind = "DRUMS"
	StemBass  StemKind = "BASS"
	StemOther StemKind = "OTHER"
)

// StemKinds lists every kind a complete separation produces, in output order.
var StemKinds = []StemKind{StemVocal, StemDrums, StemBass, StemOther}

const (
	MinVolume     = 0
	MaxVolume     = 100
	DefaultVolume = MaxVolume
)

type Stem struct {
	ID        string    `json:"id"`
	SongID    string    `json:"songId"`
	Kind      StemKind  `json:"kind"`
	FilePath  string    `json:"filePath"`
	Volume    int       `json:"volume"`
	CreatedAt time.Time `json:"createdAt"`
}

// ClampVolume rounds v and pins it to [MinVolume, MaxVolume]. NaN maps to
// MinVolume.
func ClampVolume(v float64) int {
	if math.IsNaN(v) {
		return MinVolume
	}
	r := math.Round(v)
	if r < MinVolume {
		return MinVolume
	}
	if r > MaxVolume {
		return MaxVolume
	}
	return int(r)
}

// VolumeRequest is the body of PATCH /api/stems/:id/volume.
type VolumeRequest struct {
	Volume *float64 `json:"volume" validate:"required"`
}

// Stats summarizes a user's library.
type Stats struct {
	TotalSongs    int `json:"totalSongs"`
	Favorites     int `json:"favorites"`
	Conversions   int `json:"conversions"`
	TotalDuration int `json:"totalDuration"` // seconds
}
