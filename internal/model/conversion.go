package model

import "time"

// JobStatus is the lifecycle state of a conversion. Transitions only move
// forward: PENDING -> PROCESSING -> DONE | ERROR.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusDone       JobStatus = "DONE"
	JobStatusError      JobStatus = "ERROR"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// Conversion is the history record tracking one URL-to-audio request.
// Display metadata stays nil until extraction succeeds and is then written
// in one update.
type Conversion struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	Status       JobStatus  `json:"status"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
	UserID       string     `json:"userId"`
	Title        *string    `json:"title,omitempty"`
	Artist       *string    `json:"artist,omitempty"`
	Thumbnail    *string    `json:"thumbnail,omitempty"`
	Duration     *string    `json:"duration,omitempty"`
	Key          *string    `json:"key,omitempty"`
}

// TrackMetadata is the normalized result of a metadata extraction.
type TrackMetadata struct {
	Title     string  `json:"title"`
	Artist    string  `json:"artist"`
	Thumbnail string  `json:"thumbnail"`
	Duration  string  `json:"duration"`
	Genre     string  `json:"genre"`
	Key       *string `json:"key,omitempty"`
}

// ConvertRequest is the body of POST /api/convert.
type ConvertRequest struct {
	URL         string `json:"url" validate:"required"`
	EnableStems bool   `json:"enableStems"`
}

// ConvertResponse is returned as soon as the job record exists.
type ConvertResponse struct {
	ID      string    `json:"id"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
}

// ConversionTask is the payload handed to a dispatcher for one job.
type ConversionTask struct {
	JobID       string `json:"jobId"`
	URL         string `json:"url"`
	UserID      string `json:"userId"`
	EnableStems bool   `json:"enableStems"`
}
