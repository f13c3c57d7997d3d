// Package clone runs voice-cloning jobs off the request path. Uploaded
// samples go to disk, an external Trainer turns them into a profile, and the
// finished profile is handed to a Registrar once training succeeds.
package clone

import (
	"context"
	"time"

	"odiadev-tts-server-go/internal/domain/voice"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusTraining  Status = "training"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is the externally visible state of one clone request.
type Job struct {
	ID          string     `json:"job_id"`
	VoiceID     string     `json:"voice_id"`
	BaseVoice   string     `json:"base_voice"`
	SamplePath  string     `json:"-"`
	SampleBytes int64      `json:"sample_bytes"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Finished reports whether the job reached a terminal state.
func (j Job) Finished() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// TrainRequest is what the trainer receives for one job.
type TrainRequest struct {
	JobID      string
	VoiceID    string
	Base       voice.Profile
	SamplePath string
}

// Trainer is the external voice-training collaborator. It may take as long
// as it needs; it must honour ctx cancellation.
type Trainer interface {
	Train(ctx context.Context, req TrainRequest) (voice.Profile, error)
}

// Registrar consumes successful training results. *voice.Registry
// implements it.
type Registrar interface {
	Resolve(id string) (voice.Profile, error)
	Register(ctx context.Context, p voice.Profile) error
}

// SubmitRequest carries an uploaded sample.
type SubmitRequest struct {
	VoiceID   string
	BaseVoice string
	Filename  string
	Priority  int
}
