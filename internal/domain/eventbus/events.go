package eventbus

import "time"

const (
	EventCloneSubmitted = "voice:clone.submitted"
	EventCloneCompleted = "voice:clone.completed"
	EventCloneFailed    = "voice:clone.failed"

	EventVoiceRegistered = "voice:registered"

	EventSystemError = "system:error"
)

// CloneEventData is published for every clone job state change.
type CloneEventData struct {
	JobID       string    `json:"job_id"`
	VoiceID     string    `json:"voice_id"`
	BaseVoice   string    `json:"base_voice,omitempty"`
	EngineVoice string    `json:"engine_voice,omitempty"`
	SamplePath  string    `json:"sample_path,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

type VoiceEventData struct {
	VoiceID string `json:"voice_id"`
	Cloned  bool   `json:"cloned"`
}

type SystemEventData struct {
	Level   string      `json:"level"` // error, warn, info
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
