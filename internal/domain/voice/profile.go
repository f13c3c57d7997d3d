package voice

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Profile describes a synthesis voice. Profiles are values: the registry hands
// out copies and replaces whole profiles, it never edits one in place.
type Profile struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Language        string `json:"language"`
	Accent          string `json:"accent,omitempty"`
	Gender          string `json:"gender,omitempty"`
	Description     string `json:"description,omitempty"`
	SampleText      string `json:"sample_text,omitempty"`
	EngineVoice     string `json:"-"`
	PitchOffsetHz   int    `json:"pitch_offset_hz"`
	RateOffsetPct   int    `json:"rate_offset_pct"`
	VolumeOffsetPct int    `json:"volume_offset_pct"`
	Cloned          bool   `json:"cloned"`
	BaseVoice       string `json:"base_voice,omitempty"`
	SamplePath      string `json:"-"`
	// Revision changes each time a cloned voice is retrained.
	Revision string `json:"-"`
}

// CacheKey identifies how the voice sounds. Any change that can alter the
// rendered audio yields a different key, so cached audio of an older
// registration is never served for the new one.
func (p Profile) CacheKey() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%d\x00%d\x00%s\x00%s",
		p.EngineVoice, p.RateOffsetPct, p.VolumeOffsetPct, p.PitchOffsetHz, p.SamplePath, p.Revision)))
	return p.ID + "@" + hex.EncodeToString(sum[:8])
}

// Validate checks the fields the engine adapter relies on.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("voice id is required")
	}
	if strings.TrimSpace(p.EngineVoice) == "" {
		return fmt.Errorf("voice %s has no engine voice", p.ID)
	}
	if p.RateOffsetPct < -100 || p.RateOffsetPct > 200 {
		return fmt.Errorf("voice %s rate offset %d%% out of range", p.ID, p.RateOffsetPct)
	}
	if p.VolumeOffsetPct < -100 || p.VolumeOffsetPct > 100 {
		return fmt.Errorf("voice %s volume offset %d%% out of range", p.ID, p.VolumeOffsetPct)
	}
	return nil
}

// DisplayName derives "Ezinne" from "en-NG-EzinneNeural" when Name is empty.
func DisplayName(id string) string {
	parts := strings.Split(id, "-")
	last := parts[len(parts)-1]
	return strings.TrimSuffix(last, "Neural")
}

// Summary is the public listing shape returned by GET /voices.
type Summary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Language    string `json:"language"`
	Accent      string `json:"accent,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Description string `json:"description,omitempty"`
	SampleText  string `json:"sample_text,omitempty"`
	Cloned      bool   `json:"cloned"`
}

func (p Profile) Summary() Summary {
	name := p.Name
	if name == "" {
		name = DisplayName(p.ID)
	}
	return Summary{
		ID:          p.ID,
		Name:        name,
		Language:    p.Language,
		Accent:      p.Accent,
		Gender:      p.Gender,
		Description: p.Description,
		SampleText:  p.SampleText,
		Cloned:      p.Cloned,
	}
}
