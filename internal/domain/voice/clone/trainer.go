package clone

import (
	"context"
	"fmt"
	"os"

	"odiadev-tts-server-go/internal/domain/audio"
	"odiadev-tts-server-go/internal/domain/voice"
)

// ReferenceTrainer stands in for a real training backend. It checks that the
// sample is a readable WAV or MP3 file and derives the new voice from its
// base voice, keeping the sample path so a cloning-capable engine can use it.
type ReferenceTrainer struct{}

func (ReferenceTrainer) Train(ctx context.Context, req TrainRequest) (voice.Profile, error) {
	if err := ctx.Err(); err != nil {
		return voice.Profile{}, err
	}

	f, err := os.Open(req.SamplePath)
	if err != nil {
		return voice.Profile{}, fmt.Errorf("open sample: %w", err)
	}
	defer f.Close()

	head := make([]byte, 16)
	n, _ := f.Read(head)
	if _, ok := audio.Sniff(head[:n]); !ok {
		return voice.Profile{}, fmt.Errorf("sample is not a wav or mp3 file")
	}

	base := req.Base
	return voice.Profile{
		ID:              req.VoiceID,
		Name:            voice.DisplayName(req.VoiceID),
		Language:        base.Language,
		Accent:          base.Accent,
		Gender:          base.Gender,
		Description:     fmt.Sprintf("Cloned voice based on %s", base.ID),
		SampleText:      base.SampleText,
		EngineVoice:     base.EngineVoice,
		PitchOffsetHz:   base.PitchOffsetHz,
		RateOffsetPct:   base.RateOffsetPct,
		VolumeOffsetPct: base.VolumeOffsetPct,
		Cloned:          true,
		BaseVoice:       base.ID,
		SamplePath:      req.SamplePath,
	}, nil
}
