package voice

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"odiadev-tts-server-go/internal/platform/storage"
)

// ProfileStore persists cloned voices across restarts.
type ProfileStore interface {
	List(ctx context.Context) ([]Profile, error)
	Save(ctx context.Context, p Profile) error
}

type sqliteProfileStore struct {
	db *gorm.DB
}

// NewSQLiteStore stores profiles in the voice_profiles table.
func NewSQLiteStore(db *gorm.DB) (ProfileStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite profile store requires database handle")
	}
	return &sqliteProfileStore{db: db}, nil
}

type profileMetadata struct {
	Cloned   bool   `json:"cloned"`
	Revision string `json:"revision,omitempty"`
}

func (s *sqliteProfileStore) Save(ctx context.Context, p Profile) error {
	meta, err := json.Marshal(profileMetadata{Cloned: p.Cloned, Revision: p.Revision})
	if err != nil {
		return err
	}
	record := storage.VoiceProfileRecord{
		VoiceID:         p.ID,
		Name:            p.Name,
		Language:        p.Language,
		Accent:          p.Accent,
		Gender:          p.Gender,
		Description:     p.Description,
		SampleText:      p.SampleText,
		EngineVoice:     p.EngineVoice,
		BaseVoice:       p.BaseVoice,
		SamplePath:      p.SamplePath,
		PitchOffsetHz:   p.PitchOffsetHz,
		RateOffsetPct:   p.RateOffsetPct,
		VolumeOffsetPct: p.VolumeOffsetPct,
		Metadata:        datatypes.JSON(meta),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "voice_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "language", "accent", "gender", "description", "sample_text",
			"engine_voice", "base_voice", "sample_path", "pitch_offset_hz",
			"rate_offset_pct", "volume_offset_pct", "metadata", "updated_at",
		}),
	}).Create(&record).Error
}

func (s *sqliteProfileStore) List(ctx context.Context) ([]Profile, error) {
	var records []storage.VoiceProfileRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&records).Error; err != nil {
		return nil, err
	}
	profiles := make([]Profile, 0, len(records))
	for _, rec := range records {
		p := Profile{
			ID:              rec.VoiceID,
			Name:            rec.Name,
			Language:        rec.Language,
			Accent:          rec.Accent,
			Gender:          rec.Gender,
			Description:     rec.Description,
			SampleText:      rec.SampleText,
			EngineVoice:     rec.EngineVoice,
			BaseVoice:       rec.BaseVoice,
			SamplePath:      rec.SamplePath,
			PitchOffsetHz:   rec.PitchOffsetHz,
			RateOffsetPct:   rec.RateOffsetPct,
			VolumeOffsetPct: rec.VolumeOffsetPct,
		}
		if len(rec.Metadata) > 0 {
			var meta profileMetadata
			if err := json.Unmarshal(rec.Metadata, &meta); err == nil {
				p.Cloned = meta.Cloned
				p.Revision = meta.Revision
			}
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}
