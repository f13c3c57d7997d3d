package storage

import (
	"time"

	"gorm.io/datatypes"
)

// UsageAccount is the durable row behind an API key's ledger entry.
type UsageAccount struct {
	ID                    uint      `gorm:"primaryKey"`
	APIKey                string    `gorm:"column:api_key;type:varchar(255);uniqueIndex;not null"`
	Tier                  string    `gorm:"type:varchar(32);index;not null"`
	RequestsUsed          int64     `gorm:"not null;default:0"`
	RequestsLimit         int64     `gorm:"not null;default:0"`
	CharactersUsed        int64     `gorm:"not null;default:0"`
	SynthesizedCharacters int64     `gorm:"not null;default:0"`
	CacheHits             int64     `gorm:"not null;default:0"`
	Failures              int64     `gorm:"not null;default:0"`
	PeriodStart           time.Time `gorm:"not null"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (UsageAccount) TableName() string {
	return "usage_accounts"
}

// VoiceProfileRecord persists a cloned voice so it is re-registered on restart.
type VoiceProfileRecord struct {
	ID              uint   `gorm:"primaryKey"`
	VoiceID         string `gorm:"type:varchar(255);uniqueIndex;not null"`
	Name            string
	Language        string
	Accent          string
	Gender          string
	Description     string `gorm:"type:text"`
	SampleText      string `gorm:"type:text"`
	EngineVoice     string `gorm:"not null"`
	BaseVoice       string
	SamplePath      string
	PitchOffsetHz   int
	RateOffsetPct   int
	VolumeOffsetPct int
	Metadata        datatypes.JSON
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (VoiceProfileRecord) TableName() string {
	return "voice_profiles"
}
