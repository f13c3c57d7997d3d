package migrations

import (
	"gorm.io/gorm"
)

// Initial creates the ledger and voice profile tables.
type Initial struct{}

func (Initial) Version() string {
	return "001_initial"
}

func (Initial) Description() string {
	return "Create usage account and cloned voice profile tables"
}

func (Initial) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS usage_accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			api_key VARCHAR(255) NOT NULL UNIQUE,
			tier VARCHAR(32) NOT NULL,
			requests_used INTEGER NOT NULL DEFAULT 0,
			requests_limit INTEGER NOT NULL DEFAULT 0,
			characters_used INTEGER NOT NULL DEFAULT 0,
			synthesized_characters INTEGER NOT NULL DEFAULT 0,
			cache_hits INTEGER NOT NULL DEFAULT 0,
			failures INTEGER NOT NULL DEFAULT 0,
			period_start DATETIME NOT NULL,
			created_at DATETIME,
			updated_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS voice_profiles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			voice_id VARCHAR(255) NOT NULL UNIQUE,
			name VARCHAR(255),
			language VARCHAR(32),
			accent VARCHAR(255),
			gender VARCHAR(32),
			description TEXT,
			sample_text TEXT,
			engine_voice VARCHAR(255) NOT NULL,
			base_voice VARCHAR(255),
			sample_path VARCHAR(1024),
			pitch_offset_hz INTEGER NOT NULL DEFAULT 0,
			rate_offset_pct INTEGER NOT NULL DEFAULT 0,
			volume_offset_pct INTEGER NOT NULL DEFAULT 0,
			metadata JSON,
			created_at DATETIME,
			updated_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_usage_accounts_tier ON usage_accounts(tier)`).Error
}

func (Initial) Down(db *gorm.DB) error {
	for _, table := range []string{"voice_profiles", "usage_accounts"} {
		if err := db.Exec("DROP TABLE IF EXISTS " + table).Error; err != nil {
			return err
		}
	}
	return nil
}
