package storage

import (
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"odiadev-tts-server-go/internal/platform/errors"
)

// Migration is one versioned schema change. Versions sort lexically, so they
// carry a zero-padded numeric prefix.
type Migration interface {
	Version() string
	Description() string
	Up(tx *gorm.DB) error
	Down(tx *gorm.DB) error
}

// MigrationRecord marks an applied migration.
type MigrationRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Version   string    `gorm:"uniqueIndex;not null"`
	Name      string    `gorm:"not null"`
	AppliedAt time.Time `gorm:"not null"`
}

// Migrator applies registered migrations in version order, each inside its
// own transaction together with its record.
type Migrator struct {
	db    *gorm.DB
	steps map[string]Migration
}

func NewMigrator(db *gorm.DB, steps ...Migration) (*Migrator, error) {
	m := &Migrator{db: db, steps: make(map[string]Migration, len(steps))}
	for _, step := range steps {
		if _, dup := m.steps[step.Version()]; dup {
			return nil, errors.New(errors.KindStorage, "migration.register",
				fmt.Sprintf("duplicate migration version %s", step.Version()))
		}
		m.steps[step.Version()] = step
	}
	return m, nil
}

func (m *Migrator) ordered() []Migration {
	out := make([]Migration, 0, len(m.steps))
	for _, step := range m.steps {
		out = append(out, step)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version() < out[j].Version() })
	return out
}

// Apply runs every pending migration and returns the versions it applied.
func (m *Migrator) Apply() ([]string, error) {
	if err := m.db.AutoMigrate(&MigrationRecord{}); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "migration.bootstrap", "cannot create migration table", err)
	}

	var done []string
	if err := m.db.Model(&MigrationRecord{}).Pluck("version", &done).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "migration.applied", "cannot read applied migrations", err)
	}
	seen := make(map[string]struct{}, len(done))
	for _, v := range done {
		seen[v] = struct{}{}
	}

	var applied []string
	for _, step := range m.ordered() {
		if _, ok := seen[step.Version()]; ok {
			continue
		}
		err := m.db.Transaction(func(tx *gorm.DB) error {
			if err := step.Up(tx); err != nil {
				return err
			}
			return tx.Create(&MigrationRecord{
				Version:   step.Version(),
				Name:      step.Description(),
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return applied, errors.Wrap(errors.KindStorage, "migration.up",
				fmt.Sprintf("migration %s failed", step.Version()), err)
		}
		applied = append(applied, step.Version())
	}
	return applied, nil
}

// Rollback reverts an applied migration and forgets its record.
func (m *Migrator) Rollback(version string) error {
	step, ok := m.steps[version]
	if !ok {
		return errors.New(errors.KindStorage, "migration.rollback", fmt.Sprintf("migration %s not registered", version))
	}

	var record MigrationRecord
	err := m.db.Where("version = ?", version).First(&record).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.New(errors.KindStorage, "migration.rollback", fmt.Sprintf("migration %s not applied", version))
	}
	if err != nil {
		return errors.Wrap(errors.KindStorage, "migration.rollback", "cannot read migration record", err)
	}

	return m.db.Transaction(func(tx *gorm.DB) error {
		if err := step.Down(tx); err != nil {
			return errors.Wrap(errors.KindStorage, "migration.down", fmt.Sprintf("migration %s rollback failed", version), err)
		}
		return tx.Delete(&record).Error
	})
}

// History lists applied migrations, oldest first.
func (m *Migrator) History() ([]MigrationRecord, error) {
	var records []MigrationRecord
	if err := m.db.Order("version").Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "migration.history", "cannot list migrations", err)
	}
	return records, nil
}
