package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"odiadev-tts-server-go/internal/platform/errors"
)

func memoryDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(fmt.Sprintf("file:migrate-%d?mode=memory&cache=shared", time.Now().UnixNano()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func TestOpenAppliesMigrations(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	for _, table := range []string{"usage_accounts", "voice_profiles", "migration_records"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	account := UsageAccount{APIKey: "demo", Tier: "free", RequestsLimit: 100, PeriodStart: time.Now().UTC()}
	require.NoError(t, db.Create(&account).Error)

	var got UsageAccount
	require.NoError(t, db.Where("api_key = ?", "demo").First(&got).Error)
	assert.EqualValues(t, 100, got.RequestsLimit)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := memoryDB(t)
	require.NoError(t, Migrate(db))

	migrator, err := newMigrator(db)
	require.NoError(t, err)
	applied, err := migrator.Apply()
	require.NoError(t, err)
	assert.Empty(t, applied)

	history, err := migrator.History()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "001_initial", history[0].Version)
}

func TestRollbackDropsTablesAndRecord(t *testing.T) {
	db := memoryDB(t)
	migrator, err := newMigrator(db)
	require.NoError(t, err)

	require.NoError(t, migrator.Rollback("001_initial"))
	assert.False(t, db.Migrator().HasTable("usage_accounts"))

	history, err := migrator.History()
	require.NoError(t, err)
	assert.Empty(t, history)

	err = migrator.Rollback("001_initial")
	assert.True(t, errors.IsKind(err, errors.KindStorage))

	applied, err := migrator.Apply()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_initial"}, applied)
	assert.True(t, db.Migrator().HasTable("usage_accounts"))
}

func TestDuplicateMigrationVersionRejected(t *testing.T) {
	db := memoryDB(t)
	_, err := newMigrator(db)
	require.NoError(t, err)

	_, err = NewMigrator(db, initialStub{}, initialStub{})
	assert.True(t, errors.IsKind(err, errors.KindStorage))
}

type initialStub struct{}

func (initialStub) Version() string { return "001_initial" }
func (initialStub) Description() string { return "stub" }
func (initialStub) Up(*gorm.DB) error { return nil }
func (initialStub) Down(*gorm.DB) error { return nil }
