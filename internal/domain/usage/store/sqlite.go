package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"odiadev-tts-server-go/internal/domain/usage/model"
	"odiadev-tts-server-go/internal/platform/storage"
)

type sqliteStore struct {
	db *gorm.DB
}

// NewSQLite builds a SQLite-backed usage store. The usage_accounts table is
// created by the storage migrations.
func NewSQLite(db *gorm.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Get(ctx context.Context, key string) (model.Account, error) {
	return s.fetch(s.db.WithContext(ctx), key)
}

func (s *sqliteStore) Provision(ctx context.Context, key, tier string, limit int64, periodStart time.Time) (model.Account, error) {
	var acct model.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record storage.UsageAccount
		err := tx.Where("api_key = ?", key).First(&record).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			record = storage.UsageAccount{
				APIKey:        key,
				Tier:          tier,
				RequestsLimit: limit,
				PeriodStart:   periodStart,
			}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := tx.Model(&record).Updates(map[string]any{
				"tier":           tier,
				"requests_limit": limit,
			}).Error; err != nil {
				return err
			}
		}
		var fetchErr error
		acct, fetchErr = s.fetch(tx, key)
		return fetchErr
	})
	return acct, err
}

func (s *sqliteStore) Apply(ctx context.Context, key string, d model.Delta) (model.Account, error) {
	var acct model.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&storage.UsageAccount{}).
			Where("api_key = ?", key).
			Updates(map[string]any{
				"requests_used":          gorm.Expr("requests_used + ?", d.Requests),
				"characters_used":        gorm.Expr("characters_used + ?", d.Characters),
				"synthesized_characters": gorm.Expr("synthesized_characters + ?", d.SynthesizedCharacters),
				"cache_hits":             gorm.Expr("cache_hits + ?", d.CacheHits),
				"failures":               gorm.Expr("failures + ?", d.Failures),
				"updated_at":             d.At,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		var fetchErr error
		acct, fetchErr = s.fetch(tx, key)
		return fetchErr
	})
	return acct, err
}

func (s *sqliteStore) Rollover(ctx context.Context, key string, periodStart time.Time) (model.Account, error) {
	var acct model.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The period guard keeps a second process from resetting twice.
		if err := tx.Model(&storage.UsageAccount{}).
			Where("api_key = ? AND period_start < ?", key, periodStart).
			Updates(map[string]any{
				"requests_used":          0,
				"characters_used":        0,
				"synthesized_characters": 0,
				"cache_hits":             0,
				"failures":               0,
				"period_start":           periodStart,
				"updated_at":             time.Now().UTC(),
			}).Error; err != nil {
			return err
		}
		var fetchErr error
		acct, fetchErr = s.fetch(tx, key)
		return fetchErr
	})
	return acct, err
}

func (s *sqliteStore) List(ctx context.Context) ([]model.Account, error) {
	var records []storage.UsageAccount
	if err := s.db.WithContext(ctx).Order("api_key").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]model.Account, 0, len(records))
	for _, r := range records {
		out = append(out, toAccount(r))
	}
	return out, nil
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&storage.UsageAccount{}).Count(&total).Error; err != nil {
		return nil, err
	}
	return map[string]any{
		"type":  DriverSQLite,
		"total": total,
	}, nil
}

// Close is a no-op; the database handle belongs to the storage layer.
func (s *sqliteStore) Close(context.Context) error {
	return nil
}

func (s *sqliteStore) fetch(db *gorm.DB, key string) (model.Account, error) {
	var record storage.UsageAccount
	err := db.Where("api_key = ?", key).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Account{}, ErrNotFound
	}
	if err != nil {
		return model.Account{}, err
	}
	return toAccount(record), nil
}

func toAccount(r storage.UsageAccount) model.Account {
	return model.Account{
		Key:                   r.APIKey,
		Tier:                  r.Tier,
		RequestsUsed:          r.RequestsUsed,
		RequestsLimit:         r.RequestsLimit,
		CharactersUsed:        r.CharactersUsed,
		SynthesizedCharacters: r.SynthesizedCharacters,
		CacheHits:             r.CacheHits,
		Failures:              r.Failures,
		PeriodStart:           r.PeriodStart.UTC(),
		UpdatedAt:             r.UpdatedAt.UTC(),
	}
}
