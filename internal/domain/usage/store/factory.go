package store

import (
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	platformerrors "odiadev-tts-server-go/internal/platform/errors"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Dependencies carries handles owned elsewhere that a driver may borrow.
type Dependencies struct {
	SQLiteDB *gorm.DB
}

type opener func(Config, Dependencies) (Store, error)

var openers = map[string]opener{
	DriverMemory: func(Config, Dependencies) (Store, error) { return NewMemory(), nil },
	DriverSQLite: func(_ Config, deps Dependencies) (Store, error) {
		if deps.SQLiteDB == nil {
			return nil, fmt.Errorf("sqlite usage store needs the shared database")
		}
		return NewSQLite(deps.SQLiteDB)
	},
	DriverRedis: func(cfg Config, _ Dependencies) (Store, error) { return NewRedis(cfg) },
}

// Drivers lists the accepted values of Config.Driver.
func Drivers() []string {
	out := make([]string, 0, len(openers))
	for name := range openers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New opens the account store named by cfg.Driver. The name is matched
// case-insensitively and an empty name means memory.
func New(cfg Config, deps Dependencies) (Store, error) {
	const op = "usage.store.open"

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverMemory
	}
	open, ok := openers[driver]
	if !ok {
		return nil, platformerrors.New(platformerrors.KindConfig, op,
			fmt.Sprintf("unknown usage store %q (want one of %s)", cfg.Driver, strings.Join(Drivers(), ", ")))
	}
	s, err := open(cfg, deps)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, op, driver+" usage store unavailable", err)
	}
	return s, nil
}
