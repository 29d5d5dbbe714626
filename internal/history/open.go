package history

import (
	"fmt"
	"strings"

	"github.com/genegpt-server/internal/domain"
)

// Open builds the store selected by cfg.Driver. The "none" driver (or an
// empty one) returns a nil Store and no error.
func Open(cfg domain.HistoryConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "none":
		return nil, nil
	case "sqlite":
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("history.sqlite_path is required for the sqlite driver")
		}
		store, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("history.postgres_url is required for the postgres driver")
		}
		store, err := NewPostgresStoreFromURL(cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown history driver %q", cfg.Driver)
	}
}
