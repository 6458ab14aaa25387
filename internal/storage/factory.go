package storage

import "fmt"

func DefaultStoreKind() string { return "memory" }

// NewStore picks a backend by kind. dsn is the sqlite path or the mysql DSN,
// depending on the kind.
func NewStore(kind, dsn string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(dsn)
	case "mysql":
		return NewMySQLStore(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
