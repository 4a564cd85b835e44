// Package migrations serves the embedded tmsync schema for each supported SQL
// dialect. Postgres files live at the root of data/sql/migrations and their
// sqlite variants under its sqlite directory.
package migrations

import (
	"fmt"
	"io/fs"
	"slices"
	"strings"

	tmsync "github.com/goliatone/go-tmsync"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	root       = "data/sql/migrations"
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Dialects lists the dialects that ship a schema.
func Dialects() []string {
	return []string{DialectPostgres, DialectSQLite}
}

// Path is the directory holding dialect's migrations inside GetMigrationsFS.
func Path(dialect string) (string, error) {
	switch normalize(dialect) {
	case DialectPostgres:
		return root, nil
	case DialectSQLite:
		return root + "/" + DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}
}

// FS returns dialect's migrations, ready for persistence.Client.RegisterSQLMigrations.
// Every version must carry both an up and a down file.
func FS(dialect string) (fs.FS, error) {
	path, err := Path(dialect)
	if err != nil {
		return nil, err
	}
	sub, err := fs.Sub(tmsync.GetMigrationsFS(), path)
	if err != nil {
		return nil, fmt.Errorf("migrations: open %s: %w", path, err)
	}
	if _, err := versions(sub, path); err != nil {
		return nil, err
	}
	return sub, nil
}

// Versions lists the migration versions shipped for dialect, in apply order.
func Versions(dialect string) ([]string, error) {
	sub, err := FS(dialect)
	if err != nil {
		return nil, err
	}
	path, _ := Path(dialect)
	return versions(sub, path)
}

// CheckParity fails when the dialects do not ship the same versions.
func CheckParity() error {
	postgres, err := Versions(DialectPostgres)
	if err != nil {
		return err
	}
	sqlite, err := Versions(DialectSQLite)
	if err != nil {
		return err
	}
	if !slices.Equal(postgres, sqlite) {
		return fmt.Errorf("migrations: postgres versions %v differ from sqlite versions %v", postgres, sqlite)
	}
	return nil
}

func versions(fsys fs.FS, path string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations: read %s: %w", path, err)
	}
	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir():
		case strings.HasSuffix(name, upSuffix):
			ups[strings.TrimSuffix(name, upSuffix)] = true
		case strings.HasSuffix(name, downSuffix):
			downs[strings.TrimSuffix(name, downSuffix)] = true
		}
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("migrations: %s has no *%s files", path, upSuffix)
	}

	out := make([]string, 0, len(ups))
	for version := range ups {
		if !downs[version] {
			return nil, fmt.Errorf("migrations: %s/%s%s has no rollback", path, version, upSuffix)
		}
		out = append(out, version)
	}
	for version := range downs {
		if !ups[version] {
			return nil, fmt.Errorf("migrations: %s/%s%s has no up migration", path, version, downSuffix)
		}
	}
	slices.Sort(out)
	return out, nil
}

func normalize(dialect string) string {
	switch value := strings.ToLower(strings.TrimSpace(dialect)); value {
	case "sqlite3":
		return DialectSQLite
	case "postgresql", "pq":
		return DialectPostgres
	default:
		return value
	}
}
