// Package migrations embeds the Record Store schema.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/jmoiron/sqlx"
)

//go:embed *.sql
var files embed.FS

// Up applies every up migration in name order. Each script is idempotent.
func Up(ctx context.Context, db *sqlx.DB) ([]string, error) {
	return apply(ctx, db, ".up.sql", false)
}

// Down drops the schema by applying the down migrations in reverse order.
func Down(ctx context.Context, db *sqlx.DB) ([]string, error) {
	return apply(ctx, db, ".down.sql", true)
}

func apply(ctx context.Context, db *sqlx.DB, suffix string, reverse bool) ([]string, error) {
	names, err := fs.Glob(files, "*"+suffix)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	slices.Sort(names)
	if reverse {
		slices.Reverse(names)
	}

	applied := make([]string, 0, len(names))
	for _, name := range names {
		script, err := files.ReadFile(name)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(script)); err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", name, err)
		}
		applied = append(applied, strings.TrimSuffix(name, suffix))
	}
	return applied, nil
}
