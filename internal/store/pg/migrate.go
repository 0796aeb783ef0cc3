package pg

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/o365auth/internal/observability/logger"
	migrations "github.com/dropDatabas3/o365auth/migrations/postgres"
)

// Direction de una migración.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Migrate aplica los *_up.sql (ascendente) o *_down.sql (descendente) embebidos.
// steps <= 0 aplica todos.
func Migrate(ctx context.Context, pool *pgxpool.Pool, userTable string, dir Direction, steps int) (int, error) {
	stmts, err := RenderMigrations(userTable, dir)
	if err != nil {
		return 0, err
	}
	if steps > 0 && steps < len(stmts) {
		stmts = stmts[:steps]
	}
	log := logger.From(ctx).With(logger.Component("migrate"))
	for i, s := range stmts {
		if _, err := pool.Exec(ctx, s.SQL); err != nil {
			return i, fmt.Errorf("exec %s: %w", s.Name, err)
		}
		log.Info("migration applied", logger.String("file", s.Name), logger.String("direction", string(dir)))
	}
	return len(stmts), nil
}

// Statement es un archivo ya renderizado para la tabla configurada.
type Statement struct {
	Name string
	SQL  string
}

// RenderMigrations lee los archivos embebidos y reemplaza los placeholders
// {{user_table}} y {{user_table_name}}.
func RenderMigrations(userTable string, dir Direction) ([]Statement, error) {
	quoted, err := QuoteTable(userTable)
	if err != nil {
		return nil, err
	}
	suffix := "_" + string(dir) + ".sql"
	if dir != Up && dir != Down {
		return nil, fmt.Errorf("unknown migration direction %q", dir)
	}

	entries, err := fs.ReadDir(migrations.FS, migrations.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if dir == Down {
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
	}

	bare := strings.ReplaceAll(strings.TrimSpace(userTable), ".", "_")
	out := make([]Statement, 0, len(names))
	for _, n := range names {
		b, err := fs.ReadFile(migrations.FS, migrations.Dir+"/"+n)
		if err != nil {
			return nil, err
		}
		sql := strings.ReplaceAll(string(b), "{{user_table}}", quoted)
		sql = strings.ReplaceAll(sql, "{{user_table_name}}", bare)
		out = append(out, Statement{Name: n, SQL: sql})
	}
	return out, nil
}
