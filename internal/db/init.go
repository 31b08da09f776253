package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	_ "github.com/lib/pq"
	"github.com/zed-io/fineract-sub004/internal/constants"
	"github.com/zed-io/fineract-sub004/internal/lock"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Init creates the job, job_execution and job_lock tables.
//
// Every node calls Init on startup; the advisory lock makes sure only one of
// them runs the scripts at a time. The scripts are idempotent, so nodes that
// wait on the lock simply re-apply them as no-ops.
func Init(ctx context.Context, db *sql.DB, advisory lock.AdvisoryLock, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	migrationLock := constants.MigrationLock
	if err := advisory.Acquire(ctx, migrationLock); err != nil {
		return err
	}
	defer func() {
		if err := advisory.Release(ctx, migrationLock); err != nil {
			logger.Warn("failed to release migration lock", zap.Error(err))
		}
	}()

	scripts, err := readSQLScripts()
	if err != nil {
		return err
	}
	for _, script := range scripts {
		logger.Debug("applying migration", zap.String("script", script.name))
		if _, err := db.ExecContext(ctx, script.body); err != nil {
			return fmt.Errorf("apply %s: %w", script.name, err)
		}
	}

	logger.Info("schema ready", zap.Int("scripts", len(scripts)))
	return nil
}

type sqlScript struct {
	name string
	body string
}

func readSQLScripts() ([]sqlScript, error) {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var scripts []sqlScript
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := migrations.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, sqlScript{name: entry.Name(), body: string(content)})
	}

	return scripts, nil
}
