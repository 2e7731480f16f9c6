// cmd/seeder/main.go
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/db"
	"github.com/unclebandit/outreach-backend/internal/logx"
)

var defaultSeedFiles = []string{
	"seed/schema.sql",
	"seed/channel_config.sql",
	"seed/campaigns.sql",
}

func main() {
	logx.Init()
	defer logx.Sync()

	cfg := config.Load()
	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logx.L().Fatalw("db_connect_failed", "error", err)
	}
	defer sqlDB.Close()

	files := defaultSeedFiles
	if len(os.Args) > 1 {
		files = os.Args[1:]
	}
	if err := seed(context.Background(), sqlDB, files); err != nil {
		logx.L().Fatalw("seed_failed", "error", err)
	}
	logx.L().Infow("seed_completed", "files", len(files))
}

// seed executes each file in order and stops at the first failure.
func seed(ctx context.Context, sqlDB *sql.DB, files []string) error {
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		if _, err := sqlDB.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("execute %s: %w", file, err)
		}
		logx.L().Infow("seeded", "file", file)
	}
	return nil
}
