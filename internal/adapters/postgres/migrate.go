package repo

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"

	"github.com/example/otp-auth-service/internal/adapters/postgres/migrations"
)

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}
