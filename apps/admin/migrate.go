package main

import (
	"context"
	"database/sql"

	"github.com/nooracademy/noor/storage/database"
)

var migrateFunc = database.Migrate // mockable

type migrator interface {
	migrate(ctx context.Context, command string, args ...string) error
}

type dbMigrator struct {
	db *sql.DB
}

func (m dbMigrator) migrate(ctx context.Context, command string, args ...string) error {
	return migrateFunc(ctx, m.db, command, args...)
}

func (cli *commandLine) migrate(args []string) error {
	return cli.migrator.migrate(context.Background(), args[0], args[1:]...)
}
