package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/nooracademy/noor/apps/shared"
	"github.com/nooracademy/noor/core"
	"github.com/nooracademy/noor/core/account"
	"github.com/nooracademy/noor/storage/database"
	redisstore "github.com/nooracademy/noor/storage/redis"
)

func main() {
	conf := core.NewConfig()
	ctx := context.Background()
	logger := shared.NewLogger(conf, "ADMIN")

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	cli := commandLine{migrator: dbMigrator{db: db.DB}}

	// migrations need no other dependency
	if len(os.Args) < 2 || os.Args[1] != "migrate" {
		rdb, err := redisstore.Open(ctx, conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening redis: %v", err), err)
		}
		defer func() { _ = rdb.Close() }()

		deps, err := shared.NewAccountDeps(ctx, conf, logger, db, rdb, nil /* tokens */)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up services: %v", err), err)
		}
		cli.svc = account.NewService(deps)
		cli.validate, _ = shared.NewValidator(logger)
	}

	code := 0
	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			printErr(err)
		}
		code = 1
	}
	_ = db.Close()
	os.Exit(code)
}

func printErr(err error) {
	if vErrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range vErrs {
			fmt.Fprintf(os.Stderr, "error: %s: %s\n", fe.Field(), fe.Tag())
		}
		return
	}
	fmt.Fprintf(os.Stderr, "error: %s\n", err)
}
