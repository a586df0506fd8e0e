// Package shared builds the dependencies the API server and the admin CLI have in common.
package shared

import (
	"context"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/nooracademy/noor/core"
	"github.com/nooracademy/noor/core/account"
	emailsvc "github.com/nooracademy/noor/services/email"
	imagesvc "github.com/nooracademy/noor/services/image"
	logsvc "github.com/nooracademy/noor/services/logger"
	redisstore "github.com/nooracademy/noor/storage/redis"
	sqlxrepos "github.com/nooracademy/noor/storage/database/sqlx"
)

// NewLogger returns a Rollbar logger writing to stdout with prefix.
func NewLogger(conf *core.Config, prefix string) *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, prefix+" : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

// NewValidator returns a validator knowing every custom tag of the app.
func NewValidator(logger core.Logger) (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	account.InitValidators(validate, translator)
	account.LoadCommonPasswords(logger)
	return validate, translator
}

func NewEmailService(conf *core.Config) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf)
}

func NewImageService(ctx context.Context, conf *core.Config) (core.ImageService, error) {
	if conf.Images.StorageDisabled || conf.Images.S3Bucket == "" {
		return imagesvc.NewDummyService(conf), nil
	}
	svc, err := imagesvc.NewS3Service(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "setting up image storage")
	}
	return svc, nil
}

// NewAccountDeps wires the account workflow to PostgreSQL, Redis & the external services.
// tokens may be nil when no session is ever opened (eg. the admin CLI).
func NewAccountDeps(
	ctx context.Context,
	conf *core.Config,
	logger core.Logger,
	db *sqlx.DB,
	rdb redis.UniversalClient,
	tokens account.TokenIssuer,
) (account.Deps, error) {
	images, err := NewImageService(ctx, conf)
	if err != nil {
		return account.Deps{}, err
	}
	return account.Deps{
		Accounts:      sqlxrepos.NewAccountRepository(db),
		Pending:       redisstore.NewPendingStore(rdb, conf.Redis.Prefix),
		RefreshTokens: sqlxrepos.NewRefreshTokenRepository(db),
		Limiter:       redisstore.NewRequestLimiter(rdb, conf.Redis.Prefix, conf.Auth.CodeRequestLimit, conf.Auth.CodeRequestWindow),
		Hasher:        account.NewBcryptHasher(),
		Tokens:        tokens,
		Mail:          NewEmailService(conf),
		Images:        images,
		Logger:        logger,
		Conf:          conf,
	}, nil
}
