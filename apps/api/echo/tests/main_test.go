package tests

import (
	"io"
	"log"
	"testing"

	"golang.org/x/crypto/bcrypt"

	. "github.com/nooracademy/noor/apps/api/echo"
	"github.com/nooracademy/noor/core"
	"github.com/nooracademy/noor/core/account"
	emailsvc "github.com/nooracademy/noor/services/email"
	imagesvc "github.com/nooracademy/noor/services/image"
	logsvc "github.com/nooracademy/noor/services/logger"
	inmemdb "github.com/nooracademy/noor/storage/database/inmem"
	testutil "github.com/nooracademy/noor/tests"
)

type testApp struct {
	Server
	conf     *core.Config
	accounts account.Repository
	tokens   *TokenIssuer
}

func setup(t *testing.T, confFns ...func(conf *core.Config)) *testApp {
	t.Helper()

	conf := testutil.Config()
	for _, fn := range confFns {
		fn(conf)
	}
	emailsvc.ResetSentMessages()

	validate, translator := core.NewValidator()
	account.InitValidators(validate, translator)
	account.LoadCommonPasswords(nil)

	// set up DB & repos
	db := inmemdb.Open()
	accounts := inmemdb.NewAccountRepository(db)

	// set up services
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	tokens := NewTokenIssuer(conf)
	accountSvc := account.NewService(account.Deps{
		Accounts:      accounts,
		Pending:       inmemdb.NewPendingStore(db),
		RefreshTokens: inmemdb.NewRefreshTokenRepository(db),
		Limiter:       inmemdb.NewRequestLimiter(conf.Auth.CodeRequestLimit, conf.Auth.CodeRequestWindow),
		Hasher:        account.NewBcryptHasher(bcrypt.MinCost),
		Tokens:        tokens,
		Mail:          emailsvc.NewConsoleServiceMock(conf),
		Images:        imagesvc.NewDummyService(conf),
		Logger:        logger,
		Conf:          conf,
	})

	// set up server
	srv := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		AccountSvc:     accountSvc,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	return &testApp{Server: srv, conf: conf, accounts: accounts, tokens: tokens}
}
