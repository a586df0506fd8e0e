package core

import (
	"fmt"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName          string
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		RollbarToken     string

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Auth     AuthConfig
		Images   ImagesConfig
	}

	ServerConfig struct {
		Host            string
		Address         string
		DebugHost       string
		ShutdownTimeout time.Duration
		AccessTokenTTL  time.Duration
		RefreshTokenTTL time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Address  string
		Password string
		DB       int
		Prefix   string
	}

	// AuthConfig holds the lifetimes of the one-time codes and the pending registrations.
	AuthConfig struct {
		SignupCodeTTL        time.Duration
		PasswordResetCodeTTL time.Duration
		EmailChangeCodeTTL   time.Duration
		PendingRetention     time.Duration
		CodeRequestLimit     int
		CodeRequestWindow    time.Duration
	}

	ImagesConfig struct {
		S3Bucket        string
		S3Region        string
		S3Endpoint      string
		S3AccessKey     string
		S3SecretKey     string
		PublicBaseURL   string
		MaxSize         int
		StorageDisabled bool
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// NewConfig reads the app configuration from the defaults below, an optional `config/.env.<env>` file
// and the environment (prefixed by the env name, eg. DEV_DATABASE_HOST).
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if err := loadDotEnv(dotEnvPath); err != nil {
		panic(err)
	}
	v.AutomaticEnv()

	return &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		DefaultFromEmail: mail.Address{Name: v.GetString("appName"), Address: v.GetString("defaultFromEmail")},
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Address:         v.GetString("server.address"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			AccessTokenTTL:  v.GetDuration("server.accessTokenTTL"),
			RefreshTokenTTL: v.GetDuration("server.refreshTokenTTL"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Prefix:   v.GetString("redis.prefix"),
		},
		Auth: AuthConfig{
			SignupCodeTTL:        v.GetDuration("auth.signupCodeTTL"),
			PasswordResetCodeTTL: v.GetDuration("auth.passwordResetCodeTTL"),
			EmailChangeCodeTTL:   v.GetDuration("auth.emailChangeCodeTTL"),
			PendingRetention:     v.GetDuration("auth.pendingRetention"),
			CodeRequestLimit:     v.GetInt("auth.codeRequestLimit"),
			CodeRequestWindow:    v.GetDuration("auth.codeRequestWindow"),
		},
		Images: ImagesConfig{
			S3Bucket:        v.GetString("images.s3Bucket"),
			S3Region:        v.GetString("images.s3Region"),
			S3Endpoint:      v.GetString("images.s3Endpoint"),
			S3AccessKey:     v.GetString("images.s3AccessKey"),
			S3SecretKey:     v.GetString("images.s3SecretKey"),
			PublicBaseURL:   v.GetString("images.publicBaseURL"),
			MaxSize:         v.GetInt("images.maxSize"),
			StorageDisabled: v.GetBool("images.storageDisabled"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Noor Academy")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "k1#v8!z0lq@hq2x^w7nt-3pe+9o$dqf(r6&c4ua)_mj5sby*g")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.accessTokenTTL", 15*time.Minute)
	v.SetDefault("server.refreshTokenTTL", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "noor")
	v.SetDefault("database.user", "noor")
	v.SetDefault("database.password", "noor")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "noor")

	v.SetDefault("auth.signupCodeTTL", 10*time.Minute)
	v.SetDefault("auth.passwordResetCodeTTL", 15*time.Minute)
	v.SetDefault("auth.emailChangeCodeTTL", 10*time.Minute)
	v.SetDefault("auth.pendingRetention", 7*24*time.Hour)
	v.SetDefault("auth.codeRequestLimit", 5)
	v.SetDefault("auth.codeRequestWindow", 10*time.Minute)

	v.SetDefault("images.s3Bucket", "avatars")
	v.SetDefault("images.s3Region", "us-east-1")
	v.SetDefault("images.s3Endpoint", "")
	v.SetDefault("images.s3AccessKey", "")
	v.SetDefault("images.s3SecretKey", "")
	v.SetDefault("images.publicBaseURL", "http://localhost:9000/avatars")
	v.SetDefault("images.maxSize", 512)
	v.SetDefault("images.storageDisabled", false)
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err == nil {
		if err := godotenv.Load(path); err != nil {
			return errors.Wrap(err, fmt.Sprintf("loading %s", path))
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, fmt.Sprintf("checking %s", path))
	}
	return nil
}
