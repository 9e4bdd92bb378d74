package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"bidfinity/api"
)

const (
	modeServe = "serve"
	modeSweep = "sweep"
)

func ParseArgs() Args {
	pflag.String("config", "", "optional config file (yaml, toml, json)")
	pflag.String("mode", modeServe, "serve: run the HTTP server, sweep: settle expired auctions once and exit")
	pflag.String("log-level", "info", "debug, info, warn or error")

	// server config
	pflag.String("server-url", "0.0.0.0:8080", "")

	// auth config
	pflag.String("auth-public-key-path", "", "PEM encoded Ed25519 public key of the token issuer")
	pflag.String("auth-issuer", "", "")
	pflag.String("auth-audience", "", "")

	// s3 config
	pflag.String("s3-endpoint", "", "")
	pflag.String("s3-bucket", "", "")
	pflag.String("s3-public-base-url", "", "")
	pflag.String("s3-access-key-id", "", "")
	pflag.String("s3-secret-access-key", "", "")
	pflag.Int64("s3-max-image-size", 5<<20, "")

	// db config
	pflag.String("db-driver", "postgres", "postgres or sqlite")
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "", "")
	pflag.String("db-path", "bidfinity.db", "sqlite database file")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")
	pflag.String("redis-key-prefix", "bidfinity", "")

	// redis stream keys
	pflag.String("redis-stream-key-for-bids", "bidfinity-bid-stream", "")
	pflag.String("redis-stream-key-for-notifications", "bidfinity-notification-stream", "")

	// sweeper config
	pflag.Duration("sweeper-interval", time.Minute, "0 disables the background sweeper")
	pflag.Int("sweeper-concurrency", 4, "")
	pflag.Duration("sweeper-timeout", 50*time.Second, "")

	// bidding config
	pflag.Int("bidding-max-attempts", 3, "")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("BIDFINITY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if path := viper.GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			panic(fmt.Errorf("fail to read config file %s: %w", path, err))
		}
	}

	// initial arguments
	return Args{
		Mode:      viper.GetString("mode"),
		LogLevel:  viper.GetString("log-level"),
		ServerURL: viper.GetString("server-url"),
		ServerConfig: api.ServerConfig{
			Auth: api.AuthConfig{
				PublicKeyPath: viper.GetString("auth-public-key-path"),
				Issuer:        viper.GetString("auth-issuer"),
				Audience:      viper.GetString("auth-audience"),
			},
			S3: api.S3Config{
				Endpoint:        viper.GetString("s3-endpoint"),
				Bucket:          viper.GetString("s3-bucket"),
				PublicBaseURL:   viper.GetString("s3-public-base-url"),
				AccessKeyID:     viper.GetString("s3-access-key-id"),
				SecretAccessKey: viper.GetString("s3-secret-access-key"),
				MaxImageSize:    viper.GetInt64("s3-max-image-size"),
			},
			DB: api.DBConfig{
				Driver:   viper.GetString("db-driver"),
				User:     viper.GetString("db-user"),
				Password: viper.GetString("db-password"),
				Host:     viper.GetString("db-host"),
				Port:     viper.GetInt("db-port"),
				Database: viper.GetString("db-database"),
				Schema:   viper.GetString("db-schema"),
				Path:     viper.GetString("db-path"),
			},
			Redis: api.RedisConfig{
				Addr:      viper.GetString("redis-addr"),
				Password:  viper.GetString("redis-password"),
				DB:        viper.GetInt("redis-db"),
				KeyPrefix: viper.GetString("redis-key-prefix"),
				StreamKeys: api.RedisStreamKeys{
					Bids:          viper.GetString("redis-stream-key-for-bids"),
					Notifications: viper.GetString("redis-stream-key-for-notifications"),
				},
			},
			Sweeper: api.SweeperConfig{
				Interval:    viper.GetDuration("sweeper-interval"),
				Concurrency: viper.GetInt("sweeper-concurrency"),
				Timeout:     viper.GetDuration("sweeper-timeout"),
			},
			Bidding: api.BiddingConfig{
				MaxAttempts: viper.GetInt("bidding-max-attempts"),
			},
		},
	}
}

type Args struct {
	Mode         string
	LogLevel     string
	ServerURL    string
	ServerConfig api.ServerConfig
}

func (args Args) Validate() bool {
	if args.Mode != modeServe && args.Mode != modeSweep {
		return false
	}
	if args.Mode == modeServe && args.ServerURL == "" {
		return false
	}
	return args.ServerConfig.Auth.PublicKeyPath != "" &&
		args.ServerConfig.Redis.Addr != "" &&
		args.ServerConfig.S3.Bucket != ""
}

func (args Args) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(args.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
