package api

import "time"

type ServerConfig struct {
	Auth    AuthConfig
	S3      S3Config
	DB      DBConfig
	Redis   RedisConfig
	Sweeper SweeperConfig
	Bidding BiddingConfig
}

type AuthConfig struct {
	// PublicKeyPath 是外部憑證服務簽發 token 所用 Ed25519 金鑰的公鑰 PEM 檔
	PublicKeyPath string
	Issuer        string
	Audience      string
}

type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Bucket          string
	PublicBaseURL   string
	MaxImageSize    int64
}

type DBConfig struct {
	// Driver 為 postgres 或 sqlite
	Driver   string
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
	// Path 是 sqlite 的資料庫檔案
	Path string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string

	StreamKeys RedisStreamKeys
}

type RedisStreamKeys struct {
	Bids          string
	Notifications string
}

type SweeperConfig struct {
	// Interval 為 0 時不啟動背景結算
	Interval    time.Duration
	Concurrency int
	Timeout     time.Duration
}

type BiddingConfig struct {
	MaxAttempts int
}
