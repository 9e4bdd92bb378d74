package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"bidfinity/auction"
	"bidfinity/models"
)

const (
	defaultUserCacheSize = 1024
	defaultLockTimeout   = 2 * time.Second
)

// PostgreSQL 的錯誤代碼
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
)

type options struct {
	logger        *slog.Logger
	userCacheSize int
	lockTimeout   time.Duration
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithUserCacheSize 設定使用者名稱快取的容量
func WithUserCacheSize(size int) Option {
	return func(o *options) {
		o.userCacheSize = size
	}
}

// WithLockTimeout 設定等待拍賣列鎖的時間上限，逾時會視為交易衝突
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		o.lockTimeout = d
	}
}

// Store 是以 gorm 實作的拍賣儲存層
// 實作 auction.Ledger，並提供市集功能(使用者、分類、圖片、關注清單、檢舉)所需的查詢
type Store struct {
	repo

	usernames   *lru.Cache
	lockTimeout time.Duration
	logger      *slog.Logger
}

func New(db *gorm.DB, opts ...Option) (*Store, error) {
	const op = "New"

	if db == nil {
		return nil, fmt.Errorf("%s: db cannot be nil", op)
	}

	o := &options{
		logger:        slog.Default(),
		userCacheSize: defaultUserCacheSize,
		lockTimeout:   defaultLockTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	cache, err := lru.New(o.userCacheSize)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create user cache: %w", op, err)
	}

	return &Store{
		repo:        repo{db: db},
		usernames:   cache,
		lockTimeout: o.lockTimeout,
		logger:      o.logger.With(slog.String("caller", "ledger.Store")),
	}, nil
}

// OpenPostgres 開啟 PostgreSQL 連線，資料表建立在指定的 schema 下
func OpenPostgres(dsn, schemaName string) (*gorm.DB, error) {
	const op = "OpenPostgres"

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: schemaName + ".",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}
	return db, nil
}

// OpenSQLite 開啟 SQLite 資料庫，供單一程序的開發環境與測試使用
// SQLite 不支援資料列鎖，因此只保留一條連線讓交易彼此序列化
func OpenSQLite(path string) (*gorm.DB, error) {
	const op = "OpenSQLite"

	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on&_busy_timeout=5000"), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open database: %w", op, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get sql.DB: %w", op, err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Close 關閉底層的資料庫連線
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate 建立或更新所有資料表
func (s *Store) Migrate() error {
	const op = "Migrate"

	err := s.db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Auction{},
		&models.AuctionImage{},
		&models.Bid{},
		&models.Payment{},
		&models.Rating{},
		&models.Watchlist{},
		&models.Report{},
	)
	if err != nil {
		return fmt.Errorf("%s: failed to migrate: %w", op, err)
	}
	return nil
}

// translate 將 gorm 與資料庫驅動的錯誤轉換為 auction 套件定義的儲存層錯誤
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", auction.ErrRecordNotFound, err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", auction.ErrDuplicate, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return fmt.Errorf("%w: %w", auction.ErrTxConflict, err)
		case pgUniqueViolation:
			return fmt.Errorf("%w: %w", auction.ErrDuplicate, err)
		}
	}
	return err
}
