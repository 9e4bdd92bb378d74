package api

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"bidfinity/adapters/ledger"
	redisAdapter "bidfinity/adapters/redis"
	internalS3 "bidfinity/adapters/s3"
	"bidfinity/adapters/sse"
	"bidfinity/auction"
	"bidfinity/events"
)

const defaultHeartbeat = 30 * time.Second

// ImageStorage 負責拍賣圖片的存放
type ImageStorage interface {
	UploadImage(ctx context.Context, prefix string, body io.Reader) (string, error)
	DeleteImage(ctx context.Context, url string) error
}

type ServerImpl struct {
	store       *ledger.Store
	service     *auction.Service
	sweeper     *auction.Sweeper
	hub         sse.IHub[events.BidEvent]
	outbox      redisAdapter.IProducer[events.Notification]
	images      ImageStorage
	htmlChecker *bluemonday.Policy
	publicKey   ed25519.PublicKey
	redisClient *redis.Client
	heartbeat   time.Duration
	wg          sync.WaitGroup
	cancelFunc  context.CancelFunc
	closeOnce   sync.Once

	config ServerConfig
}

// dependencies 是 ServerImpl 使用的外部元件，NewServer 依設定建立它們
type dependencies struct {
	store       *ledger.Store
	hub         sse.IHub[events.BidEvent]
	outbox      redisAdapter.IProducer[events.Notification]
	images      ImageStorage
	locker      auction.Locker
	publicKey   ed25519.PublicKey
	redisClient *redis.Client
}

func NewServer(config ServerConfig) (*ServerImpl, error) {
	const op = "NewServer"

	// 初始化資料庫連線
	var db *gorm.DB
	var err error
	switch config.DB.Driver {
	case "sqlite":
		db, err = ledger.OpenSQLite(config.DB.Path)
	case "", "postgres":
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s", config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database, config.DB.Schema)
		db, err = ledger.OpenPostgres(dsn, config.DB.Schema)
	default:
		err = fmt.Errorf("unknown driver %q", config.DB.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}
	store, err := ledger.New(db)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create ledger store, err=%w", op, err)
	}
	if err := store.Migrate(); err != nil {
		return nil, fmt.Errorf("[%s] Fail to migrate database, err=%w", op, err)
	}

	// 初始化Redis連線
	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	// 初始化SSE管理器，出價事件透過 redis stream 廣播到所有節點
	bidProducer, err := redisAdapter.NewProducer[sse.Envelope[events.BidEvent]](
		redisClient,
		config.Redis.StreamKeys.Bids,
		redisAdapter.WithProducerMaxLen[sse.Envelope[events.BidEvent]](10000),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create bid producer, err=%w", op, err)
	}
	bidConsumer, err := redisAdapter.NewConsumer[sse.Envelope[events.BidEvent]](redisClient, config.Redis.StreamKeys.Bids)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create bid consumer, err=%w", op, err)
	}
	hub, err := sse.NewHub[events.BidEvent](bidProducer, bidConsumer)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create sse hub, err=%w", op, err)
	}

	// 初始化通知的 outbox
	outbox, err := redisAdapter.NewProducer[events.Notification](
		redisClient,
		config.Redis.StreamKeys.Notifications,
		redisAdapter.WithProducerEncodeFunc(events.EncodeNotification),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create notification producer, err=%w", op, err)
	}

	// 初始化結算用的分散式鎖
	locker, err := redisAdapter.NewLocker(redisClient, redisAdapter.WithLockerPrefix(config.Redis.KeyPrefix))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create locker, err=%w", op, err)
	}

	// 初始化S3客戶端
	s3Client, err := internalS3.NewClient(context.Background(), config.S3.Endpoint, config.S3.AccessKeyID, config.S3.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create S3 client, err=%w", op, err)
	}
	s3Opts := []internalS3.Option{}
	if config.S3.MaxImageSize > 0 {
		s3Opts = append(s3Opts, internalS3.WithMaxImageSize(config.S3.MaxImageSize))
	}
	images, err := internalS3.NewOperator(s3Client, config.S3.Bucket, config.S3.PublicBaseURL, s3Opts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create S3 operator, err=%w", op, err)
	}

	// 讀取驗證 token 用的公鑰
	publicKey, err := LoadPublicKey(config.Auth.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load auth public key, err=%w", op, err)
	}

	return newServer(config, dependencies{
		store:       store,
		hub:         hub,
		outbox:      outbox,
		images:      images,
		locker:      locker,
		publicKey:   publicKey,
		redisClient: redisClient,
	}, auction.WithLogger(slog.Default()))
}

func newServer(config ServerConfig, deps dependencies, serviceOpts ...auction.Option) (*ServerImpl, error) {
	const op = "newServer"

	broadcaster, err := events.NewStreamBroadcaster(deps.hub, deps.store)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create broadcaster, err=%w", op, err)
	}
	notifier, err := events.NewStreamNotifier(deps.outbox, deps.store)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create notifier, err=%w", op, err)
	}

	serviceOpts = append([]auction.Option{
		auction.WithNotifier(notifier),
		auction.WithBroadcaster(broadcaster),
	}, serviceOpts...)
	if config.Bidding.MaxAttempts > 0 {
		serviceOpts = append(serviceOpts, auction.WithMaxBidAttempts(config.Bidding.MaxAttempts))
	}
	service, err := auction.NewService(deps.store, serviceOpts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create auction service, err=%w", op, err)
	}

	sweeperOpts := []auction.SweeperOption{auction.WithSweeperLogger(slog.Default())}
	if config.Sweeper.Concurrency > 0 {
		sweeperOpts = append(sweeperOpts, auction.WithSweeperConcurrency(config.Sweeper.Concurrency))
	}
	if deps.locker != nil {
		sweeperOpts = append(sweeperOpts, auction.WithSweeperLocker(deps.locker))
	}

	return &ServerImpl{
		store:       deps.store,
		service:     service,
		sweeper:     auction.NewSweeper(service, sweeperOpts...),
		hub:         deps.hub,
		outbox:      deps.outbox,
		images:      deps.images,
		htmlChecker: bluemonday.UGCPolicy(),
		publicKey:   deps.publicKey,
		redisClient: deps.redisClient,
		heartbeat:   defaultHeartbeat,
		config:      config,
	}, nil
}

func (impl *ServerImpl) Start() {
	// 啟動sse hub
	impl.hub.Start()
	// 啟動通知 outbox
	impl.outbox.Start()

	ctx, cancel := context.WithCancel(context.Background())
	impl.cancelFunc = cancel
	if impl.config.Sweeper.Interval <= 0 {
		return
	}
	// 啟動一個worker定期結算到期的拍賣
	slog.Info("Start auction sweeper", slog.Duration("interval", impl.config.Sweeper.Interval))
	impl.wg.Add(1)
	go func() {
		defer impl.wg.Done()
		defer slog.Info("Auction sweeper stopped")
		ticker := time.NewTicker(impl.config.Sweeper.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := impl.RunSweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
					slog.Error("Fail to sweep auctions", slog.Any("error", err))
				}
			}
		}
	}()
}

// RunSweep 執行一次結算，結果由 Sweeper 記錄
func (impl *ServerImpl) RunSweep(ctx context.Context) (auction.SweepReport, error) {
	const op = "RunSweep"
	if impl.config.Sweeper.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, impl.config.Sweeper.Timeout)
		defer cancel()
	}
	report, err := impl.sweeper.Sweep(ctx)
	if err != nil {
		return report, fmt.Errorf("[%s] Fail to sweep auctions, err=%w", op, err)
	}
	return report, nil
}

func (impl *ServerImpl) Close() {
	impl.closeOnce.Do(func() {
		// 關閉worker
		if impl.cancelFunc != nil {
			impl.cancelFunc()
		}
		impl.wg.Wait()
		// 等待出價廣播與通知送出
		impl.service.Wait()
		// 關閉sse hub與outbox
		impl.hub.Close()
		impl.outbox.Close()
		if impl.redisClient != nil {
			if err := impl.redisClient.Close(); err != nil {
				slog.Error("Fail to close redis client", slog.Any("error", err))
			}
		}
		if err := impl.store.Close(); err != nil {
			slog.Error("Fail to close database", slog.Any("error", err))
		}
	})
}

// Router 建立所有路由
func (impl *ServerImpl) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger)

	router.GET("/auctions", impl.listAuctions)
	router.GET("/auctions/:id", impl.getAuction)
	router.GET("/auctions/:id/bids", impl.listBids)
	router.GET("/auctions/:id/events", impl.auctionEvents)
	router.GET("/categories", impl.listCategories)

	authed := router.Group("", impl.authenticate)
	{
		authed.POST("/auctions", impl.createListing)
		authed.PATCH("/auctions/:id", impl.editListing)
		authed.DELETE("/auctions/:id", impl.deleteListing)
		authed.POST("/auctions/:id/bids", impl.placeBid)
		authed.GET("/auctions/:id/payment-eligibility", impl.paymentEligibility)
		authed.POST("/auctions/:id/buy-now", impl.buyNow)
		authed.POST("/auctions/:id/pay", impl.payWonAuction)
		authed.POST("/auctions/:id/images", impl.uploadImage)
		authed.DELETE("/images/:id", impl.deleteImage)
		authed.POST("/auctions/:id/watchlist", impl.addToWatchlist)
		authed.DELETE("/auctions/:id/watchlist", impl.removeFromWatchlist)
		authed.GET("/watchlist", impl.listWatchlist)
		authed.POST("/auctions/:id/reports", impl.reportAuction)
		authed.GET("/payments/:id", impl.getPayment)
		authed.POST("/payments/:id/rating", impl.rateSeller)
	}

	admin := authed.Group("/admin", impl.requireAdmin)
	{
		admin.POST("/categories", impl.createCategory)
		admin.POST("/users/:id/ban", impl.banUser)
		admin.POST("/users/:id/unban", impl.unbanUser)
		admin.POST("/auctions/:id/cancel", impl.cancelAuction)
		admin.POST("/auctions/:id/close", impl.closeAuction)
		admin.GET("/reports", impl.listReports)
		admin.POST("/reports/:id/review", impl.reviewReport)
		admin.POST("/sweep", impl.sweep)
	}
	return router
}

// requestLogger 記錄每個請求的狀態碼與耗時
func requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()
	slog.Info("HTTP Request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("latency", time.Since(start)))
}
