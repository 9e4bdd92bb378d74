package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type consumerOptions[T any] struct {
	logger       *slog.Logger
	bufferSize   int
	blockTimeout time.Duration
	errorBackoff time.Duration
	startID      string
	decodeFunc   func(map[string]any) (T, error)
}

type ConsumerOption[T any] func(*consumerOptions[T])

// WithConsumerLogger 設置日誌記錄器
func WithConsumerLogger[T any](logger *slog.Logger) ConsumerOption[T] {
	return func(o *consumerOptions[T]) {
		o.logger = logger
	}
}

// WithConsumerBufferSize 設置下游channel的緩衝大小
func WithConsumerBufferSize[T any](size int) ConsumerOption[T] {
	return func(o *consumerOptions[T]) {
		o.bufferSize = size
	}
}

// WithConsumerBlockTimeout 設置阻塞讀取超時時間
func WithConsumerBlockTimeout[T any](d time.Duration) ConsumerOption[T] {
	return func(o *consumerOptions[T]) {
		o.blockTimeout = d
	}
}

// WithConsumerErrorBackoff 設置讀取失敗後的等待時間
func WithConsumerErrorBackoff[T any](d time.Duration) ConsumerOption[T] {
	return func(o *consumerOptions[T]) {
		o.errorBackoff = d
	}
}

// WithConsumerStartID 設置開始讀取的訊息 ID，預設 "$" 只讀取啟動後的新訊息
func WithConsumerStartID[T any](id string) ConsumerOption[T] {
	return func(o *consumerOptions[T]) {
		o.startID = id
	}
}

// WithConsumerDecodeFunc 設置自定義解析函數
func WithConsumerDecodeFunc[T any](fn func(map[string]any) (T, error)) ConsumerOption[T] {
	return func(o *consumerOptions[T]) {
		o.decodeFunc = fn
	}
}

// Consumer 以 XREAD 持續讀取 redis stream，並將解析後的資料送往下游 channel
// 每個 Consumer 都會收到 stream 上的所有訊息，適合用於跨節點廣播
type Consumer[T any] struct {
	client     redis.Cmdable
	stream     string
	lastID     string
	downStream chan T
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	closed     bool
	logger     *slog.Logger
	options    consumerOptions[T]
}

func NewConsumer[T any](client redis.Cmdable, stream string, opts ...ConsumerOption[T]) (*Consumer[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	options := consumerOptions[T]{
		logger:       slog.Default(),
		bufferSize:   100,
		blockTimeout: time.Second,
		errorBackoff: 500 * time.Millisecond,
		startID:      "$",
		decodeFunc: func(values map[string]any) (T, error) {
			_, data, err := Decode[T](values)
			return data, err
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Consumer[T]{
		client:  client,
		stream:  stream,
		lastID:  options.startID,
		closed:  true,
		logger:  options.logger.With(slog.String("caller", "Consumer"), slog.String("stream", stream)),
		options: options,
	}, nil
}

func (c *Consumer[T]) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.downStream = make(chan T, c.options.bufferSize)
	c.cancelFunc = cancel
	c.closed = false
	c.logger.Info("starting stream consumer")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.logger.Info("consumer goroutine stopped")
		defer close(c.downStream)

		for ctx.Err() == nil {
			messages, err := c.read(ctx)
			if err != nil {
				if errors.Is(err, redis.Nil) || ctx.Err() != nil {
					continue
				}
				c.logger.Error("fetch message error", slog.Any("error", err))
				select {
				case <-ctx.Done():
				case <-time.After(c.options.errorBackoff):
				}
				continue
			}

			for _, message := range messages {
				c.lastID = message.ID
				data, err := c.options.decodeFunc(message.Values)
				if err != nil {
					c.logger.Error("failed to parse message",
						slog.String("messageId", message.ID),
						slog.Any("error", err))
					continue
				}

				select {
				case <-ctx.Done():
					return
				case c.downStream <- data:
					c.logger.Debug("message sent to downstream", slog.String("messageId", message.ID))
				}
			}
		}
	}()
}

func (c *Consumer[T]) read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{c.stream, c.lastID},
		Count:   10,
		Block:   c.options.blockTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, redis.Nil
	}
	return streams[0].Messages, nil
}

// Subscribe 返回下游 channel，Close 之後 channel 會被關閉
func (c *Consumer[T]) Subscribe() <-chan T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.downStream
}

func (c *Consumer[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.logger.Info("closing stream consumer")
	c.closed = true
	c.cancelFunc()
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("stream consumer closed")
}
