package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/chanx"
)

var ErrProducerClosed = errors.New("producer is closed")

type producerOptions[T any] struct {
	logger       *slog.Logger
	bufferSize   int
	maxLen       int64
	writeTimeout time.Duration
	encodeFunc   func(T) ([]any, error)
}

type ProducerOption[T any] func(*producerOptions[T])

// WithProducerLogger 設置日誌記錄器
func WithProducerLogger[T any](logger *slog.Logger) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.logger = logger
	}
}

// WithProducerBufferSize 設置緩衝的初始容量
func WithProducerBufferSize[T any](size int) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.bufferSize = size
	}
}

// WithProducerMaxLen 設置 stream 的近似長度上限，0 表示不限制
func WithProducerMaxLen[T any](n int64) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.maxLen = n
	}
}

// WithProducerWriteTimeout 設置單筆寫入的逾時時間
func WithProducerWriteTimeout[T any](d time.Duration) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.writeTimeout = d
	}
}

// WithProducerEncodeFunc 設置消息序列化函數
func WithProducerEncodeFunc[T any](fn func(T) ([]any, error)) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.encodeFunc = fn
	}
}

// Producer 將資料非同步寫入 redis stream
// Publish 只會將訊息放入無界緩衝，Close 時會先將緩衝中的訊息寫完
type Producer[T any] struct {
	client   redis.Cmdable
	stream   string
	upstream *chanx.UnboundedChan[[]any]
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
	options  producerOptions[T]
}

func NewProducer[T any](client redis.Cmdable, stream string, opts ...ProducerOption[T]) (*Producer[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	options := producerOptions[T]{
		logger:       slog.Default(),
		bufferSize:   100,
		writeTimeout: 5 * time.Second,
		encodeFunc: func(data T) ([]any, error) {
			return Encode("", data)
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Producer[T]{
		client:  client,
		stream:  stream,
		closed:  true,
		logger:  options.logger.With(slog.String("caller", "Producer"), slog.String("stream", stream)),
		options: options,
	}, nil
}

func (p *Producer[T]) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		return
	}

	// 由關閉 In 來結束，讓緩衝中的訊息可以被寫完
	p.upstream = chanx.NewUnboundedChan[[]any](context.Background(), p.options.bufferSize)
	p.closed = false
	p.logger.Info("starting stream producer")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.logger.Info("producer goroutine stopped")

		for message := range p.upstream.Out {
			p.add(message)
		}
	}()
}

func (p *Producer[T]) add(message []any) {
	ctx, cancel := context.WithTimeout(context.Background(), p.options.writeTimeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: message,
	}
	if p.options.maxLen > 0 {
		args.MaxLen = p.options.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		p.logger.Error("publish message error", slog.Any("error", err))
		return
	}
	p.logger.Debug("message published", slog.String("messageId", id))
}

func (p *Producer[T]) Publish(data T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}

	message, err := p.options.encodeFunc(data)
	if err != nil {
		return fmt.Errorf("encode message error: %w", err)
	}
	p.upstream.In <- message
	return nil
}

// Close 停止接收新的訊息，並等待緩衝中的訊息寫入完成
func (p *Producer[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.logger.Info("closing stream producer")
	p.closed = true
	close(p.upstream.In)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("stream producer closed")
}
