package sse

import (
	"errors"
	"log/slog"
	"sync"

	"bidfinity/adapters/redis"
)

var ErrHubClosed = errors.New("hub is closed")

type hubOptions struct {
	logger     *slog.Logger
	bufferSize int
}

type HubOption func(*hubOptions)

// WithHubLogger 設置日誌記錄器
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(o *hubOptions) {
		o.logger = logger
	}
}

// WithHubBufferSize 設置每個訂閱者通道的緩衝大小
func WithHubBufferSize(size int) HubOption {
	return func(o *hubOptions) {
		o.bufferSize = size
	}
}

// Hub 管理多個 SSE 房間的訂閱與發布。
// 發布的訊息先寫入 redis stream，再由每個節點的 consumer 讀回並廣播給本地訂閱者，
// 讓多個服務實例上的連線都能收到同一份更新。
type Hub[T any] struct {
	producer redis.IProducer[Envelope[T]]
	consumer redis.IConsumer[Envelope[T]]
	logger   *slog.Logger
	options  hubOptions

	mu     sync.RWMutex   // 保護 active 和 rooms 的讀寫
	wg     sync.WaitGroup // 用於等待廣播 goroutine 完成
	active bool

	rooms map[string]*Room[T]
}

func NewHub[T any](producer redis.IProducer[Envelope[T]], consumer redis.IConsumer[Envelope[T]], opts ...HubOption) (*Hub[T], error) {
	if producer == nil || consumer == nil {
		return nil, errors.New("producer and consumer cannot be nil")
	}

	options := hubOptions{
		logger:     slog.Default(),
		bufferSize: 16,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Hub[T]{
		producer: producer,
		consumer: consumer,
		logger:   options.logger.With(slog.String("caller", "Hub")),
		options:  options,
		rooms:    make(map[string]*Room[T]),
	}, nil
}

// Start 啟動 producer 與 consumer，並開始將收到的訊息廣播到對應房間。
func (h *Hub[T]) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active {
		return
	}

	h.producer.Start()
	h.consumer.Start()
	h.active = true

	messages := h.consumer.Subscribe()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for envelope := range messages {
			h.mu.RLock()
			room, ok := h.rooms[envelope.Room]
			if ok {
				if dropped := room.Broadcast(envelope.Message); dropped > 0 {
					h.logger.Warn("slow subscribers skipped",
						slog.String("room", envelope.Room),
						slog.Int("dropped", dropped))
				}
			}
			h.mu.RUnlock()
		}
	}()
}

// Close 停止 Hub 的運作，關閉所有訂閱者的通道。
func (h *Hub[T]) Close() {
	h.mu.Lock()
	if !h.active {
		h.mu.Unlock()
		return
	}
	h.active = false
	h.mu.Unlock()

	h.producer.Close()
	h.consumer.Close()
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range h.rooms {
		room.UnsubscribeAll()
	}
	clear(h.rooms)
}

// Subscribe 訂閱指定房間，返回用於接收訊息的唯讀通道
func (h *Hub[T]) Subscribe(room string) (<-chan T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.active {
		return nil, ErrHubClosed
	}

	r, ok := h.rooms[room]
	if !ok {
		r = NewRoom[T](h.options.bufferSize)
		h.rooms[room] = r
	}
	return r.Subscribe(), nil
}

// Publish 發布訊息到指定房間
func (h *Hub[T]) Publish(room string, data T) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.active {
		return ErrHubClosed
	}

	return h.producer.Publish(Envelope[T]{
		Room:    room,
		Message: data,
	})
}

// Unsubscribe 取消訂閱指定房間，房間沒有訂閱者時會被移除
func (h *Hub[T]) Unsubscribe(room string, ch <-chan T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[room]
	if !ok {
		return
	}

	r.Unsubscribe(ch)
	if r.IsIdle() {
		delete(h.rooms, room)
	}
}
