package sse_test

import (
	"sync"

	"bidfinity/adapters/sse"
)

// Message 表示一個 SSE 訊息，包含資料字段。
type Message struct {
	Data string `msgpack:"data"`
}

// loopback 將 Publish 的資料直接送回 Subscribe，模擬 redis stream 的一來一回
type loopback struct {
	mu     sync.Mutex
	ch     chan sse.Envelope[Message]
	closed bool
}

func newLoopback() *loopback {
	return &loopback{ch: make(chan sse.Envelope[Message], 16), closed: true}
}

func (l *loopback) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = false
}

func (l *loopback) Publish(data sse.Envelope[Message]) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.ch <- data
	}
	return nil
}

func (l *loopback) Subscribe() <-chan sse.Envelope[Message] {
	return l.ch
}

func (l *loopback) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.ch)
}
