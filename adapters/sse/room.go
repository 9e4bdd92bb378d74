package sse

import (
	"sync"
)

// Room 管理同一個房間 (例如一場拍賣) 的所有訂閱者，並將訊息廣播給他們。
type Room[T any] struct {
	subscribers map[<-chan T]chan<- T
	bufferSize  int
	mu          sync.RWMutex
}

// NewRoom 建立一個新的房間，bufferSize 為每個訂閱者通道的緩衝大小
func NewRoom[T any](bufferSize int) *Room[T] {
	return &Room[T]{
		subscribers: make(map[<-chan T]chan<- T),
		bufferSize:  bufferSize,
	}
}

// Subscribe 建立一個新的 chan T，將其加入 subscribers，並回傳唯讀通道給呼叫者。
func (r *Room[T]) Subscribe() <-chan T {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan T, r.bufferSize)
	r.subscribers[ch] = ch
	return ch
}

// Unsubscribe 從 subscribers 中移除指定的通道，並關閉該通道。
func (r *Room[T]) Unsubscribe(ch <-chan T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if writeCh, exists := r.subscribers[ch]; exists {
		delete(r.subscribers, ch)
		close(writeCh)
	}
}

// UnsubscribeAll 關閉所有訂閱者的通道並清空訂閱清單。
func (r *Room[T]) UnsubscribeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, writeCh := range r.subscribers {
		close(writeCh)
	}
	clear(r.subscribers)
}

// Broadcast 將訊息廣播給所有訂閱者，緩衝已滿的訂閱者會錯過這則訊息。
// 返回被略過的訂閱者數量。
func (r *Room[T]) Broadcast(message T) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dropped := 0
	for _, writeCh := range r.subscribers {
		select {
		case writeCh <- message:
		default:
			dropped++
		}
	}
	return dropped
}

// IsIdle 判斷 subscribers 是否為空。
func (r *Room[T]) IsIdle() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers) == 0
}
