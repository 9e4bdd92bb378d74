//go:generate mockgen -package=sse -destination=mock.go -source=interfaces.go

package sse

// Envelope 是在 redis stream 上傳遞的訊息，Room 決定要廣播給哪些訂閱者
type Envelope[T any] struct {
	Room    string `msgpack:"room"`
	Message T      `msgpack:"message"`
}

// IRoom 定義了單一房間的訂閱與廣播
type IRoom[T any] interface {
	// Subscribe 建立一個新的訂閱並返回接收訊息的通道
	Subscribe() <-chan T
	// Unsubscribe 取消指定通道的訂閱
	Unsubscribe(ch <-chan T)
	// UnsubscribeAll 取消所有訂閱
	UnsubscribeAll()
	// Broadcast 將訊息廣播給所有訂閱者
	Broadcast(message T) (dropped int)
	// IsIdle 檢查是否沒有訂閱者
	IsIdle() bool
}

// IHub 定義了跨節點的 SSE 房間管理
type IHub[T any] interface {
	// Start 啟動 Hub，開始處理訊息的接收與廣播。
	// 應在呼叫其他方法前先呼叫此方法。
	Start()
	// Close 停止 Hub，關閉所有訂閱者的通道
	Close()
	// Subscribe 訂閱指定房間
	Subscribe(room string) (<-chan T, error)
	// Publish 將資料送往所有節點上訂閱該房間的連線
	Publish(room string, data T) error
	// Unsubscribe 取消訂閱指定房間
	Unsubscribe(room string, ch <-chan T)
}
