package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bidfinity/auction"
)

// BidUpdateType 是拍賣室事件中出價更新的類型名稱
const BidUpdateType = "bid_update"

// BidEvent 是推送給拍賣室訂閱者的出價更新
type BidEvent struct {
	Type         string    `msgpack:"type" json:"type"`
	BidAmount    string    `msgpack:"bid_amount" json:"bid_amount"`
	Bidder       string    `msgpack:"bidder" json:"bidder"`
	BidTime      time.Time `msgpack:"bid_time" json:"bid_time"`
	CurrentPrice string    `msgpack:"current_price" json:"current_price"`
}

// RoomPublisher 將事件送往指定房間的所有訂閱者，sse.Hub 即實作了這個介面
type RoomPublisher interface {
	Publish(room string, data BidEvent) error
}

// UsernameLookup 用於將出價者 ID 轉換為顯示名稱
type UsernameLookup interface {
	Username(ctx context.Context, id uuid.UUID) (string, error)
}

type BroadcasterOption func(*StreamBroadcaster)

// WithBroadcasterLogger 設置日誌記錄器
func WithBroadcasterLogger(logger *slog.Logger) BroadcasterOption {
	return func(b *StreamBroadcaster) {
		b.logger = logger
	}
}

// StreamBroadcaster 實作 auction.Broadcaster，房間名稱即為拍賣 ID
type StreamBroadcaster struct {
	rooms  RoomPublisher
	users  UsernameLookup
	logger *slog.Logger
}

var _ auction.Broadcaster = (*StreamBroadcaster)(nil)

func NewStreamBroadcaster(rooms RoomPublisher, users UsernameLookup, opts ...BroadcasterOption) (*StreamBroadcaster, error) {
	if rooms == nil || users == nil {
		return nil, errors.New("rooms and users cannot be nil")
	}
	b := &StreamBroadcaster{
		rooms:  rooms,
		users:  users,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(slog.String("caller", "StreamBroadcaster"))
	return b, nil
}

func (b *StreamBroadcaster) PublishBidUpdate(ctx context.Context, auctionID uuid.UUID, update auction.BidUpdate) error {
	const op = "StreamBroadcaster.PublishBidUpdate"
	bidder, err := b.users.Username(ctx, update.BidderID)
	if err != nil {
		return fmt.Errorf("%s: failed to resolve bidder: %w", op, err)
	}

	event := BidEvent{
		Type:         BidUpdateType,
		BidAmount:    update.BidAmount.StringFixed(2),
		Bidder:       bidder,
		BidTime:      update.BidTime.UTC(),
		CurrentPrice: update.CurrentPrice.StringFixed(2),
	}
	if err := b.rooms.Publish(auctionID.String(), event); err != nil {
		return fmt.Errorf("%s: failed to publish: %w", op, err)
	}
	b.logger.Debug("bid update published", slog.String("auctionId", auctionID.String()))
	return nil
}
