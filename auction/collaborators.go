//go:generate mockgen -package=auction -destination=mock.go -source=collaborators.go

package auction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bidfinity/models"
)

// BidUpdate 是出價成功後推送給拍賣室訂閱者的事件內容
type BidUpdate struct {
	BidAmount    decimal.Decimal
	BidderID     uuid.UUID
	BidTime      time.Time
	CurrentPrice decimal.Decimal
}

// Notifier 負責通知拍賣的參與者，實際的寄送由外部服務處理
type Notifier interface {
	NotifyWinner(ctx context.Context, auction models.Auction, bid models.Bid) error
	NotifySellerSold(ctx context.Context, auction models.Auction, bid models.Bid) error
	NotifySellerNoBids(ctx context.Context, auction models.Auction) error
}

// Broadcaster 負責將出價事件廣播給拍賣室的訂閱者
type Broadcaster interface {
	PublishBidUpdate(ctx context.Context, auctionID uuid.UUID, update BidUpdate) error
}

// Locker 提供以 key 為單位的互斥鎖，用於避免多個結算程序同時處理同一個拍賣
type Locker interface {
	// TryLock 嘗試取得鎖；鎖被其他人持有時返回 acquired = false
	TryLock(ctx context.Context, key string) (unlock func(), acquired bool, err error)
}

type nopNotifier struct{}

func (nopNotifier) NotifyWinner(context.Context, models.Auction, models.Bid) error     { return nil }
func (nopNotifier) NotifySellerSold(context.Context, models.Auction, models.Bid) error { return nil }
func (nopNotifier) NotifySellerNoBids(context.Context, models.Auction) error           { return nil }

type nopBroadcaster struct{}

func (nopBroadcaster) PublishBidUpdate(context.Context, uuid.UUID, BidUpdate) error { return nil }
