package auction

import (
	"errors"
	"fmt"

	"bidfinity/models"
)

// Trigger 代表推動拍賣狀態轉移的事件
type Trigger uint8

const (
	triggerUnknown Trigger = iota
	// TriggerBuyNowCompleted 直購付款完成
	TriggerBuyNowCompleted
	// TriggerExpiredWithBids 拍賣到期且有出價
	TriggerExpiredWithBids
	// TriggerExpiredWithoutBids 拍賣到期且沒有任何出價
	TriggerExpiredWithoutBids
	// TriggerAdminCancel 管理員或賣家撤回拍賣
	TriggerAdminCancel
	// TriggerAdminClose 管理員因違規下架拍賣
	TriggerAdminClose
)

var ErrUnknownTrigger = errors.New("unknown auction trigger")

var triggerNames = map[Trigger]string{
	TriggerBuyNowCompleted:    "buy_now_completed",
	TriggerExpiredWithBids:    "expired_with_bids",
	TriggerExpiredWithoutBids: "expired_without_bids",
	TriggerAdminCancel:        "admin_cancel",
	TriggerAdminClose:         "admin_close",
}

func (t Trigger) String() string {
	if name, ok := triggerNames[t]; ok {
		return name
	}
	return fmt.Sprintf("trigger(%d)", uint8(t))
}

// Transition 依照 trigger 轉移拍賣的狀態
//
// 只有 active 的拍賣會轉移；已經處於終止狀態的拍賣不做任何事並返回 changed = false。
func Transition(a *models.Auction, trigger Trigger) (changed bool, err error) {
	switch a.Status {
	case models.AuctionStatusActive:
		next, err := targetStatus(trigger)
		if err != nil {
			return false, err
		}
		a.Status = next
		return true, nil
	case models.AuctionStatusSold, models.AuctionStatusEnded, models.AuctionStatusCancelled, models.AuctionStatusClosed:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s", models.ErrInvalidAuctionStatus, a.Status)
	}
}

func targetStatus(trigger Trigger) (models.AuctionStatus, error) {
	switch trigger {
	case TriggerBuyNowCompleted, TriggerExpiredWithBids:
		return models.AuctionStatusSold, nil
	case TriggerExpiredWithoutBids:
		return models.AuctionStatusEnded, nil
	case TriggerAdminCancel:
		return models.AuctionStatusCancelled, nil
	case TriggerAdminClose:
		return models.AuctionStatusClosed, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownTrigger, trigger)
	}
}
