package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// AuctionStatus 代表拍賣的狀態
// 只有 Active 可以接受出價；其餘狀態皆為終止狀態，進入後不會再轉移
type AuctionStatus uint8

const (
	auctionStatusUnknown AuctionStatus = iota
	AuctionStatusActive
	AuctionStatusSold
	AuctionStatusEnded
	AuctionStatusCancelled
	AuctionStatusClosed
)

var ErrInvalidAuctionStatus = errors.New("invalid auction status")

var auctionStatusNames = map[AuctionStatus]string{
	AuctionStatusActive:    "active",
	AuctionStatusSold:      "sold",
	AuctionStatusEnded:     "ended",
	AuctionStatusCancelled: "cancelled",
	AuctionStatusClosed:    "closed",
}

// ParseAuctionStatus 將字串轉換成 AuctionStatus，無法辨識的字串會返回 ErrInvalidAuctionStatus
func ParseAuctionStatus(s string) (AuctionStatus, error) {
	for status, name := range auctionStatusNames {
		if name == s {
			return status, nil
		}
	}
	return auctionStatusUnknown, fmt.Errorf("%w: %q", ErrInvalidAuctionStatus, s)
}

func (s AuctionStatus) String() string {
	if name, ok := auctionStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("AuctionStatus(%d)", uint8(s))
}

// Valid 檢查狀態是否為已定義的值
func (s AuctionStatus) Valid() bool {
	_, ok := auctionStatusNames[s]
	return ok
}

// IsTerminal 檢查狀態是否為終止狀態
func (s AuctionStatus) IsTerminal() bool {
	switch s {
	case AuctionStatusActive:
		return false
	case AuctionStatusSold, AuctionStatusEnded, AuctionStatusCancelled, AuctionStatusClosed:
		return true
	default:
		return false
	}
}

func (s AuctionStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAuctionStatus, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *AuctionStatus) UnmarshalText(text []byte) error {
	status, err := ParseAuctionStatus(string(text))
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// Scan 實作 sql.Scanner，資料庫中不合法的狀態字串會直接返回錯誤
func (s *AuctionStatus) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidAuctionStatus, src)
	}
}

// Value 實作 driver.Valuer
func (s AuctionStatus) Value() (driver.Value, error) {
	text, err := s.MarshalText()
	if err != nil {
		return nil, err
	}
	return string(text), nil
}
