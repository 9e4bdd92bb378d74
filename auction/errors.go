package auction

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// 錯誤類別，可以透過 errors.Is 判斷 Rejection 屬於哪一類
var (
	ErrValidation    = errors.New("validation error")
	ErrStateConflict = errors.New("state conflict")
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
)

// 儲存層回傳的錯誤
var (
	// ErrRecordNotFound 表示查詢的紀錄不存在
	ErrRecordNotFound = errors.New("record not found")
	// ErrDuplicate 表示違反唯一性限制
	ErrDuplicate = errors.New("duplicate record")
	// ErrTxConflict 表示交易因為鎖競爭或序列化失敗而中止，可以重試
	ErrTxConflict = errors.New("transaction conflict")
)

// Reason 代表操作被拒絕的原因
type Reason string

const (
	ReasonAuctionNotActive   Reason = "AuctionNotActive"
	ReasonSelfBid            Reason = "SelfBid"
	ReasonInvalidAmount      Reason = "InvalidAmount"
	ReasonBidTooLow          Reason = "BidTooLow"
	ReasonAuctionBusy        Reason = "AuctionBusy"
	ReasonAlreadyPaid        Reason = "AlreadyPaid"
	ReasonNotPaymentEligible Reason = "NotPaymentEligible"
	ReasonInvalidCard        Reason = "InvalidCard"
	ReasonAlreadyRated       Reason = "AlreadyRated"
	ReasonInvalidRating      Reason = "InvalidRating"
	ReasonNotRatingEligible  Reason = "NotRatingEligible"
	ReasonNotOwner           Reason = "NotOwner"
	ReasonHasBids            Reason = "HasBids"
	ReasonInvalidListing     Reason = "InvalidListing"
	ReasonAuctionNotFound    Reason = "AuctionNotFound"
	ReasonPaymentNotFound    Reason = "PaymentNotFound"
)

// Rejection 代表一個面向使用者的拒絕結果
// 同一個 Reason 的 Rejection 彼此以 errors.Is 視為相等，並會 unwrap 成所屬的錯誤類別
type Rejection struct {
	Reason Reason
	Detail string
	// Minimum 只在 BidTooLow 時設定，代表可以被接受的最低出價
	Minimum decimal.Decimal

	kind error
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

func (r *Rejection) Unwrap() error {
	return r.kind
}

func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Reason == r.Reason
}

var (
	ErrAuctionNotActive   = &Rejection{Reason: ReasonAuctionNotActive, kind: ErrStateConflict}
	ErrSelfBid            = &Rejection{Reason: ReasonSelfBid, kind: ErrStateConflict}
	ErrInvalidAmount      = &Rejection{Reason: ReasonInvalidAmount, kind: ErrValidation}
	ErrBidTooLow          = &Rejection{Reason: ReasonBidTooLow, kind: ErrStateConflict}
	ErrAuctionBusy        = &Rejection{Reason: ReasonAuctionBusy, kind: ErrStateConflict}
	ErrAlreadyPaid        = &Rejection{Reason: ReasonAlreadyPaid, kind: ErrStateConflict}
	ErrNotPaymentEligible = &Rejection{Reason: ReasonNotPaymentEligible, kind: ErrStateConflict}
	ErrInvalidCard        = &Rejection{Reason: ReasonInvalidCard, kind: ErrValidation}
	ErrAlreadyRated       = &Rejection{Reason: ReasonAlreadyRated, kind: ErrStateConflict}
	ErrInvalidRating      = &Rejection{Reason: ReasonInvalidRating, kind: ErrValidation}
	ErrNotRatingEligible  = &Rejection{Reason: ReasonNotRatingEligible, kind: ErrStateConflict}
	ErrNotOwner           = &Rejection{Reason: ReasonNotOwner, kind: ErrForbidden}
	ErrHasBids            = &Rejection{Reason: ReasonHasBids, kind: ErrStateConflict}
	ErrInvalidListing     = &Rejection{Reason: ReasonInvalidListing, kind: ErrValidation}
	ErrAuctionNotFound    = &Rejection{Reason: ReasonAuctionNotFound, kind: ErrNotFound}
	ErrPaymentNotFound    = &Rejection{Reason: ReasonPaymentNotFound, kind: ErrNotFound}
)

// reject 以 sentinel 為樣板建立帶有說明的 Rejection
func reject(sentinel *Rejection, format string, args ...any) *Rejection {
	r := *sentinel
	r.Detail = fmt.Sprintf(format, args...)
	return &r
}

// bidTooLow 建立帶有最低可接受金額的 BidTooLow
func bidTooLow(minimum decimal.Decimal) *Rejection {
	r := reject(ErrBidTooLow, "bid must be at least %s", minimum.StringFixed(2))
	r.Minimum = minimum
	return r
}
