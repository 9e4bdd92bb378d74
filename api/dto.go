package api

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"bidfinity/auction"
	"bidfinity/models"
)

type listingRequest struct {
	Title               string                `json:"title" binding:"required"`
	Description         string                `json:"description"`
	CategoryID          *uuid.UUID            `json:"category_id"`
	StartingPrice       string                `json:"starting_price" binding:"required"`
	MinimumBidIncrement string                `json:"minimum_bid_increment"`
	BuyNowPrice         string                `json:"buy_now_price"`
	Condition           models.Condition      `json:"condition"`
	Location            string                `json:"location"`
	ShippingMethod      models.ShippingMethod `json:"shipping_method"`
	ShippingCost        string                `json:"shipping_cost"`
	StartTime           *time.Time            `json:"start_time"`
	EndTime             time.Time             `json:"end_time" binding:"required"`
}

type bidRequest struct {
	// Amount 建議以字串傳遞以保留小數位數
	Amount bidAmount `json:"amount"`
}

// bidAmount 同時接受 JSON 字串與數字，格式檢查交給 auction.ParseAmount
type bidAmount string

func (a *bidAmount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = bidAmount(s)
		return nil
	}
	*a = bidAmount(strings.TrimSpace(string(data)))
	return nil
}

type cardRequest struct {
	Holder string `json:"card_holder" binding:"required"`
	Number string `json:"card_number" binding:"required"`
	Expiry string `json:"expiry" binding:"required"`
	CVV    string `json:"cvv" binding:"required"`
}

func (r cardRequest) details() auction.CardDetails {
	return auction.CardDetails{Holder: r.Holder, Number: r.Number, Expiry: r.Expiry, CVV: r.CVV}
}

type ratingRequest struct {
	// Score 的範圍由 RateSeller 檢查
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

type reportRequest struct {
	Reason      models.ReportReason `json:"reason" binding:"required"`
	Description string              `json:"description" binding:"required"`
}

type reviewRequest struct {
	Status models.ReportStatus `json:"status" binding:"required"`
	Notes  string              `json:"admin_notes"`
}

type categoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type imageResponse struct {
	ID         uuid.UUID `json:"id"`
	Url        string    `json:"url"`
	IsPrimary  bool      `json:"is_primary"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type bidResponse struct {
	ID           uuid.UUID `json:"id"`
	BidderID     uuid.UUID `json:"bidder_id"`
	Bidder       string    `json:"bidder,omitempty"`
	BidAmount    string    `json:"bid_amount"`
	BidTime      time.Time `json:"bid_time"`
	IsWinningBid bool      `json:"is_winning_bid"`
}

type auctionResponse struct {
	ID                  uuid.UUID             `json:"id"`
	SellerID            uuid.UUID             `json:"seller_id"`
	Seller              string                `json:"seller,omitempty"`
	CategoryID          *uuid.UUID            `json:"category_id"`
	Category            string                `json:"category,omitempty"`
	Title               string                `json:"title"`
	Description         string                `json:"description"`
	StartingPrice       string                `json:"starting_price"`
	CurrentPrice        string                `json:"current_price"`
	MinimumBidIncrement string                `json:"minimum_bid_increment"`
	MinimumNextBid      string                `json:"minimum_next_bid"`
	BuyNowPrice         *string               `json:"buy_now_price"`
	Condition           models.Condition      `json:"condition"`
	Location            string                `json:"location"`
	ShippingMethod      models.ShippingMethod `json:"shipping_method"`
	ShippingCost        *string               `json:"shipping_cost"`
	StartTime           time.Time             `json:"start_time"`
	EndTime             time.Time             `json:"end_time"`
	Status              models.AuctionStatus  `json:"status"`
	Images              []imageResponse       `json:"images"`
	Bids                []bidResponse         `json:"bids,omitempty"`
}

type paymentResponse struct {
	ID              uuid.UUID            `json:"id"`
	AuctionID       uuid.UUID            `json:"auction_id"`
	BuyerID         uuid.UUID            `json:"buyer_id"`
	SellerID        uuid.UUID            `json:"seller_id"`
	Amount          string               `json:"amount"`
	PaymentMethod   string               `json:"payment_method"`
	TransactionDate time.Time            `json:"transaction_date"`
	Status          models.PaymentStatus `json:"status"`
}

type eligibilityResponse struct {
	Eligible bool   `json:"eligible"`
	Path     string `json:"path,omitempty"`
	Amount   string `json:"amount,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type ratingResponse struct {
	ID          uuid.UUID  `json:"id"`
	RatedUserID uuid.UUID  `json:"rated_user_id"`
	AuctionID   *uuid.UUID `json:"auction_id"`
	RatingScore int        `json:"rating_score"`
	Comment     string     `json:"comment"`
	CreatedAt   time.Time  `json:"created_at"`
}

type watchlistResponse struct {
	AuctionID uuid.UUID        `json:"auction_id"`
	AddedAt   time.Time        `json:"added_at"`
	Auction   *auctionResponse `json:"auction,omitempty"`
}

type reportResponse struct {
	ID          uuid.UUID           `json:"id"`
	AuctionID   uuid.UUID           `json:"auction_id"`
	ReporterID  uuid.UUID           `json:"reporter_id"`
	Reason      models.ReportReason `json:"reason"`
	Description string              `json:"description"`
	Status      models.ReportStatus `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	ReviewedBy  *uuid.UUID          `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time          `json:"reviewed_at,omitempty"`
	AdminNotes  string              `json:"admin_notes,omitempty"`
}

type categoryResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

type userResponse struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	IsSeller bool      `json:"is_seller"`
	IsAdmin  bool      `json:"is_admin"`
	IsActive bool      `json:"is_active"`
}

type listResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func optionalMoney(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	return lo.ToPtr(money(*d))
}

func toImageResponse(img models.AuctionImage) imageResponse {
	return imageResponse{ID: img.ID, Url: img.Url, IsPrimary: img.IsPrimary, UploadedAt: img.UploadedAt}
}

func toBidResponse(b models.Bid) bidResponse {
	resp := bidResponse{
		ID:           b.ID,
		BidderID:     b.BidderID,
		BidAmount:    money(b.BidAmount),
		BidTime:      b.BidTime,
		IsWinningBid: b.IsWinningBid,
	}
	if b.Bidder != nil {
		resp.Bidder = b.Bidder.Username
	}
	return resp
}

func toAuctionResponse(a models.Auction) auctionResponse {
	resp := auctionResponse{
		ID:                  a.ID,
		SellerID:            a.SellerID,
		CategoryID:          a.CategoryID,
		Title:               a.Title,
		Description:         a.Description,
		StartingPrice:       money(a.StartingPrice),
		CurrentPrice:        money(a.CurrentPrice),
		MinimumBidIncrement: money(a.MinimumBidIncrement),
		MinimumNextBid:      money(a.MinimumNextBid()),
		BuyNowPrice:         optionalMoney(a.BuyNowPrice),
		Condition:           a.Condition,
		Location:            a.Location,
		ShippingMethod:      a.ShippingMethod,
		ShippingCost:        optionalMoney(a.ShippingCost),
		StartTime:           a.StartTime,
		EndTime:             a.EndTime,
		Status:              a.Status,
		Images:              lo.Map(a.Images, func(img models.AuctionImage, _ int) imageResponse { return toImageResponse(img) }),
	}
	if a.Seller != nil {
		resp.Seller = a.Seller.Username
	}
	if a.Category != nil {
		resp.Category = a.Category.Name
	}
	if len(a.Bids) > 0 {
		resp.Bids = lo.Map(a.Bids, func(b models.Bid, _ int) bidResponse { return toBidResponse(b) })
	}
	return resp
}

func toPaymentResponse(p models.Payment) paymentResponse {
	return paymentResponse{
		ID:              p.ID,
		AuctionID:       p.AuctionID,
		BuyerID:         p.BuyerID,
		SellerID:        p.SellerID,
		Amount:          money(p.Amount),
		PaymentMethod:   p.PaymentMethod,
		TransactionDate: p.TransactionDate,
		Status:          p.Status,
	}
}

func toReportResponse(r models.Report) reportResponse {
	return reportResponse{
		ID:          r.ID,
		AuctionID:   r.AuctionID,
		ReporterID:  r.ReporterID,
		Reason:      r.Reason,
		Description: r.Description,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		ReviewedBy:  r.ReviewedBy,
		ReviewedAt:  r.ReviewedAt,
		AdminNotes:  r.AdminNotes,
	}
}

func toCategoryResponse(c models.Category) categoryResponse {
	return categoryResponse{ID: c.ID, Name: c.Name, Description: c.Description}
}

func toUserResponse(u models.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, IsSeller: u.IsSeller, IsAdmin: u.IsAdmin, IsActive: u.IsActive}
}
