package events

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/google/uuid"

	"bidfinity/adapters/redis"
	"bidfinity/auction"
	"bidfinity/models"
)

// 通知的種類，同時作為 stream 訊息的 kind
const (
	KindWinner       = "auction_won"
	KindSellerSold   = "auction_sold"
	KindSellerNoBids = "auction_no_bids"
)

// Notification 是寫入通知 stream 的郵件，由外部的寄信服務消費
type Notification struct {
	Kind      string `msgpack:"kind"`
	AuctionID string `msgpack:"auction_id"`
	UserID    string `msgpack:"user_id"`
	To        string `msgpack:"to"`
	Subject   string `msgpack:"subject"`
	Body      string `msgpack:"body"`
}

// EncodeNotification 以通知的種類作為 stream 訊息的 kind
func EncodeNotification(n Notification) ([]any, error) {
	return redis.Encode(n.Kind, n)
}

// UserLookup 用於取得收件者的帳號資料
type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

const endTimeLayout = "January 02, 2006 at 03:04 PM"

var (
	winnerSubject = template.Must(template.New("winnerSubject").Parse(`Congratulations! You Won: {{.Auction.Title}}`))
	winnerBody    = template.Must(template.New("winnerBody").Parse(`Hi {{.Winner.Username}},

Congratulations! You have won the auction for "{{.Auction.Title}}"!

Final Winning Bid: {{.Amount}} {{.Currency}}
Auction Ended: {{.EndTime}}
Seller: {{.Seller.Username}}

Please proceed to payment to complete your purchase.

Best regards,
Bidfinity Team
`))

	soldSubject = template.Must(template.New("soldSubject").Parse(`Your Auction Ended: {{.Auction.Title}}`))
	soldBody    = template.Must(template.New("soldBody").Parse(`Hi {{.Seller.Username}},

Your auction for "{{.Auction.Title}}" has ended!

Final Sale Price: {{.Amount}} {{.Currency}}
Winner: {{.Winner.Username}}
Ended: {{.EndTime}}

The buyer will proceed with payment shortly.

Best regards,
Bidfinity Team
`))

	noBidsSubject = template.Must(template.New("noBidsSubject").Parse(`Auction Ended (No Bids): {{.Auction.Title}}`))
	noBidsBody    = template.Must(template.New("noBidsBody").Parse(`Hi {{.Seller.Username}},

Your auction for "{{.Auction.Title}}" has ended without any bids.

Ended: {{.EndTime}}

You can create a new listing with adjusted pricing or duration if you'd like to try again.

Best regards,
Bidfinity Team
`))
)

type mailData struct {
	Auction  models.Auction
	Seller   *models.User
	Winner   *models.User
	Amount   string
	Currency string
	EndTime  string
}

type NotifierOption func(*StreamNotifier)

// WithNotifierLogger 設置日誌記錄器
func WithNotifierLogger(logger *slog.Logger) NotifierOption {
	return func(n *StreamNotifier) {
		n.logger = logger
	}
}

// WithCurrency 設置郵件中金額的幣別，預設為 BHD
func WithCurrency(currency string) NotifierOption {
	return func(n *StreamNotifier) {
		n.currency = currency
	}
}

// StreamNotifier 實作 auction.Notifier，將郵件寫入 redis stream 作為 outbox
type StreamNotifier struct {
	outbox   redis.IProducer[Notification]
	users    UserLookup
	currency string
	logger   *slog.Logger
}

var _ auction.Notifier = (*StreamNotifier)(nil)

func NewStreamNotifier(outbox redis.IProducer[Notification], users UserLookup, opts ...NotifierOption) (*StreamNotifier, error) {
	if outbox == nil || users == nil {
		return nil, errors.New("outbox and users cannot be nil")
	}
	n := &StreamNotifier{
		outbox:   outbox,
		users:    users,
		currency: "BHD",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With(slog.String("caller", "StreamNotifier"))
	return n, nil
}

func (n *StreamNotifier) NotifyWinner(ctx context.Context, a models.Auction, bid models.Bid) error {
	const op = "StreamNotifier.NotifyWinner"
	data, err := n.mailData(ctx, a, &bid)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return n.enqueue(op, KindWinner, a, data.Winner, winnerSubject, winnerBody, data)
}

func (n *StreamNotifier) NotifySellerSold(ctx context.Context, a models.Auction, bid models.Bid) error {
	const op = "StreamNotifier.NotifySellerSold"
	data, err := n.mailData(ctx, a, &bid)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return n.enqueue(op, KindSellerSold, a, data.Seller, soldSubject, soldBody, data)
}

func (n *StreamNotifier) NotifySellerNoBids(ctx context.Context, a models.Auction) error {
	const op = "StreamNotifier.NotifySellerNoBids"
	data, err := n.mailData(ctx, a, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return n.enqueue(op, KindSellerNoBids, a, data.Seller, noBidsSubject, noBidsBody, data)
}

func (n *StreamNotifier) mailData(ctx context.Context, a models.Auction, bid *models.Bid) (mailData, error) {
	data := mailData{
		Auction:  a,
		Currency: n.currency,
		EndTime:  a.EndTime.UTC().Format(endTimeLayout),
	}

	seller, err := n.users.GetUser(ctx, a.SellerID)
	if err != nil {
		return data, fmt.Errorf("failed to load seller: %w", err)
	}
	data.Seller = seller

	if bid != nil {
		winner, err := n.users.GetUser(ctx, bid.BidderID)
		if err != nil {
			return data, fmt.Errorf("failed to load winner: %w", err)
		}
		data.Winner = winner
		data.Amount = bid.BidAmount.StringFixed(2)
	}
	return data, nil
}

func (n *StreamNotifier) enqueue(op, kind string, a models.Auction, to *models.User, subject, body *template.Template, data mailData) error {
	var subjectBuf, bodyBuf bytes.Buffer
	if err := subject.Execute(&subjectBuf, data); err != nil {
		return fmt.Errorf("%s: failed to render subject: %w", op, err)
	}
	if err := body.Execute(&bodyBuf, data); err != nil {
		return fmt.Errorf("%s: failed to render body: %w", op, err)
	}

	err := n.outbox.Publish(Notification{
		Kind:      kind,
		AuctionID: a.ID.String(),
		UserID:    to.ID.String(),
		To:        to.Email,
		Subject:   subjectBuf.String(),
		Body:      bodyBuf.String(),
	})
	if err != nil {
		return fmt.Errorf("%s: failed to enqueue: %w", op, err)
	}
	n.logger.Info("notification enqueued",
		slog.String("kind", kind),
		slog.String("auctionId", a.ID.String()),
		slog.String("userId", to.ID.String()))
	return nil
}
