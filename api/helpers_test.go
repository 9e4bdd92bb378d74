package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"bidfinity/adapters/ledger"
	internalS3 "bidfinity/adapters/s3"
	"bidfinity/adapters/sse"
	"bidfinity/auction"
	"bidfinity/events"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// pngHeader 足以讓 http.DetectContentType 判斷為 image/png
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// loopback 將 Publish 的資料直接送回 Subscribe，取代 redis stream
type loopback[T any] struct {
	mu     sync.Mutex
	ch     chan T
	closed bool
}

func newLoopback[T any]() *loopback[T] {
	return &loopback[T]{ch: make(chan T, 64)}
}

func (l *loopback[T]) Start() {}

func (l *loopback[T]) Publish(data T) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.ch <- data
	}
	return nil
}

func (l *loopback[T]) Subscribe() <-chan T {
	return l.ch
}

func (l *loopback[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
}

type outboxRecorder struct {
	mu            sync.Mutex
	notifications []events.Notification
}

func (o *outboxRecorder) Start() {}
func (o *outboxRecorder) Close() {}

func (o *outboxRecorder) Publish(n events.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifications = append(o.notifications, n)
	return nil
}

func (o *outboxRecorder) kinds() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	kinds := make([]string, len(o.notifications))
	for i, n := range o.notifications {
		kinds[i] = n.Kind
	}
	return kinds
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string]bool
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = true
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeObjects) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type testUser struct {
	ID    uuid.UUID
	Name  string
	Token string
}

type testEnv struct {
	server  *ServerImpl
	router  *gin.Engine
	clock   *testClock
	outbox  *outboxRecorder
	objects *fakeObjects

	seller, bidder, rival, admin testUser
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()

	db, err := ledger.OpenSQLite(":memory:")
	require.NoError(t, err)
	store, err := ledger.New(db)
	require.NoError(t, err)
	require.NoError(t, store.Migrate())

	link := newLoopback[sse.Envelope[events.BidEvent]]()
	hub, err := sse.NewHub[events.BidEvent](link, link)
	require.NoError(t, err)

	objects := &fakeObjects{objects: map[string]bool{}}
	images, err := internalS3.NewOperator(objects, "bucket", "https://cdn.example.com", internalS3.WithMaxImageSize(1<<10))
	require.NoError(t, err)

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	clock := &testClock{now: testNow}
	outbox := &outboxRecorder{}
	config := ServerConfig{Auth: AuthConfig{Issuer: "bidfinity-auth", Audience: "bidfinity"}}
	server, err := newServer(config, dependencies{
		store:     store,
		hub:       hub,
		outbox:    outbox,
		images:    images,
		publicKey: publicKey,
	}, auction.WithClock(clock.Now), auction.WithRetryBackoff(time.Millisecond))
	require.NoError(t, err)
	server.heartbeat = 50 * time.Millisecond
	server.Start()
	t.Cleanup(server.Close)

	sign := func(name string, seller, admin bool) testUser {
		id := uuid.New()
		token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, JWT{
			Username: name,
			Email:    name + "@example.com",
			IsSeller: seller,
			IsAdmin:  admin,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   id.String(),
				Issuer:    "bidfinity-auth",
				Audience:  jwt.ClaimStrings{"bidfinity"},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		signed, err := token.SignedString(privateKey)
		require.NoError(t, err)
		return testUser{ID: id, Name: name, Token: signed}
	}

	return &testEnv{
		server:  server,
		router:  server.Router(),
		clock:   clock,
		outbox:  outbox,
		objects: objects,
		seller:  sign("seller", true, false),
		bidder:  sign("bidder", false, false),
		rival:   sign("rival", false, false),
		admin:   sign("admin", false, true),
	}
}

// do 送出請求，body 為 []byte 時原樣送出，其餘以 JSON 編碼
func (e *testEnv) do(t *testing.T, method, path string, user *testUser, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+user.Token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
}

// createListing 由賣家建立一個一小時後結束、起標價 10.00 的拍賣
func (e *testEnv) createListing(t *testing.T, mutate func(map[string]any)) auctionResponse {
	t.Helper()
	body := map[string]any{
		"title":          "Film camera",
		"description":    "Works fine",
		"starting_price": "10.00",
		"end_time":       e.clock.Now().Add(time.Hour),
	}
	if mutate != nil {
		mutate(body)
	}
	w := e.do(t, http.MethodPost, "/auctions", &e.seller, body)
	requireStatus(t, w, http.StatusCreated)
	return decode[auctionResponse](t, w)
}

func (e *testEnv) placeBid(t *testing.T, auctionID uuid.UUID, user *testUser, amount string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodPost, "/auctions/"+auctionID.String()+"/bids", user, bidRequest{Amount: bidAmount(amount)})
}

func validCard() cardRequest {
	return cardRequest{Holder: "Test Buyer", Number: "4242 4242 4242 4242", Expiry: "12/30", CVV: "123"}
}
