package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"bidfinity/adapters/ledger"
	"bidfinity/auction"
	"bidfinity/events"
	"bidfinity/models"
)

// List auctions
// (GET /auctions)
func (impl *ServerImpl) listAuctions(c *gin.Context) {
	// 建立查詢，預設只列出進行中的拍賣
	filter := ledger.AuctionFilter{
		Status: lo.ToPtr(models.AuctionStatusActive),
		Query:  c.Query("q"),
	}
	if raw := c.Query("status"); raw != "" && raw != "all" {
		status, err := models.ParseAuctionStatus(raw)
		if err != nil {
			abortWithMessage(c, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = &status
	} else if raw == "all" {
		filter.Status = nil
	}
	//  - category / seller
	for param, target := range map[string]**uuid.UUID{"category": &filter.CategoryID, "seller": &filter.SellerID} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			abortWithMessage(c, http.StatusBadRequest, "invalid "+param)
			return
		}
		*target = &id
	}
	//  - 分頁
	for param, target := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			abortWithMessage(c, http.StatusBadRequest, "invalid "+param)
			return
		}
		*target = n
	}

	auctions, total, err := impl.store.ListAuctions(c.Request.Context(), filter)
	if err != nil {
		writeError(c, fmt.Errorf("[listAuctions] Fail to list auctions, err=%w", err))
		return
	}
	c.JSON(http.StatusOK, listResponse[auctionResponse]{
		Items: lo.Map(auctions, func(a models.Auction, _ int) auctionResponse { return toAuctionResponse(a) }),
		Total: total,
	})
}

// Get auction details with bids (newest first) and images
// (GET /auctions/{id})
func (impl *ServerImpl) getAuction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	a, err := impl.store.GetAuctionDetail(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuctionResponse(*a))
}

func (impl *ServerImpl) listingInput(req listingRequest) auction.ListingInput {
	return auction.ListingInput{
		Title:               req.Title,
		Description:         impl.htmlChecker.Sanitize(req.Description),
		CategoryID:          req.CategoryID,
		StartingPrice:       req.StartingPrice,
		MinimumBidIncrement: req.MinimumBidIncrement,
		BuyNowPrice:         req.BuyNowPrice,
		Condition:           req.Condition,
		Location:            req.Location,
		ShippingMethod:      req.ShippingMethod,
		ShippingCost:        req.ShippingCost,
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
	}
}

// Create a listing
// (POST /auctions)
func (impl *ServerImpl) createListing(c *gin.Context) {
	const op = "createListing"
	user := currentUser(c)
	if !user.IsSeller {
		abortWithMessage(c, http.StatusForbidden, "seller account required")
		return
	}
	var req listingRequest
	if !bindJSON(c, &req) {
		return
	}
	a, err := impl.service.CreateListing(c.Request.Context(), user.ID, impl.listingInput(req))
	if err != nil {
		writeError(c, fmt.Errorf("[%s] Fail to create listing, err=%w", op, err))
		return
	}
	c.Header("Location", "/auctions/"+a.ID.String())
	c.JSON(http.StatusCreated, toAuctionResponse(*a))
}

// Edit a listing that has no bids yet
// (PATCH /auctions/{id})
func (impl *ServerImpl) editListing(c *gin.Context) {
	const op = "editListing"
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req listingRequest
	if !bindJSON(c, &req) {
		return
	}
	a, err := impl.service.EditListing(c.Request.Context(), id, currentUser(c).ID, impl.listingInput(req))
	if err != nil {
		writeError(c, fmt.Errorf("[%s] Fail to edit listing, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, toAuctionResponse(*a))
}

// Delete a listing, admins may force the deletion
// (DELETE /auctions/{id})
func (impl *ServerImpl) deleteListing(c *gin.Context) {
	const op = "deleteListing"
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	user := currentUser(c)
	force := c.Query("force") == "true"
	if force && !user.IsAdmin {
		abortWithMessage(c, http.StatusForbidden, "admin only")
		return
	}

	ctx := c.Request.Context()
	detail, err := impl.store.GetAuctionDetail(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := impl.service.DeleteListing(ctx, id, user.ID, force); err != nil {
		writeError(c, fmt.Errorf("[%s] Fail to delete listing, err=%w", op, err))
		return
	}
	// 圖片紀錄隨拍賣一起刪除，S3 上的檔案盡量清除
	for _, img := range detail.Images {
		if err := impl.images.DeleteImage(ctx, img.Url); err != nil {
			slog.Warn("Fail to delete image object", slog.String("op", op), slog.String("url", img.Url), slog.Any("error", err))
		}
	}
	c.Status(http.StatusNoContent)
}

// Place a bid
// (POST /auctions/{id}/bids)
func (impl *ServerImpl) placeBid(c *gin.Context) {
	const op = "placeBid"
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req bidRequest
	if !bindJSON(c, &req) {
		return
	}
	user := currentUser(c)
	bid, err := impl.service.PlaceBid(c.Request.Context(), id, user.ID, string(req.Amount))
	if err != nil {
		writeError(c, fmt.Errorf("[%s] Fail to place bid, err=%w", op, err))
		return
	}
	bid.Bidder = user
	c.JSON(http.StatusCreated, toBidResponse(*bid))
}

// List bids, newest first
// (GET /auctions/{id}/bids)
func (impl *ServerImpl) listBids(c *gin.Context) {
	const op = "listBids"
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	bids, err := impl.service.ListBids(ctx, id)
	if err != nil {
		writeError(c, fmt.Errorf("[%s] Fail to list bids, err=%w", op, err))
		return
	}
	resp := make([]bidResponse, len(bids))
	for i, bid := range bids {
		resp[i] = toBidResponse(bid)
		if resp[i].Bidder, err = impl.store.Username(ctx, bid.BidderID); err != nil {
			writeError(c, fmt.Errorf("[%s] Fail to resolve bidder, err=%w", op, err))
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Track auction bid events
// (GET /auctions/{id}/events)
func (impl *ServerImpl) auctionEvents(c *gin.Context) {
	const op = "auctionEvents"
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	// 檢查拍賣是否存在且仍在進行中
	a, err := impl.service.GetAuction(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !a.IsOpen(impl.service.Now()) {
		abortWithMessage(c, http.StatusGone, "auction has ended")
		return
	}

	room := id.String()
	ch, err := impl.hub.Subscribe(room)
	if err != nil {
		writeError(c, fmt.Errorf("[%s] Fail to subscribe to auction events, err=%w", op, err))
		return
	}
	defer impl.hub.Unsubscribe(room, ch)

	// SSE請求合法，開始初始化串流
	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	heartbeat := time.NewTicker(impl.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent(events.BidUpdateType, event)
			w.Flush()
		// 一段時間沒有事件就發送註解行，避免代理伺服器斷開連線
		case <-heartbeat.C:
			if _, err := w.WriteString(": keepalive\n\n"); err != nil {
				return
			}
			w.Flush()
		}
	}
}

// Check whether the caller can pay for the auction
// (GET /auctions/{id}/payment-eligibility)
func (impl *ServerImpl) paymentEligibility(c *gin.Context) {
	const op = "paymentEligibility"
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	eligibility, err := impl.service.IsPaymentEligible(c.Request.Context(), id, currentUser(c).ID)
	var rejection *auction.Rejection
	switch {
	case err == nil:
		c.JSON(http.StatusOK, eligibilityResponse{
			Eligible: true,
			Path:     eligibility.Path.String(),
			Amount:   money(eligibility.Amount),
		})
	case errors.As(err, &rejection) && !errors.Is(err, auction.ErrNotFound):
		c.JSON(http.StatusOK, eligibilityResponse{Reason: string(rejection.Reason)})
	default:
		writeError(c, fmt.Errorf("[%s] Fail to check eligibility, err=%w", op, err))
	}
}

// Buy an active auction at its buy now price
// (POST /auctions/{id}/buy-now)
func (impl *ServerImpl) buyNow(c *gin.Context) {
	const op = "buyNow"
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cardRequest
	if !bindJSON(c, &req) {
		return
	}
	payment, err := impl.service.BuyNow(c.Request.Context(), id, currentUser(c).ID, req.details())
	if err != nil {
		writeError(c, fmt.Errorf("[%s] Fail to buy now, err=%w", op, err))
		return
	}
	c.JSON(http.StatusCreated, toPaymentResponse(*payment))
}

// Pay for a won auction
// (POST /auctions/{id}/pay)
func (impl *ServerImpl) payWonAuction(c *gin.Context) {
	const op = "payWonAuction"
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cardRequest
	if !bindJSON(c, &req) {
		return
	}
	payment, err := impl.service.PayWonAuction(c.Request.Context(), id, currentUser(c).ID, req.details())
	if err != nil {
		writeError(c, fmt.Errorf("[%s] Fail to pay won auction, err=%w", op, err))
		return
	}
	c.JSON(http.StatusCreated, toPaymentResponse(*payment))
}
