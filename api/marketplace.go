package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"bidfinity/auction"
	"bidfinity/models"
)

// Upload an auction image
// (POST /auctions/{id}/images)
func (impl *ServerImpl) uploadImage(c *gin.Context) {
	const op = "uploadImage"
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	// 只有賣家可以上傳圖片
	a, err := impl.service.GetAuction(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if a.SellerID != currentUser(c).ID {
		writeError(c, auction.ErrNotOwner)
		return
	}

	// 透過S3 API儲存圖片
	url, err := impl.images.UploadImage(ctx, "auctions/"+id.String(), c.Request.Body)
	if err != nil {
		writeError(c, fmt.Errorf("[%s] Fail to upload image, err=%w", op, err))
		return
	}
	// 在DB紀錄圖片
	image := models.AuctionImage{
		AuctionID:  id,
		Url:        url,
		UploadedAt: impl.service.Now(),
	}
	if err := impl.store.AddImage(ctx, &image); err != nil {
		if delErr := impl.images.DeleteImage(ctx, url); delErr != nil {
			slog.Warn("Fail to delete orphan image", slog.String("op", op), slog.String("url", url), slog.Any("error", delErr))
		}
		writeError(c, fmt.Errorf("[%s] Fail to create image, err=%w", op, err))
		return
	}
	c.Header("Location", url)
	c.JSON(http.StatusCreated, toImageResponse(image))
}

// Delete an auction image
// (DELETE /images/{id})
func (impl *ServerImpl) deleteImage(c *gin.Context) {
	const op = "deleteImage"
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	image, err := impl.store.GetImage(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	a, err := impl.service.GetAuction(ctx, image.AuctionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if a.SellerID != currentUser(c).ID {
		writeError(c, auction.ErrNotOwner)
		return
	}
	if err := impl.store.DeleteImage(ctx, id); err != nil {
		writeError(c, fmt.Errorf("[%s] Fail to delete image, err=%w", op, err))
		return
	}
	if err := impl.images.DeleteImage(ctx, image.Url); err != nil {
		slog.Warn("Fail to delete image object", slog.String("op", op), slog.String("url", image.Url), slog.Any("error", err))
	}
	c.Status(http.StatusNoContent)
}

// (POST /auctions/{id}/watchlist)
func (impl *ServerImpl) addToWatchlist(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	entry, err := impl.store.AddToWatchlist(c.Request.Context(), currentUser(c).ID, id, impl.service.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, watchlistResponse{AuctionID: entry.AuctionID, AddedAt: entry.AddedAt})
}

// (DELETE /auctions/{id}/watchlist)
func (impl *ServerImpl) removeFromWatchlist(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := impl.store.RemoveFromWatchlist(c.Request.Context(), currentUser(c).ID, id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// (GET /watchlist)
func (impl *ServerImpl) listWatchlist(c *gin.Context) {
	entries, err := impl.store.ListWatchlist(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		writeError(c, fmt.Errorf("[listWatchlist] Fail to list watchlist, err=%w", err))
		return
	}
	c.JSON(http.StatusOK, lo.Map(entries, func(w models.Watchlist, _ int) watchlistResponse {
		resp := watchlistResponse{AuctionID: w.AuctionID, AddedAt: w.AddedAt}
		if w.Auction != nil {
			resp.Auction = lo.ToPtr(toAuctionResponse(*w.Auction))
		}
		return resp
	}))
}

// Report a listing
// (POST /auctions/{id}/reports)
func (impl *ServerImpl) reportAuction(c *gin.Context) {
	const op = "reportAuction"
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reportRequest
	if !bindJSON(c, &req) {
		return
	}
	if !req.Reason.Valid() {
		abortWithMessage(c, http.StatusBadRequest, "invalid report reason")
		return
	}
	report := models.Report{
		AuctionID:   id,
		ReporterID:  currentUser(c).ID,
		Reason:      req.Reason,
		Description: impl.htmlChecker.Sanitize(req.Description),
		Status:      models.ReportPending,
	}
	if err := impl.store.CreateReport(c.Request.Context(), &report); err != nil {
		writeError(c, fmt.Errorf("[%s] Fail to create report, err=%w", op, err))
		return
	}
	c.JSON(http.StatusCreated, toReportResponse(report))
}

// Get a payment, visible to the buyer and the seller
// (GET /payments/{id})
func (impl *ServerImpl) getPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	payment, err := impl.service.GetPayment(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	user := currentUser(c)
	if payment.BuyerID != user.ID && payment.SellerID != user.ID && !user.IsAdmin {
		writeError(c, auction.ErrNotOwner)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(*payment))
}

// Rate the seller of a completed payment
// (POST /payments/{id}/rating)
func (impl *ServerImpl) rateSeller(c *gin.Context) {
	const op = "rateSeller"
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ratingRequest
	if !bindJSON(c, &req) {
		return
	}
	rating, err := impl.service.RateSeller(c.Request.Context(), id, currentUser(c).ID, req.Score, impl.htmlChecker.Sanitize(req.Comment))
	if err != nil {
		writeError(c, fmt.Errorf("[%s] Fail to rate seller, err=%w", op, err))
		return
	}
	c.JSON(http.StatusCreated, ratingResponse{
		ID:          rating.ID,
		RatedUserID: rating.RatedUserID,
		AuctionID:   rating.AuctionID,
		RatingScore: rating.RatingScore,
		Comment:     rating.Comment,
		CreatedAt:   rating.CreatedAt,
	})
}

// (GET /categories)
func (impl *ServerImpl) listCategories(c *gin.Context) {
	categories, err := impl.store.ListCategories(c.Request.Context())
	if err != nil {
		writeError(c, fmt.Errorf("[listCategories] Fail to list categories, err=%w", err))
		return
	}
	c.JSON(http.StatusOK, lo.Map(categories, func(category models.Category, _ int) categoryResponse { return toCategoryResponse(category) }))
}
