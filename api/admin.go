package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"bidfinity/models"
)

type sweepResponse struct {
	Scanned int `json:"scanned"`
	Sold    int `json:"sold"`
	Ended   int `json:"ended"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// (POST /admin/categories)
func (impl *ServerImpl) createCategory(c *gin.Context) {
	var req categoryRequest
	if !bindJSON(c, &req) {
		return
	}
	category := models.Category{Name: req.Name, Description: req.Description}
	if err := impl.store.CreateCategory(c.Request.Context(), &category); err != nil {
		writeError(c, fmt.Errorf("[createCategory] Fail to create category, err=%w", err))
		return
	}
	c.JSON(http.StatusCreated, toCategoryResponse(category))
}

func (impl *ServerImpl) setUserActive(c *gin.Context, active bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	user, err := impl.store.SetUserActive(c.Request.Context(), id, active)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(*user))
}

// (POST /admin/users/{id}/ban)
func (impl *ServerImpl) banUser(c *gin.Context) {
	impl.setUserActive(c, false)
}

// (POST /admin/users/{id}/unban)
func (impl *ServerImpl) unbanUser(c *gin.Context) {
	impl.setUserActive(c, true)
}

// Withdraw an active auction
// (POST /admin/auctions/{id}/cancel)
func (impl *ServerImpl) cancelAuction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	a, err := impl.service.CancelListing(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuctionResponse(*a))
}

// Take down an active auction
// (POST /admin/auctions/{id}/close)
func (impl *ServerImpl) closeAuction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	a, err := impl.service.CloseListing(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuctionResponse(*a))
}

// (GET /admin/reports)
func (impl *ServerImpl) listReports(c *gin.Context) {
	var status *models.ReportStatus
	if raw := c.Query("status"); raw != "" {
		s := models.ReportStatus(raw)
		if !s.Valid() {
			abortWithMessage(c, http.StatusBadRequest, "invalid report status")
			return
		}
		status = &s
	}
	reports, err := impl.store.ListReports(c.Request.Context(), status)
	if err != nil {
		writeError(c, fmt.Errorf("[listReports] Fail to list reports, err=%w", err))
		return
	}
	c.JSON(http.StatusOK, lo.Map(reports, func(r models.Report, _ int) reportResponse { return toReportResponse(r) }))
}

// (POST /admin/reports/{id}/review)
func (impl *ServerImpl) reviewReport(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reviewRequest
	if !bindJSON(c, &req) {
		return
	}
	if !req.Status.Valid() || req.Status == models.ReportPending {
		abortWithMessage(c, http.StatusBadRequest, "invalid report status")
		return
	}
	report, err := impl.store.ReviewReport(c.Request.Context(), id, currentUser(c).ID, req.Status, req.Notes, impl.service.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReportResponse(*report))
}

// Run the auction sweeper once
// (POST /admin/sweep)
func (impl *ServerImpl) sweep(c *gin.Context) {
	report, err := impl.RunSweep(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sweepResponse(report))
}
