package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bidfinity/adapters/ledger"
	internalS3 "bidfinity/adapters/s3"
	"bidfinity/auction"
)

type errorResponse struct {
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	// Minimum 只在 BidTooLow 時返回
	Minimum string `json:"minimum,omitempty"`
}

func abortWithMessage(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Message: message})
}

// statusOf 將錯誤對應到 HTTP 狀態碼
func statusOf(err error) int {
	var limitErr *internalS3.SizeLimitError
	switch {
	case errors.Is(err, auction.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, auction.ErrNotFound), errors.Is(err, auction.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, auction.ErrStateConflict), errors.Is(err, auction.ErrDuplicate), errors.Is(err, ledger.ErrReportFinal):
		return http.StatusConflict
	case errors.Is(err, auction.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, internalS3.ErrUnsupportedImage):
		return http.StatusBadRequest
	case errors.As(err, &limitErr):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// writeError 依錯誤類型回應，非預期的錯誤只記錄在日誌中
func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		slog.Error("Internal server error",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Any("error", err))
		abortWithMessage(c, status, "internal server error")
		return
	}

	resp := errorResponse{Message: err.Error()}
	var rejection *auction.Rejection
	var limitErr *internalS3.SizeLimitError
	switch {
	case errors.As(err, &rejection):
		resp.Reason = string(rejection.Reason)
		resp.Message = rejection.Error()
		if rejection.Reason == auction.ReasonBidTooLow {
			resp.Minimum = rejection.Minimum.StringFixed(2)
		}
	case errors.As(err, &limitErr):
		resp.Message = limitErr.Error()
	case errors.Is(err, auction.ErrDuplicate):
		resp.Message = "already exists"
	case errors.Is(err, auction.ErrRecordNotFound):
		resp.Message = "not found"
	case errors.Is(err, ledger.ErrReportFinal):
		resp.Message = ledger.ErrReportFinal.Error()
	case errors.Is(err, internalS3.ErrUnsupportedImage):
		resp.Message = internalS3.ErrUnsupportedImage.Error()
	}
	c.AbortWithStatusJSON(status, resp)
}

// pathID 解析路徑上的 UUID 參數，格式錯誤時直接回應 404
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		abortWithMessage(c, http.StatusNotFound, "not found")
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		abortWithMessage(c, http.StatusBadRequest, "invalid request payload: "+err.Error())
		return false
	}
	return true
}
