package auction

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRejection(t *testing.T) {
	t.Run("同一個原因的拒絕彼此相等", func(t *testing.T) {
		err := reject(ErrSelfBid, "seller %s", "x")
		assert.ErrorIs(t, err, ErrSelfBid)
		assert.NotErrorIs(t, err, ErrBidTooLow)
		assert.Equal(t, "SelfBid: seller x", err.Error())
	})

	t.Run("拒絕會 unwrap 成錯誤類別", func(t *testing.T) {
		tests := []struct {
			err  error
			kind error
		}{
			{ErrInvalidAmount, ErrValidation},
			{ErrInvalidCard, ErrValidation},
			{ErrInvalidRating, ErrValidation},
			{ErrBidTooLow, ErrStateConflict},
			{ErrAuctionNotActive, ErrStateConflict},
			{ErrAlreadyPaid, ErrStateConflict},
			{ErrAuctionNotFound, ErrNotFound},
			{ErrPaymentNotFound, ErrNotFound},
			{ErrNotOwner, ErrForbidden},
		}
		for _, tt := range tests {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.kind, tt.err.Error())
		}
	})

	t.Run("出價過低帶有最低金額", func(t *testing.T) {
		err := bidTooLow(dec("11"))
		var rejection *Rejection
		require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &rejection))
		assert.Equal(t, ReasonBidTooLow, rejection.Reason)
		assert.Equal(t, "11.00", rejection.Minimum.StringFixed(2))
		assert.Equal(t, "bid must be at least 11.00", rejection.Detail)
	})
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "12", want: "12.00"},
		{raw: "12.5", want: "12.50"},
		{raw: " 0.01 ", want: "0.01"},
		{raw: "99999999.99", want: "99999999.99"},
		{raw: "", wantErr: true},
		{raw: "abc", wantErr: true},
		{raw: "0", wantErr: true},
		{raw: "-5", wantErr: true},
		{raw: "1.001", wantErr: true},
		{raw: "100000000", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAmount(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}
