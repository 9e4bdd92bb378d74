package auction

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// CardDetails 是付款時提交的信用卡資料
// 只驗證格式，不會被保存也不會送往任何金流服務
type CardDetails struct {
	Holder string
	Number string
	// Expiry 格式為 MM/YY
	Expiry string
	CVV    string
}

// Validate 檢查卡片資料的格式是否正確且尚未過期
func (c CardDetails) Validate(now time.Time) error {
	if strings.TrimSpace(c.Holder) == "" {
		return reject(ErrInvalidCard, "card holder is required")
	}

	number := normalizeCardNumber(c.Number)
	if len(number) < 13 || len(number) > 19 || !isDigits(number) {
		return reject(ErrInvalidCard, "card number must be 13 to 19 digits")
	}
	if !luhnValid(number) {
		return reject(ErrInvalidCard, "card number checksum mismatch")
	}

	if len(c.CVV) < 3 || len(c.CVV) > 4 || !isDigits(c.CVV) {
		return reject(ErrInvalidCard, "cvv must be 3 or 4 digits")
	}

	month, year, err := parseExpiry(c.Expiry)
	if err != nil {
		return reject(ErrInvalidCard, "%v", err)
	}
	// 卡片在到期月份的最後一天之前都有效
	expiresAt := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	if !now.UTC().Before(expiresAt) {
		return reject(ErrInvalidCard, "card has expired")
	}
	return nil
}

// Descriptor 返回可以保存在付款紀錄中的付款方式描述
func (c CardDetails) Descriptor() string {
	number := normalizeCardNumber(c.Number)
	if len(number) < 4 {
		return "card"
	}
	return "card ****" + number[len(number)-4:]
}

func normalizeCardNumber(number string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, number)
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return false
		}
	}
	return s != ""
}

func luhnValid(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func parseExpiry(expiry string) (month, year int, err error) {
	mm, yy, ok := strings.Cut(strings.TrimSpace(expiry), "/")
	if !ok || len(mm) != 2 || len(yy) != 2 || !isDigits(mm) || !isDigits(yy) {
		return 0, 0, fmt.Errorf("expiry must be in MM/YY format")
	}
	month, _ = strconv.Atoi(mm)
	year, _ = strconv.Atoi(yy)
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("expiry month must be between 01 and 12")
	}
	return month, 2000 + year, nil
}
