package s3

import (
	"fmt"
	"io"
)

// SizeLimitError 表示讀取的內容超過了上限
type SizeLimitError struct {
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("image exceeds the limit of %s", FormatBytes(e.Limit))
}

// NewMaxSizeReader 限制最多能讀取 maxSize 個位元組，超過時返回 *SizeLimitError
func NewMaxSizeReader(r io.Reader, maxSize int64) io.Reader {
	return &maxSizeReader{reader: r, limit: maxSize, remaining: maxSize}
}

type maxSizeReader struct {
	reader    io.Reader
	limit     int64
	remaining int64
}

func (r *maxSizeReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	// 多讀一個位元組就能知道是否超過上限
	if int64(len(p)) > r.remaining+1 {
		p = p[:r.remaining+1]
	}
	n, err := r.reader.Read(p)
	if int64(n) <= r.remaining {
		r.remaining -= int64(n)
		return n, err
	}

	n = int(r.remaining)
	r.remaining = 0
	return n, &SizeLimitError{Limit: r.limit}
}
