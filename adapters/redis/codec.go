package redis

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// stream 訊息中承載資料的欄位
const (
	fieldKind    = "kind"
	fieldPayload = "payload"
)

var (
	ErrPointerType    = errors.New("pointer type is not allowed")
	ErrMissingPayload = errors.New("payload field not found or invalid type")
)

// Encode 以 msgpack 將資料編碼為 stream 訊息的欄位，kind 會一併寫入供下游分辨訊息種類
// 返回的欄位順序固定，可以直接作為 XAddArgs.Values
func Encode[T any](kind string, data T) ([]any, error) {
	if t := reflect.TypeOf(data); t != nil && t.Kind() == reflect.Ptr {
		return nil, ErrPointerType
	}

	payload, err := msgpack.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal error: %w", err)
	}
	return []any{fieldKind, kind, fieldPayload, payload}, nil
}

// Decode 將 stream 訊息解碼回資料，返回訊息的 kind
func Decode[T any](values map[string]any) (string, T, error) {
	var result T
	if t := reflect.TypeOf(result); t != nil && t.Kind() == reflect.Ptr {
		return "", result, ErrPointerType
	}

	kind, _ := values[fieldKind].(string)
	raw, ok := values[fieldPayload].(string)
	if !ok {
		return kind, result, ErrMissingPayload
	}
	if err := msgpack.Unmarshal([]byte(raw), &result); err != nil {
		return kind, result, fmt.Errorf("msgpack unmarshal error: %w", err)
	}
	return kind, result, nil
}
