package events

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"bidfinity/models"
)

var errUserNotFound = errors.New("user not found")

type fakeUsers map[uuid.UUID]*models.User

func (f fakeUsers) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, errUserNotFound
	}
	return u, nil
}

func (f fakeUsers) Username(ctx context.Context, id uuid.UUID) (string, error) {
	u, err := f.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// recorder 記錄所有發布的資料，可同時作為 RoomPublisher 與 IProducer 使用
type recorder[T any] struct {
	mu    sync.Mutex
	rooms []string
	items []T
	err   error
}

func (r *recorder[T]) Start() {}
func (r *recorder[T]) Close() {}

func (r *recorder[T]) Publish(data T) error {
	return r.publish("", data)
}

func (r *recorder[T]) publish(room string, data T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.rooms = append(r.rooms, room)
	r.items = append(r.items, data)
	return nil
}

type roomRecorder struct {
	recorder[BidEvent]
}

func (r *roomRecorder) Publish(room string, data BidEvent) error {
	return r.publish(room, data)
}
