// Package presence keeps the shared "active users per room" set in Redis so every
// relay instance sees the same membership.
package presence

import (
	"context"
	"fmt"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/redis/go-redis/v9"
)

type Redis struct {
	client *redis.Client
	prefix string
}

var _ core.PresenceStore = (*Redis)(nil)

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Dial parses a redis:// URL and pings the server.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("presence: parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("presence: ping redis: %w", err)
	}
	return client, nil
}

func (r *Redis) key(room domain.RoomID) string {
	return r.prefix + "room:" + string(room) + ":active"
}

func (r *Redis) AddActive(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	if err := r.client.SAdd(ctx, r.key(room), string(user)).Err(); err != nil {
		return domain.Transient("presence add", err)
	}
	return nil
}

func (r *Redis) RemoveActive(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	if err := r.client.SRem(ctx, r.key(room), string(user)).Err(); err != nil {
		return domain.Transient("presence remove", err)
	}
	return nil
}

func (r *Redis) Members(ctx context.Context, room domain.RoomID) ([]domain.UserID, error) {
	raw, err := r.client.SMembers(ctx, r.key(room)).Result()
	if err != nil {
		return nil, domain.Transient("presence members", err)
	}
	out := make([]domain.UserID, 0, len(raw))
	for _, u := range raw {
		out = append(out, domain.UserID(u))
	}
	return out, nil
}

func (r *Redis) Count(ctx context.Context, room domain.RoomID) (int64, error) {
	n, err := r.client.SCard(ctx, r.key(room)).Result()
	if err != nil {
		return 0, domain.Transient("presence count", err)
	}
	return n, nil
}
