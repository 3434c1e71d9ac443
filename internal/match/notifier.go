package match

import (
	"context"
	"time"

	"github.com/oggyb/scene-match/internal/cache"
	"github.com/oggyb/scene-match/internal/db"
)

// CreatedChannel is the Redis pub/sub channel carrying new-match events.
const CreatedChannel = "match.created"

// Event announces a new match to downstream messaging (chat enablement etc.).
type Event struct {
	MatchID   string    `json:"match_id"`
	Scene     string    `json:"scene"`
	User1ID   uint64    `json:"user1_id"`
	User2ID   uint64    `json:"user2_id"`
	Card1ID   string    `json:"card1_id"`
	Card2ID   string    `json:"card2_id"`
	MatchedAt time.Time `json:"matched_at"`
}

func eventFrom(m db.MatchResult) Event {
	return Event{
		MatchID:   m.ID,
		Scene:     m.Scene,
		User1ID:   m.User1ID,
		User2ID:   m.User2ID,
		Card1ID:   m.Card1ID,
		Card2ID:   m.Card2ID,
		MatchedAt: m.MatchedAt,
	}
}

// Notifier delivers match-created events. Delivery guarantees belong to the
// consumer; the service only logs failures.
type Notifier interface {
	MatchCreated(ctx context.Context, ev Event) error
}

// RedisNotifier publishes events as JSON on CreatedChannel.
type RedisNotifier struct {
	cache *cache.RedisCache
}

func NewRedisNotifier(c *cache.RedisCache) *RedisNotifier {
	return &RedisNotifier{cache: c}
}

func (n *RedisNotifier) MatchCreated(ctx context.Context, ev Event) error {
	return n.cache.PublishJSON(ctx, CreatedChannel, ev)
}

type nopNotifier struct{}

func (nopNotifier) MatchCreated(context.Context, Event) error { return nil }
