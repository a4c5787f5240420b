package redis

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"neonquiz/internal/app"
	"neonquiz/internal/domain"
)

const (
	stateKey      = "quiz:state"
	scoreboardKey = "quiz:scoreboard"
)

// StateMirror keeps a best-effort copy of the latest broadcast snapshot in
// Redis: the full state as JSON under quiz:state and team totals in the
// quiz:scoreboard sorted set. External dashboards can read either without
// holding a websocket. The in-memory quiz stays the single source of truth;
// the mirror is never read back, so a restart still begins from an empty
// lobby.
type StateMirror struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStateMirror(client *redis.Client, ttl time.Duration) *StateMirror {
	return &StateMirror{client: client, ttl: ttl}
}

// Run consumes a quiz subscription until the context ends or the channel
// closes. Transient effects are skipped; only snapshots are mirrored.
func (m *StateMirror) Run(ctx context.Context, events <-chan app.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.State == nil {
				continue
			}
			m.Publish(ctx, *ev.State)
		}
	}
}

// Publish writes one snapshot. Failures are logged and dropped; mirroring
// must never stall the quiz.
func (m *StateMirror) Publish(ctx context.Context, state domain.QuizState) {
	data, err := json.Marshal(state)
	if err != nil {
		log.Printf("state mirror: marshal snapshot: %v", err)
		return
	}

	pipe := m.client.Pipeline()
	pipe.Set(ctx, stateKey, data, m.ttl)
	// Rebuild the scoreboard wholesale so teams removed by a quiz reset
	// disappear from the mirror too.
	pipe.Del(ctx, scoreboardKey)
	for id, team := range state.Teams {
		pipe.ZAdd(ctx, scoreboardKey, redis.Z{Score: team.Score, Member: id})
	}
	if m.ttl > 0 && len(state.Teams) > 0 {
		pipe.Expire(ctx, scoreboardKey, m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("state mirror: publish: %v", err)
	}
}
