package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the claim only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RoomMarker publishes which rooms have live state (quiz:room:{code}) and
// holds the per-room finalize claim (quiz:room:{code}:final) so two
// coordinator processes never both write a session snapshot. Claims carry
// the marker's token so a release never removes another process's claim.
type RoomMarker struct {
	client  *redis.Client
	ttl     time.Duration
	lockTTL time.Duration
	token   string
}

func NewRoomMarker(client *redis.Client, ttl, lockTTL time.Duration) *RoomMarker {
	return &RoomMarker{client: client, ttl: ttl, lockTTL: lockTTL, token: uuid.NewString()}
}

func (m *RoomMarker) MarkLive(ctx context.Context, code string) error {
	return m.client.Set(ctx, liveKey(code), "1", m.ttl).Err()
}

func (m *RoomMarker) Clear(ctx context.Context, code string) error {
	return m.client.Del(ctx, liveKey(code)).Err()
}

func (m *RoomMarker) AcquireFinalize(ctx context.Context, code string) (bool, error) {
	return m.client.SetNX(ctx, finalKey(code), m.token, m.lockTTL).Result()
}

func (m *RoomMarker) ReleaseFinalize(ctx context.Context, code string) error {
	return releaseScript.Run(ctx, m.client, []string{finalKey(code)}, m.token).Err()
}

func liveKey(code string) string {
	return "quiz:room:" + code
}

func finalKey(code string) string {
	return "quiz:room:" + code + ":final"
}
