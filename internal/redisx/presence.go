package redisx

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"
)

const (
	presenceCountPrefix = "chat:presence:count:"
	presenceOnlineKey   = "chat:presence:online"
)

// Presence counts sockets per user across every gateway node.
type Presence struct {
	rdb *redis.Client
}

func NewPresence(rdb *redis.Client) *Presence {
	return &Presence{rdb: rdb}
}

// The count and the online set change together, so a reconnect on another node
// can never land between them.
var (
	connectScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("SADD", KEYS[2], ARGV[1])
end
return n`)

	disconnectScript = redis.NewScript(`
local n = redis.call("DECR", KEYS[1])
if n <= 0 then
	redis.call("DEL", KEYS[1])
	redis.call("SREM", KEYS[2], ARGV[1])
end
return n`)
)

// Connect increments the user's socket count and reports whether it was the first.
func (p *Presence) Connect(ctx context.Context, userID string) (bool, error) {
	n, err := connectScript.Run(ctx, p.rdb, []string{presenceCountPrefix + userID, presenceOnlineKey}, userID).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Disconnect decrements the user's socket count and reports whether it was the last.
func (p *Presence) Disconnect(ctx context.Context, userID string) (bool, error) {
	n, err := disconnectScript.Run(ctx, p.rdb, []string{presenceCountPrefix + userID, presenceOnlineKey}, userID).Int64()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Online lists users with at least one socket, sorted.
func (p *Presence) Online(ctx context.Context) ([]string, error) {
	users, err := p.rdb.SMembers(ctx, presenceOnlineKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(users)
	return users, nil
}
