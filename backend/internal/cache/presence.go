package cache

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// PresenceCache 文档维度的在线状态。
// 放 Redis 是为了跨实例可见：哪个进程托管哪个连接无所谓，名单是全局的
type PresenceCache interface {
	AddMember(ctx context.Context, docID string, originator string, ttl time.Duration) error
	RemoveMember(ctx context.Context, docID string, originator string) error
	GetAliveMembers(ctx context.Context, docID string) ([]string, error)
}

// 具体实现：基于 redis 的 PresenceCache
type redisPresence struct {
	rdb *redis.Client
}

func NewRedisPresence(rdb *redis.Client) PresenceCache {
	return &redisPresence{rdb: rdb}
}

// AddMember 登记/续期。score 用 expireAt（Unix 秒）表达逻辑 TTL，
// 刷新 TTL 也直接调它即可
func (p *redisPresence) AddMember(ctx context.Context, docID string, originator string, ttl time.Duration) error {
	expireAt := time.Now().Add(ttl).Unix()
	return p.rdb.ZAdd(ctx, roomKey(docID), redis.Z{Score: float64(expireAt), Member: originator}).Err()
}

func (p *redisPresence) RemoveMember(ctx context.Context, docID string, originator string) error {
	return p.rdb.ZRem(ctx, roomKey(docID), originator).Err()
}

// GetAliveMembers 先清理过期成员再返回在线名单。
// 约定：score=expireAt（Unix 秒），expireAt <= now 视为过期
func (p *redisPresence) GetAliveMembers(ctx context.Context, docID string) ([]string, error) {
	now := time.Now().Unix()
	luaScript := `
	-- KEYS[1] = roomKey(docID)   e.g. presence:room:{docID}
	-- ARGV[1] = now (unix seconds)
	return redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	`
	script := redis.NewScript(luaScript)
	if _, err := script.Run(ctx, p.rdb, []string{roomKey(docID)}, now).Int(); err != nil && err != redis.Nil {
		return nil, err
	}

	members, err := p.rdb.ZRangeByScore(ctx, roomKey(docID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10), // > now
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	return members, nil
}
