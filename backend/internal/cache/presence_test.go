package cache

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

func newTestPresence(t *testing.T) (PresenceCache, *redis.Client) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	// 若 Redis 未启动则跳过
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}
	return NewRedisPresence(rdb), rdb
}

func TestPresence_AddAndList(t *testing.T) {
	ctx := context.Background()
	p, rdb := newTestPresence(t)
	docID := "presence-test-doc"
	defer rdb.Del(ctx, roomKey(docID))

	if err := p.AddMember(ctx, docID, "conn-a", time.Minute); err != nil {
		t.Fatalf("AddMember(a) error: %v", err)
	}
	if err := p.AddMember(ctx, docID, "conn-b", time.Minute); err != nil {
		t.Fatalf("AddMember(b) error: %v", err)
	}
	// 续期是幂等的
	if err := p.AddMember(ctx, docID, "conn-a", time.Minute); err != nil {
		t.Fatalf("AddMember(a again) error: %v", err)
	}

	members, err := p.GetAliveMembers(ctx, docID)
	if err != nil {
		t.Fatalf("GetAliveMembers error: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("alive members = %v, want 2 entries", members)
	}
}

func TestPresence_ExpiredMembersSweptOut(t *testing.T) {
	ctx := context.Background()
	p, rdb := newTestPresence(t)
	docID := "presence-test-expiry"
	defer rdb.Del(ctx, roomKey(docID))

	// 负 TTL 直接过期
	if err := p.AddMember(ctx, docID, "conn-stale", -time.Minute); err != nil {
		t.Fatalf("AddMember(stale) error: %v", err)
	}
	if err := p.AddMember(ctx, docID, "conn-live", time.Minute); err != nil {
		t.Fatalf("AddMember(live) error: %v", err)
	}

	members, err := p.GetAliveMembers(ctx, docID)
	if err != nil {
		t.Fatalf("GetAliveMembers error: %v", err)
	}
	if len(members) != 1 || members[0] != "conn-live" {
		t.Fatalf("alive members = %v, want [conn-live]", members)
	}

	// 过期成员应当已被 Lua 清理脚本物理删掉
	card, err := rdb.ZCard(ctx, roomKey(docID)).Result()
	if err != nil {
		t.Fatalf("ZCard error: %v", err)
	}
	if card != 1 {
		t.Fatalf("zset cardinality = %d, want 1", card)
	}
}

func TestPresence_RemoveMember(t *testing.T) {
	ctx := context.Background()
	p, rdb := newTestPresence(t)
	docID := "presence-test-remove"
	defer rdb.Del(ctx, roomKey(docID))

	if err := p.AddMember(ctx, docID, "conn-a", time.Minute); err != nil {
		t.Fatalf("AddMember error: %v", err)
	}
	if err := p.RemoveMember(ctx, docID, "conn-a"); err != nil {
		t.Fatalf("RemoveMember error: %v", err)
	}
	members, err := p.GetAliveMembers(ctx, docID)
	if err != nil {
		t.Fatalf("GetAliveMembers error: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("alive members after remove = %v, want empty", members)
	}
}
