package cache

import "fmt"

// 键语义：
// - roomKey(docID): 文档当前在线的连接（ZSet<originator, expireAtUnix>，score=expireAt）
// 逻辑 TTL 放在 score 里，清理由读路径的 Lua 脚本顺手做

const keyRoomFmt = "presence:room:{docID:%s}" // ZSet<originator -> expireAtUnix>

func roomKey(docID string) string { return fmt.Sprintf(keyRoomFmt, docID) }
