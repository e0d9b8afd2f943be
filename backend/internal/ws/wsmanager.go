package ws

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"syncServer/backend/internal/collab"
)

// 全局的 WebSocket upgrader（允许本地开发环境的来源）
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" { // 一些环境可能不发送 Origin，或为 "null"
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

func newDocID() string {
	return uuid.NewString()
}

// Manager 把 HTTP 升级请求接到协议状态机上
type Manager struct {
	h        *Hub
	registry *collab.Registry
	sem      *collab.SemaphoreControl
}

func NewManager(h *Hub, registry *collab.Registry, sem *collab.SemaphoreControl) *Manager {
	return &Manager{h: h, registry: registry, sem: sem}
}

func (m *Manager) WebSocketConnect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	// 每个连接分配一个 originator：tie-break 和在线名单都用它
	wsConn := NewConn(conn, m.h, m.registry, m.sem, uuid.NewString())

	// 先启动写循环，确保后续写入 send 通道的消息可以被及时发送
	go wsConn.writeLoop()
	wsConn.SendMessage_Enqueue(ConnectedMessage{Type: "connected", Originator: wsConn.originator})

	// 读循环阻塞至连接关闭
	wsConn.readLoop(c.Request.Context())
}
