package stream

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/persona-studio/backend/internal/model/chat"
	chatService "github.com/zhouzirui/persona-studio/backend/internal/service/chat"
	"github.com/zhouzirui/persona-studio/backend/internal/service/typing"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
)

// WebSocketHandler pushes controller updates and typing reveal frames to the browser.
type WebSocketHandler struct {
	chat        *chatService.Controller
	typingSpeed time.Duration
	upgrader    websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chat *chatService.Controller, typingSpeed time.Duration) *WebSocketHandler {
	return &WebSocketHandler{
		chat:        chat,
		typingSpeed: typingSpeed,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/ws", h.handleWebSocket)
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// connWriter serializes writes; gorilla allows one concurrent writer per connection.
type connWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *connWriter) send(msgType string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(outgoingMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *connWriter) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, unsubscribe := h.chat.Subscribe(64)
	defer unsubscribe()

	out := &connWriter{conn: conn}
	state := h.chat.Snapshot()
	if err := out.send("state", state); err != nil {
		log.Printf("[websocket] write state failed: %v", err)
		return
	}
	log.Printf("[websocket] new connection persona=%s", state.PersonaID)

	effect := typing.New(h.typingSpeed)
	reveal(effect, state)
	go effect.Run(ctx, func(text string) {
		if err := out.send("reveal", map[string]string{"text": text}); err != nil {
			cancel()
		}
	})
	go h.pingLoop(ctx, out)
	go h.readLoop(conn, cancel)

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := out.send("update", update); err != nil {
				log.Printf("[websocket] write update failed: %v", err)
				return
			}
			reveal(effect, update.State)
		}
	}
}

// reveal points the typing effect at the trailing AI message.
func reveal(effect *typing.Effect, state chatService.State) {
	if len(state.Messages) == 0 {
		return
	}
	last := state.Messages[len(state.Messages)-1]
	if last.Sender != chat.SenderAI {
		return
	}
	effect.Set(last.Text, state.Streaming)
}

// readLoop 只用于感知连接关闭和维持心跳
func (h *WebSocketHandler) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, out *connWriter) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := out.ping(); err != nil {
				return
			}
		}
	}
}
