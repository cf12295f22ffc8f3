package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"Lee_Social/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// LiveHandler 通过 websocket 推送实时页面
type LiveHandler struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewLiveHandler(log *zap.Logger) *LiveHandler {
	return &LiveHandler{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
		},
		log: log,
	}
}

type liveMessage struct {
	Kind  string `json:"kind"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// serveStream 连接断开时关闭订阅，不留下常驻监听
func serveStream[T any](h *LiveHandler, c *gin.Context, kind string, stream *service.Stream[T]) {
	defer stream.Close()

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	connID := uuid.NewString()
	log := h.log.With(zap.String("conn_id", connID), zap.String("kind", kind))
	log.Debug("live client connected")

	// 只读控制帧，读失败即认为客户端已断开
	gone := make(chan struct{})
	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			log.Debug("live client disconnected")
			return
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case u, ok := <-stream.Updates():
			if !ok {
				return
			}
			msg := liveMessage{Kind: kind, Data: u.Value}
			if u.Err != nil {
				msg = liveMessage{Kind: kind, Error: u.Err.Error()}
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(msg); err != nil {
				log.Warn("live write failed", zap.Error(err))
				return
			}
		}
	}
}
