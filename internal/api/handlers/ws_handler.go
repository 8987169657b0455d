package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/voxaura/internal/models"
	"github.com/yoockh/voxaura/internal/session"
	"github.com/yoockh/voxaura/internal/utils"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	maxFrameSize = 1 << 20
)

var errConnClosed = errors.New("websocket connection closed")

// Pipeline is the per-connection event sink behind the websocket.
type Pipeline interface {
	Connect(connID string, sender session.Sender)
	Disconnect(connID string)
	Handle(connID string, env models.Envelope) error
}

type WSHandler struct {
	pipeline Pipeline
	upgrader websocket.Upgrader
	log      *logrus.Logger
}

// NewWSHandler accepts upgrades from the listed browser origins. An empty
// list, or "*", admits any origin.
func NewWSHandler(p Pipeline, allowedOrigins []string, log *logrus.Logger) *WSHandler {
	return &WSHandler{
		pipeline: p,
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[o] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// non-browser clients send no Origin
		if len(set) == 0 || origin == "" {
			return true
		}
		return set[strings.ToLower(origin)]
	}
}

type wsFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// wsConn serializes writes from the reader, the session worker and the
// recognition callbacks.
type wsConn struct {
	c      *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func (w *wsConn) Send(eventType string, payload any) error {
	b, err := json.Marshal(wsFrame{Type: eventType, Data: payload})
	if err != nil {
		return utils.E(utils.CodeTransport, "wsConn.Send", "unencodable event", err)
	}
	return w.write(websocket.TextMessage, b)
}

func (w *wsConn) write(messageType int, b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errConnClosed
	}
	_ = w.c.SetWriteDeadline(time.Now().Add(writeWait))
	return w.c.WriteMessage(messageType, b)
}

func (w *wsConn) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	_ = w.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = w.c.Close()
}

func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}

	connID := uuid.NewString()
	wc := &wsConn{c: conn}
	log := h.log.WithFields(logrus.Fields{"conn_id": connID, "user_id": optionalUserID(c)})

	h.pipeline.Connect(connID, wc)
	defer func() {
		h.pipeline.Disconnect(connID)
		wc.close()
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		t := time.NewTicker(pingPeriod)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if err := wc.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, rerr := conn.ReadMessage()
		if rerr != nil {
			if websocket.IsUnexpectedCloseError(rerr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(rerr).Warn("websocket read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			_ = wc.Send(models.EventError, models.ErrorPayload{
				Message: "invalid json",
				Code:    string(utils.CodeInvalidArgument),
			})
			continue
		}
		if err := h.pipeline.Handle(connID, env); err != nil {
			log.WithError(err).Warn("event rejected")
			return
		}
	}
}
