package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MarcoPoloResearchLab/courier/internal/auth"
	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingPeriod     = pongTimeout * 9 / 10
	maxFrameLength = 1 << 20
)

// handleWebsocket upgrades an authorized request into a session. The first
// frame sent is the session id; every later frame is a response to a
// client request or a broadcast event.
func (h *httpHandler) handleWebsocket(c *gin.Context) {
	claims := c.MustGet(claimsContextKey).(auth.ConnectionClaims)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Info("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sessionID, stream, cleanup := h.hub.Connect(ctx)
	info := claims.ConnectionInfo(sessionID)
	logger := h.logger.With(zap.String("session", sessionID), zap.String("account", string(info.Account)))
	defer func() {
		cancel()
		cleanup()
		h.pipeline.CloseSession(sessionID)
		_ = conn.Close()
		logger.Debug("websocket session closed")
	}()

	if err := h.pipeline.Register(info); err != nil {
		logger.Error("session registration failed", zap.Error(err))
		return
	}
	h.respond(ctx, sessionID, serverFrame{Type: frameSession, Result: sessionID})

	go h.writeLoop(ctx, cancel, conn, stream, logger)
	h.readLoop(ctx, conn, info, logger)
}

func (h *httpHandler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, stream <-chan []byte, logger *zap.Logger) {
	defer func() {
		cancel()
		_ = conn.Close()
	}()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
			return
		case frame := <-stream:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Info("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop handles requests one at a time so responses keep request order.
func (h *httpHandler) readLoop(ctx context.Context, conn *websocket.Conn, info communication.ConnectionInfo, logger *zap.Logger) {
	conn.SetReadLimit(maxFrameLength)
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
		if messageType != websocket.TextMessage {
			continue
		}

		var frame clientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			h.respond(ctx, info.SessionID, serverFrame{Type: frameError, Error: "invalid_request", Code: "invalid_request"})
			continue
		}
		result, err := execute(ctx, h.pipeline, info, frame)
		if err != nil {
			status, code := classify(err)
			h.logHandlerError(frame.Type, status, err)
			h.respond(ctx, info.SessionID, serverFrame{Type: frameError, ID: frame.ID, Error: code, Code: code})
			continue
		}
		h.respond(ctx, info.SessionID, serverFrame{Type: frameResult, ID: frame.ID, Result: result})
	}
}

func (h *httpHandler) respond(ctx context.Context, sessionID string, frame serverFrame) {
	encoded, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("encode response failed", zap.Error(err))
		return
	}
	h.hub.send(ctx, sessionID, encoded)
}
