package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/courier/internal/auth"
	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const claimsContextKey = "courier_claims"

var (
	errMissingPipeline     = errors.New("pipeline dependency required")
	errMissingHub          = errors.New("hub dependency required")
	errMissingTokenManager = errors.New("token validator dependency required")
)

type TokenValidator interface {
	ValidateRequest(r *http.Request) (auth.ConnectionClaims, error)
}

type Dependencies struct {
	Pipeline       Pipeline
	Hub            *Hub
	Tokens         TokenValidator
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Pipeline == nil {
		return nil, errMissingPipeline
	}
	if deps.Hub == nil {
		return nil, errMissingHub
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(origins))

	handler := &httpHandler{
		pipeline: deps.Pipeline,
		hub:      deps.Hub,
		tokens:   deps.Tokens,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(origins, r.Header.Get("Origin"))
			},
		},
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/ws", handler.handleWebsocket)

	api := protected.Group("/api")
	api.POST("/events", handler.handleFrame(frameEvent))
	api.POST("/messages/find", handler.handleFrame(frameFindMessages))
	api.POST("/contexts/find", handler.handleFrame(frameFindContexts))
	api.POST("/notifications/find", handler.handleFrame(frameFindNotifications))
	api.POST("/groups/find", handler.handleFrame(frameFindMessagesGroups))
	api.POST("/collaborators/find", handler.handleFrame(frameFindCollaborators))
	api.POST("/peers/find", handler.handleFrame(frameFindPeers))

	return router, nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	// Credentials only accompany an explicit origin list.
	if originAllowed(origins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

func originAllowed(origins []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

type httpHandler struct {
	pipeline Pipeline
	hub      *Hub
	tokens   TokenValidator
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// handleFrame serves one request type over plain HTTP. The JSON body is
// the params of a find, or the command envelope of an event. HTTP calls
// carry no session, so nothing they read stays subscribed.
func (h *httpHandler) handleFrame(frameType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := c.MustGet(claimsContextKey).(auth.ConnectionClaims)
		frame := clientFrame{Type: frameType}

		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		if frameType == frameEvent {
			envelope, err := decodeParams[communication.Envelope](body)
			if err != nil || envelope.Type == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
				return
			}
			frame.Command = &envelope
		} else {
			frame.Params = body
		}

		result, err := execute(c.Request.Context(), h.pipeline, claims.ConnectionInfo(""), frame)
		if err != nil {
			status, code := classify(err)
			h.logHandlerError(frameType, status, err)
			c.JSON(status, gin.H{"error": code})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *httpHandler) logHandlerError(frameType string, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("type", frameType), zap.Error(err))
		return
	}
	h.logger.Info("request rejected", zap.String("type", frameType), zap.Error(err))
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.tokens.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrMissingToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(claimsContextKey, claims)
	c.Next()
}
