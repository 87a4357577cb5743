package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/satriahrh/sparkchat/adapters/spark"
	"github.com/satriahrh/sparkchat/domain/entities"
	"github.com/satriahrh/sparkchat/internal/auth"
	"github.com/satriahrh/sparkchat/internal/websocket"
	"github.com/satriahrh/sparkchat/usecase"
)

// chatTimeout bounds one /api/v1/chat request
const chatTimeout = 60 * time.Second

// ChatAsker answers one-shot questions
type ChatAsker interface {
	Ask(ctx context.Context, message string) (usecase.AskResult, error)
	AskConversation(ctx context.Context, turns []entities.Turn) (usecase.AskResult, error)
}

// Options holds the route settings
type Options struct {
	RelayAPIKey  string
	RateLimitRPS float64
	// MetricsHandler serves /metrics; promhttp.Handler() when nil
	MetricsHandler http.Handler
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *websocket.Hub, chat ChatAsker, issuer *auth.Issuer, opts Options, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "sparkchat-server",
		})
	})

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	e.GET("/metrics", echo.WrapHandler(metricsHandler))

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/auth/token", func(c echo.Context) error {
		return issueToken(c, issuer, opts.RelayAPIKey, logger)
	})

	v1.POST("/chat", func(c echo.Context) error {
		return chatOnce(c, chat, logger)
	}, rateLimiter(opts.RateLimitRPS))

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(hub, issuer, c, logger)
	})
}

func rateLimiter(rps float64) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStore(rate.Limit(rps)),
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "unidentified_client",
				Message: "Failed to identify the client",
			})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, ErrorResponse{
				Error:   "rate_limited",
				Message: "Too many chat requests",
			})
		},
	})
}

func issueToken(c echo.Context, issuer *auth.Issuer, relayAPIKey string, logger *zap.Logger) error {
	var req TokenRequest

	// Bind and validate request
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind token request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.ClientID == "" || req.APIKey == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Client ID and API key are required",
		})
	}

	if subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(relayAPIKey)) != 1 {
		logger.Warn("Client authentication failed", zap.String("client_id", req.ClientID))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid API key",
		})
	}

	token, expiresAt, err := issuer.GenerateClientToken(req.ClientID)
	if err != nil {
		logger.Error("Failed to generate client token",
			zap.String("client_id", req.ClientID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	logger.Info("Client authenticated successfully", zap.String("client_id", req.ClientID))

	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		ClientID:  req.ClientID,
	})
}

func chatOnce(c echo.Context, chat ChatAsker, logger *zap.Logger) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if (req.Message == "") == (len(req.Messages) == 0) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Exactly one of message or messages is required",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), chatTimeout)
	defer cancel()

	var (
		result usecase.AskResult
		err    error
	)
	if req.Message != "" {
		result, err = chat.Ask(ctx, req.Message)
	} else {
		if verr := entities.NewTranscript(req.Messages...).Validate(); verr != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_conversation",
				Message: verr.Error(),
			})
		}
		result, err = chat.AskConversation(ctx, req.Messages)
	}
	if err != nil {
		logger.Warn("Chat request failed", zap.Error(err))
		status, body := chatError(err)
		return c.JSON(status, body)
	}

	conversation := result.Conversation
	if conversation == nil {
		conversation = []entities.Turn{}
	}
	return c.JSON(http.StatusOK, ChatResponse{
		Content:      result.Content,
		Conversation: conversation,
	})
}

// chatError maps a chat session error to an HTTP response
func chatError(err error) (int, ErrorResponse) {
	var apiErr *spark.APIError
	switch {
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, ErrorResponse{Error: "api_error", Message: apiErr.Error()}
	case errors.Is(err, spark.ErrCanceled):
		return http.StatusGatewayTimeout, ErrorResponse{Error: "timeout", Message: "The reply took too long"}
	case errors.Is(err, spark.ErrTransport), errors.Is(err, spark.ErrDecode):
		return http.StatusBadGateway, ErrorResponse{Error: "upstream_unavailable", Message: "Upstream chat service failed"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Failed to generate a reply"}
	}
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func websocketWithAuth(hub *websocket.Hub, issuer *auth.Issuer, c echo.Context, logger *zap.Logger) error {
	// Browsers cannot set headers on a websocket handshake, so the token
	// may also arrive as a query parameter.
	token := c.QueryParam("token")
	if authHeader := c.Request().Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		token = strings.TrimPrefix(authHeader, "Bearer ")
	}

	if token == "" {
		logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header or token query parameter",
		})
	}

	// Validate JWT token
	claims, err := issuer.ValidateToken(token)
	if err != nil {
		logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	logger.Info("WebSocket connection authenticated", zap.String("client_id", claims.ClientID))

	return websocket.HandleWebSocketWithAuth(hub, c, claims.ClientID, logger)
}
