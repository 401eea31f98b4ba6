package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketClassifyRequest is one classification request. Image holds the
// encoded image file; JSON carries it as base64.
type WebSocketClassifyRequest struct {
	Image       []byte `json:"image"`
	Orientation int    `json:"orientation,omitempty"`
	TopK        int    `json:"top_k,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// WebSocketClassifyResponse is sent once when work starts and once when it
// completes or fails.
type WebSocketClassifyResponse struct {
	Type      string            `json:"type"`
	Status    string            `json:"status"` // "processing", "completed", "error"
	Result    *ClassifyResponse `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	ErrorType string            `json:"error_type,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// classifyWebSocketHandler handles WebSocket connections for streaming classification.
func (s *Server) classifyWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established",
		"remote_addr", r.RemoteAddr, "request_id", RequestIDFromContext(r.Context()))

	s.handleWebSocketConnection(conn, getClientIP(r))
}

// handleWebSocketConnection processes messages until the client goes away.
func (s *Server) handleWebSocketConnection(conn *websocket.Conn, clientID string) {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			s.handleWebSocketMessage(conn, clientID, data)
		}
	}
}

// handleWebSocketMessage classifies the image carried by one message.
func (s *Server) handleWebSocketMessage(conn WebSocketConnWriter, clientID string, data []byte) {
	var req WebSocketClassifyRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "", "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	if len(req.Image) == 0 {
		s.sendWebSocketError(conn, requestID, "invalid_request", "No image data provided")
		return
	}
	if int64(len(req.Image)) > s.maxUploadBytes() {
		s.sendWebSocketError(conn, requestID, "invalid_request", "Image too large")
		return
	}
	if err := s.checkRateLimit(clientID, int64(len(req.Image))); err != nil {
		s.sendWebSocketError(conn, requestID, "rate_limited", err.Error())
		return
	}
	uploadSizeBytes.Observe(float64(len(req.Image)))

	s.sendWebSocketResponse(conn, WebSocketClassifyResponse{
		Type:      "classify_response",
		Status:    "processing",
		RequestID: requestID,
	})

	ctx, cancel := s.requestContext(context.Background())
	defer cancel()

	resp, err := s.classify(ctx, "websocket", req.Image, req.Orientation, req.TopK)
	if err != nil {
		s.sendWebSocketError(conn, requestID, errorType(err), err.Error())
		return
	}
	resp.RequestID = requestID

	s.sendWebSocketResponse(conn, WebSocketClassifyResponse{
		Type:      "classify_response",
		Status:    "completed",
		Result:    &resp,
		RequestID: requestID,
	})
}

// errorType names an error class for WebSocket clients.
func errorType(err error) string {
	switch statusForError(err) {
	case http.StatusBadRequest:
		return "invalid_image"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "processing_error"
	}
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketClassifyResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, requestID, kind, message string) {
	s.sendWebSocketResponse(conn, WebSocketClassifyResponse{
		Type:      "error",
		Status:    "error",
		Error:     message,
		ErrorType: kind,
		RequestID: requestID,
	})
}
