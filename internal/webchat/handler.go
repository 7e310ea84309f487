// Package webchat serves the browser chat surface over a WebSocket and
// relays turns through the conversation pipeline.
package webchat

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/seonho-lim/aide/internal/conversation"
	"github.com/seonho-lim/aide/pkg/logging"
)

// TurnService is the slice of the session controller the webchat uses.
type TurnService interface {
	HandleTurn(ctx context.Context, threadID, userMessage string) (*conversation.TurnResult, error)
}

// Handler manages webchat connections.
type Handler struct {
	service   TurnService
	logger    *logging.Logger
	chunkSize int
}

// NewHandler creates a webchat handler. chunkSize bounds outbound message
// length; replies longer than that are split across frames.
func NewHandler(service TurnService, chunkSize int, logger *logging.Logger) *Handler {
	if service == nil {
		panic("webchat: turn service cannot be nil")
	}
	if chunkSize <= 0 {
		chunkSize = 2000
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger, chunkSize: chunkSize}
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type     string `json:"type"` // "message", "ping"
	ThreadID string `json:"thread_id"`
	Text     string `json:"text"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type      string `json:"type"` // "message", "session", "pong", "error"
	ThreadID  string `json:"thread_id,omitempty"`
	TurnID    string `json:"turn_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Final     bool   `json:"final,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// HandleWebSocket upgrades to WebSocket and serves the chat session.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	defer conn.Close()

	threadID := r.URL.Query().Get("thread")
	if threadID == "" {
		threadID = uuid.NewString()
	}
	if err := websocket.JSON.Send(conn, OutboundMessage{Type: "session", ThreadID: threadID}); err != nil {
		return
	}
	h.logger.Info("webchat session opened", "thread_id", threadID)

	for {
		var in InboundMessage
		if err := websocket.JSON.Receive(conn, &in); err != nil {
			h.logger.Info("webchat session closed", "thread_id", threadID)
			return
		}
		switch in.Type {
		case "ping":
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
		case "message":
			h.relayTurn(conn, threadID, in.Text)
		default:
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "unknown message type"})
		}
	}
}

func (h *Handler) relayTurn(conn *websocket.Conn, threadID, text string) {
	result, err := h.service.HandleTurn(context.Background(), threadID, text)
	if err != nil {
		h.logger.Error("webchat turn failed", "thread_id", threadID, "error", err)
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "message could not be processed"})
		return
	}

	chunks := SplitMessage(result.Response, h.chunkSize)
	now := time.Now().UTC().Format(time.RFC3339)
	for i, chunk := range chunks {
		_ = websocket.JSON.Send(conn, OutboundMessage{
			Type:      "message",
			ThreadID:  threadID,
			TurnID:    result.TurnID,
			Text:      chunk,
			Final:     i == len(chunks)-1,
			Timestamp: now,
		})
	}
}

// SplitMessage breaks text into display-sized chunks, preferring to break on
// a newline or space near the limit so words and sentences stay intact. The
// limit counts runes, not bytes.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || len([]rune(text)) <= limit {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		if len(runes) <= limit {
			chunks = append(chunks, string(runes))
			break
		}

		cut := limit
		window := string(runes[:limit])
		if idx := strings.LastIndexAny(window, "\n "); idx > 0 {
			cut = len([]rune(window[:idx]))
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\n "))
		runes = runes[cut:]
		for len(runes) > 0 && (runes[0] == ' ' || runes[0] == '\n') {
			runes = runes[1:]
		}
	}
	return chunks
}
