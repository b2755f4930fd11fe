package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"festive-quiz-service/internal/app"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	sessions *app.SessionService
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(sessions *app.SessionService, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type answerResult struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
	Correct    bool   `json:"correct"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS streams snapshots of the player's quiz and accepts the player's
// answer, advance and start commands over the same connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerId")
	if playerID == "" {
		http.Error(w, "missing playerId", http.StatusBadRequest)
		return
	}
	player, err := h.sessions.Player(r.Context(), playerID)
	if err != nil {
		http.Error(w, messageFor(err), statusFor(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "player_id", playerID, "error", err)
		return
	}
	defer conn.Close()

	snapshots, cancel, err := h.sessions.Subscribe(r.Context(), player.QuizID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorBody]{Type: "error", Payload: errorBody{Message: messageFor(err)}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write failed", "player_id", playerID, "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case snap, ok := <-snapshots:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "snapshot", Payload: snap}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}
	replyErr := func(err error) bool {
		return reply(outboundMessage[any]{Type: "error", Payload: errorBody{Message: messageFor(err)}})
	}

	ctx := r.Context()
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		ok := true
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionID == "" {
				ok = reply(outboundMessage[any]{Type: "error", Payload: errorBody{Message: "invalid answer payload"}})
				break
			}
			answer, err := h.sessions.SubmitAnswer(ctx, playerID, payload.QuestionID, payload.Answer)
			if err != nil {
				ok = replyErr(err)
				break
			}
			ok = reply(outboundMessage[any]{Type: "answerResult", Payload: answerResult{
				QuestionID: answer.QuestionID,
				Answer:     answer.Text,
				Correct:    answer.Correct,
			}})
		case "advance":
			res, err := h.sessions.AdvancePlayer(ctx, playerID)
			if err != nil {
				ok = replyErr(err)
				break
			}
			ok = reply(outboundMessage[any]{Type: "advanceResult", Payload: res})
		case "start":
			if _, err := h.sessions.Start(ctx, player.QuizID); err != nil {
				ok = replyErr(err)
			}
		default:
			ok = reply(outboundMessage[any]{Type: "error", Payload: errorBody{Message: "unsupported message type"}})
		}
		if !ok {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
