package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quizroom/internal/app"
	"quizroom/internal/domain"
)

// Sessions is the live side of the coordinator driven by websocket events.
type Sessions interface {
	HostJoin(ctx context.Context, connID, code string) ([]domain.Player, error)
	PlayerJoin(ctx context.Context, connID string, req domain.PlayerJoinRequest) error
	RespondToJoin(ctx context.Context, hostConn string, resp domain.JoinResponse) error
	StartQuiz(ctx context.Context, connID, code string) error
	SubmitAnswer(ctx context.Context, connID string, sub domain.AnswerSubmission) (app.AnswerOutcome, error)
	HostLeave(ctx context.Context, connID, code string) error
	PlayerLeave(ctx context.Context, connID, code string) error
	Disconnect(ctx context.Context, connID string) error
}

var validate = validator.New()

var errUnsupported = errors.New("unsupported message type")

type WSHandler struct {
	sessions Sessions
	hub      *Hub
	settings Settings
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(sessions Sessions, hub *Hub, settings Settings, log *slog.Logger) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		hub:      hub,
		settings: settings.withDefaults(),
		log:      log,
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

// ServeWS upgrades the request and feeds the connection's events to the
// coordinator until it closes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}

	connID := uuid.NewString()
	log := h.log.With("conn", connID)
	client := newClient(connID, conn, h.settings, log)
	h.hub.register(client)
	go client.writePump()
	log.Debug("ws connected", "remote", r.RemoteAddr)

	ctx := r.Context()
	client.readLoop(func(data []byte) {
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.hub.Send(connID, domain.EventError, domain.Notice{Message: "malformed message"})
			return
		}
		if err := h.dispatch(ctx, connID, msg); err != nil {
			h.reject(log, connID, msg.Type, err)
		}
	})

	client.close()
	if err := h.sessions.Disconnect(context.WithoutCancel(ctx), connID); err != nil {
		log.Error("disconnect", "err", err)
	}
	log.Debug("ws closed")
}

func (h *WSHandler) dispatch(ctx context.Context, connID string, msg inboundMessage) error {
	switch msg.Type {
	case domain.EventHostJoin:
		ref, err := decode[domain.RoomRef](msg)
		if err != nil {
			return err
		}
		_, err = h.sessions.HostJoin(ctx, connID, ref.RoomCode)
		return err
	case domain.EventPlayerJoin:
		req, err := decode[domain.PlayerJoinRequest](msg)
		if err != nil {
			return err
		}
		return h.sessions.PlayerJoin(ctx, connID, req)
	case domain.EventJoinResponse:
		resp, err := decode[domain.JoinResponse](msg)
		if err != nil {
			return err
		}
		return h.sessions.RespondToJoin(ctx, connID, resp)
	case domain.EventQuizStart:
		ref, err := decode[domain.RoomRef](msg)
		if err != nil {
			return err
		}
		return h.sessions.StartQuiz(ctx, connID, ref.RoomCode)
	case domain.EventAnswerSubmit:
		sub, err := decode[domain.AnswerSubmission](msg)
		if err != nil {
			return err
		}
		_, err = h.sessions.SubmitAnswer(ctx, connID, sub)
		return err
	case domain.EventHostLeave:
		ref, err := decode[domain.RoomRef](msg)
		if err != nil {
			return err
		}
		return h.sessions.HostLeave(ctx, connID, ref.RoomCode)
	case domain.EventPlayerLeave:
		ref, err := decode[domain.RoomRef](msg)
		if err != nil {
			return err
		}
		return h.sessions.PlayerLeave(ctx, connID, ref.RoomCode)
	default:
		return errUnsupported
	}
}

// payloadError is a decode or validation failure; its text is safe to show.
type payloadError struct {
	event string
	err   error
}

func (e *payloadError) Error() string {
	return fmt.Sprintf("invalid %s payload", e.event)
}

func (e *payloadError) Unwrap() error { return e.err }

func decode[T any](msg inboundMessage) (T, error) {
	var v T
	if len(msg.Payload) == 0 {
		return v, &payloadError{event: msg.Type, err: errors.New("missing payload")}
	}
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, &payloadError{event: msg.Type, err: err}
	}
	if err := validate.Struct(v); err != nil {
		return v, &payloadError{event: msg.Type, err: err}
	}
	return v, nil
}

// reject reports err to the sender only.
func (h *WSHandler) reject(log *slog.Logger, connID, event string, err error) {
	var perr *payloadError
	message := domain.PublicMessage(err)
	switch {
	case errors.As(err, &perr):
		message = perr.Error()
		log.Debug("rejected payload", "event", event, "err", err)
	case errors.Is(err, errUnsupported):
		message = errUnsupported.Error()
		log.Debug("unsupported event", "event", event)
	case message == domain.GenericMessage:
		log.Error("handle event", "event", event, "err", err)
	default:
		log.Info("event refused", "event", event, "err", err)
	}
	h.hub.Send(connID, domain.EventError, domain.Notice{Message: message})
}
