package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"quizroom/internal/domain"
)

// Rooms is the request/response side of the coordinator.
type Rooms interface {
	CreateRoom(ctx context.Context, quizID int64, hostID string) (domain.Room, error)
	RoomDetails(ctx context.Context, code string) (domain.Room, []domain.Player, error)
	ActiveRooms() int
}

type RoomsHandler struct {
	rooms Rooms
	hub   *Hub
	log   *slog.Logger
}

func NewRoomsHandler(rooms Rooms, hub *Hub, log *slog.Logger) *RoomsHandler {
	return &RoomsHandler{rooms: rooms, hub: hub, log: log}
}

type createRoomRequest struct {
	QuizID int64  `json:"quizId" validate:"required,gt=0"`
	HostID string `json:"hostId" validate:"required,max=255"`
}

type roomResponse struct {
	Room    domain.Room     `json:"room"`
	Players []domain.Player `json:"players,omitempty"`
}

type statsResponse struct {
	HubStats
	LiveRooms int `json:"liveRooms"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func (h *RoomsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "malformed request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "quizId and hostId are required"})
		return
	}

	room, err := h.rooms.CreateRoom(r.Context(), req.QuizID, req.HostID)
	if err != nil {
		h.fail(w, "create room", err)
		return
	}
	writeJSON(w, http.StatusCreated, roomResponse{Room: room})
}

func (h *RoomsHandler) Get(w http.ResponseWriter, r *http.Request) {
	room, players, err := h.rooms.RoomDetails(r.Context(), r.PathValue("code"))
	if err != nil {
		h.fail(w, "room details", err)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{Room: room, Players: players})
}

func (h *RoomsHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{HubStats: h.hub.Stats(), LiveRooms: h.rooms.ActiveRooms()})
}

func (h *RoomsHandler) fail(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrQuizNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNoQuestions):
		status = http.StatusUnprocessableEntity
	default:
		h.log.Error(op, "err", err)
	}
	writeJSON(w, status, errorPayload{Message: domain.PublicMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NewRouter mounts the websocket endpoint, the room API and the probes.
func NewRouter(ws *WSHandler, rooms *RoomsHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /stats", rooms.Stats)
	mux.HandleFunc("GET /ws", ws.ServeWS)
	mux.HandleFunc("POST /api/rooms", rooms.Create)
	mux.HandleFunc("GET /api/rooms/{code}", rooms.Get)
	return mux
}
