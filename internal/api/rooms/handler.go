package rooms

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Vasu1712/streamsync-backend/internal/domain"
	"github.com/Vasu1712/streamsync-backend/internal/middleware"
	"github.com/Vasu1712/streamsync-backend/internal/models"
	"github.com/Vasu1712/streamsync-backend/internal/storage"
)

// Presence reports how many live connections are in a room.
type Presence interface {
	Members(roomID string) int
}

// Playback reports a room's current shared playback state.
type Playback interface {
	Snapshot(roomID string, now time.Time) (domain.RoomState, bool)
}

// Handler serves the room REST API. Live relay state is only read.
type Handler struct {
	Store      storage.RoomStore
	Presence   Presence
	Playback   Playback
	Log        *zap.Logger
	BcryptCost int // zero means bcrypt.DefaultCost
}

type roomView struct {
	*models.Room
	ActiveUsers int               `json:"activeUsers"`
	State       *domain.RoomState `json:"state,omitempty"`
}

type createRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Movie       string          `json:"movie"`
	Mode        models.RoomMode `json:"mode"`
	Tags        []string        `json:"tags"`
	MaxCapacity int             `json:"maxCapacity"`
	Passcode    string          `json:"passcode"`
}

type participantRequest struct {
	ParticipantID string `json:"participantId"`
}

type joinRequest struct {
	Passcode string `json:"passcode"`
}

// CreateRoom handles POST /api/rooms. The caller becomes host and first
// participant.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		h.Log.Debug("decode create room", zap.Error(err))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "Room name cannot be empty", http.StatusBadRequest)
		return
	}
	if req.Mode != "" && !req.Mode.Valid() {
		http.Error(w, "Mode must be public or private", http.StatusBadRequest)
		return
	}
	if req.MaxCapacity < 0 {
		http.Error(w, "maxCapacity cannot be negative", http.StatusBadRequest)
		return
	}
	if req.Passcode != "" && req.Mode != models.ModePrivate {
		http.Error(w, "Passcode is only allowed for private rooms", http.StatusBadRequest)
		return
	}

	room := &models.Room{
		Name:        req.Name,
		Description: req.Description,
		Host:        userID,
		Movie:       req.Movie,
		Mode:        req.Mode,
		Tags:        req.Tags,
		MaxCapacity: req.MaxCapacity,
	}
	if req.Passcode != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Passcode), h.cost())
		if err != nil {
			h.Log.Error("hash passcode", zap.Error(err))
			http.Error(w, "Error creating room", http.StatusInternalServerError)
			return
		}
		room.PasscodeHash = string(hash)
	}

	created, err := h.Store.CreateRoom(r.Context(), room)
	if err != nil {
		h.storeError(w, "create room", "", err)
		return
	}

	h.Log.Info("room created", zap.String("room_id", created.ID), zap.String("host", userID))
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Room created", "room": created})
}

// GetRoom returns the room together with its live member count and
// playback state.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	room, err := h.Store.GetRoom(r.Context(), roomID)
	if err != nil {
		h.storeError(w, "get room", roomID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": h.view(room)})
}

// MyRooms lists the rooms the caller hosts or has joined.
func (h *Handler) MyRooms(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	rooms, err := h.Store.ListRoomsForUser(r.Context(), userID)
	if err != nil {
		h.storeError(w, "list rooms", "", err)
		return
	}

	views := make([]roomView, 0, len(rooms))
	for _, room := range rooms {
		views = append(views, h.view(room))
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": views})
}

// DeleteRoom is host only.
func (h *Handler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if _, ok := h.hostOnly(w, r, roomID); !ok {
		return
	}
	if err := h.Store.DeleteRoom(r.Context(), roomID); err != nil {
		h.storeError(w, "delete room", roomID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Room deleted"})
}

// UpdateSettings is host only.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if _, ok := h.hostOnly(w, r, roomID); !ok {
		return
	}

	var settings models.RoomSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if settings.Mode != "" && !settings.Mode.Valid() {
		http.Error(w, "Mode must be public or private", http.StatusBadRequest)
		return
	}

	room, err := h.Store.UpdateRoomSettings(r.Context(), roomID, settings)
	if err != nil {
		h.storeError(w, "update settings", roomID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Room settings updated", "room": room})
}

func (h *Handler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if _, ok := h.hostOnly(w, r, roomID); !ok {
		return
	}
	participantID, ok := decodeParticipant(w, r)
	if !ok {
		return
	}

	room, err := h.Store.AddParticipant(r.Context(), roomID, participantID)
	if err != nil {
		h.storeError(w, "add participant", roomID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Participant added", "room": room})
}

func (h *Handler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	room, ok := h.hostOnly(w, r, roomID)
	if !ok {
		return
	}
	participantID, ok := decodeParticipant(w, r)
	if !ok {
		return
	}
	if participantID == room.Host {
		http.Error(w, "The host cannot be removed", http.StatusBadRequest)
		return
	}

	updated, err := h.Store.RemoveParticipant(r.Context(), roomID, participantID)
	if err != nil {
		h.storeError(w, "remove participant", roomID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Participant removed", "room": updated})
}

// JoinRoom adds the caller to the room's participants. Private rooms need
// the passcode they were created with.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	roomID := mux.Vars(r)["roomId"]

	var req joinRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	room, err := h.Store.GetRoom(r.Context(), roomID)
	if err != nil {
		h.storeError(w, "join room", roomID, err)
		return
	}
	if room.Mode == models.ModePrivate && userID != room.Host {
		if room.PasscodeHash == "" || bcrypt.CompareHashAndPassword([]byte(room.PasscodeHash), []byte(req.Passcode)) != nil {
			h.Log.Info("private room join refused", zap.String("room_id", roomID), zap.String("user_id", userID))
			http.Error(w, "Invalid passcode", http.StatusForbidden)
			return
		}
	}

	updated, err := h.Store.AddParticipant(r.Context(), roomID, userID)
	if err != nil {
		h.storeError(w, "join room", roomID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Joined room", "room": updated})
}

func (h *Handler) view(room *models.Room) roomView {
	v := roomView{Room: room}
	if h.Presence != nil {
		v.ActiveUsers = h.Presence.Members(room.ID)
	}
	if h.Playback != nil {
		if st, ok := h.Playback.Snapshot(room.ID, time.Now()); ok {
			v.State = &st
		}
	}
	return v
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, _ := middleware.IdentityFromContext(r.Context())
	if id.UserID == "" {
		http.Error(w, "User ID is required", http.StatusUnauthorized)
		return "", false
	}
	return id.UserID, true
}

// hostOnly loads the room and rejects callers that do not host it.
func (h *Handler) hostOnly(w http.ResponseWriter, r *http.Request, roomID string) (*models.Room, bool) {
	userID, ok := h.caller(w, r)
	if !ok {
		return nil, false
	}
	room, err := h.Store.GetRoom(r.Context(), roomID)
	if err != nil {
		h.storeError(w, "load room", roomID, err)
		return nil, false
	}
	if room.Host != userID {
		http.Error(w, "Not authorized", http.StatusForbidden)
		h.Log.Info("non-host change refused", zap.String("room_id", roomID), zap.String("user_id", userID))
		return nil, false
	}
	return room, true
}

func (h *Handler) cost() int {
	if h.BcryptCost == 0 {
		return bcrypt.DefaultCost
	}
	return h.BcryptCost
}

func (h *Handler) storeError(w http.ResponseWriter, op, roomID string, err error) {
	switch {
	case errors.Is(err, storage.ErrRoomNotFound):
		http.Error(w, "Room not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrAlreadyParticipant):
		http.Error(w, "User already a participant", http.StatusConflict)
	case errors.Is(err, storage.ErrRoomFull):
		http.Error(w, "Room is full", http.StatusConflict)
	case errors.Is(err, storage.ErrNotParticipant):
		http.Error(w, "User is not a participant", http.StatusNotFound)
	default:
		h.Log.Error(op+" failed", zap.String("room_id", roomID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func decodeParticipant(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req participantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return "", false
	}
	req.ParticipantID = strings.TrimSpace(req.ParticipantID)
	if req.ParticipantID == "" {
		http.Error(w, "participantId cannot be empty", http.StatusBadRequest)
		return "", false
	}
	return req.ParticipantID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
