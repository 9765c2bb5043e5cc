package rooms

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Vasu1712/streamsync-backend/internal/domain"
	"github.com/Vasu1712/streamsync-backend/internal/middleware"
	"github.com/Vasu1712/streamsync-backend/internal/storage/memory"
)

type fakePresence map[string]int

func (f fakePresence) Members(roomID string) int { return f[roomID] }

type fakePlayback map[string]domain.RoomState

func (f fakePlayback) Snapshot(roomID string, _ time.Time) (domain.RoomState, bool) {
	st, ok := f[roomID]
	return st, ok
}

type apiFixture struct {
	router   http.Handler
	presence fakePresence
	playback fakePlayback
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	log := zap.NewNop()
	f := &apiFixture{presence: fakePresence{}, playback: fakePlayback{}}
	h := &Handler{
		Store:      memory.NewRoomStore(log),
		Presence:   f.presence,
		Playback:   f.playback,
		Log:        log,
		BcryptCost: bcrypt.MinCost,
	}
	r := mux.NewRouter()
	RegisterRoutes(r, h, middleware.Auth("", log))
	f.router = r
	return f
}

type roomResponse struct {
	Message string `json:"message"`
	Room    struct {
		ID           string            `json:"roomId"`
		Name         string            `json:"name"`
		Host         string            `json:"host"`
		Mode         string            `json:"mode"`
		Participants []string          `json:"participants"`
		ActiveUsers  int               `json:"activeUsers"`
		State        *domain.RoomState `json:"state"`
	} `json:"room"`
}

func (f *apiFixture) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) create(t *testing.T, user string, body map[string]any) roomResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/rooms", user, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp roomResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestCreateRoom(t *testing.T) {
	f := newAPI(t)

	resp := f.create(t, "host-1", map[string]any{"name": "Friday", "movie": "tt0133093", "mode": "private", "passcode": "secret"})

	assert.Equal(t, "Room created", resp.Message)
	assert.NotEmpty(t, resp.Room.ID)
	assert.Equal(t, "host-1", resp.Room.Host)
	assert.Equal(t, "private", resp.Room.Mode)
	assert.Equal(t, []string{"host-1"}, resp.Room.Participants)

	rec := f.do(t, http.MethodGet, "/api/rooms/"+resp.Room.ID, "anyone", nil)
	assert.NotContains(t, rec.Body.String(), "secret")
	assert.NotContains(t, rec.Body.String(), "$2a$")
}

func TestCreateRoom_Validation(t *testing.T) {
	tests := []struct {
		name string
		user string
		body any
		want int
	}{
		{name: "no user", body: map[string]any{"name": "x"}, want: http.StatusUnauthorized},
		{name: "no name", user: "u", body: map[string]any{"name": "  "}, want: http.StatusBadRequest},
		{name: "bad mode", user: "u", body: map[string]any{"name": "x", "mode": "secret"}, want: http.StatusBadRequest},
		{name: "negative capacity", user: "u", body: map[string]any{"name": "x", "maxCapacity": -1}, want: http.StatusBadRequest},
		{name: "passcode on public room", user: "u", body: map[string]any{"name": "x", "mode": "public", "passcode": "p"}, want: http.StatusBadRequest},
		{name: "passcode without mode", user: "u", body: map[string]any{"name": "x", "passcode": "p"}, want: http.StatusBadRequest},
		{name: "bad json", user: "u", body: "nope", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPI(t)
			rec := f.do(t, http.MethodPost, "/api/rooms", tt.user, tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestGetRoom_IncludesLiveView(t *testing.T) {
	f := newAPI(t)
	created := f.create(t, "host", map[string]any{"name": "Live"})
	f.presence[created.Room.ID] = 3
	f.playback[created.Room.ID] = domain.RoomState{IsPlaying: true, Position: 42}

	rec := f.do(t, http.MethodGet, "/api/rooms/"+created.Room.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp roomResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 3, resp.Room.ActiveUsers)
	require.NotNil(t, resp.Room.State)
	assert.True(t, resp.Room.State.IsPlaying)
	assert.Equal(t, 42.0, resp.Room.State.Position)

	rec = f.do(t, http.MethodGet, "/api/rooms/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMyRooms(t *testing.T) {
	f := newAPI(t)
	hosted := f.create(t, "alice", map[string]any{"name": "Mine"})
	other := f.create(t, "bob", map[string]any{"name": "Bob's"})
	f.create(t, "carol", map[string]any{"name": "Unrelated"})

	rec := f.do(t, http.MethodPatch, "/api/rooms/"+other.Room.ID+"/add-participant", "bob", map[string]string{"participantId": "alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/rooms/my-rooms", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Rooms []struct {
			ID string `json:"roomId"`
		} `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	var ids []string
	for _, r := range resp.Rooms {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{hosted.Room.ID, other.Room.ID}, ids)
}

func TestHostOnlyRoutes(t *testing.T) {
	tests := []struct {
		name   string
		method string
		suffix string
		body   any
		ok     int
	}{
		{name: "delete", method: http.MethodDelete, suffix: "", ok: http.StatusOK},
		{name: "settings", method: http.MethodPatch, suffix: "/settings", body: map[string]string{"name": "Renamed"}, ok: http.StatusOK},
		{name: "add participant", method: http.MethodPatch, suffix: "/add-participant", body: map[string]string{"participantId": "guest"}, ok: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPI(t)
			created := f.create(t, "host", map[string]any{"name": "Room"})
			path := "/api/rooms/" + created.Room.ID + tt.suffix

			rec := f.do(t, tt.method, path, "intruder", tt.body)
			assert.Equal(t, http.StatusForbidden, rec.Code)

			rec = f.do(t, tt.method, path, "host", tt.body)
			assert.Equal(t, tt.ok, rec.Code, rec.Body.String())
		})
	}
}

func TestParticipants(t *testing.T) {
	f := newAPI(t)
	created := f.create(t, "host", map[string]any{"name": "Room", "maxCapacity": 2})
	base := "/api/rooms/" + created.Room.ID

	rec := f.do(t, http.MethodPatch, base+"/add-participant", "host", map[string]string{"participantId": "guest"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPatch, base+"/add-participant", "host", map[string]string{"participantId": "guest"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPatch, base+"/add-participant", "host", map[string]string{"participantId": "third"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPatch, base+"/remove-participant", "host", map[string]string{"participantId": "host"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPatch, base+"/remove-participant", "host", map[string]string{"participantId": "guest"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp roomResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, []string{"host"}, resp.Room.Participants)

	rec = f.do(t, http.MethodPatch, base+"/remove-participant", "host", map[string]string{"participantId": "guest"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPatch, base+"/add-participant", "host", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJoinRoom(t *testing.T) {
	f := newAPI(t)
	public := f.create(t, "host", map[string]any{"name": "Open"})
	private := f.create(t, "host", map[string]any{"name": "Closed", "mode": "private", "passcode": "letmein"})
	locked := f.create(t, "host", map[string]any{"name": "Locked", "mode": "private"})

	tests := []struct {
		name   string
		roomID string
		body   any
		want   int
	}{
		{name: "public", roomID: public.Room.ID, want: http.StatusOK},
		{name: "private right passcode", roomID: private.Room.ID, body: map[string]string{"passcode": "letmein"}, want: http.StatusOK},
		{name: "private wrong passcode", roomID: private.Room.ID, body: map[string]string{"passcode": "nope"}, want: http.StatusForbidden},
		{name: "private without passcode", roomID: locked.Room.ID, want: http.StatusForbidden},
		{name: "missing room", roomID: "missing", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/rooms/"+tt.roomID+"/join", "guest-"+tt.name, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	rec := f.do(t, http.MethodPost, "/api/rooms/"+public.Room.ID+"/join", "guest-public", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newAPI(t)
	tests := []struct {
		method string
		path   string
	}{
		{method: http.MethodPut, path: "/api/rooms/abc"},
		{method: http.MethodGet, path: "/api/rooms"},
		{method: http.MethodPost, path: "/api/rooms/my-rooms"},
		{method: http.MethodGet, path: "/api/rooms/abc/join"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, "u", nil)
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		})
	}

	rec := f.do(t, http.MethodGet, "/api/elsewhere", "u", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
