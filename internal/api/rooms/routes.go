package rooms

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// RegisterRoutes mounts the room API under /api/rooms directly on r, so a
// known path with the wrong method answers 405. Each handler is wrapped in
// mw, outermost first. my-rooms is registered before {roomId} so it is not
// captured as an id.
func RegisterRoutes(r *mux.Router, h *Handler, mw ...mux.MiddlewareFunc) {
	route := func(path string, fn http.HandlerFunc, method string) {
		var handler http.Handler = logRequests(h.Log)(fn)
		for i := len(mw) - 1; i >= 0; i-- {
			handler = mw[i](handler)
		}
		r.Handle("/api/rooms"+path, handler).Methods(method)
	}

	route("", h.CreateRoom, http.MethodPost)
	route("/my-rooms", h.MyRooms, http.MethodGet)
	route("/{roomId}", h.GetRoom, http.MethodGet)
	route("/{roomId}", h.DeleteRoom, http.MethodDelete)
	route("/{roomId}/settings", h.UpdateSettings, http.MethodPatch)
	route("/{roomId}/add-participant", h.AddParticipant, http.MethodPatch)
	route("/{roomId}/remove-participant", h.RemoveParticipant, http.MethodPatch)
	route("/{roomId}/join", h.JoinRoom, http.MethodPost)
}

func logRequests(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Debug("room api request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
			next.ServeHTTP(w, r)
		})
	}
}
