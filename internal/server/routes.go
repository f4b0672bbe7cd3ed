package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/techie-mohit/videoCalling/internal/iceconfig"
	"github.com/techie-mohit/videoCalling/internal/identity"
	"github.com/techie-mohit/videoCalling/internal/metrics"
	"github.com/techie-mohit/videoCalling/internal/protocol"
	"github.com/techie-mohit/videoCalling/internal/signaling"
)

var localOrigin = regexp.MustCompile(`^http://localhost:\d+$`)

// Server is the HTTP surface of the signaling service.
type Server struct {
	hub      *signaling.Hub
	auth     identity.Provider
	ice      *iceconfig.Provider
	metrics  *metrics.Metrics
	origins  []string
	upgrader websocket.Upgrader
}

func New(hub *signaling.Hub, auth identity.Provider, ice *iceconfig.Provider, m *metrics.Metrics, origins []string) *Server {
	s := &Server{
		hub:     hub,
		auth:    auth,
		ice:     ice,
		metrics: m,
		origins: origins,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     s.allowOrigin,
	}
	return s
}

// Router wires every endpoint behind the access log.
func (s *Server) Router(logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/health", healthCheck)
	r.Get("/ws", s.ServeWs)
	r.Get("/stats", s.stats)
	r.Get("/rooms/suggest", s.suggestRoom)
	r.Get("/ice-config", s.iceConfig)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}

// ServeWs upgrades the request and hands the connection to the hub.
func (s *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	codec, err := protocol.CodecByName(r.URL.Query().Get("codec"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p := s.participant(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("failed to upgrade connection")
		return
	}
	s.hub.Serve(conn, codec, p)
}

// participant resolves the connection identity. Connections without a valid
// token are accepted anonymously and name themselves when joining.
func (s *Server) participant(r *http.Request) signaling.Participant {
	id, err := s.auth.Authenticate(r)
	switch {
	case err == nil:
		return signaling.Participant{Identity: id.Display(), Name: id.Name}
	case errors.Is(err, identity.ErrNoToken):
	default:
		hlog.FromRequest(r).Debug().Err(err).Msg("ignoring invalid token")
	}
	return signaling.Participant{}
}

// allowOrigin accepts requests without an Origin header, any localhost port
// and the configured frontends.
func (s *Server) allowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || localOrigin.MatchString(origin) || slices.Contains(s.origins, origin)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.allowOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Signaling server is healthy."))
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	reg := s.hub.Registry()
	out := protocol.ServerStats{
		Connections: s.hub.Connections(),
		Occupied:    make(map[string]int),
		Rooms:       []protocol.RoomStats{},
	}
	for _, mod := range protocol.Modalities {
		out.Occupied[mod.String()] = reg.RoomCount(mod)
	}
	for _, room := range reg.Rooms() {
		out.Rooms = append(out.Rooms, protocol.RoomStats{
			RoomID:   room.RoomID,
			Modality: room.Modality.String(),
			Members:  len(room.Members),
		})
	}
	writeJSON(w, out)
}

func (s *Server) suggestRoom(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, protocol.RoomSuggestion{
		RoomID: signaling.SuggestRoomID(s.hub.Registry().InUse),
	})
}

func (s *Server) iceConfig(w http.ResponseWriter, r *http.Request) {
	who := s.participant(r).Identity
	if who == "" {
		who = r.URL.Query().Get("identity")
	}
	if who == "" {
		who = "anonymous"
	}
	writeJSON(w, s.ice.For(who))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
