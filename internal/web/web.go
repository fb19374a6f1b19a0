package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"gatherbot/internal/config"
	"gatherbot/internal/ics"
	appLog "gatherbot/internal/log"
)

// Server exposes the committed events as JSON and iCalendar feeds.
type Server struct {
	cfg     *config.Config
	catalog *ics.Catalog
	mux     *http.ServeMux
	now     func() time.Time

	// In-memory cache for /api/events responses, keyed by window size and
	// invalidated whenever the catalog changes.
	eventsMu    sync.RWMutex
	eventsCache map[int]*eventsCache
}

// calendarName is the X-WR-CALNAME of /events.ics.
const calendarName = "Community events"

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, catalog *ics.Catalog) *Server {
	s := &Server{
		cfg:         cfg,
		catalog:     catalog,
		mux:         http.NewServeMux(),
		now:         time.Now,
		eventsCache: make(map[int]*eventsCache),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth rather than locking everyone out.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="gatherbot", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func StartServer(ctx context.Context, cfg *config.Config, catalog *ics.Catalog) error {
	s := NewServer(cfg, catalog)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/events.ics", s.handleCalendar)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Occurrences []occurrenceDTO `json:"occurrences"`
	Truncated   []string        `json:"truncated_events,omitempty"`
	RangeStart  time.Time       `json:"range_start"`
	RangeEnd    time.Time       `json:"range_end"`
	// SnapshotAt is when maintenance last refreshed the events.
	SnapshotAt time.Time `json:"snapshot_at"`
}

// eventsCache holds a cached /api/events response and its timestamp.
type eventsCache struct {
	resp      eventsResponse
	updatedAt time.Time
}

// occurrenceDTO is a JSON-friendly view of occurrences.
type occurrenceDTO struct {
	EventID     string    `json:"event_id"`
	InstanceKey string    `json:"instance_key"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	URL         string    `json:"url,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

const eventsCacheTTL = 30 * time.Second

// handleEvents returns expanded occurrences of committed events.
//
// GET /api/events?days=14
//   - days: how many days ahead to list (default horizon_days)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	def := s.cfg.HorizonDays
	if def <= 0 {
		def = 14
	}
	days := parseIntDefault(r.URL.Query().Get("days"), def)
	if days <= 0 || days > 366 {
		days = def
	}

	now := s.now()
	snapshot := s.catalog.UpdatedAt()

	s.eventsMu.RLock()
	ec := s.eventsCache[days]
	s.eventsMu.RUnlock()
	if ec != nil && now.Sub(ec.updatedAt) < eventsCacheTTL && ec.resp.SnapshotAt.Equal(snapshot) {
		writeJSON(w, http.StatusOK, ec.resp)
		return
	}

	rangeStart := now.UTC()
	rangeEnd := rangeStart.AddDate(0, 0, days)

	appLog.Debug("api events request",
		"days", days,
		"range_start", rangeStart.Format(time.RFC3339),
		"range_end", rangeEnd.Format(time.RFC3339),
	)

	res, err := ics.ExpandOccurrences(s.catalog.Drafts(), ics.ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
	})
	if err != nil {
		appLog.Error("api events: expand failed", err)
		writeError(w, http.StatusInternalServerError, "failed to expand events")
		return
	}

	dtos := make([]occurrenceDTO, 0, len(res.Occurrences))
	for _, occ := range res.Occurrences {
		dtos = append(dtos, occurrenceDTO{
			EventID:     occ.EventID,
			InstanceKey: occ.InstanceKey,
			Summary:     occ.Summary,
			Description: occ.Description,
			Location:    occ.Location,
			URL:         occ.URL,
			Start:       occ.Start,
			End:         occ.End,
		})
	}

	resp := eventsResponse{
		Occurrences: dtos,
		Truncated:   res.TruncatedEvents,
		RangeStart:  rangeStart,
		RangeEnd:    rangeEnd,
		SnapshotAt:  snapshot,
	}

	s.eventsMu.Lock()
	s.eventsCache[days] = &eventsCache{resp: resp, updatedAt: now}
	s.eventsMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// handleCalendar serves every committed event as one iCalendar feed.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="events.ics"`)
	if err := ics.WriteCalendar(w, calendarName, s.catalog.Drafts(), s.now()); err != nil {
		appLog.Error("failed to write calendar", err)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
