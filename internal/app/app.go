package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mbarreto/almox/internal/config"
	"github.com/mbarreto/almox/internal/estoque"
	"github.com/mbarreto/almox/internal/httpx"
	"github.com/mbarreto/almox/internal/importer"
)

type App struct {
	cfg   config.Config
	db    *sql.DB
	itens *estoque.Service

	mu       sync.RWMutex
	sessions map[string]*importer.Session
}

func New(cfg config.Config, db *sql.DB) (*App, error) {
	return &App{
		cfg:      cfg,
		db:       db,
		itens:    estoque.NewService(db),
		sessions: map[string]*importer.Session{},
	}, nil
}

func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/healthz":
		a.handleHealth(w)
		return

	case r.Method == http.MethodGet && r.URL.Path == "/v1/estoque/itens":
		a.handleListItens(w, r)
		return

	case r.Method == http.MethodPost && r.URL.Path == "/v1/estoque/import":
		a.handleImportUpload(w, r)
		return
	case strings.HasPrefix(r.URL.Path, "/v1/estoque/import/"):
		a.routeImportSession(w, r)
		return
	}

	http.NotFound(w, r)
}

// routeImportSession dispatches /v1/estoque/import/{id}[/{action}].
func (a *App) routeImportSession(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 4 || len(parts) > 5 {
		http.NotFound(w, r)
		return
	}
	session, ok := a.session(parts[3])
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, importer.ErrSessionNotFound.Error())
		return
	}

	action := ""
	if len(parts) == 5 {
		action = parts[4]
	}

	switch {
	case r.Method == http.MethodGet && action == "":
		a.handleImportState(w, session)
	case r.Method == http.MethodDelete && action == "":
		a.handleDiscardSession(w, session)
	case r.Method == http.MethodPost && action == "grupos":
		a.handleSetGroups(w, r, session)
	case r.Method == http.MethodDelete && action == "grupos":
		a.handleClearGroups(w, session)
	case r.Method == http.MethodPost && action == "reconcile":
		a.handleReconcile(w, r, session)
	case r.Method == http.MethodPost && action == "commit":
		a.handleCommit(w, r, session)
	case r.Method == http.MethodPost && action == "retry":
		a.handleRetry(w, r, session)
	case r.Method == http.MethodGet && action == "ws":
		a.handleProgressWS(w, r, session)
	default:
		http.NotFound(w, r)
	}
}

func (a *App) handleHealth(w http.ResponseWriter) {
	status := "ok"
	code := http.StatusOK

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.db.PingContext(ctx); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	httpx.WriteJSON(w, code, map[string]string{"status": status})
}

func (a *App) handleListItens(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	items, err := a.itens.List(r.Context(), q, limit)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "could not list inventory")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"itens": items, "total": len(items)})
}

func (a *App) session(id string) (*importer.Session, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.sessions[id]
	return s, ok
}

func (a *App) addSession(s *importer.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[s.ID] = s
}

func (a *App) removeSession(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.sessions[id]; ok {
		s.Close()
		delete(a.sessions, id)
	}
}

// sweepSessions drops sessions idle past the configured TTL. Import state is
// deliberately ephemeral; abandoning the flow discards it.
func (a *App) sweepSessions() {
	cutoff := time.Now().Add(-a.cfg.SessionTTL)

	a.mu.Lock()
	defer a.mu.Unlock()
	for id, s := range a.sessions {
		if s.IdleSince(cutoff) {
			s.Close()
			delete(a.sessions, id)
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweeper := time.NewTicker(a.cfg.SweepInterval)
	defer sweeper.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sweeper.C:
				a.sweepSessions()
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	}
}
