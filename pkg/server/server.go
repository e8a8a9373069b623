package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/franklinwh/pkg/cache"
	"github.com/raterudder/franklinwh/pkg/franklin"
	"github.com/raterudder/franklinwh/pkg/log"
	"github.com/raterudder/franklinwh/pkg/storage"
	"github.com/raterudder/franklinwh/pkg/types"
)

// tokenVerifier validates an OIDC ID token and returns its email claim.
type tokenVerifier func(ctx context.Context, rawIDToken string) (string, error)

// Server exposes a gateway over HTTP. Reads are served through a polling
// cache and writes are recorded to storage.
type Server struct {
	franklin *franklin.Config
	system   franklin.System
	storage  storage.Database

	cacheInterval *time.Duration
	stats         *cache.Cached[types.Stats]
	mode          *cache.Cached[types.ModeState]
	switches      *cache.Cached[types.Switches]
	now           func() time.Time

	listenAddr string
	httpServer *http.Server

	adminEmails []string
	verifyToken tokenVerifier
	bypassAuth  bool
	serverName  string
}

// Configured initializes the Server with dependencies. The gateway is dialed
// when Run is called.
func Configured(fc *franklin.Config, s storage.Database) *Server {
	srv := &Server{
		franklin:      fc,
		storage:       s,
		cacheInterval: cache.Configured(),
		now:           time.Now,
		serverName:    "franklinwh",
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	adminEmails := lflag.String("admin-emails", "", "comma-delimited list of email addresses allowed to change the mode or switches")
	oidcAudience := lflag.String("oidc-audience", "", "audience (client id) to validate id tokens against. Empty rejects all control requests unless insecure-no-auth is set.")
	oidcIssuer := lflag.String("oidc-issuer", "https://accounts.google.com", "issuer of the id tokens")
	insecureNoAuth := lflag.Bool("insecure-no-auth", false, "Allow unauthenticated control requests when no oidc-audience or admin-emails are set (local development only)")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		if *adminEmails != "" {
			srv.adminEmails = strings.Split(*adminEmails, ",")
			for i, email := range srv.adminEmails {
				srv.adminEmails[i] = strings.TrimSpace(email)
			}
		}
		if *oidcAudience == "" {
			if *insecureNoAuth && len(srv.adminEmails) == 0 {
				log.Ctx(context.Background()).Warn("insecure-no-auth set, control endpoints are unauthenticated")
				srv.bypassAuth = true
			} else {
				log.Ctx(context.Background()).Warn("no oidc-audience configured, control endpoints are disabled")
			}
			return
		}
		provider, err := oidc.NewProvider(context.Background(), *oidcIssuer)
		if err != nil {
			log.Ctx(context.Background()).Error("failed to initialize OIDC provider", slog.String("issuer", *oidcIssuer), slog.Any("error", err))
			os.Exit(1)
		}
		srv.verifyToken = oidcVerifier(provider.Verifier(&oidc.Config{ClientID: *oidcAudience}))
	})

	return srv
}

func oidcVerifier(v *oidc.IDTokenVerifier) tokenVerifier {
	return func(ctx context.Context, rawIDToken string) (string, error) {
		idToken, err := v.Verify(ctx, rawIDToken)
		if err != nil {
			return "", err
		}
		var claims struct {
			Email string `json:"email"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return "", fmt.Errorf("failed to parse claims: %w", err)
		}
		return claims.Email, nil
	}
}

// attach points the server at a gateway and sets up the read caches.
func (s *Server) attach(sys franklin.System) {
	var interval time.Duration
	if s.cacheInterval != nil {
		interval = *s.cacheInterval
	}
	s.system = sys
	s.stats = cache.New("stats", interval, s.fetchStats)
	s.mode = cache.New("mode", interval, sys.GetMode)
	s.switches = cache.New("switches", interval, sys.GetSwitchState)
}

// fetchStats reads the gateway and records the reading.
func (s *Server) fetchStats(ctx context.Context) (types.Stats, error) {
	stats, err := s.system.GetStats(ctx)
	if err != nil {
		return types.Stats{}, err
	}
	snap := types.Snapshot{
		Timestamp: s.now(),
		GatewayID: s.system.GatewayID(),
		Stats:     stats,
	}
	if err := s.storage.InsertSnapshot(ctx, snap); err != nil {
		// the reading is still good even if it couldn't be saved
		log.Ctx(ctx).ErrorContext(ctx, "failed to insert snapshot", slog.Any("error", err))
	}
	return stats, nil
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/stats", s.handleGetStats)
	apiMux.HandleFunc("GET /api/mode", s.handleGetMode)
	apiMux.Handle("POST /api/mode", s.adminMiddleware(http.HandlerFunc(s.handleSetMode)))
	apiMux.HandleFunc("GET /api/switches", s.handleGetSwitches)
	apiMux.Handle("POST /api/switches", s.adminMiddleware(http.HandlerFunc(s.handleSetSwitches)))
	apiMux.HandleFunc("GET /api/history/snapshots", s.handleHistorySnapshots)
	apiMux.HandleFunc("GET /api/history/actions", s.handleHistoryActions)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.requestLogMiddleware(apiMux))
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run dials the gateway, starts the HTTP server and blocks until the context
// is canceled or an error occurs. It also handles graceful shutdown when the
// context is done.
func (s *Server) Run(ctx context.Context) error {
	if s.system == nil {
		client, err := s.franklin.Dial(ctx)
		if err != nil {
			return fmt.Errorf("failed to connect to franklin: %w", err)
		}
		log.Ctx(ctx).InfoContext(ctx, "connected to franklin", slog.String("gatewayID", client.GatewayID()))
		s.attach(client)
	}

	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, struct {
		Error string `json:"error"`
	}{Error: msg})
}

// franklinStatus maps a gateway error to the HTTP status returned for it.
func franklinStatus(err error) int {
	switch {
	case errors.Is(err, franklin.ErrSwitchesMerged):
		return http.StatusBadRequest
	case errors.Is(err, franklin.ErrDeviceTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, franklin.ErrGatewayOffline):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func writeFranklinError(w http.ResponseWriter, err error) {
	writeJSONError(w, err.Error(), franklinStatus(err))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = log.WithAttrs(ctx, slog.String("reqPath", r.URL.Path), slog.String("reqMethod", r.Method))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
