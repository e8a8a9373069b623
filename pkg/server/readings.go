package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/raterudder/franklinwh/pkg/cache"
	"github.com/raterudder/franklinwh/pkg/log"
)

type cachedResponse[T any] struct {
	Data      T         `json:"data"`
	FetchedAt time.Time `json:"fetchedAt"`
	// Stale is set when the gateway couldn't be reached and Data is the last
	// known value.
	Stale bool   `json:"stale"`
	Error string `json:"error,omitempty"`
}

// writeCached serves the cached value of c. A failed refresh is only an error
// response if there is nothing earlier to fall back on.
func writeCached[T any](w http.ResponseWriter, r *http.Request, c *cache.Cached[T]) {
	ctx := r.Context()
	res, err := c.Get(ctx)
	resp := cachedResponse[T]{
		Data:      res.Value,
		FetchedAt: res.FetchedAt,
		Stale:     res.Stale,
	}
	if err != nil {
		if !res.Stale {
			log.Ctx(ctx).ErrorContext(ctx, "failed to read gateway", slog.Any("error", err))
			writeFranklinError(w, err)
			return
		}
		log.Ctx(ctx).WarnContext(ctx, "serving stale gateway data", slog.Time("fetchedAt", res.FetchedAt), slog.Any("error", err))
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	writeCached(w, r, s.stats)
}

func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	writeCached(w, r, s.mode)
}

func (s *Server) handleGetSwitches(w http.ResponseWriter, r *http.Request) {
	writeCached(w, r, s.switches)
}
