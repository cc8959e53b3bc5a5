package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/parserdesk/internal/record"
	"github.com/flemzord/parserdesk/internal/security"
)

// parserSummary is a record without its conversation.
type parserSummary struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	URLPattern string    `json:"url_pattern"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (g *Gateway) handleListParsers() http.HandlerFunc {
	return g.withStore(func(w http.ResponseWriter, r *http.Request) {
		all, err := g.store.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]parserSummary, len(all))
		for i, rec := range all {
			out[i] = parserSummary{ID: rec.ID, Name: rec.Name, URLPattern: rec.URLPattern, UpdatedAt: rec.UpdatedAt}
		}
		writeJSON(w, http.StatusOK, out)
	})
}

func (g *Gateway) handleMatchParser() http.HandlerFunc {
	return g.withStore(func(w http.ResponseWriter, r *http.Request) {
		url := r.URL.Query().Get("url")
		if url == "" {
			writeError(w, http.StatusBadRequest, "url query parameter is required")
			return
		}
		rec, err := record.Match(r.Context(), g.store, url)
		if err != nil {
			writeError(w, recordStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, rec)
	})
}

func (g *Gateway) handleGetParser() http.HandlerFunc {
	return g.withStore(func(w http.ResponseWriter, r *http.Request) {
		id, ok := parserID(w, r)
		if !ok {
			return
		}
		rec, err := g.store.Get(r.Context(), id)
		if err != nil {
			writeError(w, recordStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, rec)
	})
}

func (g *Gateway) handleDeleteParser() http.HandlerFunc {
	return g.withStore(func(w http.ResponseWriter, r *http.Request) {
		id, ok := parserID(w, r)
		if !ok {
			return
		}
		if err := g.store.Delete(r.Context(), id); err != nil {
			writeError(w, recordStatus(err), err.Error())
			return
		}
		g.audit.Log(security.AuditEvent{
			Type:   security.EventParserDelete,
			Remote: r.RemoteAddr,
			Detail: strconv.FormatInt(id, 10),
		})
		w.WriteHeader(http.StatusNoContent)
	})
}

func (g *Gateway) withStore(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.store == nil {
			writeError(w, http.StatusServiceUnavailable, "no parser store configured")
			return
		}
		fn(w, r)
	}
}

func parserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid parser id")
		return 0, false
	}
	return id, true
}

func recordStatus(err error) int {
	if errors.Is(err, record.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
