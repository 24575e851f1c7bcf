package api

import (
	"easy-chat/domain"
	"easy-chat/errors"
	"easy-chat/observability"
	"easy-chat/repositories"
	"easy-chat/services"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

const defaultSearchLimit = 20

type statsResponse struct {
	domain.Stats
	Metrics observability.MonitoringStats `json:"metrics"`
}

type historyResponse struct {
	Messages   []repositories.ArchivedMessage `json:"messages"`
	NextCursor *string                        `json:"nextCursor"`
}

type searchResponse struct {
	Query    string                         `json:"query"`
	Messages []repositories.ArchivedMessage `json:"messages"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter mounts the socket endpoint next to the read-only HTTP surface.
func NewRouter(
	log *slog.Logger,
	service services.IChatService,
	monitoring *observability.MonitoringManager,
	socket http.Handler,
) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", socket)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(log, w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(log, w, http.StatusOK, statsResponse{
			Stats:   service.Stats(),
			Metrics: monitoring.GetLatest(),
		})
	})

	mux.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		var cursor *string
		if c := r.URL.Query().Get("cursor"); c != "" {
			cursor = &c
		}
		messages, next, err := service.History(cursor)
		if err != nil {
			writeError(log, w, err)
			return
		}
		writeJSON(log, w, http.StatusOK, historyResponse{Messages: nonNil(messages), NextCursor: next})
	})

	mux.HandleFunc("GET /search", func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			writeJSON(log, w, http.StatusBadRequest, errorResponse{Error: "missing query parameter q"})
			return
		}
		limit := defaultSearchLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeJSON(log, w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
				return
			}
			limit = n
		}
		messages, err := service.Search(r.Context(), query, limit)
		if err != nil {
			writeError(log, w, err)
			return
		}
		writeJSON(log, w, http.StatusOK, searchResponse{Query: query, Messages: nonNil(messages)})
	})

	return mux
}

func nonNil(messages []repositories.ArchivedMessage) []repositories.ArchivedMessage {
	if messages == nil {
		return []repositories.ArchivedMessage{}
	}
	return messages
}

func writeError(log *slog.Logger, w http.ResponseWriter, err error) {
	if errors.Is(err, errors.ErrArchiveDisabled) {
		writeJSON(log, w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	log.Error("Archive request failed", "error", err)
	writeJSON(log, w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func writeJSON(log *slog.Logger, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug("Unable to write response", "error", err)
	}
}
