package server

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"demosync/internal/demo"
)

// Server exposes the demos wire contract over HTTP:
//
//	GET    /api/config          -> {storageMode}
//	GET    /api/demos           -> [{id, name, lastModified, storage}]
//	POST   /api/demos           -> {id, name, lastModified, storage}
//	GET    /api/demos/{id}      -> {name, data, lastModified}
//	PUT    /api/demos/{id}      -> {lastModified}
//	DELETE /api/demos/{id}      -> 204
//	GET    /api/demos/{id}/meta -> {lastModified}
type Server struct {
	store    Store
	logger   demo.Logger
	password string
	router   chi.Router
}

// NewServer creates a server over store. If password is non-empty, every
// route requires HTTP basic auth with that password (any username).
func NewServer(store Store, logger demo.Logger, password string) *Server {
	s := &Server{store: store, logger: logger, password: password}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if password != "" {
		r.Use(s.requirePassword)
	}

	r.Get("/api/config", s.handleConfig)
	r.Route("/api/demos", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Get("/{id}", s.handleGet)
		r.Put("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
		r.Get("/{id}/meta", s.handleMeta)
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

// requirePassword is HTTP basic auth against the configured site password.
// The username is ignored.
func (s *Server) requirePassword(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if after, ok := strings.CutPrefix(auth, "Basic "); ok {
			if decoded, err := base64.StdEncoding.DecodeString(after); err == nil {
				if _, password, ok := strings.Cut(string(decoded), ":"); ok {
					if subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1 {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="Protected"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"storageMode": demo.ServerStorageWireValue})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.List(r.Context())
	if err != nil {
		s.internalError(w, "listing demos", err)
		return
	}

	type row struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		LastModified int64  `json:"lastModified"`
		Storage      string `json:"storage"`
	}
	out := make([]row, 0, len(entries))
	for _, e := range entries {
		out = append(out, row{ID: e.ID, Name: e.Name, LastModified: e.LastModified, Storage: demo.ServerStorageWireValue})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID   string          `json:"id"`
		Name string          `json:"name"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	d, err := s.store.Create(r.Context(), req.ID, req.Name, req.Data)
	if err != nil {
		s.internalError(w, "creating demo", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":           d.ID,
		"name":         d.Name,
		"lastModified": d.LastModified,
		"storage":      demo.ServerStorageWireValue,
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "demo not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, "fetching demo", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":         d.Name,
		"data":         d.Data,
		"lastModified": d.LastModified,
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data json.RawMessage `json:"data"`
		Name *string         `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Partial update: an omitted field decodes to nil and stays untouched.
	lastModified, err := s.store.Update(r.Context(), chi.URLParam(r, "id"), req.Data, req.Name)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "demo not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, "updating demo", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"lastModified": lastModified})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.internalError(w, "deleting demo", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	lastModified, err := s.store.LastModified(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "demo not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, "fetching demo metadata", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"lastModified": lastModified})
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
