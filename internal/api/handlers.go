package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"arborescence/internal/model"
	"arborescence/internal/remote"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleListTree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fill := false
	var gen int64
	if s.cache != nil {
		nodes, ok, err := s.cache.Get(ctx)
		if err != nil {
			s.log.Warn("tree cache read failed", "err", err)
		} else if ok {
			w.Header().Set("X-Cache", "hit")
			writeData(w, http.StatusOK, nodes)
			return
		}
		// The generation must be read before the database.
		if gen, err = s.cache.Generation(ctx); err != nil {
			s.log.Warn("tree cache generation read failed", "err", err)
		} else {
			fill = true
		}
	}
	nodes, err := s.backend.ListTree(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.cache != nil {
		if fill {
			stored, err := s.cache.Set(ctx, gen, nodes)
			if err != nil {
				s.log.Warn("tree cache write failed", "err", err)
			} else if !stored {
				s.log.Debug("tree changed during read; snapshot not cached")
			}
		}
		w.Header().Set("X-Cache", "miss")
	}
	writeData(w, http.StatusOK, nodes)
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRequest
	if !s.decode(w, r, &req) {
		return
	}
	n, err := s.backend.CreateNode(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidate(r)
	writeData(w, http.StatusCreated, n)
}

func (s *Server) handleRenameNode(w http.ResponseWriter, r *http.Request) {
	var req model.RenameRequest
	if !s.decode(w, r, &req) {
		return
	}
	n, err := s.backend.RenameNode(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidate(r)
	writeData(w, http.StatusOK, n)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteNode(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidate(r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req model.ReorderRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.backend.ReorderSiblings(r.Context(), req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidate(r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMoveNode(w http.ResponseWriter, r *http.Request) {
	var req model.MoveRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if req.NodeID != "" && req.NodeID != id {
		jsonError(w, remote.CodeInvalid, "nodeId does not match the path", http.StatusBadRequest)
		return
	}
	req.NodeID = id
	if err := s.backend.MoveNode(r.Context(), req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidate(r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRefs(w http.ResponseWriter, r *http.Request) {
	refs, err := s.backend.ListRefs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, refs)
}

func (s *Server) handleAttachRef(w http.ResponseWriter, r *http.Request) {
	var ref model.Ref
	if !s.decode(w, r, &ref) {
		return
	}
	ref.NodeID = chi.URLParam(r, "id")
	if err := s.backend.AttachRef(r.Context(), ref); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDetachRef(w http.ResponseWriter, r *http.Request) {
	ref := model.Ref{
		NodeID: chi.URLParam(r, "id"),
		Kind:   model.RefKind(chi.URLParam(r, "kind")),
		RefID:  chi.URLParam(r, "refID"),
	}
	if err := s.backend.DetachRef(r.Context(), ref); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		jsonError(w, remote.CodeInvalid, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) invalidate(r *http.Request) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(r.Context()); err != nil {
		s.log.Warn("tree cache invalidate failed", "err", err)
	}
}

// fail maps store errors onto statuses: domain refusals are 4xx, everything else 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var de *remote.DomainError
	if errors.As(err, &de) {
		jsonError(w, de.Code, de.Message, statusFor(de.Code))
		return
	}
	s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	jsonError(w, "internal", "internal error", http.StatusInternalServerError)
}

func statusFor(code string) int {
	switch code {
	case remote.CodeNotFound:
		return http.StatusNotFound
	case remote.CodeReferenced, remote.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func writeData(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"data": v})
}

func jsonError(w http.ResponseWriter, code, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": strings.TrimSpace(code), "message": msg},
	})
}
