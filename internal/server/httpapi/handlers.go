package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const maxBodyBytes = 64 << 10

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready.PingContext(r.Context()); err != nil {
			h.log.Warn(r.Context(), "readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "not ready")
			return
		}
	}
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	session, err := h.auth.Login(r.Context(), req.Username, req.Password, req.Remember)
	if err != nil {
		h.writeServiceError(r.Context(), w, "login", err)
		return
	}
	if session == nil {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFromContext(r.Context())
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFromContext(r.Context())
	token, _ := tokenFromContext(r.Context())

	if err := h.auth.RevokeToken(r.Context(), s.UserID, token); err != nil {
		h.writeServiceError(r.Context(), w, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
