package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/pkg"
)

type indexPage struct {
	Title string
	Cells []int
}

func (that *Server) pingHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		that.logger.Error("failed to write pong", "error", err)
	}
}

func (that *Server) indexHandler(w http.ResponseWriter, _ *http.Request) {
	page := indexPage{
		Title: "Tic-Tac-Toe",
		Cells: make([]int, entity.BoardSize),
	}
	for i := range page.Cells {
		page.Cells[i] = i
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := that.templates.ExecuteTemplate(w, "index.tmpl", page); err != nil {
		that.logger.Error("failed to render index", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (that *Server) getGameHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := that.session(w, r)
	if !ok {
		return
	}

	snapshot, err := that.manager.State(r.Context(), sessionID)
	if err != nil {
		that.writeError(w, "State", err)
		return
	}

	that.writeJSON(w, http.StatusOK, snapshot)
}

func (that *Server) placeMarkHandler(w http.ResponseWriter, r *http.Request) {
	cell, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		that.writeJSON(w, http.StatusBadRequest, errorResponse{Error: apperror.ErrInvalidCell.Error()})
		return
	}

	sessionID, ok := that.session(w, r)
	if !ok {
		return
	}

	snapshot, err := that.manager.PlaceMark(r.Context(), sessionID, cell)
	if err != nil {
		that.writeError(w, "PlaceMark", err)
		return
	}

	that.writeJSON(w, http.StatusOK, snapshot)
}

func (that *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := that.session(w, r)
	if !ok {
		return
	}

	snapshot, err := that.manager.Reset(r.Context(), sessionID)
	if err != nil {
		that.writeError(w, "Reset", err)
		return
	}

	that.writeJSON(w, http.StatusOK, snapshot)
}

func (that *Server) endSessionHandler(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(pkg.SessionCookieName)
	if err != nil || cookie.Value == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err = that.manager.EndSession(r.Context(), cookie.Value); err != nil {
		that.writeError(w, "EndSession", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (that *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	var limit int

	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil {
			that.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
	}

	sessionID, ok := that.session(w, r)
	if !ok {
		return
	}

	records, err := that.manager.History(r.Context(), sessionID, limit)
	if err != nil {
		that.writeError(w, "History", err)
		return
	}

	that.writeJSON(w, http.StatusOK, records)
}

// session resolves the caller's session, issuing the cookie on first contact.
func (that *Server) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID, cookie, err := pkg.SessionFromRequest(r)
	if err != nil {
		that.logger.Error("failed to create session", "error", err)
		that.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
		return "", false
	}

	if cookie != nil {
		http.SetCookie(w, cookie)
		that.logger.Info("session cookie not found, new one created", "sessionID", sessionID)
	}

	return sessionID, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func (that *Server) writeError(w http.ResponseWriter, method string, err error) {
	if errors.Is(err, apperror.ErrInvalidCell) {
		that.writeJSON(w, http.StatusBadRequest, errorResponse{Error: apperror.ErrInvalidCell.Error()})
		return
	}

	that.logger.Error("request failed", "method", method, "error", err)
	that.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
}

func (that *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		that.logger.Error("failed to write response", "error", err)
	}
}
