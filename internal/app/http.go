package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"coedit/api/internal/collab"
	"coedit/api/internal/export"
	"coedit/api/internal/search"
	"coedit/api/internal/transport"
)

// Identity comes from the edge proxy: X-Coedit-User carries the user id,
// X-Coedit-Name the display name, X-Coedit-Avatar an optional avatar URL.
type HTTPServer struct {
	service    *Service
	hub        *transport.Hub
	corsOrigin string
}

func NewHTTPServer(service *Service, hub *transport.Hub, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, hub: hub, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	if r.URL.Path == "/api/sessions" {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"sessions": s.service.Manager().ListSessions()})
		case http.MethodPost:
			s.handleCreateSession(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "sessions" {
		s.handleSession(w, r, parts[2], parts[3:])
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "transcripts" {
		s.handleTranscripts(w, r, parts[2:])
		return
	}

	if len(parts) == 4 && parts[0] == "api" && parts[1] == "workspaces" && parts[3] == "journal" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		limit := queryInt(r, "limit", 50)
		history, err := s.service.JournalHistory(parts[2], limit)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error(), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"commits": history})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	var spec collab.CreateSessionSpec
	if err := decodeBody(r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	spec.HostUserID = identity.UserID
	session, err := s.service.Manager().CreateSession(spec)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": session})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request, sessionID string, rest []string) {
	m := s.service.Manager()

	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		session, err := m.GetSession(sessionID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": session})
		return
	}

	switch rest[0] {
	case "ws":
		if r.Method != http.MethodGet || s.hub == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		// Browsers cannot set custom headers on websocket dials, so the
		// participant id may also come in as a query parameter.
		userID := strings.TrimSpace(r.Header.Get("X-Coedit-User"))
		if userID == "" {
			userID = strings.TrimSpace(r.URL.Query().Get("participant"))
		}
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		s.hub.ServeSession(w, r, sessionID, userID)
		return

	case "join":
		identity, ok := s.requireIdentity(w, r)
		if !ok {
			return
		}
		var body collab.JoinOptions
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		participant, err := m.JoinSession(sessionID, identity, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"participant": participant})
		return

	case "leave":
		identity, ok := s.requireIdentity(w, r)
		if !ok {
			return
		}
		if err := m.LeaveSession(sessionID, identity.UserID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		if s.hub != nil {
			s.hub.Disconnect(sessionID, identity.UserID)
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return

	case "end", "pause", "resume":
		identity, ok := s.requireIdentity(w, r)
		if !ok {
			return
		}
		var err error
		switch rest[0] {
		case "end":
			err = m.EndSession(sessionID, identity.UserID)
		case "pause":
			err = m.PauseSession(sessionID, identity.UserID)
		case "resume":
			err = m.ResumeSession(sessionID, identity.UserID)
		}
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return

	case "transfer-host":
		identity, ok := s.requireIdentity(w, r)
		if !ok {
			return
		}
		var body struct {
			TargetID string `json:"targetId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := m.TransferHost(sessionID, identity.UserID, body.TargetID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return

	case "roles":
		identity, ok := s.requireIdentity(w, r)
		if !ok {
			return
		}
		var body struct {
			TargetID string `json:"targetId"`
			Role     string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := m.ChangeRole(sessionID, identity.UserID, body.TargetID, body.Role); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return

	case "participants":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		participants, err := m.Participants(sessionID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"participants": participants})
		return

	case "presence":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		entries, err := s.service.PresenceSnapshot(r.Context(), sessionID)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error(), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"presence": entries})
		return

	case "operations":
		s.handleOperations(w, r, sessionID)
		return

	case "cursor", "selection", "heartbeat":
		s.handlePresenceUpdate(w, r, sessionID, rest[0])
		return

	case "comments":
		s.handleComments(w, r, sessionID, rest[1:])
		return

	case "conflicts":
		s.handleConflicts(w, r, sessionID, rest[1:])
		return

	case "export":
		s.handleExport(w, r, sessionID)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleOperations(w http.ResponseWriter, r *http.Request, sessionID string) {
	m := s.service.Manager()

	if r.Method == http.MethodGet {
		fileID := strings.TrimSpace(r.URL.Query().Get("fileId"))
		limit := queryInt(r, "limit", 0)
		ops, err := m.Operations(sessionID, fileID, limit)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"operations": ops})
		return
	}

	if r.Method == http.MethodPost {
		identity, ok := s.requireIdentity(w, r)
		if !ok {
			return
		}
		var in collab.OperationInput
		if err := decodeBody(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		in.AuthorID = identity.UserID
		op, err := m.HandleTextOperation(sessionID, in)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"operation": op})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handlePresenceUpdate(w http.ResponseWriter, r *http.Request, sessionID, kind string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	identity, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	m := s.service.Manager()

	var err error
	switch kind {
	case "cursor":
		var cur collab.CursorPosition
		if decodeErr := decodeBody(r, &cur); decodeErr != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", decodeErr.Error(), nil)
			return
		}
		err = m.UpdateCursorPosition(sessionID, identity.UserID, cur)
	case "selection":
		var sel collab.Selection
		if decodeErr := decodeBody(r, &sel); decodeErr != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", decodeErr.Error(), nil)
			return
		}
		err = m.UpdateSelection(sessionID, identity.UserID, sel)
	case "heartbeat":
		err = m.Heartbeat(sessionID, identity.UserID)
	}
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleComments(w http.ResponseWriter, r *http.Request, sessionID string, rest []string) {
	m := s.service.Manager()

	if len(rest) == 0 {
		if r.Method == http.MethodGet {
			comments, err := m.Comments(sessionID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
			return
		}
		if r.Method == http.MethodPost {
			identity, ok := s.requireIdentity(w, r)
			if !ok {
				return
			}
			var in collab.CommentInput
			if err := decodeBody(r, &in); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			in.AuthorID = identity.UserID
			comment, err := m.AddComment(sessionID, in)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"comment": comment})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	commentID := rest[0]

	if len(rest) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		comment, err := m.GetComment(sessionID, commentID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"comment": comment})
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	identity, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}

	var comment collab.Comment
	var err error
	switch rest[1] {
	case "replies":
		var body struct {
			Body string `json:"body"`
		}
		if decodeErr := decodeBody(r, &body); decodeErr != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", decodeErr.Error(), nil)
			return
		}
		comment, err = m.ReplyToComment(sessionID, commentID, identity.UserID, body.Body)
	case "reactions":
		var body struct {
			Emoji string `json:"emoji"`
		}
		if decodeErr := decodeBody(r, &body); decodeErr != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", decodeErr.Error(), nil)
			return
		}
		comment, err = m.AddReaction(sessionID, commentID, identity.UserID, body.Emoji)
	case "resolve":
		comment, err = m.ResolveComment(sessionID, commentID, identity.UserID)
	case "dismiss":
		comment, err = m.DismissComment(sessionID, commentID, identity.UserID)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comment": comment})
}

func (s *HTTPServer) handleConflicts(w http.ResponseWriter, r *http.Request, sessionID string, rest []string) {
	m := s.service.Manager()

	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		conflicts, err := m.Conflicts(sessionID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
		return
	}

	conflictID := rest[0]

	if len(rest) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		conflict, err := m.GetConflict(sessionID, conflictID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conflict": conflict})
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	identity, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}

	switch rest[1] {
	case "resolve":
		var body struct {
			Resolution    json.RawMessage `json:"resolution"`
			Justification string          `json:"justification"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if len(body.Resolution) == 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "resolution is required", nil)
			return
		}
		resolution, err := collab.ParseResolution(body.Resolution)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		conflict, err := m.ResolveConflict(sessionID, conflictID, identity.UserID, resolution, body.Justification)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conflict": conflict})
		return

	case "escalate":
		var body struct {
			Reason string `json:"reason"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		conflict, err := m.EscalateConflict(sessionID, conflictID, identity.UserID, body.Reason)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conflict": conflict})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	var body struct {
		Format            string `json:"format"`
		IncludeOperations *bool  `json:"includeOperations"`
		IncludeComments   *bool  `json:"includeComments"`
		IncludeConflicts  *bool  `json:"includeConflicts"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	req := export.Request{
		SessionID:         sessionID,
		Format:            export.Format(body.Format),
		IncludeOperations: true,
		IncludeComments:   true,
		IncludeConflicts:  true,
	}
	if body.IncludeOperations != nil {
		req.IncludeOperations = *body.IncludeOperations
	}
	if body.IncludeComments != nil {
		req.IncludeComments = *body.IncludeComments
	}
	if body.IncludeConflicts != nil {
		req.IncludeConflicts = *body.IncludeConflicts
	}

	result, err := s.service.Export(r.Context(), req)
	if err != nil {
		if errors.Is(err, export.ErrTranscriptUnavailable) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Transcript not found", nil)
			return
		}
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
	w.Header().Set("Content-Type", result.MimeType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := search.Query{
		Text:            strings.TrimSpace(r.URL.Query().Get("q")),
		FilterType:      search.ResultType(strings.TrimSpace(r.URL.Query().Get("type"))),
		FilterSessionID: strings.TrimSpace(r.URL.Query().Get("sessionId")),
		Limit:           queryInt(r, "limit", 20),
		Offset:          queryInt(r, "offset", 0),
	}
	writeJSON(w, http.StatusOK, s.service.Search(q))
}

func (s *HTTPServer) handleTranscripts(w http.ResponseWriter, r *http.Request, rest []string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(rest) == 0 {
		workspaceID := strings.TrimSpace(r.URL.Query().Get("workspaceId"))
		limit := queryInt(r, "limit", 50)
		summaries, err := s.service.Transcripts(r.Context(), workspaceID, limit)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error(), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transcripts": summaries})
		return
	}

	if len(rest) == 1 {
		tr, err := s.service.Transcript(r.Context(), rest[0])
		if err != nil {
			if errors.Is(err, export.ErrTranscriptUnavailable) {
				writeError(w, http.StatusNotFound, "NOT_FOUND", "Transcript not found", nil)
				return
			}
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transcript": tr})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) requireIdentity(w http.ResponseWriter, r *http.Request) (collab.Identity, bool) {
	userID := strings.TrimSpace(r.Header.Get("X-Coedit-User"))
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return collab.Identity{}, false
	}
	return collab.Identity{
		UserID:      userID,
		DisplayName: strings.TrimSpace(r.Header.Get("X-Coedit-Name")),
		AvatarURL:   strings.TrimSpace(r.Header.Get("X-Coedit-Avatar")),
	}, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets websocket upgrades pass through the logging middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Coedit-User, X-Coedit-Name, X-Coedit-Avatar")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *collab.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
