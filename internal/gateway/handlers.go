package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"

	"warelay/internal/domain"
	"warelay/internal/metrics"
)

const (
	statusSuccess  = "success"
	statusError    = "error"
	statusReady    = "ready"
	statusNotReady = "not_ready"
)

// response is the JSON body of every gateway reply.
type response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SendMessageRequest is the body of POST /send-message.
type SendMessageRequest struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

// SendFileRequest is the body of POST /send-file.
type SendFileRequest struct {
	Number   string `json:"number"`
	FilePath string `json:"filePath"`
	Caption  string `json:"caption,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, response{Status: statusError, Message: msg})
}

// requireReady answers 503 without calling next while the session cannot send.
func (s *Server) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.readiness == nil || !s.readiness.Ready() {
			writeError(w, http.StatusServiceUnavailable, "WhatsApp client is not ready. Please scan the QR code.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Number == "" {
		writeError(w, http.StatusBadRequest, "number is required")
		return
	}

	to := domain.NormalizeAddress(req.Number)
	if err := s.session.SendText(r.Context(), to, req.Message); err != nil {
		metrics.SendsTotal.WithLabelValues("text", "error").Inc()
		s.logger.Error("send message failed", "to", to, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	metrics.SendsTotal.WithLabelValues("text", "ok").Inc()
	s.logger.Info("message sent", "to", to, "text_len", len(req.Message))
	writeJSON(w, http.StatusOK, response{Status: statusSuccess, Message: "Message sent successfully"})
}

func (s *Server) handleSendFile(w http.ResponseWriter, r *http.Request) {
	var req SendFileRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Number == "" || req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "number and filePath are required")
		return
	}

	if _, err := os.Stat(req.FilePath); errors.Is(err, fs.ErrNotExist) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("file not found: %s", req.FilePath))
		return
	}

	to := domain.NormalizeAddress(req.Number)
	media, err := loadMedia(req.FilePath)
	if err != nil {
		metrics.SendsTotal.WithLabelValues("media", "error").Inc()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.session.SendMedia(r.Context(), to, *media, req.Caption); err != nil {
		metrics.SendsTotal.WithLabelValues("media", "error").Inc()
		s.logger.Error("send file failed", "to", to, "file", req.FilePath, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	metrics.SendsTotal.WithLabelValues("media", "ok").Inc()
	s.logger.Info("file sent", "to", to, "file", req.FilePath, "mime", media.MimeType)
	writeJSON(w, http.StatusOK, response{Status: statusSuccess, Message: "File sent successfully"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.readiness != nil && s.readiness.Ready() {
		writeJSON(w, http.StatusOK, response{Status: statusReady, Message: "WhatsApp client connected"})
		return
	}
	writeJSON(w, http.StatusOK, response{Status: statusNotReady, Message: "WhatsApp client not connected"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
