package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/zombor/billbox/internal/inbox"
	"github.com/zombor/billbox/internal/intake"
	"github.com/zombor/billbox/internal/receipt"
	"github.com/zombor/billbox/internal/scanning"
)

const maxUploadSize = int64(50 << 20)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, inbox.ErrNotFound), errors.Is(err, receipt.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, inbox.ErrIllegalTransition), errors.Is(err, receipt.ErrRemoved):
		return http.StatusConflict
	case errors.Is(err, scanning.ErrInvalidRequest),
		errors.Is(err, inbox.ErrIncomplete),
		errors.Is(err, inbox.ErrUnknownEngine),
		errors.Is(err, receipt.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, inbox.ErrNoEngines):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, "Internal server error", code)
		return
	}
	writeError(w, err.Error(), code)
}

func (s *Server) handleEngines(w http.ResponseWriter, r *http.Request) {
	names := []string{}
	if s.deps.Engines != nil {
		names = append(names, s.deps.Engines.Names()...)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"engines": names})
}

func (s *Server) handleListInbox(w http.ResponseWriter, r *http.Request) {
	var status inbox.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := inbox.ParseStatus(raw)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		status = st
	}

	items, err := s.deps.Inbox.List(status, r.URL.Query().Get("user_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []inbox.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetInboxItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.deps.Inbox.Get(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleGetInboxFile(w http.ResponseWriter, r *http.Request) {
	item, err := s.deps.Inbox.Get(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	f, err := os.Open(item.StoragePath)
	if err != nil {
		slog.Error("Error opening stored file", "id", item.ID, "path", item.StoragePath, "error", err)
		writeError(w, "File not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", scanning.ContentTypeFor(item.StoragePath, nil))
	http.ServeContent(w, r, filepath.Base(item.StoragePath), info.ModTime(), f)
}

// handleUpload writes the upload under its original name to a hidden staging
// directory inside the inbox root, then hands it to intake
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		msg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "File is too large. Maximum size is 50MB."
		}
		writeError(w, msg, http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	staging, err := os.MkdirTemp(s.deps.UploadDir, ".upload-")
	if err != nil {
		writeServiceError(w, r, errors.Wrap(err, "creating staging directory"))
		return
	}
	defer os.RemoveAll(staging)

	path := filepath.Join(staging, intake.SanitizeFilename(header.Filename))
	if err := writeUpload(path, file); err != nil {
		writeServiceError(w, r, err)
		return
	}

	outcome, err := s.deps.Intake.Process(path, r.FormValue("user_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	switch outcome.Status {
	case intake.StatusCreated:
		writeJSON(w, http.StatusCreated, outcome)
	case intake.StatusDuplicate:
		writeJSON(w, http.StatusOK, outcome)
	default:
		writeJSON(w, http.StatusUnprocessableEntity, outcome)
	}
}

func writeUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating upload file")
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return errors.Wrap(err, "writing upload file")
	}
	return dst.Close()
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	item, err := s.deps.Inbox.Submit(r.Context(), r.PathValue("id"), r.URL.Query().Get("engine"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	item, err := s.deps.Inbox.Retry(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	item, err := s.deps.Inbox.Reject(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type approveRequest struct {
	Type        string   `json:"type"`
	Provider    *string  `json:"provider"`
	Amount      *float64 `json:"amount"`
	Date        *string  `json:"date"`
	Currency    *string  `json:"currency"`
	Description string   `json:"description"`
}

func (req approveRequest) input() (inbox.ApproveInput, error) {
	in := inbox.ApproveInput{
		Type:        inbox.LinkType(strings.ToUpper(strings.TrimSpace(req.Type))),
		Provider:    req.Provider,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
	}
	if req.Date != nil && *req.Date != "" {
		d, err := parseDay(*req.Date)
		if err != nil {
			return in, err
		}
		in.Date = &d
	}
	return in, nil
}

// parseDay accepts YYYY-MM-DD or RFC 3339
func parseDay(s string) (time.Time, error) {
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		return d, nil
	}
	d, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Newf("invalid date %q", s)
	}
	return d, nil
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	item, err := s.deps.Inbox.Approve(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
