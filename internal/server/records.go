package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/billbox/internal/export"
	"github.com/zombor/billbox/internal/receipt"
)

func collection(kind receipt.Kind) string {
	return strings.ToLower(string(kind)) + "s"
}

func (s *Server) handleListRecords(kind receipt.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		includeRemoved, _ := strconv.ParseBool(q.Get("include_removed"))
		records, err := s.deps.Records.List(kind, receipt.ListOptions{
			UserID:         q.Get("user_id"),
			IncludeRemoved: includeRemoved,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func (s *Server) handleGetRecord(kind receipt.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := s.deps.Records.Get(kind, r.PathValue("id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

type createRecordRequest struct {
	UserID      string  `json:"user_id"`
	Provider    string  `json:"provider"`
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
}

func (s *Server) handleCreateRecord(kind receipt.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRecordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		date, err := parseDay(req.Date)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		rec, err := s.deps.Records.Create(receipt.NewRecord{
			Kind:        kind,
			UserID:      req.UserID,
			Provider:    req.Provider,
			Date:        date,
			Amount:      req.Amount,
			Currency:    req.Currency,
			Description: req.Description,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

type updateRecordRequest struct {
	Amount      *float64 `json:"amount"`
	Provider    *string  `json:"provider"`
	Description *string  `json:"description"`
}

func (s *Server) handleUpdateRecord(kind receipt.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateRecordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		id := r.PathValue("id")
		rec, err := s.deps.Records.Get(kind, id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if req.Amount != nil {
			if rec, err = s.deps.Records.UpdateAmount(kind, id, *req.Amount); err != nil {
				writeServiceError(w, r, err)
				return
			}
		}
		if req.Provider != nil {
			if rec, err = s.deps.Records.UpdateProvider(kind, id, *req.Provider); err != nil {
				writeServiceError(w, r, err)
				return
			}
		}
		if req.Description != nil {
			if rec, err = s.deps.Records.UpdateDescription(kind, id, *req.Description); err != nil {
				writeServiceError(w, r, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleRemoveRecord(kind receipt.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.deps.Records.Remove(kind, r.PathValue("id")); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := export.Options{UserID: q.Get("user_id")}
	opts.IncludeRemoved, _ = strconv.ParseBool(q.Get("include_removed"))
	for param, dst := range map[string]*time.Time{"from": &opts.From, "to": &opts.To} {
		if raw := q.Get(param); raw != "" {
			d, err := parseDay(raw)
			if err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			*dst = d
		}
	}

	data, err := export.Workbook(s.deps.Records, opts)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="billbox.xlsx"`)
	w.Write(data)
}
