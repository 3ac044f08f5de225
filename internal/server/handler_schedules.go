package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/me/goshift/pkg/model"
)

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	start, constraints, fieldErrs := req.Validate(time.Now())
	if len(fieldErrs) > 0 {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid schedule request", fieldErrs...))
		return
	}

	now := time.Now().UTC()
	job := &model.ScheduleJob{
		ID:          "job_" + uuid.New().String(),
		GroupID:     req.GroupID,
		PeriodStart: start,
		Constraints: constraints,
		State:       model.JobStatePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateJob(r.Context(), job); err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}

	s.logger.Info("schedule job created",
		"id", job.ID,
		"group_id", job.GroupID,
		"period_start", job.PeriodStart.Format(model.DateOnly))

	respondCreated(w, reqID, job)
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "scheduleID")

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if job == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("schedule", id))
		return
	}
	respondOK(w, reqID, job)
}

// handleGetAssignments serves the generated schedule for a completed job.
// While the job is still queued or running it answers 409 NOT_READY; a
// failed job answers 409 JOB_FAILED carrying the recorded reason.
func (s *Server) handleGetAssignments(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "scheduleID")

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if job == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("schedule", id))
		return
	}

	switch job.State {
	case model.JobStateCompleted:
		assignments, err := s.store.GetAssignments(r.Context(), job.ID)
		if err != nil {
			respondError(w, reqID, http.StatusInternalServerError,
				&model.APIError{Code: model.ErrInternal, Message: err.Error()})
			return
		}
		respondOK(w, reqID, assignments)
	case model.JobStateFailed:
		respondError(w, reqID, http.StatusConflict, &model.APIError{
			Code:    model.ErrJobFailed,
			Message: job.Reason,
		})
	default:
		respondError(w, reqID, http.StatusConflict, &model.APIError{
			Code:    model.ErrNotReady,
			Message: "schedule not ready: job is " + string(job.State),
		})
	}
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts := model.DefaultListOptions()
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}
	if state := r.URL.Query().Get("state"); state != "" {
		if !model.JobState(state).Valid() {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("invalid state filter",
					model.FieldError{Field: "state", Message: "must be one of PENDING, PROCESSING, COMPLETED, FAILED"}))
			return
		}
		opts.State = state
	}
	opts.Clamp()

	jobs, total, err := s.store.ListJobs(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}

	respondList(w, reqID, jobs, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+opts.Limit < total,
	})
}
