package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	apiContext "tradeflow/internal/api/context"
	"tradeflow/internal/api/middleware"
	"tradeflow/internal/engine/jobs"
	"tradeflow/internal/pkg/errors"
	"tradeflow/internal/platform/auth"
)

type JobHandler struct {
	service   *jobs.Service
	appDomain string
}

func NewJobHandler(service *jobs.Service, appDomain string) *JobHandler {
	return &JobHandler{
		service:   service,
		appDomain: appDomain,
	}
}

func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	var req jobs.Job
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	req.CreatedBy = claims.UserID

	repo := jobs.NewRepository(tenant.DB)
	job, err := h.service.CreateJob(repo, tenant.OrgID, &req)
	if err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(job)
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	jobID := paramsFromContext(r).ByName("job_id")

	repo := jobs.NewRepository(tenant.DB)
	job, err := h.service.GetJob(repo, jobID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if job == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Job not found", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	repo := jobs.NewRepository(tenant.DB)

	var list []*jobs.Job
	var err error
	if assignee := r.URL.Query().Get("assigned_to"); assignee != "" {
		list, err = repo.ListByAssignee(assignee, limit, offset)
	} else {
		list, err = h.service.ListJobs(repo, limit, offset)
	}
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (h *JobHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	jobID := paramsFromContext(r).ByName("job_id")

	var req jobs.Job
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	repo := jobs.NewRepository(tenant.DB)
	job, err := h.service.UpdateJob(repo, jobID, &req)
	if err != nil {
		if err.Error() == "job not found" {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Job not found", nil)
			return
		}
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	jobID := paramsFromContext(r).ByName("job_id")

	repo := jobs.NewRepository(tenant.DB)
	if err := h.service.CancelJob(repo, jobID); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to cancel job", nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetQRCode renders a printable QR code linking to the job card.
func (h *JobHandler) GetQRCode(w http.ResponseWriter, r *http.Request) {
	tenant := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	jobID := paramsFromContext(r).ByName("job_id")

	repo := jobs.NewRepository(tenant.DB)
	job, err := h.service.GetJob(repo, jobID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if job == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Job not found", nil)
		return
	}

	size := 0
	if v := r.URL.Query().Get("size"); v != "" {
		size, _ = strconv.Atoi(v)
	}

	jobURL := "https://" + h.appDomain + "/jobs/" + job.ID
	png, err := jobs.GenerateQRCode(jobURL, size)
	if err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}
