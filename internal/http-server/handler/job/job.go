package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"thumbnail-service/internal/config"
	"thumbnail-service/internal/http-server/handler/job/dto"
	job_uc "thumbnail-service/internal/usecase/job"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"github.com/wb-go/wbf/zlog"
)

const (
	maxMemory = 32 << 20
	fileField = "image"
)

// flat option fields accepted next to (and overriding) the options JSON.
var optionFields = []string{"width", "height", "quality", "format"}

type JobHandler struct {
	usecase  jobUsecase
	uploads  uploadStorage
	limits   config.UploadConfig
	allowed  map[string]bool
	validate *validator.Validate
	logger   *zlog.Zerolog
}

func NewJobHandler(usecase jobUsecase, uploads uploadStorage, limits config.UploadConfig, logger *zlog.Zerolog) *JobHandler {
	allowed := make(map[string]bool, len(limits.AllowedFormats))
	for _, f := range limits.AllowedFormats {
		allowed[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))] = true
	}

	return &JobHandler{
		usecase:  usecase,
		uploads:  uploads,
		limits:   limits,
		allowed:  allowed,
		validate: validator.New(),
		logger:   logger,
	}
}

func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxSize+maxMemory)

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to parse multipart form")
		h.respondError(w, http.StatusBadRequest, "Invalid request format", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(fileField)
	if err != nil {
		h.logger.Warn().Err(err).Msg("File not found in request")
		h.respondError(w, http.StatusBadRequest, ErrFileRequired.Error(), nil)
		return
	}
	defer file.Close()

	userID := r.FormValue("userId")
	if err := h.usecase.ValidateUserID(userID); err != nil {
		h.respondError(w, http.StatusBadRequest, "Missing required fields", err)
		return
	}

	if err := h.validateFile(file, header); err != nil {
		h.logger.Warn().Err(err).Str("filename", header.Filename).Msg("Upload rejected")
		h.respondError(w, http.StatusBadRequest, "Upload failed", err)
		return
	}

	options, err := parseOptions(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid options", err)
		return
	}

	path, err := h.uploads.SaveOriginal(ctx, header.Filename, file)
	if err != nil {
		h.logger.Error().Err(err).Str("filename", header.Filename).Msg("Failed to store upload")
		h.respondError(w, http.StatusInternalServerError, "Failed to store upload", err)
		return
	}

	res, err := h.usecase.Submit(ctx, job_uc.SubmitRequest{
		UserID:           userID,
		FilePath:         path,
		OriginalFilename: header.Filename,
		Options:          options,
	})
	if err != nil {
		if errors.Is(err, job_uc.ErrValidation) {
			h.removeUpload(r, path)
			h.respondError(w, http.StatusBadRequest, "Validation failed", err)
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create job")
		h.respondError(w, http.StatusInternalServerError, "Failed to create job", err)
		return
	}

	h.respondJSON(w, http.StatusCreated, dto.CreateJobResponse{
		JobID:            res.JobID,
		Status:           string(res.Status),
		OriginalFilename: res.OriginalFilename,
	})
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	view, err := h.usecase.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job_uc.ErrJobNotFound) {
			h.logger.Info().Str("job_id", jobID).Msg("Job not found")
			h.respondError(w, http.StatusNotFound, "Job not found", nil)
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job status")
		h.respondError(w, http.StatusInternalServerError, "Failed to get job status", err)
		return
	}

	response := dto.NewJobResponse(view.Job)
	response.QueueInfo = view.QueueInfo

	h.respondJSON(w, http.StatusOK, response)
}

func (h *JobHandler) ListUserJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := dto.ListJobsRequest{
		UserID: chi.URLParam(r, "userId"),
		Status: query.Get("status"),
		Page:   cast.ToInt(query.Get("page")),
		Limit:  cast.ToInt(query.Get("limit")),
	}

	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "User ID is required", nil)
		return
	}

	res, err := h.usecase.ListJobs(r.Context(), job_uc.ListRequest{
		UserID: req.UserID,
		Status: req.Status,
		Page:   req.Page,
		Limit:  req.Limit,
	})
	if err != nil {
		if errors.Is(err, job_uc.ErrValidation) {
			h.respondError(w, http.StatusBadRequest, "Validation failed", err)
			return
		}
		h.logger.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to get user jobs")
		h.respondError(w, http.StatusInternalServerError, "Failed to get user jobs", err)
		return
	}

	jobs := make([]dto.JobResponse, 0, len(res.Jobs))
	for i := range res.Jobs {
		jobs = append(jobs, dto.NewJobResponse(&res.Jobs[i]))
	}

	h.respondJSON(w, http.StatusOK, dto.ListJobsResponse{
		Jobs: jobs,
		Pagination: dto.Pagination{
			Page:  res.Pagination.Page,
			Limit: res.Pagination.Limit,
			Total: res.Pagination.Total,
			Pages: res.Pagination.Pages,
		},
	})
}

// validateFile checks size, extension and the sniffed content type. The file
// is rewound afterwards.
func (h *JobHandler) validateFile(file multipart.File, header *multipart.FileHeader) error {
	if header.Size > h.limits.MaxSize {
		return fmt.Errorf("%w (max %d MB)", ErrFileTooLarge, h.limits.MaxSize/(1024*1024))
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	if !h.allowed[ext] {
		return fmt.Errorf("%w: .%s", ErrInvalidFileFormat, ext)
	}

	mt, err := mimetype.DetectReader(file)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind file: %w", err)
	}

	if !strings.HasPrefix(mt.String(), "image/") || !h.allowed[strings.TrimPrefix(mt.Extension(), ".")] {
		return fmt.Errorf("%w: %s", ErrInvalidFileFormat, mt.String())
	}

	return nil
}

func parseOptions(r *http.Request) (map[string]any, error) {
	options := make(map[string]any)

	if raw := strings.TrimSpace(r.FormValue("options")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &options); err != nil {
			return nil, ErrInvalidOptions
		}
		if options == nil {
			options = make(map[string]any)
		}
	}

	for _, field := range optionFields {
		if v := strings.TrimSpace(r.FormValue(field)); v != "" {
			options[field] = v
		}
	}

	return options, nil
}

func (h *JobHandler) removeUpload(r *http.Request, path string) {
	if err := h.uploads.Remove(r.Context(), path); err != nil {
		h.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove rejected upload")
	}
}

func (h *JobHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *JobHandler) respondError(w http.ResponseWriter, status int, message string, err error) {
	response := dto.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	}

	if err != nil {
		response.Details = err.Error()
	}

	h.respondJSON(w, status, response)
}
