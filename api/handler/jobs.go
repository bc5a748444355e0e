package handler

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/topdf/jobs"
	"github.com/use-agent/topdf/models"
	"github.com/use-agent/topdf/target"
)

// PostConvert returns a handler for POST /api/v1/convert.
//
// The link is validated synchronously so a malformed URL never becomes a
// job; everything else happens in the background.
func PostConvert(r *Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ConvertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, models.ErrCodeInvalidInput, err.Error())
			return
		}

		t, err := target.Parse(req.URL)
		if err != nil {
			respondError(c, err)
			return
		}
		req.URL = t.String()

		job := r.Submit(req)
		c.JSON(http.StatusAccepted, models.ConvertResponse{
			ID:     job.ID(),
			Status: job.Status(),
		})
	}
}

// GetJob returns a handler for GET /api/v1/jobs/:id.
func GetJob(store *jobs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := lookup(c, store)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, job.Snapshot())
	}
}

// PostCredentials returns a handler for POST /api/v1/jobs/:id/credentials.
func PostCredentials(store *jobs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := lookup(c, store)
		if !ok {
			return
		}

		var req models.CredentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, models.ErrCodeInvalidInput, err.Error())
			return
		}
		if !req.Cancel && req.Email == "" && strings.TrimSpace(req.Passcode) == "" {
			abort(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "provide email, passcode, or cancel")
			return
		}

		if err := job.Provide(req); err != nil {
			abort(c, http.StatusConflict, models.ErrCodeConflict,
				"job is "+job.Status()+", not awaiting credentials")
			return
		}
		c.JSON(http.StatusAccepted, job.Snapshot())
	}
}

// DeleteJob returns a handler for DELETE /api/v1/jobs/:id.
func DeleteJob(store *jobs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := lookup(c, store)
		if !ok {
			return
		}
		if err := job.Cancel(); errors.Is(err, jobs.ErrFinished) {
			abort(c, http.StatusConflict, models.ErrCodeConflict, "job already "+job.Status())
			return
		}
		c.JSON(http.StatusAccepted, job.Snapshot())
	}
}

// GetJobPDF returns a handler for GET /api/v1/jobs/:id/pdf.
//
// A failed job answers with the status its error kind maps to; an
// unfinished one with 409.
func GetJobPDF(store *jobs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := lookup(c, store)
		if !ok {
			return
		}

		snap := job.Snapshot()
		switch snap.Status {
		case models.JobCompleted:
		case models.JobFailed, models.JobCanceled:
			status := http.StatusInternalServerError
			if snap.Error != nil {
				status = mapKindToStatus(models.Kind(snap.Error.Code))
			}
			c.AbortWithStatusJSON(status, models.ErrorResponse{Error: snap.Error})
			return
		default:
			abort(c, http.StatusConflict, models.ErrCodeConflict, "job is "+snap.Status)
			return
		}

		if _, err := os.Stat(snap.Result.Path); err != nil {
			abort(c, http.StatusNotFound, models.ErrCodeNotFound, "pdf is no longer on disk")
			return
		}
		c.FileAttachment(snap.Result.Path, snap.Result.Name+".pdf")
	}
}

func lookup(c *gin.Context, store *jobs.Store) (*jobs.Job, bool) {
	job, ok := store.Get(c.Param("id"))
	if !ok {
		abort(c, http.StatusNotFound, models.ErrCodeNotFound, "no job with id "+c.Param("id"))
		return nil, false
	}
	return job, true
}
