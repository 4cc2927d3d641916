package handlers

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/slot-assignment-api/pkg/database"
	"github.com/arnavshah/slot-assignment-api/pkg/models"
	"github.com/arnavshah/slot-assignment-api/pkg/scheduler"
)

// StatusClientClosedRequest is written when the caller went away mid-run.
const StatusClientClosedRequest = 499

// RunAssignment runs the assignment engine for one location and date
func (h *Handler) RunAssignment(c *gin.Context) {
	resp, ok := h.run(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RunAssignmentCSV runs the engine and returns the assignments as CSV
func (h *Handler) RunAssignmentCSV(c *gin.Context) {
	resp, ok := h.run(c)
	if !ok {
		return
	}

	var out strings.Builder
	if err := WriteAssignmentsCSV(&out, resp.Assignments); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not encode CSV"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="assignments.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(out.String()))
}

func (h *Handler) run(c *gin.Context) (models.RunResponse, bool) {
	var req models.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "validation"})
		return models.RunResponse{}, false
	}

	resp, err := h.Engine.RunAssignment(c.Request.Context(), req)
	if err != nil {
		writeEngineError(c, err)
		return models.RunResponse{}, false
	}

	h.recordUsage(c, database.UsageFromResponse(resp))
	return resp, true
}

// DetectConflicts runs conflict detection on caller supplied assignments
// without touching the store.
func (h *Handler) DetectConflicts(c *gin.Context) {
	var input models.ConflictCheckInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "validation"})
		return
	}

	fields := map[string]string{}
	for _, err := range []error{
		scheduler.ValidateAssignments("existing", input.Existing),
		scheduler.ValidateAssignments("proposed", input.Proposed),
	} {
		var vErr *scheduler.ValidationError
		if errors.As(err, &vErr) {
			for k, v := range vErr.FieldErrors {
				fields[k] = v
			}
		}
	}
	if len(fields) > 0 {
		writeEngineError(c, &scheduler.ValidationError{FieldErrors: fields})
		return
	}

	assignments, reports := scheduler.DetectConflicts(input.Existing, input.Proposed)
	if reports == nil {
		reports = []models.ConflictReport{}
	}
	h.recordUsage(c, database.UsageDelta{Assignments: len(input.Proposed)})
	c.JSON(http.StatusOK, models.ConflictCheckResponse{Assignments: assignments, Conflicts: reports})
}

func (h *Handler) recordUsage(c *gin.Context, delta database.UsageDelta) {
	raw, exists := c.Get(ctxAPIKey)
	if !exists {
		return
	}
	apiKey := raw.(*database.APIKey)
	// Counted even when the client has gone away.
	ctx := context.WithoutCancel(c.Request.Context())
	if err := database.RecordUsage(ctx, h.DB, apiKey.ID, delta); err != nil {
		h.logger(c).Warn("recording usage", "key_id", apiKey.ID, "error", err)
	}
}

// writeEngineError maps engine errors to HTTP statuses.
func writeEngineError(c *gin.Context, err error) {
	kind := scheduler.ErrorKind(err)
	body := gin.H{"error": err.Error(), "kind": kind}

	var (
		vErr    *scheduler.ValidationError
		noValid *scheduler.NoValidAssignmentsError
		status  int
	)
	switch {
	case errors.As(err, &vErr):
		status = http.StatusBadRequest
		body["fields"] = vErr.FieldErrors
	case kind == "no_demand":
		status = http.StatusNotFound
	case kind == "no_eligible_actors":
		status = http.StatusUnprocessableEntity
	case errors.As(err, &noValid):
		status = http.StatusConflict
		body["conflicts"] = noValid.Conflicts
	case errors.Is(err, context.Canceled):
		status = StatusClientClosedRequest
	case kind == "repository", kind == "partial_persistence", kind == "cancelled":
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}
	c.JSON(status, body)
}

var csvHeader = []string{
	"id", "actor_id", "slot_id", "location_id", "date", "start", "end",
	"role", "assignment_type", "score", "confidence", "status", "reason",
}

// WriteAssignmentsCSV writes assignments as CSV rows under a header line.
func WriteAssignmentsCSV(w io.Writer, assignments []models.Assignment) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, a := range assignments {
		err := writer.Write([]string{
			a.ID,
			a.ActorID,
			a.SlotID,
			a.LocationID,
			a.Date,
			a.Start.String(),
			a.End.String(),
			a.Role,
			string(a.Type),
			strconv.Itoa(a.Score),
			strconv.Itoa(a.Confidence),
			string(a.Status),
			a.Reason,
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
