package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/arnavshah/slot-assignment-api/pkg/logging"
	"github.com/arnavshah/slot-assignment-api/pkg/models"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The engine refused the run
	ExitCommandError = 2 // Bad flags, unreadable files, unreachable database
)

// ExitError carries the exit code a command failure should produce.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeAssignments(w io.Writer, assignments []models.Assignment) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tACTOR\tSLOT\tTIME\tCONF\tSTATUS\tREASON")
	for _, a := range assignments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s-%s\t%d\t%s\t%s\n",
			a.ID, a.ActorID, a.SlotID, a.Start, a.End, a.Confidence, a.Status, a.Reason)
	}
	return tw.Flush()
}

func writeConflicts(w io.Writer, reports []models.ConflictReport) {
	for _, r := range reports {
		for _, reason := range r.Reasons {
			fmt.Fprintf(w, "conflict %s (%s): %s\n", r.AssignmentID, r.ActorID, reason)
		}
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return logging.New(w, level)
}
