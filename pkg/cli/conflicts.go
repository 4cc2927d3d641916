package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
	"github.com/arnavshah/slot-assignment-api/pkg/scheduler"
)

// NewConflictsCommand creates the conflicts command.
func NewConflictsCommand(rootOpts *RootOptions) *cobra.Command {
	var existingPath, proposedPath string

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Check proposed assignments for conflicts offline",
		Long: `Check proposed assignments against existing ones and against each other.

Both files hold a JSON array of assignments. Nothing is read from or
written to the database. Exits 1 when any proposal was rejected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var existing []models.Assignment
			if existingPath != "" {
				if err := readJSONFile(existingPath, &existing); err != nil {
					return err
				}
			}
			var proposed []models.Assignment
			if err := readJSONFile(proposedPath, &proposed); err != nil {
				return err
			}
			if err := scheduler.ValidateAssignments("existing", existing); err != nil {
				return WrapExitError(ExitCommandError, "invalid input", err)
			}
			if err := scheduler.ValidateAssignments("proposed", proposed); err != nil {
				return WrapExitError(ExitCommandError, "invalid input", err)
			}

			assignments, reports := scheduler.DetectConflicts(existing, proposed)
			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				if reports == nil {
					reports = []models.ConflictReport{}
				}
				if err := writeJSON(out, models.ConflictCheckResponse{Assignments: assignments, Conflicts: reports}); err != nil {
					return err
				}
			} else {
				if err := writeAssignments(out, assignments); err != nil {
					return err
				}
				writeConflicts(out, reports)
			}
			if len(reports) > 0 {
				return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d conflicting assignments", len(reports))}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&existingPath, "existing", "", "JSON file of existing assignments")
	cmd.Flags().StringVar(&proposedPath, "proposed", "", "JSON file of proposed assignments")
	_ = cmd.MarkFlagRequired("proposed")

	return cmd
}

func readJSONFile(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "reading "+path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return WrapExitError(ExitCommandError, "parsing "+path, err)
	}
	return nil
}
