package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/arnavshah/slot-assignment-api/pkg/config"
	"github.com/arnavshah/slot-assignment-api/pkg/database"
	"github.com/arnavshah/slot-assignment-api/pkg/models"
	"github.com/arnavshah/slot-assignment-api/pkg/scheduler"
)

type runOptions struct {
	date      string
	location  string
	threshold int
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the assignment engine for one location and date",
		Long: `Run the assignment engine against the configured database.

Proposed assignments are scored, checked for conflicts, persisted and
approved exactly as the HTTP API does.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssignment(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.date, "date", "", "date to staff (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.location, "location", "", "location id")
	cmd.Flags().IntVar(&opts.threshold, "threshold", -1, "auto-approval threshold override (0-100)")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("location")

	return cmd
}

func runAssignment(cmd *cobra.Command, rootOpts *RootOptions, opts *runOptions) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return WrapExitError(ExitCommandError, "loading configuration", err)
	}
	db, err := database.InitDB(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening database", err)
	}
	defer closeDB(db)

	engine, err := scheduler.NewEngine(database.NewRepository(db), cfg.Engine,
		scheduler.WithLogger(newLogger(cmd.ErrOrStderr(), rootOpts.Verbose)))
	if err != nil {
		return WrapExitError(ExitCommandError, "building engine", err)
	}

	req := models.RunRequest{Date: opts.date, LocationID: opts.location}
	if opts.threshold >= 0 {
		threshold := opts.threshold
		req.Preferences = &models.Preferences{AutoApprovalThreshold: &threshold}
	}

	out := cmd.OutOrStdout()
	resp, err := engine.RunAssignment(cmd.Context(), req)
	if err != nil {
		var noValid *scheduler.NoValidAssignmentsError
		if errors.As(err, &noValid) {
			if rootOpts.Format == "json" {
				_ = writeJSON(out, noValid.Conflicts)
			} else {
				writeConflicts(out, noValid.Conflicts)
			}
		}
		return WrapExitError(ExitFailure, "run failed ("+scheduler.ErrorKind(err)+")", err)
	}

	if rootOpts.Format == "json" {
		return writeJSON(out, resp)
	}
	if err := writeAssignments(out, resp.Assignments); err != nil {
		return err
	}
	writeConflicts(out, resp.Conflicts)
	s := resp.Summary
	fmt.Fprintf(out, "\n%d assignments, %d auto-approved, %d for review, %d conflicts resolved\n",
		s.TotalAssignments, s.AutoApproved, s.RequiresReview, s.ConflictsResolved)
	fmt.Fprintf(out, "coverage %d%%, average confidence %d, fairness %.1f\n",
		s.CoveragePercentage, s.AverageConfidence, s.FairnessScore)
	if len(s.UnfilledSlots) > 0 {
		fmt.Fprintf(out, "unfilled: %v\n", s.UnfilledSlots)
	}
	for _, w := range resp.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	return nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
