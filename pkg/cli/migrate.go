package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arnavshah/slot-assignment-api/pkg/config"
	"github.com/arnavshah/slot-assignment-api/pkg/database"
	"github.com/arnavshah/slot-assignment-api/pkg/models"
	"github.com/arnavshah/slot-assignment-api/pkg/scheduler"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return WrapExitError(ExitCommandError, "loading configuration", err)
			}
			// InitDB migrates on open.
			db, err := database.InitDB(cfg.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "migrating database", err)
			}
			defer closeDB(db)

			version, err := database.CurrentVersion(db)
			if err != nil {
				return WrapExitError(ExitCommandError, "reading schema version", err)
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]int{"schemaVersion": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var actorsPath, slotsPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load actors and demand slots from JSON files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorsPath == "" && slotsPath == "" {
				return &ExitError{Code: ExitCommandError, Message: "nothing to seed: pass --actors and/or --slots"}
			}
			cfg, err := config.FromEnv()
			if err != nil {
				return WrapExitError(ExitCommandError, "loading configuration", err)
			}
			db, err := database.InitDB(cfg.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "opening database", err)
			}
			defer closeDB(db)
			repo := database.NewRepository(db)
			ctx := cmd.Context()

			var actors []models.Actor
			if actorsPath != "" {
				if err := readJSONFile(actorsPath, &actors); err != nil {
					return err
				}
				if err := repo.UpsertActors(ctx, actors); err != nil {
					return WrapExitError(ExitCommandError, "storing actors", err)
				}
			}
			var slots []models.DemandSlot
			if slotsPath != "" {
				if err := readJSONFile(slotsPath, &slots); err != nil {
					return err
				}
				if err := scheduler.ValidateSlots(slots); err != nil {
					return WrapExitError(ExitCommandError, "invalid demand slots in "+slotsPath, err)
				}
				if err := repo.UpsertDemandSlots(ctx, slots); err != nil {
					return WrapExitError(ExitCommandError, "storing demand slots", err)
				}
			}

			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]int{"actors": len(actors), "slots": len(slots)})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d actors and %d demand slots\n", len(actors), len(slots))
			return nil
		},
	}

	cmd.Flags().StringVar(&actorsPath, "actors", "", "JSON file of actors")
	cmd.Flags().StringVar(&slotsPath, "slots", "", "JSON file of demand slots")

	return cmd
}
