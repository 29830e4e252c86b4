package cmd

import (
	"encoding/json"
	"fmt"
	"log"

	"studio-store/internal/app"

	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex [project-id]",
	Short: "Rebuild project metadata from the stored documents",
	Long: "Rebuilds the metadata record of one project, or of every project when no id is given.\n" +
		"Use it after a save reported a persistence failure.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		backends, err := app.OpenBackends(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer backends.Close()

		id := ""
		if len(args) == 1 {
			id = args[0]
		}

		n, err := app.NewProjectService(cfg, backends).Reindex(cmd.Context(), id)
		if err != nil {
			return err
		}

		log.Printf("Reindexed %d project(s)", n)
		return nil
	},
}

var auditFix bool

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Report documents, metadata and images that are out of step",
	Long: "Compares project documents, metadata records and image prefixes and prints a JSON report.\n" +
		"With --fix, orphan metadata and images are deleted and missing or stale metadata is rebuilt.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		backends, err := app.OpenBackends(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer backends.Close()

		report, err := app.NewProjectService(cfg, backends).Audit(cmd.Context(), auditFix)
		if report != nil {
			out, marshalErr := json.MarshalIndent(report, "", "  ")
			if marshalErr != nil {
				return marshalErr
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
		}
		return err
	},
}

func init() {
	auditCmd.Flags().BoolVar(&auditFix, "fix", false, "repair the inconsistencies found")
	rootCmd.AddCommand(reindexCmd, auditCmd)
}
