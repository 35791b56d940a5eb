package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"thumbforge-backend/internal/app"
	"thumbforge-backend/internal/config"
	"thumbforge-backend/internal/jobs"
	"thumbforge-backend/internal/models"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect thumbnail generation jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter models.Status
			if status != "" {
				filter = models.Status(status)
				if !filter.Valid() {
					return fmt.Errorf("unknown status %q", status)
				}
			}

			return ctx.withStore(cmd.Context(), func(_ *config.Config, store app.Store) error {
				thumbs, err := store.ListByOwner(cmd.Context(), owner)
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(thumbs))
				for _, t := range thumbs {
					if filter != "" && t.Status != filter {
						continue
					}
					rows = append(rows, []string{
						t.ID.String(),
						string(t.Status),
						t.Title,
						t.UpdatedAt.Local().Format(time.DateTime),
						t.ErrorDetail,
					})
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Status", "Title", "Updated", "Error"}, rows))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner id whose jobs to list")
	cmd.Flags().StringVar(&status, "status", "", "Only show jobs in this status")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}

			return ctx.withStore(cmd.Context(), func(_ *config.Config, store app.Store) error {
				t, err := store.GetByID(cmd.Context(), id)
				if errors.Is(err, jobs.ErrNotFound) {
					return fmt.Errorf("job %s not found", id)
				}
				if err != nil {
					return err
				}

				rows := [][]string{
					{"ID", t.ID.String()},
					{"Owner", t.OwnerID},
					{"Status", string(t.Status)},
					{"Title", t.Title},
					{"Prompt", t.PromptText},
					{"Style", t.Style},
					{"Aspect ratio", t.AspectRatio},
					{"Color scheme", t.ColorScheme},
					{"Text overlay", strconv.FormatBool(t.TextOverlay)},
					{"Result", summarizeResult(t.ResultContent)},
					{"Result URL", t.ResultURL},
					{"Error", t.ErrorDetail},
					{"Created", t.CreatedAt.Local().Format(time.RFC3339)},
					{"Updated", t.UpdatedAt.Local().Format(time.RFC3339)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows))
				return nil
			})
		},
	}
}

// summarizeResult keeps inline data URIs from flooding the terminal.
func summarizeResult(content string) string {
	if strings.HasPrefix(content, "data:") {
		if i := strings.IndexByte(content, ','); i > 0 {
			return content[:i] + fmt.Sprintf(",<%d bytes>", len(content)-i-1)
		}
	}
	return content
}
