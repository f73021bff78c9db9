package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"rewind/internal/api"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Browse and manage stored sessions",
	}

	sessionsCmd.AddCommand(newSessionsListCommand(ctx))
	sessionsCmd.AddCommand(newSessionsShowCommand(ctx))
	sessionsCmd.AddCommand(newSessionsTimelineCommand(ctx))
	sessionsCmd.AddCommand(newSessionsRemoveCommand(ctx))

	return sessionsCmd
}

func newSessionsListCommand(ctx *commandContext) *cobra.Command {
	var projectID int64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored sessions for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(service *api.SessionService) error {
				sessions, err := service.List(cmd.Context(), projectID)
				if err != nil {
					return fmt.Errorf("list sessions: %w", err)
				}
				if asJSON {
					return writeJSON(cmd, api.SessionListResponse{Sessions: sessions})
				}
				if len(sessions) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No sessions stored for project %d\n", projectID)
					return nil
				}

				rows := make([][]string, 0, len(sessions))
				for _, s := range sessions {
					rows = append(rows, []string{
						s.SessionID,
						s.StartedAt,
						s.Duration,
						yesNo(s.Active),
						s.Recording,
						strconv.Itoa(s.BatchCount),
						strconv.Itoa(s.EventCount),
						s.Device,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"SESSION", "STARTED", "DURATION", "ACTIVE", "RECORDING", "BATCHES", "EVENTS", "DEVICE"},
					rows, 5, 6))
				return nil
			})
		},
	}

	cmd.Flags().Int64VarP(&projectID, "project", "p", 1, "Project id to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newSessionsShowCommand(ctx *commandContext) *cobra.Command {
	var projectID int64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(service *api.SessionService) error {
				detail, err := service.Describe(cmd.Context(), projectID, args[0])
				if err != nil {
					return fmt.Errorf("show session: %w", err)
				}
				if asJSON {
					return writeJSON(cmd, detail)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Session:   %s\n", detail.SessionID)
				fmt.Fprintf(out, "Project:   %d\n", detail.ProjectID)
				fmt.Fprintf(out, "Started:   %s\n", detail.StartedAt)
				fmt.Fprintf(out, "Duration:  %s\n", detail.Duration)
				fmt.Fprintf(out, "Active:    %s\n", yesNo(detail.Active))
				fmt.Fprintf(out, "Recording: %s\n", detail.Recording)
				if detail.VideoURL != "" {
					fmt.Fprintf(out, "Video:     %s\n", detail.VideoURL)
				}
				if detail.Device != "" {
					fmt.Fprintf(out, "Device:    %s\n", detail.Device)
				}
				fmt.Fprintf(out, "Batches:   %d\n", detail.BatchCount)
				fmt.Fprintf(out, "Events:    %d\n", detail.EventCount)
				fmt.Fprintf(out, "Activity:  %d entries\n", len(detail.Activity))
				return nil
			})
		},
	}

	cmd.Flags().Int64VarP(&projectID, "project", "p", 1, "Project id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func newSessionsTimelineCommand(ctx *commandContext) *cobra.Command {
	var projectID int64
	var filter string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "timeline <session-id>",
		Short: "Dump the classified activity timeline of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter != "" && filter != "events" && filter != "gestures" && filter != "screens" {
				return fmt.Errorf("unknown filter %q (use events, gestures, or screens)", filter)
			}
			return ctx.withService(func(service *api.SessionService) error {
				detail, err := service.Describe(cmd.Context(), projectID, args[0])
				if err != nil {
					return fmt.Errorf("load session timeline: %w", err)
				}

				activity := detail.Activity
				if filter != "" {
					filtered := activity[:0:0]
					for _, entry := range activity {
						if entry.Bucket == filter {
							filtered = append(filtered, entry)
						}
					}
					activity = filtered
				}
				if asJSON {
					return writeJSON(cmd, activity)
				}
				if len(activity) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No activity recorded")
					return nil
				}

				rows := make([][]string, 0, len(activity))
				for _, entry := range activity {
					rows = append(rows, []string{entry.Offset, entry.Label, entry.Bucket, entry.Detail})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"OFFSET", "ACTIVITY", "FILTER", "DETAIL"}, rows))
				return nil
			})
		},
	}

	cmd.Flags().Int64VarP(&projectID, "project", "p", 1, "Project id")
	cmd.Flags().StringVar(&filter, "filter", "", "Restrict to one view: events, gestures, or screens")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newSessionsRemoveCommand(ctx *commandContext) *cobra.Command {
	var projectID int64

	cmd := &cobra.Command{
		Use:     "rm <session-id>",
		Aliases: []string{"remove"},
		Short:   "Remove a session and everything stored under it",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(service *api.SessionService) error {
				if err := service.Remove(cmd.Context(), projectID, args[0]); err != nil {
					return fmt.Errorf("remove session: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed session %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().Int64VarP(&projectID, "project", "p", 1, "Project id")
	return cmd
}
