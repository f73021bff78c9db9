package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rewind/internal/api"
	"rewind/internal/daemon"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store daemon and database status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, daemonErr := fetchDaemonStatus(ctx.storeURL())
			if daemonErr == nil {
				if asJSON {
					return writeJSON(cmd, status)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Daemon:   running (pid %d)\n", status.PID)
				fmt.Fprintf(out, "Bind:     %s\n", status.Bind)
				fmt.Fprintf(out, "Database: %s\n", status.DBPath)
				fmt.Fprintf(out, "Projects: %d\n", status.Projects)
				fmt.Fprintf(out, "Sessions: %d\n", status.Sessions)
				fmt.Fprintf(out, "Batches:  %d\n", status.Batches)
				return nil
			}

			// Daemon unreachable: report what the store on disk holds.
			return ctx.withService(func(service *api.SessionService) error {
				overview, err := service.Overview(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, map[string]any{
						"daemon": map[string]any{"running": false, "error": daemonErr.Error()},
						"store":  overview,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Daemon:   not reachable (%v)\n", daemonErr)
				fmt.Fprintln(out, "          start it with `rewindd`")
				fmt.Fprintf(out, "Projects: %d\n", overview.Projects)
				fmt.Fprintf(out, "Sessions: %d\n", overview.Sessions)
				fmt.Fprintf(out, "Batches:  %d\n", overview.Batches)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func fetchDaemonStatus(url string) (*daemon.Status, error) {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	if url == "" {
		return nil, errors.New("no store URL configured")
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url + "/api/status")
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("connection to %s refused", url)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}
	var status daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &status, nil
}
