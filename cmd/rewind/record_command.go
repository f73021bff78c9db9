package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rewind/internal/capture"
	"rewind/internal/engine"
	"rewind/internal/record"
	"rewind/internal/uploader"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Capture tooling",
	}
	recordCmd.AddCommand(newRecordSimulateCommand(ctx))
	return recordCmd
}

// newRecordSimulateCommand drives the full capture pipeline against a
// live store daemon with a scripted engine: snapshot gate, batching,
// device info, session end. It exists as an end-to-end smoke check.
func newRecordSimulateCommand(ctx *commandContext) *cobra.Command {
	var count int
	var targetURL string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Record a synthetic session into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			url := strings.TrimSpace(targetURL)
			if url == "" {
				url = cfg.Store.URL
			}
			if url == "" {
				return fmt.Errorf("no store URL configured; set store.url or pass --url")
			}

			scripted := &engine.Scripted{
				Records: []record.Record{engine.NewSnapshotRecord(time.Now().UnixMilli())},
			}

			client := uploader.New(uploader.Options{
				BaseURL:  url,
				SDKKey:   cfg.Store.SDKKey,
				Compress: cfg.Capture.Compress,
				Timeout:  cfg.UploadTimeout(),
			})

			opts := capture.OptionsFromConfig(cfg)
			opts.Engine = scripted
			opts.Uploader = client
			controller, err := capture.New(opts)
			if err != nil {
				return err
			}

			if err := controller.Start(cmd.Context()); err != nil {
				return fmt.Errorf("start capture: %w", err)
			}

			// The snapshot gate opens once the initial upload is
			// acknowledged; synthetic activity before that would be dropped.
			deadline := time.Now().Add(cfg.SnapshotAckTimeout() + time.Second)
			for controller.State() != capture.StateActiveStreaming {
				if time.Now().After(deadline) {
					break
				}
				time.Sleep(10 * time.Millisecond)
			}

			controller.TrackPageView("https://example.com/simulated", "", "Simulated Session")
			base := time.Now().UnixMilli()
			for i := 0; i < count; i++ {
				scripted.Emit(syntheticRecord(base+int64(i*100), i))
			}

			sessionID := controller.SessionID()
			if err := controller.End(cmd.Context(), "simulate"); err != nil {
				return fmt.Errorf("end capture: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Recorded session %s (%d synthetic records) to %s\n",
				sessionID, count, url)
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "records", "n", 50, "Number of synthetic records to emit")
	cmd.Flags().StringVar(&targetURL, "url", "", "Store URL override")
	return cmd
}

// syntheticRecord cycles through the interaction shapes a real browsing
// session produces.
func syntheticRecord(timestamp int64, i int) record.Record {
	switch i % 4 {
	case 0:
		return record.New(record.TypeIncremental, timestamp, record.IncrementalData{
			Source:    record.SourceMouseMove,
			Positions: []record.Point{{X: float64(10 + i), Y: float64(20 + i)}},
		})
	case 1:
		return record.New(record.TypeIncremental, timestamp, record.IncrementalData{
			Source: record.SourceMouseInteraction,
			Type:   record.InteractionMouseDown,
			X:      float64(10 + i),
			Y:      float64(20 + i),
			ID:     i,
		})
	case 2:
		return record.New(record.TypeIncremental, timestamp, record.IncrementalData{
			Source: record.SourceScroll,
			Y:      float64(i * 40),
		})
	default:
		return record.New(record.TypeIncremental, timestamp, record.IncrementalData{
			Source: record.SourceInput,
			ID:     i,
			Text:   fmt.Sprintf("input-%d", i),
		})
	}
}
