// modelctl manages Session Scribe model artifacts from the command line,
// sharing the desktop app's settings, catalog, and download intent log.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"session-scribe/internal/bootstrap"
	"session-scribe/internal/config"
	"session-scribe/internal/domain"
	"session-scribe/internal/models"
)

func main() {
	root := &cobra.Command{
		Use:           "modelctl",
		Short:         "Manage Session Scribe transcription and summarization models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newListCommand(),
		newStatusCommand(),
		newDownloadCommand(),
		newDeleteCommand(),
		newDoctorCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// headless wires the same stack as the desktop app without a window.
func headless() (*models.Manager, *zap.Logger, error) {
	store := config.NewJSONStore(filepath.Join(config.AppDir(), "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load settings: %w", err)
	}

	return bootstrap.NewHeadlessManager(settings)
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known models and their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, logger, err := headless()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			views, err := manager.ListModels()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFAMILY\tSTATE\tSIZE\tNAME")
			for _, view := range views {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					view.Artifact.ID,
					view.Artifact.Family,
					formatState(view.Status),
					formatSize(view.Artifact.DeclaredSizeBytes),
					view.Artifact.Name,
				)
			}
			return w.Flush()
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <model-id>",
		Short: "Show the current status of one model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, logger, err := headless()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if _, err := manager.ListModels(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), formatState(manager.GetStatus(args[0])))
			return nil
		},
	}
}

func newDownloadCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "download <model-id>",
		Short: "Download a model and wait for it to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, logger, err := headless()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := manager.Start(ctx); err != nil {
				return err
			}

			artifactID := args[0]
			if err := manager.RequestDownload(artifactID); err != nil {
				if errors.Is(err, models.ErrDownloadInProgress) {
					return fmt.Errorf("model %s is already downloading", artifactID)
				}
				return err
			}

			return waitForTerminal(ctx, cmd, manager, artifactID)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 45*time.Minute, "maximum time to wait for the download")
	return cmd
}

// waitForTerminal polls the sequenced event feed until the download settles.
func waitForTerminal(ctx context.Context, cmd *cobra.Command, manager *models.Manager, artifactID string) error {
	out := cmd.OutOrStdout()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var lastSeq int64
	for {
		select {
		case <-ctx.Done():
			if err := manager.CancelDownload(artifactID); err != nil && !errors.Is(err, models.ErrNoActiveDownload) {
				return err
			}
			return ctx.Err()
		case <-ticker.C:
		}

		for _, event := range manager.Events(lastSeq) {
			lastSeq = event.Seq
			if event.ArtifactID != artifactID {
				continue
			}

			switch event.Status.State {
			case domain.StateAcquiring:
				fmt.Fprintf(out, "\r%s: %3d%%", artifactID, event.Status.Progress)
			case domain.StateAvailable:
				fmt.Fprintf(out, "\r%s: done\n", artifactID)
				return nil
			case domain.StateCancelled, domain.StateNotAcquired:
				fmt.Fprintf(out, "\r%s: cancelled\n", artifactID)
				return nil
			case domain.StateError, domain.StateCorrupted:
				return fmt.Errorf("download failed: %s", event.Status.Message)
			}
		}
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <model-id>",
		Short: "Remove a downloaded model from disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, logger, err := headless()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if _, err := manager.ListModels(); err != nil {
				return err
			}
			if err := manager.DeleteArtifact(args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the model storage environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := bootstrap.RunDiagnostics()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, item := range report.Items {
				fmt.Fprintf(out, "[%s] %s: %s\n", item.Status, item.Name, item.Message)
				if item.Hint != "" {
					fmt.Fprintf(out, "       %s\n", item.Hint)
				}
			}
			if report.HasFailures {
				return errors.New("environment checks failed")
			}
			return nil
		},
	}
}

func formatState(status domain.ArtifactStatus) string {
	if status.State == domain.StateAcquiring {
		return fmt.Sprintf("%s %d%%", status.State, status.Progress)
	}
	if status.Message != "" {
		return fmt.Sprintf("%s (%s)", status.State, status.Message)
	}
	return string(status.State)
}

func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d MB", bytes/(1024*1024))
}
