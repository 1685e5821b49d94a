// Command sitewalkctl is the operator and field tool for a site-walk server.
// It applies schema migrations, exports annotated pages, computes
// calibration scales and replays recorded editing sessions.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sitewalk/sitewalk/internal/client"
)

var (
	serverURL string
	userID    string
	userName  string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:           "sitewalkctl",
	Short:         "Site-walk floorplan annotation tool",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "site-walk server URL")
	rootCmd.PersistentFlags().StringVar(&userID, "user-id", "", "user id sent as X-User-ID")
	rootCmd.PersistentFlags().StringVar(&userName, "user-name", "", "display name sent as X-User-Name")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log API requests")

	rootCmd.AddCommand(migrateCmd, exportCmd, scaleCmd, replayCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

// newClient builds an API client from the global flags.
func newClient() *client.Client {
	return client.New(serverURL,
		client.WithUser(userID, userName),
		client.WithLogger(slog.Default()),
	)
}
