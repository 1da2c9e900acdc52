// Command browserstate inspects and transfers stored browser sessions.
package main

import (
	"context"
	"fmt"
	"github.com/minus-twelve/browserstate"
	"github.com/minus-twelve/browserstate/storage"
	"github.com/minus-twelve/browserstate/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"os"
)

var (
	configPath string
	userID     string
	verbose    bool
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "browserstate",
		Short: "Manage persisted browser profiles",
		Long: `browserstate stores browser profile directories under a user and session id
on the local filesystem, Redis or an S3 compatible object store.

The backend is chosen from the configuration file and BROWSERSTATE_* variables:
an object store bucket wins over a Redis address, which wins over local storage.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/browserstate/config.yaml)")
	root.PersistentFlags().StringVar(&userID, "user", "", "user id (overrides user_id from config)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "development logging")

	root.AddCommand(listCmd(), deleteCmd(), pullCmd(), pushCmd(), serveCmd(), configCmd())
	return root
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadConfig() (types.Config, error) {
	cfg, err := browserstate.LoadConfig(configPath)
	if err != nil {
		return types.Config{}, err
	}
	if userID != "" {
		cfg.UserID = userID
	}
	return cfg, nil
}

func openState(ctx context.Context) (*browserstate.BrowserState, *zap.Logger, error) {
	log, err := newLogger()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	state, err := browserstate.New(ctx, browserstate.Options{Config: cfg, Logger: log})
	if err != nil {
		return nil, nil, err
	}
	return state, log, nil
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the user's sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			state, log, err := openState(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer state.Close(ctx)

			sessions, err := state.Store().ListSessions(ctx, state.UserID())
			if err != nil {
				return err
			}
			for _, id := range sessions {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			state, log, err := openState(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer state.Close(ctx)

			return state.DeleteSession(ctx, args[0])
		},
	}
}

func pullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <session-id> [dir]",
		Short: "Download a session and print the local directory",
		Long: `Download a session into its local working directory and print the path.
When dir is given the downloaded files are also copied there and dir is printed.
The session is not mounted: nothing is uploaded when the command exits.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			state, log, err := openState(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer state.Close(ctx)

			path, err := state.Store().Download(ctx, state.UserID(), args[0])
			if err != nil {
				return err
			}
			if len(args) == 2 {
				if err := storage.CopyTree(ctx, path, args[1]); err != nil {
					return fmt.Errorf("copy session to %s: %w", args[1], err)
				}
				path = args[1]
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func pushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <session-id> <dir>",
		Short: "Upload a profile directory as a session, replacing what is stored",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			state, log, err := openState(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer state.Close(ctx)

			info, err := os.Stat(args[1])
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", args[1])
			}
			return state.Store().Upload(ctx, state.UserID(), args[0], args[1])
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := browserstate.EncodeConfig(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# backend: %s\n%s", browserstate.SelectBackend(cfg), out)
			return nil
		},
	}
}
