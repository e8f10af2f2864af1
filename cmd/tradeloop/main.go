package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"tradeloop/internal/app"
	"tradeloop/internal/config"
	"tradeloop/internal/logger"
)

type rootOptions struct {
	configPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "tradeloop",
		Short:         "Rule-based equity trading loop",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"config file (defaults to $"+config.EnvConfigPath+" or "+config.DefaultPath+")")
	cmd.AddCommand(newRunCmd(opts), newTradesCmd(opts))
	return cmd
}

func (o *rootOptions) load() (*config.Config, string, error) {
	path := config.ResolvePath(o.configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	return cfg, path, nil
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var start, watch bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve the control API and run the trading engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := opts.load()
			if err != nil {
				return err
			}
			if err := logger.SetupFile(cfg.App.LogPath); err != nil {
				return fmt.Errorf("init log file: %w", err)
			}
			defer logger.Close()
			logger.SetLevel(cfg.App.LogLevel)
			logger.Infof("✓ config loaded (env=%s, file=%s)", cfg.App.Env, path)

			appOpts := []app.AppBuilderOption{app.WithStartOnRun(start)}
			if watch {
				appOpts = append(appOpts, app.WithConfigPath(path))
			}
			a, err := app.NewApp(cfg, appOpts...)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&start, "start", false, "start the engine immediately")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload the config when its files change")
	return cmd
}
