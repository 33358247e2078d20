package main

import (
	"fmt"
	"os"

	runnercmd "github.com/lodestream/lode/internal/cmd/runner"
	cfgpkg "github.com/lodestream/lode/internal/config"
	pebblestore "github.com/lodestream/lode/internal/storage/pebble"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lode",
		Short: "Lode record-stream runtime CLI",
		Long:  "Lode is a single-binary sharded record stream with a leased consumer. This CLI runs the consumer, the demo producer, and stream administration.",
	}
	rootCmd.PersistentFlags().String("config", os.Getenv("LODE_CONFIG"), "Config file (JSON)")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (default: config, then OS application data directory)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text|json")
	rootCmd.PersistentFlags().String("fsync", "", "Fsync mode: always|interval|never")

	// loadOptions resolves config file, env overlay, then flags, in that
	// order of increasing precedence.
	loadOptions := func() (runnercmd.Options, error) {
		flags := rootCmd.PersistentFlags()
		path, _ := flags.GetString("config")
		cfg, err := cfgpkg.Load(path)
		if err != nil {
			return runnercmd.Options{}, err
		}
		cfgpkg.FromEnv(&cfg)
		if v, _ := flags.GetString("data-dir"); v != "" {
			cfg.DataDir = v
		}
		if v, _ := flags.GetString("log-level"); v != "" {
			cfg.Log.Level = v
		}
		if v, _ := flags.GetString("log-format"); v != "" {
			cfg.Log.Format = v
		}
		if v, _ := flags.GetString("fsync"); v != "" {
			cfg.Fsync = v
		}
		mode, err := pebblestore.ParseFsyncMode(cfg.Fsync)
		if err != nil {
			return runnercmd.Options{}, err
		}
		if err := cfg.Validate(); err != nil {
			return runnercmd.Options{}, err
		}
		return runnercmd.Options{DataDir: cfg.DataDir, Fsync: mode, Config: cfg}, nil
	}

	// run
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the consumer until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadOptions()
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetString("stream"); v != "" {
				opts.Config.Stream = v
			}
			if v, _ := cmd.Flags().GetString("application"); v != "" {
				opts.Config.Application = v
			}
			if v, _ := cmd.Flags().GetString("position"); v != "" {
				opts.Config.InitialPosition = v
				if err := opts.Config.Validate(); err != nil {
					return err
				}
			}
			if v, _ := cmd.Flags().GetString("filter"); v != "" {
				opts.Config.Consumer.Filter = v
			}
			if err := runnercmd.Run(cmd.Context(), opts); err != nil {
				return fmt.Errorf("consumer error: %w", err)
			}
			return nil
		},
	}
	runCmd.Flags().String("stream", "", "Stream to consume (default from config)")
	runCmd.Flags().String("application", "", "Application / lease table name (default from config)")
	runCmd.Flags().String("position", "", "Initial position for unseen shards: LATEST|TRIM_HORIZON")
	runCmd.Flags().String("filter", "", "CEL expression; records it rejects are skipped")

	// run delete-resources
	deleteResourcesCmd := &cobra.Command{
		Use:   "delete-resources",
		Short: "Delete the stream and the application's lease table",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadOptions()
			if err != nil {
				return err
			}
			return runnercmd.DeleteResources(cmd.Context(), opts)
		},
	}
	runCmd.AddCommand(deleteResourcesCmd)
	rootCmd.AddCommand(runCmd)

	// produce
	produceCmd := &cobra.Command{
		Use:   "produce",
		Short: "Run the telemetry producer loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadOptions()
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetString("stream"); v != "" {
				opts.Config.Stream = v
			}
			if v, _ := cmd.Flags().GetInt64("interval-ms"); v > 0 {
				opts.Config.Producer.IntervalMs = v
			}
			if v, _ := cmd.Flags().GetInt("sources"); v > 0 {
				opts.Config.Producer.SourceCount = v
			}
			if v, _ := cmd.Flags().GetInt("shards"); v > 0 {
				opts.Config.ShardCount = v
			}
			if err := runnercmd.Produce(cmd.Context(), opts); err != nil {
				return fmt.Errorf("producer error: %w", err)
			}
			return nil
		},
	}
	produceCmd.Flags().String("stream", "", "Stream to produce to (default from config)")
	produceCmd.Flags().Int64("interval-ms", 0, "Interval between records in ms (default from config)")
	produceCmd.Flags().Int("sources", 0, "Number of synthetic devices to cycle through")
	produceCmd.Flags().Int("shards", 0, "Shard count when creating a missing stream")
	rootCmd.AddCommand(produceCmd)

	// stream admin
	rootCmd.AddCommand(runnercmd.NewStreamCommand(loadOptions))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
