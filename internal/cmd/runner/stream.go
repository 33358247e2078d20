package runner

import (
	"encoding/json"
	"fmt"

	"github.com/lodestream/lode/internal/shardlog"
	"github.com/spf13/cobra"
)

// OptionsFunc resolves global flags and config into Options. The CLI wires
// it so every subcommand sees the same --config/--data-dir handling.
type OptionsFunc func() (Options, error)

// NewStreamCommand constructs the `stream` command group and subcommands.
func NewStreamCommand(load OptionsFunc) *cobra.Command {
	streamCmd := &cobra.Command{Use: "stream", Short: "Stream administration"}
	streamCmd.AddCommand(
		newStreamCreateCommand(load),
		newStreamDescribeCommand(load),
		newStreamSplitCommand(load),
		newStreamMergeCommand(load),
		newStreamDeleteCommand(load),
	)
	return streamCmd
}

// newStreamCreateCommand constructs the `stream create` subcommand.
func newStreamCreateCommand(load OptionsFunc) *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create the configured stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := load()
			if err != nil {
				return err
			}
			shards, _ := cmd.Flags().GetInt("shards")
			if shards <= 0 {
				shards = opts.Config.ShardCount
			}
			rt, _, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.StreamView().Create(cmd.Context(), shards); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			return nil
		},
	}
	createCmd.Flags().Int("shards", 0, "Shard count (default from config)")
	return createCmd
}

// newStreamDescribeCommand constructs the `stream describe` subcommand.
func newStreamDescribeCommand(load OptionsFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Describe the configured stream and its shards",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := load()
			if err != nil {
				return err
			}
			rt, _, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			info, shards, err := rt.StreamView().Describe(cmd.Context())
			if err != nil {
				return err
			}
			out := struct {
				shardlog.StreamInfo
				Shards []shardlog.Shard `json:"shards"`
			}{StreamInfo: info, Shards: shards}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

// newStreamSplitCommand constructs the `stream split` subcommand.
func newStreamSplitCommand(load OptionsFunc) *cobra.Command {
	splitCmd := &cobra.Command{
		Use:   "split",
		Short: "Split an open shard into two children",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := load()
			if err != nil {
				return err
			}
			shardID, _ := cmd.Flags().GetString("shard")
			if shardID == "" {
				return fmt.Errorf("--shard is required")
			}
			rt, _, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			children, err := rt.Streams().Split(cmd.Context(), opts.Config.Stream, shardID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(children)
		},
	}
	splitCmd.Flags().String("shard", "", "Shard to split")
	return splitCmd
}

// newStreamMergeCommand constructs the `stream merge` subcommand.
func newStreamMergeCommand(load OptionsFunc) *cobra.Command {
	mergeCmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge two adjacent open shards into one child",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := load()
			if err != nil {
				return err
			}
			shardID, _ := cmd.Flags().GetString("shard")
			adjacentID, _ := cmd.Flags().GetString("adjacent")
			if shardID == "" || adjacentID == "" {
				return fmt.Errorf("--shard and --adjacent are required")
			}
			rt, _, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			child, err := rt.Streams().Merge(cmd.Context(), opts.Config.Stream, shardID, adjacentID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(child)
		},
	}
	mergeCmd.Flags().String("shard", "", "Shard to merge")
	mergeCmd.Flags().String("adjacent", "", "Adjacent shard to merge with")
	return mergeCmd
}

// newStreamDeleteCommand constructs the `stream delete` subcommand.
func newStreamDeleteCommand(load OptionsFunc) *cobra.Command {
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the configured stream and all its records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := load()
			if err != nil {
				return err
			}
			confirm, _ := cmd.Flags().GetBool("confirm")
			if !confirm {
				return fmt.Errorf("use --confirm to delete stream %s", opts.Config.Stream)
			}
			rt, _, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.StreamView().Delete(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			return nil
		},
	}
	deleteCmd.Flags().Bool("confirm", false, "Confirm the delete operation")
	return deleteCmd
}
