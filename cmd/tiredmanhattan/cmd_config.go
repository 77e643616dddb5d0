package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/tiredmanhattan/internal/config"
)

var (
	configReveal bool
	configJSON   bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd)
	configListCmd.Flags().BoolVar(&configReveal, "reveal", false, "print credentials in full")
	configListCmd.Flags().BoolVar(&configJSON, "json", false, "print as a flat JSON object")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the config file",
	Long: `Keys are dot-separated paths into the config file, for example
twitter.screen_name or stream.transient_delay. Credentials are masked unless
--reveal is given. Environment overrides are applied to list output.`,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every config key with its effective value",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := config.ListValues(loadConfig(), !configReveal)
		if err != nil {
			return fmt.Errorf("list config: %w", err)
		}
		if configJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(values)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, k := range config.SortedKeys(values) {
			fmt.Fprintf(tw, "%s\t%v\n", k, values[k])
		}
		return tw.Flush()
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one value from the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		val, err := config.GetValue(cfgPath, key)
		if err != nil {
			return err
		}
		if s, ok := val.(string); ok && config.IsSecretKey(key) {
			val = config.Mask(s)
		}
		fmt.Fprintln(cmd.OutOrStdout(), val)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one value in the config file",
	Long: `Numbers and booleans are stored with their JSON type, everything else
as a string. Restart a running daemon to pick up the change.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetValue(cfgPath, key, value); err != nil {
			return err
		}
		if config.IsSecretKey(key) {
			value = config.Mask(value)
		}
		fmt.Fprintf(os.Stderr, "%s = %s\n", key, value)
		return nil
	},
}
