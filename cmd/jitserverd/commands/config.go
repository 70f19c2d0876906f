package commands

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/eclipse-openj9/openj9-sub029/config"
	"github.com/eclipse-openj9/openj9-sub029/errors"
)

// ConfigCmd groups configuration inspection subcommands.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect jitserverd configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as TOML",
	Long: `Show the fully resolved configuration after merging, in order of
increasing precedence: built-in defaults, /etc/jitserverd/config.toml,
~/.jitserverd/config.toml, the nearest project jitserverd.toml/config.toml,
and JITSERVERD_* environment variables.`,
	RunE: runConfigShow,
}

func init() {
	ConfigCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	enc := toml.NewEncoder(cmd.OutOrStdout())
	if err := enc.Encode(cfg); err != nil {
		return errors.Wrap(err, "failed to encode configuration")
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
