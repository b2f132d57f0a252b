// Package configcmder provides the config command for managing persistent
// thinkgate configuration stored in the .thinkgate/ directory.
package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/thinkgate/pkg/config"
)

const configLongDesc string = `Manage persistent thinkgate configuration.

Configuration is stored as config.toml in the .thinkgate/ directory and provides
default values for command flags. CLI flags and THINKGATE_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  gateway.listen, gateway.upstream, gateway.upstream_timeout,
  gateway.keepalive_interval, gateway.prompt_preview_chars,
  markers.open, markers.close,
  metrics.enabled, metrics.path,
  eventstream.provider, eventstream.brokers, eventstream.topic,
  eventstream.queue_size, eventstream.workers,
  client.gateway_target

Use subcommands to get, set, or list configuration values:
  thinkgate config set <key> <value>    Set a configuration value
  thinkgate config get <key>            Get a configuration value
  thinkgate config list                 List all configuration values

Examples:
  thinkgate config set gateway.upstream http://localhost:11434/v1/chat/completions
  thinkgate config set markers.open "<reasoning>"
  thinkgate config get gateway.listen
  thinkgate config list`

const configShortDesc string = "Manage persistent thinkgate configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// checkKey rejects keys that do not name a config value.
func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

// completeKeys offers config keys for the first argument.
func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
