// Package configcmder provides the config command for managing persistent
// chatstream configuration stored in the .chatstream/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent chatstream configuration.

Configuration is stored as config.toml in the .chatstream/ directory and
provides default values for command flags. CLI flags always take precedence
over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.backend, storage.sqlite_path, storage.postgres_dsn,
  chat.endpoint, chat.model, chat.api_key,
  api.listen, client.api_target,
  events.enabled, events.brokers, events.topic,
  workers.num, workers.queue_size

Use subcommands to get, set, or list configuration values:
  chatstream config set <key> <value>    Set a configuration value
  chatstream config get <key>            Get a configuration value
  chatstream config list                 List all configuration values

Examples:
  chatstream config set chat.model llama3.2
  chatstream config set chat.endpoint https://api.openai.com/v1/chat/completions
  chatstream config get storage.backend
  chatstream config list`

const configShortDesc string = "Manage persistent chatstream configuration"

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
