// Package chatstreamcmder
package chatstreamcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/marketstead/chatstream/cmd/chatstream/chat"
	configcmder "github.com/marketstead/chatstream/cmd/chatstream/config"
	historycmder "github.com/marketstead/chatstream/cmd/chatstream/history"
	initcmder "github.com/marketstead/chatstream/cmd/chatstream/init"
	servecmder "github.com/marketstead/chatstream/cmd/chatstream/serve"
	versioncmder "github.com/marketstead/chatstream/cmd/version"
)

const chatstreamLongDesc string = `Chatstream is a streaming chat client with durable conversation history.

Chat with an assistant:
  chatstream chat              Start an interactive chat session
  chatstream history           Show a persisted conversation
  chatstream serve             Run the history API server`

const chatstreamShortDesc string = "Chatstream - Streaming chat with durable history"

func NewChatstreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatstream",
		Short: chatstreamShortDesc,
		Long:  chatstreamLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .chatstream/ config directory")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
