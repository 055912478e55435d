// Package historycmder provides the history command for displaying a
// persisted conversation through the API server.
package historycmder

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/marketstead/chatstream/api"
	"github.com/marketstead/chatstream/pkg/cliui"
	"github.com/marketstead/chatstream/pkg/config"
)

type historyCommander struct {
	apiTarget string
	userID    string
	topic     string
	limit     uint
	markdown  bool
}

const historyLongDesc string = `Show the persisted turns of a conversation.

Fetches the conversation history from the running API server and prints it
oldest first. Assistant turns are rendered as markdown unless --plain is set.

Examples:
  chatstream history --user alice --topic support
  chatstream history --user alice --topic support --limit 10`

const historyShortDesc string = "Show a persisted conversation"

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{markdown: true}

	cmd := &cobra.Command{
		Use:   "history",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("api-target") {
				cmder.apiTarget = cfg.Client.APITarget
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			plain, _ := cmd.Flags().GetBool("plain")
			cmder.markdown = !plain
			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.apiTarget, "api-target", "a", defaults.Client.APITarget, "Chatstream API server URL")
	cmd.Flags().StringVarP(&cmder.userID, "user", "u", "default", "User identifier for the conversation")
	cmd.Flags().StringVarP(&cmder.topic, "topic", "t", "general", "Conversation topic")
	cmd.Flags().UintVarP(&cmder.limit, "limit", "n", 0, "Only show the N most recent turns (0 = all)")
	cmd.Flags().Bool("plain", false, "Print assistant turns as plain text")

	return cmd
}

func (c *historyCommander) run() error {
	history, err := c.fetch()
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("  %s %s %s\n\n",
		cliui.KeyStyle.Render("Conversation:"),
		cliui.NameStyle.Render(c.userID+"/"+c.topic),
		cliui.DimStyle.Render(fmt.Sprintf("(%d turns)", history.Count)),
	)

	if history.Count == 0 {
		fmt.Printf("  %s\n\n", cliui.DimStyle.Render("No turns recorded yet."))
		return nil
	}

	for _, turn := range history.Turns {
		switch turn.Role {
		case "assistant":
			fmt.Printf("%s\n", cliui.DimStyle.Render("assistant>"))
			if c.markdown {
				rendered, err := cliui.RenderMarkdown(turn.Text)
				if err != nil {
					fmt.Println(turn.Text)
				} else {
					fmt.Print(rendered)
				}
			} else {
				fmt.Println(turn.Text)
			}
		default:
			fmt.Printf("%s %s\n", cliui.KeyStyle.Render("you>"), turn.Text)
			if turn.ImageRef != "" {
				fmt.Printf("  %s\n", cliui.DimStyle.Render("[image: "+turn.ImageRef+"]"))
			}
		}
		fmt.Println()
	}

	return nil
}

func (c *historyCommander) fetch() (*api.HistoryResponse, error) {
	url := fmt.Sprintf("%s/conversations/%s/%s/history", c.apiTarget, c.userID, c.topic)
	if c.limit > 0 {
		url += "?limit=" + strconv.FormatUint(uint64(c.limit), 10)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API server returned status %d: %s", resp.StatusCode, string(body))
	}

	history := &api.HistoryResponse{}
	if err := json.NewDecoder(resp.Body).Decode(history); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}

	return history, nil
}
