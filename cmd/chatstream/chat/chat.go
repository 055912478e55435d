// Package chatcmder provides the chat command for interactive streamed chat
// with a durable conversation history.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/marketstead/chatstream/pkg/chat"
	"github.com/marketstead/chatstream/pkg/cliui"
	"github.com/marketstead/chatstream/pkg/config"
	"github.com/marketstead/chatstream/pkg/dotdir"
	"github.com/marketstead/chatstream/pkg/eventstream"
	"github.com/marketstead/chatstream/pkg/eventstream/kafka"
	"github.com/marketstead/chatstream/pkg/eventstream/nop"
	"github.com/marketstead/chatstream/pkg/llm"
	"github.com/marketstead/chatstream/pkg/logger"
	"github.com/marketstead/chatstream/pkg/storage"
	"github.com/marketstead/chatstream/pkg/storage/inmemory"
	"github.com/marketstead/chatstream/pkg/storage/postgres"
	"github.com/marketstead/chatstream/pkg/storage/sqlite"
	"github.com/marketstead/chatstream/pkg/transcript"
	"github.com/marketstead/chatstream/pkg/worker"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

type chatCommander struct {
	userID string
	topic  string
	debug  bool

	cfg    *config.Config
	logger *slog.Logger
}

const chatLongDesc string = `Start an interactive chat session.

Messages stream from the configured assistant endpoint token by token and
every completed turn is persisted in the background, so conversations
survive restarts. If a session state exists (from a previous chat), the
conversation resumes from the persisted history.

Within the session:
  /image <ref> <message>   Attach an image reference to the message
  /exit                    Quit (Ctrl+D also works)
  Ctrl+C                   Stop the current response, keeping partial text

Examples:
  chatstream chat --user alice --topic support
  chatstream chat --model gpt-4o-mini --endpoint https://api.openai.com/v1/chat/completions`

const chatShortDesc string = "Interactive streamed chat session"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
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

			// Flags already registered on the command take precedence over
			// config file values.
			if cmd.Flags().Changed("endpoint") {
				cfg.Chat.Endpoint, _ = cmd.Flags().GetString("endpoint")
			}
			if cmd.Flags().Changed("model") {
				cfg.Chat.Model, _ = cmd.Flags().GetString("model")
			}
			if cmd.Flags().Changed("api-key") {
				cfg.Chat.APIKey, _ = cmd.Flags().GetString("api-key")
			}
			if cmd.Flags().Changed("storage-backend") {
				cfg.Storage.Backend, _ = cmd.Flags().GetString("storage-backend")
			}
			if cmd.Flags().Changed("sqlite") {
				cfg.Storage.SQLitePath, _ = cmd.Flags().GetString("sqlite")
			}
			if cmd.Flags().Changed("postgres-dsn") {
				cfg.Storage.PostgresDSN, _ = cmd.Flags().GetString("postgres-dsn")
			}
			if cmd.Flags().Changed("workers") {
				cfg.Workers.Num, _ = cmd.Flags().GetUint("workers")
			}
			if cmd.Flags().Changed("queue-size") {
				cfg.Workers.QueueSize, _ = cmd.Flags().GetUint("queue-size")
			}

			cmder.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd)
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.userID, "user", "u", "", "User identifier for the conversation")
	cmd.Flags().StringVarP(&cmder.topic, "topic", "t", "", "Conversation topic")
	cmd.Flags().StringP("model", "m", defaults.Chat.Model, "Model name")
	cmd.Flags().StringP("endpoint", "e", defaults.Chat.Endpoint, "Streaming chat completions endpoint")
	cmd.Flags().String("api-key", "", "Bearer token for the endpoint")
	cmd.Flags().String("storage-backend", defaults.Storage.Backend, "Turn store: memory, sqlite, or postgres")
	cmd.Flags().StringP("sqlite", "s", "", "Path to SQLite database")
	cmd.Flags().String("postgres-dsn", "", "Postgres connection string")
	cmd.Flags().Uint("workers", defaults.Workers.Num, "Number of persistence workers")
	cmd.Flags().Uint("queue-size", defaults.Workers.QueueSize, "Persistence queue capacity")

	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
	)

	ref, resumed, err := c.resolveConversation()
	if err != nil {
		return err
	}

	store, err := c.newStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	publisher := c.newPublisher()
	defer publisher.Close()

	pool, err := worker.NewPool(&worker.Config{
		Store:      store,
		Publisher:  publisher,
		NumWorkers: c.cfg.Workers.Num,
		QueueSize:  c.cfg.Workers.QueueSize,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("starting persistence pool: %w", err)
	}
	defer pool.Close()

	tr := transcript.New()
	history, err := store.LoadHistory(cmd.Context(), ref, 0)
	if err != nil {
		return fmt.Errorf("loading conversation history: %w", err)
	}
	for _, turn := range history {
		tr.Append(turn)
	}

	// Stream each assistant delta to the terminal as it lands in the
	// transcript. Only the unprinted suffix of the open turn is written.
	printedTurn := -1
	printedLen := 0
	tr.Subscribe(func(turns []llm.Turn) {
		last := len(turns) - 1
		if last < 0 || turns[last].Role != llm.RoleAssistant {
			return
		}
		if last != printedTurn {
			printedTurn = last
			printedLen = 0
		}
		text := turns[last].Text
		if len(text) > printedLen {
			fmt.Print(text[printedLen:])
			printedLen = len(text)
		}
	})

	client := chat.New(chat.Config{
		Endpoint: c.cfg.Chat.Endpoint,
		Model:    c.cfg.Chat.Model,
		APIKey:   c.cfg.Chat.APIKey,
	}, tr, pool, c.logger)

	c.printBanner(ref, resumed, len(history))

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}

		text, imageRef := parseInput(input)
		if text == "" {
			fmt.Fprintf(os.Stderr, "  %s usage: /image <ref> <message>\n", cliui.FailMark)
			continue
		}

		fmt.Print(assistantPrompt)
		c.send(client, ref, text, imageRef)
		fmt.Println()
		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Println()
	return nil
}

// send streams one response. Ctrl+C aborts the in-flight stream, keeping the
// partial text, without ending the session.
func (c *chatCommander) send(client *chat.Client, ref llm.ConversationRef, text, imageRef string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := client.Send(ctx, ref, text, imageRef)
	if err == nil {
		return
	}

	var streamErr *chat.Error
	if errors.As(err, &streamErr) {
		if streamErr.Category == chat.CategoryCancelled {
			fmt.Printf("\n  %s stopped\n", cliui.DimStyle.Render("●"))
			return
		}
		fmt.Fprintf(os.Stderr, "\n  %s %s\n", cliui.FailMark, streamErr.UserMessage())
		c.logger.Debug("stream failed", "error", err)
		return
	}

	fmt.Fprintf(os.Stderr, "\n  %s %v\n", cliui.FailMark, err)
}

// parseInput splits an optional /image prefix off the message text.
func parseInput(input string) (text, imageRef string) {
	if !strings.HasPrefix(input, "/image ") {
		return input, ""
	}

	rest := strings.TrimSpace(strings.TrimPrefix(input, "/image "))
	ref, msg, ok := strings.Cut(rest, " ")
	if !ok {
		return "", ""
	}
	return strings.TrimSpace(msg), ref
}

// resolveConversation picks the conversation to chat in: explicit flags win,
// then the persisted session state, then a fresh default. The choice is
// saved back so the next session resumes it.
func (c *chatCommander) resolveConversation() (llm.ConversationRef, bool, error) {
	ddm := dotdir.NewManager()

	resumed := false
	if c.userID == "" || c.topic == "" {
		session, err := ddm.LoadSessionState("")
		if err != nil {
			return llm.ConversationRef{}, false, fmt.Errorf("loading session state: %w", err)
		}
		if session != nil {
			if c.userID == "" {
				c.userID = session.UserID
			}
			if c.topic == "" {
				c.topic = session.Topic
			}
			resumed = true
		}
	}

	if c.userID == "" {
		c.userID = "default"
	}
	if c.topic == "" {
		c.topic = "general"
	}

	if err := ddm.SaveSession(&dotdir.SessionState{UserID: c.userID, Topic: c.topic}, ""); err != nil {
		return llm.ConversationRef{}, false, fmt.Errorf("saving session state: %w", err)
	}

	return llm.ConversationRef{UserID: c.userID, Topic: c.topic}, resumed, nil
}

func (c *chatCommander) printBanner(ref llm.ConversationRef, resumed bool, historyLen int) {
	fmt.Println()
	if resumed || historyLen > 0 {
		fmt.Printf("  %s Resuming %s %s\n",
			cliui.SuccessMark,
			cliui.NameStyle.Render(ref.UserID+"/"+ref.Topic),
			cliui.DimStyle.Render(fmt.Sprintf("(%d turns)", historyLen)),
		)
	} else {
		fmt.Printf("  %s New conversation %s\n",
			cliui.DimStyle.Render("●"),
			cliui.NameStyle.Render(ref.UserID+"/"+ref.Topic),
		)
	}

	fmt.Printf("  %s %s\n\n",
		cliui.KeyStyle.Render("Model:"),
		cliui.NameStyle.Render(c.cfg.Chat.Model),
	)
	fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))
}

func (c *chatCommander) newStore(ctx context.Context) (storage.Store, error) {
	switch c.cfg.Storage.Backend {
	case "sqlite":
		path := c.cfg.Storage.SQLitePath
		if path == "" {
			dir, err := dotdir.NewManager().Target("")
			if err != nil {
				return nil, fmt.Errorf("resolving storage path: %w", err)
			}
			path = dir + "/chatstream.sqlite"
		}
		store, err := sqlite.NewStore(path)
		if err != nil {
			return nil, fmt.Errorf("opening SQLite store: %w", err)
		}
		c.logger.Info("using SQLite storage", "path", path)
		return store, nil

	case "postgres":
		store, err := postgres.NewStore(ctx, c.cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("opening Postgres store: %w", err)
		}
		c.logger.Info("using Postgres storage")
		return store, nil

	case "memory":
		c.logger.Info("using in-memory storage")
		return inmemory.NewStore(), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q (available: memory, sqlite, postgres)", c.cfg.Storage.Backend)
	}
}

func (c *chatCommander) newPublisher() eventstream.Publisher {
	if !c.cfg.Events.Enabled {
		return nop.NewPublisher()
	}

	c.logger.Info("publishing turn events",
		"brokers", c.cfg.Events.Brokers,
		"topic", c.cfg.Events.Topic,
	)
	return kafka.NewPublisher(c.cfg.Events.Brokers, c.cfg.Events.Topic)
}
