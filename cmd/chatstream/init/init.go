// Package initcmder provides the init command for initializing a local
// .chatstream directory in the current working directory.
package initcmder

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marketstead/chatstream/pkg/config"
)

const (
	dirName = ".chatstream"
)

const initLongDesc string = `Initialize a new .chatstream/ directory in the current working directory.

Creates a local .chatstream/ directory that takes precedence over the default
~/.chatstream/ directory for session state, storage, and configuration, and
writes a config.toml with default values.

This is useful for maintaining separate chatstream state per project or
directory. With --preset, the config.toml is preconfigured for a chat
provider; the preset may also be a URL to a remote config.toml.

Examples:
  chatstream init
  chatstream init --preset ollama
  chatstream init --preset openai
  chatstream init --preset https://example.com/team-config.toml`

const initShortDesc string = "Initialize a local .chatstream/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInit(preset)
		},
	}

	cmd.Flags().StringVarP(&preset, "preset", "p", "",
		fmt.Sprintf("Provider preset for config.toml (available: %s), or a URL to a remote config",
			strings.Join(config.ValidPresetNames(), ", ")))

	return cmd
}

func runInit(preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	alreadyExists := err == nil && info.IsDir()

	if !alreadyExists {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .chatstream directory: %w", err)
		}
	}

	cfg, err := resolveConfig(preset)
	if err != nil {
		return err
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("preparing config: %w", err)
	}

	// A plain re-init should not clobber an existing config. Presets
	// overwrite on purpose so re-running with a different provider works.
	if preset != "" || !fileExists(cfger.GetTarget()) {
		if err := cfger.SaveConfig(cfg); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
	}

	if alreadyExists {
		fmt.Printf("Already initialized: %s\n", dir)
		return nil
	}

	fmt.Printf("Initialized .chatstream directory: %s\n", dir)
	return nil
}

// resolveConfig turns the --preset flag value into a Config. An empty preset
// yields the defaults, a known preset name yields that provider's config, and
// a URL fetches a remote config.toml.
func resolveConfig(preset string) (*config.Config, error) {
	if preset == "" {
		return config.NewDefaultConfig(), nil
	}

	if strings.HasPrefix(preset, "http://") || strings.HasPrefix(preset, "https://") {
		return fetchRemoteConfig(preset)
	}

	return config.PresetConfig(preset)
}

func fetchRemoteConfig(url string) (*config.Config, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading remote config: %w", err)
	}

	return config.ParseConfigTOML(data)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
