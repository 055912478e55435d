package main

import (
	"os"

	servecmder "github.com/marketstead/chatstream/cmd/chatstream/serve"
)

func main() {
	cmd := servecmder.NewServeCmd()
	cmd.Use = "chatstreamapi"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .chatstream/ config directory")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
