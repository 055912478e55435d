package config

const (
	defaultStorageBackend = "sqlite"

	defaultChatEndpoint = "http://localhost:11434/v1/chat/completions"
	defaultChatModel    = "llama3.2"

	defaultAPIListen       = ":8081"
	defaultClientAPITarget = "http://localhost:8081"

	defaultEventsTopic = "chatstream.turns"

	defaultWorkerNum       = 3
	defaultWorkerQueueSize = 256
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Backend: defaultStorageBackend,
		},
		Chat: ChatConfig{
			Endpoint: defaultChatEndpoint,
			Model:    defaultChatModel,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Events: EventsConfig{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topic:   defaultEventsTopic,
		},
		Workers: WorkersConfig{
			Num:       defaultWorkerNum,
			QueueSize: defaultWorkerQueueSize,
		},
	}
}
