package config

const (
	defaultAPITarget   = "http://localhost:8081"
	defaultChatRender  = "markdown"
	defaultServeListen = ":8081"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			APITarget: defaultAPITarget,
		},
		Chat: ChatConfig{
			Render: defaultChatRender,
		},
		Serve: ServeConfig{
			Listen: defaultServeListen,
		},
	}
}
