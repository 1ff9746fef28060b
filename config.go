package messenger

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Options contains configuration for creating a Client.
//
//	opts := messenger.NewOptions()
//	opts.ServerURL = "wss://chat.example.com/socket"
//	opts.LocalUserID = me.ID
type Options struct {
	// ServerURL is the websocket endpoint of the push transport.
	ServerURL string `yaml:"server_url"`
	// APIBaseURL is the REST endpoint used for history fetches.
	APIBaseURL string `yaml:"api_base_url"`
	// AuthToken is the bearer token presented to both endpoints.
	AuthToken string `yaml:"auth_token"`
	// LocalUserID identifies the local user; required.
	LocalUserID string `yaml:"local_user_id"`

	// TypingTTL is how long a peer's typing indicator survives without a
	// refresh.
	TypingTTL time.Duration `yaml:"typing_ttl"`
	// SendTimeout is how long a pending send waits for its server echo
	// before failing.
	SendTimeout time.Duration `yaml:"send_timeout"`
	// IterationInterval is the recommended cadence for calling Iterate.
	IterationInterval time.Duration `yaml:"iteration_interval"`
}

// NewOptions creates Options with default timing values.
func NewOptions() *Options {
	return &Options{
		TypingTTL:         6 * time.Second,
		SendTimeout:       30 * time.Second,
		IterationInterval: time.Second,
	}
}

// LoadOptions builds Options from an optional YAML file merged with
// environment variables. A .env file in the working directory is loaded
// first if present; explicit environment always wins over the file.
//
// Recognized variables: MESSENGER_SERVER_URL, MESSENGER_API_URL,
// MESSENGER_AUTH_TOKEN, MESSENGER_USER_ID.
func LoadOptions(path string) (*Options, error) {
	// Best effort; a missing .env is the normal case.
	if err := godotenv.Load(); err == nil {
		logrus.WithFields(logrus.Fields{
			"function": "LoadOptions",
		}).Debug("Loaded environment from .env")
	}

	opts := NewOptions()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, opts); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		applyDefaults(opts)
	}

	if v := os.Getenv("MESSENGER_SERVER_URL"); v != "" {
		opts.ServerURL = v
	}
	if v := os.Getenv("MESSENGER_API_URL"); v != "" {
		opts.APIBaseURL = v
	}
	if v := os.Getenv("MESSENGER_AUTH_TOKEN"); v != "" {
		opts.AuthToken = v
	}
	if v := os.Getenv("MESSENGER_USER_ID"); v != "" {
		opts.LocalUserID = v
	}

	return opts, nil
}

// applyDefaults restores default timings zeroed out by a partial config
// file.
func applyDefaults(opts *Options) {
	def := NewOptions()
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = def.TypingTTL
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = def.SendTimeout
	}
	if opts.IterationInterval <= 0 {
		opts.IterationInterval = def.IterationInterval
	}
}
