package app

import (
	"net/http"

	"sealchat/internal/domain"
	"sealchat/internal/relay"
	"sealchat/internal/services/convo"
	"sealchat/internal/services/keys"
	"sealchat/internal/services/message"
	"sealchat/internal/store/local"
	"sealchat/internal/store/memory"
)

// Wire bundles the stores and services the CLI commands use.
type Wire struct {
	Keystore      *local.Keystore
	Directory     domain.KeyDirectory
	Conversations domain.ConversationStore
	Messages      domain.MessageStore
	Keys          *keys.Service
	HTTP          *http.Client
}

// NewWire constructs the dependency graph from cfg. With a relay URL
// the stores live behind HTTP; without one everything runs in process,
// which only makes sense for a scratch session but keeps every command
// testable offline.
func NewWire(cfg Config) (*Wire, error) {
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	var (
		directory     domain.KeyDirectory
		conversations domain.ConversationStore
		messages      domain.MessageStore
	)
	if cfg.RelayURL != "" {
		rc := relay.NewClient(cfg.RelayURL)
		rc.HTTP = httpClient
		directory, conversations, messages = rc, rc, rc
	} else {
		mem := memory.New()
		directory, conversations, messages = mem, mem, mem
	}

	return &Wire{
		Keystore:      local.New(cfg.Home),
		Directory:     directory,
		Conversations: conversations,
		Messages:      messages,
		Keys:          keys.New(directory),
		HTTP:          httpClient,
	}, nil
}

// Messenger builds a message service acting as self, on whatever
// stores the wire carries. Call after the key service is unlocked.
func (w *Wire) Messenger(self domain.UserID) *message.Service {
	return message.New(self, convo.New(w.Keys), w.Keys, w.Conversations, w.Messages)
}
