package convai

import (
	"voiceassistant/pkg/credentials"
	"voiceassistant/pkg/session"
)

// Dialer returns a session.Dialer that builds authenticated conversations
// sharing one audio interface and set of overrides.
func Dialer(audio AudioInterface, overrides *Overrides) session.Dialer {
	return func(creds credentials.Credentials, l session.Listener) (session.Conversation, error) {
		return New(Config{
			APIKey:       creds.APIKey,
			AgentID:      creds.AgentID,
			RequiresAuth: true,
			Audio:        audio,
			Listener:     l,
			Overrides:    overrides,
		}), nil
	}
}
