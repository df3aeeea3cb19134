// Package convai is a client for the ElevenLabs Conversational AI websocket.
// It streams microphone audio to an agent, plays the agent's audio back and
// reports both sides of the transcript.
package convai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voiceassistant/pkg/logging"
	"voiceassistant/pkg/session"
)

const (
	defaultAPIURL = "https://api.elevenlabs.io"
	defaultWSURL  = "wss://api.elevenlabs.io"
)

var logger = logging.New("convai")

// AudioInterface captures microphone audio and plays agent audio. All audio
// is 16-bit little-endian mono PCM at 16kHz.
type AudioInterface interface {
	// Start begins capturing; input is called with each captured chunk.
	Start(input func(pcm []byte)) error
	// Output queues agent audio for playback.
	Output(pcm []byte)
	// Interrupt drops queued playback.
	Interrupt()
	// Stop ends capture and playback.
	Stop()
}

// Config holds conversation settings
type Config struct {
	APIKey  string
	AgentID string

	// RequiresAuth fetches a signed URL with the API key before connecting.
	RequiresAuth bool

	Audio     AudioInterface
	Listener  session.Listener
	Overrides *Overrides

	APIURL     string // default https://api.elevenlabs.io
	WSURL      string // default wss://api.elevenlabs.io
	HTTPClient *http.Client
}

// Conversation is one agent conversation. It is not reusable.
type Conversation struct {
	cfg      Config
	listener session.Listener

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    *websocket.Conn
	ended   bool
	endCh   chan struct{}

	lastInterruptID int
}

// New creates a conversation; nothing is sent until StartSession.
func New(config Config) *Conversation {
	if config.APIURL == "" {
		config.APIURL = defaultAPIURL
	}
	if config.WSURL == "" {
		config.WSURL = defaultWSURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	listener := config.Listener
	if listener == nil {
		listener = nopListener{}
	}

	return &Conversation{
		cfg:      config,
		listener: listener,
		endCh:    make(chan struct{}),
	}
}

// StartSession connects and runs the conversation until EndSession is
// called, ctx is done or the connection fails. It returns nil when the
// session was ended locally or closed normally by the server.
func (c *Conversation) StartSession(ctx context.Context) error {
	if c.isEnded() {
		return nil
	}

	wsURL, err := c.sessionURL(ctx)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("convai connection failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("convai connection failed: %w", err)
	}

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()
	defer conn.Close()

	logger.Infof("Connected to agent %s", c.cfg.AgentID)

	// Closing the socket is the only way to interrupt ReadMessage.
	watchDone := make(chan struct{})
	var watchers sync.WaitGroup
	watchers.Add(1)
	go func() {
		defer watchers.Done()
		select {
		case <-ctx.Done():
		case <-c.endCh:
		case <-watchDone:
			return
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()
	defer func() {
		close(watchDone)
		watchers.Wait()
	}()

	if err := c.writeJSON(initiationClientData{
		Type:     typeInitiationClientData,
		Override: c.cfg.Overrides.configOverride(),
	}); err != nil {
		return c.exitErr(ctx, fmt.Errorf("failed to send initiation data: %w", err))
	}

	if c.cfg.Audio != nil {
		if err := c.cfg.Audio.Start(c.sendAudio); err != nil {
			return fmt.Errorf("failed to start audio: %w", err)
		}
		defer c.cfg.Audio.Stop()
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Infof("Conversation closed by server")
				return nil
			}
			return c.exitErr(ctx, fmt.Errorf("convai read failed: %w", err))
		}
		c.handleMessage(message)
	}
}

// EndSession stops a running or not yet started session. It is safe to call
// more than once.
func (c *Conversation) EndSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.ended = true
	close(c.endCh)
	logger.Infof("Ending conversation")
}

func (c *Conversation) isEnded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

// exitErr hides errors caused by our own shutdown.
func (c *Conversation) exitErr(ctx context.Context, err error) error {
	if c.isEnded() {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Conversation) handleMessage(message []byte) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		logger.Debugf("Skipping malformed message: %v", err)
		return
	}

	switch env.Type {
	case typeInitiationMetadata:
		var msg initiationMetadata
		if json.Unmarshal(message, &msg) == nil {
			logger.Infof("Conversation %s started (output %s, input %s)",
				msg.Event.ConversationID, msg.Event.AgentOutputAudioFormat, msg.Event.UserInputAudioFormat)
		}
		c.listener.OnReady()

	case typeAudio:
		var msg audioMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		if msg.Event.EventID <= c.lastInterruptID || c.cfg.Audio == nil {
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(msg.Event.Audio)
		if err != nil {
			logger.Debugf("Skipping undecodable audio event %d: %v", msg.Event.EventID, err)
			return
		}
		c.cfg.Audio.Output(pcm)

	case typeAgentResponse:
		var msg agentResponseMessage
		if json.Unmarshal(message, &msg) == nil {
			c.listener.OnAgentResponse(msg.Event.Text)
		}

	case typeAgentCorrection:
		var msg agentCorrectionMessage
		if json.Unmarshal(message, &msg) == nil {
			logger.Debugf("Agent response corrected: %q -> %q", msg.Event.Original, msg.Event.Corrected)
		}

	case typeUserTranscript:
		var msg userTranscriptMessage
		if json.Unmarshal(message, &msg) == nil {
			c.listener.OnUserTranscript(msg.Event.Text)
		}

	case typeInterruption:
		var msg interruptionMessage
		if json.Unmarshal(message, &msg) == nil {
			c.lastInterruptID = msg.Event.EventID
		}
		if c.cfg.Audio != nil {
			c.cfg.Audio.Interrupt()
		}

	case typePing:
		var msg pingMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		pong := pongMessage{Type: typePong, EventID: msg.Event.EventID}
		delay := time.Duration(msg.Event.PingMs) * time.Millisecond
		time.AfterFunc(delay, func() {
			if err := c.writeJSON(pong); err != nil {
				logger.Debugf("Failed to send pong %d: %v", pong.EventID, err)
			}
		})

	default:
		logger.Debugf("Ignoring message type %q", env.Type)
	}
}

func (c *Conversation) sendAudio(pcm []byte) {
	chunk := userAudioChunk{Chunk: base64.StdEncoding.EncodeToString(pcm)}
	if err := c.writeJSON(chunk); err != nil {
		logger.Debugf("Failed to send audio chunk: %v", err)
	}
}

func (c *Conversation) writeJSON(v interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (c *Conversation) sessionURL(ctx context.Context) (string, error) {
	if c.cfg.RequiresAuth {
		return c.signedURL(ctx)
	}
	return fmt.Sprintf("%s/v1/convai/conversation?agent_id=%s",
		c.cfg.WSURL, url.QueryEscape(c.cfg.AgentID)), nil
}

// signedURL exchanges the API key for a short-lived websocket URL.
func (c *Conversation) signedURL(ctx context.Context) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/convai/conversation/get-signed-url?agent_id=%s",
		c.cfg.APIURL, url.QueryEscape(c.cfg.AgentID))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("signed url request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("signed url API error %d: %s", resp.StatusCode, string(body))
	}

	var out signedURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode signed url: %w", err)
	}
	if out.SignedURL == "" {
		return "", errors.New("signed url API returned an empty url")
	}
	return out.SignedURL, nil
}

type nopListener struct{}

func (nopListener) OnReady()                {}
func (nopListener) OnAgentResponse(string)  {}
func (nopListener) OnUserTranscript(string) {}
