package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceassistant/pkg/credentials"
	"voiceassistant/pkg/session"
)

var testCreds = credentials.Credentials{APIKey: "abc", AgentID: "xyz"}

// scriptedConversation reports ready, plays its lines, then waits.
type scriptedConversation struct {
	listener session.Listener
	lines    []string
	result   error
	finish   bool
	ended    chan struct{}
}

func (c *scriptedConversation) StartSession(ctx context.Context) error {
	c.listener.OnReady()
	for _, line := range c.lines {
		c.listener.OnAgentResponse(line)
	}
	if c.finish {
		return c.result
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ended:
		return nil
	}
}

func (c *scriptedConversation) EndSession() {
	select {
	case <-c.ended:
	default:
		close(c.ended)
	}
}

func scripted(lines []string, finish bool, result error) (session.Dialer, chan struct{}) {
	dialed := make(chan struct{}, 1)
	return func(creds credentials.Credentials, l session.Listener) (session.Conversation, error) {
		dialed <- struct{}{}
		return &scriptedConversation{
			listener: l,
			lines:    lines,
			finish:   finish,
			result:   result,
			ended:    make(chan struct{}),
		}, nil
	}, dialed
}

func TestConverseInterruptReturnsNil(t *testing.T) {
	dial, dialed := scripted([]string{"Hello Clement, how can I help you today?"}, false, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var out bytes.Buffer
	errc := make(chan error, 1)
	go func() { errc <- converse(ctx, &out, testCreds, dial) }()

	select {
	case <-dialed:
	case <-time.After(2 * time.Second):
		t.Fatal("never dialed")
	}
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("converse did not return after interrupt")
	}
	assert.Contains(t, out.String(), "Connecting...")
	assert.Contains(t, out.String(), "Closing...")
}

// endRecorder notes whether signal handling was released before teardown.
type endRecorder struct {
	listener  session.Listener
	released  *atomic.Bool
	sawSignal atomic.Bool
	started   chan struct{}
	ended     chan struct{}
}

func (c *endRecorder) StartSession(ctx context.Context) error {
	c.listener.OnReady()
	close(c.started)
	select {
	case <-ctx.Done():
	case <-c.ended:
	}
	return nil
}

func (c *endRecorder) EndSession() {
	c.sawSignal.Store(c.released.Load())
	close(c.ended)
}

func TestConverseReleasesSignalsBeforeTeardown(t *testing.T) {
	var released atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	prev := notifyContext
	notifyContext = func(context.Context) (context.Context, context.CancelFunc) {
		return ctx, func() { released.Store(true) }
	}
	t.Cleanup(func() { notifyContext = prev })

	convs := make(chan *endRecorder, 1)
	dial := func(_ credentials.Credentials, l session.Listener) (session.Conversation, error) {
		c := &endRecorder{listener: l, released: &released, started: make(chan struct{}), ended: make(chan struct{})}
		convs <- c
		return c, nil
	}

	errc := make(chan error, 1)
	go func() { errc <- converse(context.Background(), &bytes.Buffer{}, testCreds, dial) }()

	var conv *endRecorder
	select {
	case conv = <-convs:
	case <-time.After(2 * time.Second):
		t.Fatal("never dialed")
	}
	<-conv.started
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("converse did not return after interrupt")
	}
	assert.True(t, conv.sawSignal.Load(), "signal handling still installed during teardown")
}

func TestConverseSessionFailure(t *testing.T) {
	dial := func(credentials.Credentials, session.Listener) (session.Conversation, error) {
		return nil, errors.New("signed url API error 401: invalid api key")
	}

	var out bytes.Buffer
	err := converse(context.Background(), &out, testCreds, dial)
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrSessionFailure)
	assert.Contains(t, out.String(), "invalid api key")
}

func TestConverseRemoteEnd(t *testing.T) {
	dial, _ := scripted([]string{"Goodbye."}, true, nil)

	var out bytes.Buffer
	err := converse(context.Background(), &out, testCreds, dial)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Goodbye.")
	assert.Contains(t, out.String(), "Conversation ended")
}

func TestConverseConnectionDropped(t *testing.T) {
	dial, _ := scripted(nil, true, errors.New("convai read failed: unexpected EOF"))

	var out bytes.Buffer
	err := converse(context.Background(), &out, testCreds, dial)
	assert.ErrorIs(t, err, session.ErrSessionFailure)
	assert.Contains(t, out.String(), "unexpected EOF")
}

func TestLoadCredentialsMissingPrintsGuidance(t *testing.T) {
	store := credentials.NewStore(filepath.Join(t.TempDir(), "config"), nil)

	var out bytes.Buffer
	_, err := loadCredentials(&out, store)
	assert.ErrorIs(t, err, credentials.ErrMissingCredentials)
	assert.Contains(t, out.String(), "API_KEY and AGENT_ID must be set")
	assert.Contains(t, out.String(), "voiceassistant import")
}

func TestLoadCredentialsFromStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte("API_KEY=abc\nAGENT_ID=xyz\n"), 0600))

	var out bytes.Buffer
	creds, err := loadCredentials(&out, credentials.NewStore(path, nil))
	require.NoError(t, err)
	assert.Equal(t, testCreds, creds)
	assert.Empty(t, out.String())
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	assert.Nil(t, loadOverrides(filepath.Join(dir, "absent.yaml")))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("prompt: [oops\n"), 0600))
	assert.Nil(t, loadOverrides(bad))

	good := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(good, []byte("first_message: Hi\n"), 0600))
	overrides := loadOverrides(good)
	require.NotNil(t, overrides)
	assert.Equal(t, "Hi", overrides.FirstMessage)
}

func TestImportCommand(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	src := filepath.Join(t.TempDir(), "agent.env")
	require.NoError(t, os.WriteFile(src, []byte("API_KEY=abc\nAGENT_ID=xyz\n"), 0600))

	var out bytes.Buffer
	rootCmd.SetArgs([]string{"import", src})
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "Credentials for agent xyz saved")
	data, err := os.ReadFile(filepath.Join(home, credentials.FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "AGENT_ID")
}

func TestImportCommandInvalidFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	src := filepath.Join(t.TempDir(), "agent.env")
	require.NoError(t, os.WriteFile(src, []byte("API_KEY=abc\n"), 0600))

	rootCmd.SetArgs([]string{"import", src})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	err := rootCmd.Execute()
	assert.ErrorIs(t, err, credentials.ErrInvalidSource)
}

func TestImportCommandRequiresOneArg(t *testing.T) {
	rootCmd.SetArgs([]string{"import"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	assert.Error(t, rootCmd.Execute())
}

func TestCommandsRegistered(t *testing.T) {
	found := false
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == "import" {
			found = true
		}
	}
	assert.True(t, found, "import command not registered")
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("verbose"))
	assert.NotNil(t, rootCmd.Flags().Lookup("agent-config"))
}
