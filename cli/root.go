package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"voiceassistant/pkg/audio"
	"voiceassistant/pkg/convai"
	"voiceassistant/pkg/credentials"
	"voiceassistant/pkg/logging"
	"voiceassistant/pkg/session"
	"voiceassistant/pkg/sink"
)

var (
	verbose       bool
	overridesPath string
)

var logger = logging.New("cli")

var rootCmd = &cobra.Command{
	Use:   "voiceassistant",
	Short: "Talk to an ElevenLabs conversational agent from the terminal",
	Long: `Opens a voice conversation with your ElevenLabs agent using the default
microphone and speakers, and prints the transcript as it happens.

Credentials are read from the API_KEY and AGENT_ID environment variables,
then from ~/.assistant_vocal_config. Press Ctrl+C to end the conversation.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logging.SetVerbose(true)
		} else {
			logging.SetLevel(logging.LevelWarn)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := defaultStore()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		creds, err := loadCredentials(out, store)
		if err != nil {
			return err
		}

		device, err := audio.NewDevice()
		if err != nil {
			return err
		}
		defer device.Close()

		return converse(cmd.Context(), out, creds, convai.Dialer(device, loadOverrides(overridesPath)))
	},
}

// Execute runs the root command and exits 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.Flags().StringVar(&overridesPath, "agent-config", "", "YAML file with prompt, first_message and language overrides (default ~/.assistant_vocal_agent.yaml)")
}

func defaultStore() (*credentials.Store, error) {
	path, err := credentials.DefaultPath()
	if err != nil {
		return nil, err
	}
	return credentials.NewStore(path, credentials.OSEnviron), nil
}

// loadCredentials prints setup guidance when credentials are missing.
func loadCredentials(out io.Writer, store *credentials.Store) (credentials.Credentials, error) {
	creds, err := store.Load()
	if errors.Is(err, credentials.ErrMissingCredentials) {
		fmt.Fprintf(out, "%s and %s must be set.\n", credentials.KeyAPIKey, credentials.KeyAgentID)
		fmt.Fprintf(out, "Export them in your shell, or import a .env file containing both:\n")
		fmt.Fprintf(out, "  voiceassistant import path/to/file.env\n")
		fmt.Fprintf(out, "Imported credentials are stored in %s\n", store.Path())
	}
	return creds, err
}

func loadOverrides(path string) *convai.Overrides {
	if path == "" {
		var err error
		if path, err = convai.DefaultOverridesPath(); err != nil {
			logger.Warnf("%v", err)
			return nil
		}
	}
	overrides, err := convai.LoadOverrides(path)
	if err != nil {
		logger.Warnf("Ignoring agent overrides: %v", err)
		return nil
	}
	return overrides
}

// notifyContext is replaced in tests.
var notifyContext = func(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// converse runs one session until interrupted or until the session ends on
// its own. It returns nil on interrupt and on a clean remote end.
func converse(parent context.Context, w io.Writer, creds credentials.Credentials, dial session.Dialer) error {
	ctx, stop := notifyContext(parent)
	defer stop()

	out := &lockedWriter{w: w}
	ctrl := session.NewController(session.Config{
		Dial: dial,
		Sink: sink.NewConsole(out),
		OnStateChange: func(s session.State) {
			if s == session.Active {
				fmt.Fprintln(out, "Connected. Start talking, Ctrl+C to quit.")
			}
		},
	})

	fmt.Fprintln(out, "Connecting...")
	if err := ctrl.Start(creds); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		// A second interrupt kills the process if teardown hangs.
		stop()
		fmt.Fprintln(out, "Closing...")
		ctrl.Stop()
		return nil
	case <-ctrl.Done():
		return ctrl.Err()
	}
}

// lockedWriter serializes status lines with transcript lines written from
// the session goroutine.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
