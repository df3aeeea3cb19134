package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/getlantern/systray"

	"voiceassistant/pkg/logging"
)

var (
	// embeddedAPIKey and embeddedAgentID can be set via
	// -ldflags "-X main.embeddedAPIKey=... -X main.embeddedAgentID=..."
	embeddedAPIKey  string
	embeddedAgentID string
)

var logger = logging.New("tray")

func main() {
	// App bundles have no terminal; log to a file instead.
	if f, err := openLogFile(); err == nil {
		logging.SetOutput(f)
		defer f.Close()
	}
	if os.Getenv("VOICEASSISTANT_DEBUG") != "" {
		logging.SetVerbose(true)
	}
	logger.Infof("Voice assistant started")

	app := newApp()
	systray.Run(app.onReady, app.onExit)
}

func openLogFile() (*os.File, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	dir = filepath.Join(dir, "voiceassistant")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "voiceassistant.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return nil, err
	}
	return f, nil
}

// environ reads the process environment, falling back to credentials
// embedded at build time.
func environ(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, true
	}
	var v string
	switch key {
	case "API_KEY":
		v = embeddedAPIKey
	case "AGENT_ID":
		v = embeddedAgentID
	}
	return v, v != ""
}
