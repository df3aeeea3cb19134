// Package credentials resolves the API key and agent identifier used to open
// a conversation. Values come from the environment first and from a
// persisted KEY=VALUE file in the user's home directory second; the file can
// be replaced by importing another one.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"voiceassistant/pkg/logging"
)

const (
	KeyAPIKey  = "API_KEY"
	KeyAgentID = "AGENT_ID"

	// FileName is the persisted store, relative to the user's home directory.
	FileName = ".assistant_vocal_config"
)

var logger = logging.New("credentials")

// Credentials is the pair needed to authenticate a conversation.
type Credentials struct {
	APIKey  string
	AgentID string
}

// Environ looks up a single environment value.
type Environ func(key string) (string, bool)

// OSEnviron reads the process environment.
var OSEnviron Environ = os.LookupEnv

// Store reads and writes credentials at a fixed path.
type Store struct {
	path string
	env  Environ
}

// DefaultPath returns ~/.assistant_vocal_config.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, FileName), nil
}

// NewStore creates a store persisting to path. A nil env means no
// environment values.
func NewStore(path string, env Environ) *Store {
	if env == nil {
		env = func(string) (string, bool) { return "", false }
	}
	return &Store{path: path, env: env}
}

// Path returns the persisted file location.
func (s *Store) Path() string {
	return s.path
}

// Load merges the environment over the persisted file. It returns
// ErrMissingCredentials when either key is absent or empty.
func (s *Store) Load() (Credentials, error) {
	persisted, _, err := readFile(s.path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		persisted = nil
	default:
		logger.Warnf("Ignoring persisted credentials: %v", err)
		persisted = nil
	}

	creds := Credentials{
		APIKey:  s.lookup(KeyAPIKey, persisted),
		AgentID: s.lookup(KeyAgentID, persisted),
	}
	if !creds.complete() {
		return Credentials{}, ErrMissingCredentials
	}
	return creds, nil
}

func (s *Store) lookup(key string, persisted map[string]string) string {
	if v, ok := s.env(key); ok && v != "" {
		return v
	}
	return persisted[key]
}

// Import validates the file at sourcePath and, if it holds both keys,
// replaces the persisted file with a byte-for-byte copy of it. On any
// failure the persisted file is left as it was.
func (s *Store) Import(sourcePath string) (Credentials, error) {
	values, data, err := readFile(sourcePath)
	if err != nil {
		return Credentials{}, err
	}

	creds := Credentials{APIKey: values[KeyAPIKey], AgentID: values[KeyAgentID]}
	if !creds.complete() {
		return Credentials{}, &SourceError{Path: sourcePath, Op: "validate", Err: ErrMissingCredentials}
	}

	if err := s.persist(data); err != nil {
		return Credentials{}, err
	}
	logger.Infof("Imported credentials from %s into %s", sourcePath, s.path)
	return creds, nil
}

// persist writes the validated source unchanged. Re-marshalling would
// rewrite values such as "007" as integers.
func (s *Store) persist(data []byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &SourceError{Path: s.path, Op: "persist", Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &SourceError{Path: s.path, Op: "persist", Err: err}
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return &SourceError{Path: s.path, Op: "persist", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &SourceError{Path: s.path, Op: "persist", Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return &SourceError{Path: s.path, Op: "persist", Err: err}
	}
	return nil
}

func (c Credentials) complete() bool {
	return c.APIKey != "" && c.AgentID != ""
}

// readFile parses a KEY=VALUE file and returns its raw content too. A
// missing file is reported with an error that matches os.ErrNotExist.
func readFile(path string) (map[string]string, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &SourceError{Path: path, Op: "read", Err: err}
	}
	values, err := godotenv.UnmarshalBytes(data)
	if err != nil {
		return nil, nil, &SourceError{Path: path, Op: "parse", Err: err}
	}
	return values, data, nil
}
