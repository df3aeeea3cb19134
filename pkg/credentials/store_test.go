package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(values map[string]string) Environ {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestLoadMissing(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		env  map[string]string
		file string
		ok   bool
	}{
		{name: "nothing anywhere"},
		{name: "env only api key", env: map[string]string{KeyAPIKey: "abc"}},
		{name: "env empty values", env: map[string]string{KeyAPIKey: "", KeyAgentID: ""}},
		{name: "env complete", env: map[string]string{KeyAPIKey: "abc", KeyAgentID: "xyz"}, ok: true},
		{name: "file complete", file: "API_KEY=abc\nAGENT_ID=xyz\n", ok: true},
		{name: "file missing agent", file: "API_KEY=abc\n"},
		{name: "file empty agent", file: "API_KEY=abc\nAGENT_ID=\n"},
		{name: "split across env and file", env: map[string]string{KeyAPIKey: "abc"}, file: "AGENT_ID=xyz\n", ok: true},
		{name: "comments ignored", file: "# API_KEY=nope\nAPI_KEY=abc\n# trailing\nAGENT_ID=xyz\n", ok: true},
		{name: "corrupt file", file: "%%% not a dotenv file %%%\n"},
		{name: "corrupt file with env complete", env: map[string]string{KeyAPIKey: "abc", KeyAgentID: "xyz"}, file: "%%%\n", ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".cfg")
			if tt.file != "" {
				writeFile(t, path, tt.file)
			}

			creds, err := NewStore(path, envFrom(tt.env)).Load()
			if tt.ok {
				require.NoError(t, err)
				assert.NotEmpty(t, creds.APIKey)
				assert.NotEmpty(t, creds.AgentID)
				return
			}
			assert.ErrorIs(t, err, ErrMissingCredentials)
			assert.Equal(t, Credentials{}, creds)
		})
	}
}

func TestLoadEnvironmentTakesPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	writeFile(t, path, "API_KEY=file-key\nAGENT_ID=file-agent\n")

	store := NewStore(path, envFrom(map[string]string{
		KeyAPIKey:  "env-key",
		KeyAgentID: "env-agent",
	}))
	creds, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Credentials{APIKey: "env-key", AgentID: "env-agent"}, creds)
}

func TestLoadNilEnvironUsesFileOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	writeFile(t, path, "API_KEY=abc\nAGENT_ID=xyz\n")

	creds, err := NewStore(path, nil).Load()
	require.NoError(t, err)
	assert.Equal(t, Credentials{APIKey: "abc", AgentID: "xyz"}, creds)
}

func TestImportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "agent.env")
	writeFile(t, source, "# exported from the dashboard\nAPI_KEY=sk_live_123\nAGENT_ID=agent_456\nEXTRA=kept\n")

	store := NewStore(filepath.Join(dir, FileName), nil)
	creds, err := store.Import(source)
	require.NoError(t, err)
	assert.Equal(t, Credentials{APIKey: "sk_live_123", AgentID: "agent_456"}, creds)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, creds, loaded)

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestImportKeepsValuesVerbatim(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Credentials
	}{
		{"leading zeros", "API_KEY=012345\nAGENT_ID=007\n", Credentials{APIKey: "012345", AgentID: "007"}},
		{"plus sign", "API_KEY=+42\nAGENT_ID=0x1F\n", Credentials{APIKey: "+42", AgentID: "0x1F"}},
		{"quoted with hash", "API_KEY=\"sk#1\"\nAGENT_ID='a b'\n", Credentials{APIKey: "sk#1", AgentID: "a b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			source := filepath.Join(dir, "agent.env")
			writeFile(t, source, tt.content)

			store := NewStore(filepath.Join(dir, FileName), nil)
			creds, err := store.Import(source)
			require.NoError(t, err)
			assert.Equal(t, tt.want, creds)

			loaded, err := store.Load()
			require.NoError(t, err)
			assert.Equal(t, tt.want, loaded)

			persisted, err := os.ReadFile(store.Path())
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(persisted))
		})
	}
}

func TestImportOverwritesPrevious(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, FileName), nil)
	writeFile(t, store.Path(), "API_KEY=old\nAGENT_ID=old\n")

	source := filepath.Join(dir, "new.env")
	writeFile(t, source, "API_KEY=new\nAGENT_ID=new-agent\n")

	_, err := store.Import(source)
	require.NoError(t, err)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Credentials{APIKey: "new", AgentID: "new-agent"}, loaded)
}

func TestImportInvalidSourceLeavesStoreUntouched(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, FileName), nil)
	previous := "# good credentials\nAPI_KEY=good\nAGENT_ID=good-agent\n"
	writeFile(t, store.Path(), previous)

	missingKey := filepath.Join(dir, "missing.env")
	writeFile(t, missingKey, "API_KEY=only-key\n")
	corrupt := filepath.Join(dir, "corrupt.env")
	writeFile(t, corrupt, "%%% garbage %%%\n")

	sources := map[string]string{
		"missing key": missingKey,
		"corrupt":     corrupt,
		"unreadable":  filepath.Join(dir, "does-not-exist.env"),
	}

	for name, source := range sources {
		t.Run(name, func(t *testing.T) {
			creds, err := store.Import(source)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSource)
			assert.Equal(t, Credentials{}, creds)

			var srcErr *SourceError
			require.True(t, errors.As(err, &srcErr))
			assert.Equal(t, source, srcErr.Path)

			data, err := os.ReadFile(store.Path())
			require.NoError(t, err)
			assert.Equal(t, previous, string(data))
		})
	}
}

func TestImportPersistFailureIsNotInvalidSource(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "agent.env")
	writeFile(t, source, "API_KEY=abc\nAGENT_ID=xyz\n")

	store := NewStore(filepath.Join(dir, "missing-dir", FileName), nil)
	_, err := store.Import(source)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidSource)
}

func TestSourceError(t *testing.T) {
	inner := errors.New("permission denied")
	err := &SourceError{Path: "/tmp/x.env", Op: "read", Err: inner}

	assert.Contains(t, err.Error(), "/tmp/x.env")
	assert.Contains(t, err.Error(), "read")
	assert.ErrorIs(t, err, inner)
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, FileName), path)
}
