package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerLogAndReadAllRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.ndjson")
	log, err := NewLogger(path)
	require.NoError(t, err)

	entries := []Entry{
		{ID: "1", Timestamp: time.Now(), Action: "BLOCKLIST_ADD", Address: "addr-1", Reason: "ofac", Status: "SUCCESS"},
		{ID: "2", Timestamp: time.Now(), Action: "BLOCKLIST_REMOVE", Address: "addr-1", Status: "SUCCESS"},
	}
	for _, e := range entries {
		require.NoError(t, log.Log(e))
	}

	got, err := log.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "BLOCKLIST_ADD", got[0].Action)
	assert.Equal(t, "BLOCKLIST_REMOVE", got[1].Action)
}

func TestLoggerCreatesRestrictivePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	log, err := NewLogger(path)
	require.NoError(t, err)
	require.NoError(t, log.Log(Entry{ID: "1", Action: "BLOCKLIST_ADD", Status: "SUCCESS"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestReadAllOnMissingFileReturnsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never-written.ndjson")
	log, err := NewLogger(path)
	require.NoError(t, err)

	entries, err := log.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadAllSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.ndjson")
	log, err := NewLogger(path)
	require.NoError(t, err)
	require.NoError(t, log.Log(Entry{ID: "1", Action: "BLOCKLIST_ADD", Status: "SUCCESS"}))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("not valid json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, log.Log(Entry{ID: "2", Action: "BLOCKLIST_REMOVE", Status: "SUCCESS"}))

	entries, err := log.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "1", entries[0].ID)
	assert.Equal(t, "2", entries[1].ID)
}
