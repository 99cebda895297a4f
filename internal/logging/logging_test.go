package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFilePath(t *testing.T) {
	start := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	assert.Equal(t, filepath.Join("logs", "planeboard_20260212_213836.log"),
		LogFilePath("logs", "planeboard", start))
	assert.Equal(t, filepath.Join("/var", "log", "pb", "planeboard_20260212_213836.log"),
		LogFilePath(filepath.Join("/var", "log", "pb"), "planeboard", start))
}

func TestOpenLogFile_RotatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "planeboard.log")

	f, err := OpenLogFile(path)
	require.NoError(t, err)
	_, err = f.WriteString("first session\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = OpenLogFile(path)
	require.NoError(t, err)
	defer f.Close()

	old, err := os.ReadFile(path + ".old")
	require.NoError(t, err)
	assert.Equal(t, "first session\n", string(old))

	cur, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, cur)
}
