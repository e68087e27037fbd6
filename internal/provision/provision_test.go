package provision

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRuntime installs an executable that prints out on --version.
func fakeRuntime(t *testing.T, out string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fakepy")
	script := "#!/bin/sh\necho '" + out + "'\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestCheck(t *testing.T) {
	path := fakeRuntime(t, "Python 3.9.18")

	res, err := Probe{Command: path, MinVersion: "3.9"}.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3.9.18", res.Version)
	assert.Equal(t, path, res.Path)

	_, err = Probe{Command: path, MinVersion: "3.10"}.Check(context.Background())
	assert.ErrorIs(t, err, ErrRuntimeVersion)
}

func TestCheckMissing(t *testing.T) {
	_, err := Probe{Command: filepath.Join(t.TempDir(), "nope"), MinVersion: "1"}.Check(context.Background())
	assert.ErrorIs(t, err, ErrRuntimeMissing)
}

func TestCheckNoVersion(t *testing.T) {
	path := fakeRuntime(t, "unknown build")
	_, err := Probe{Command: path}.Check(context.Background())
	assert.ErrorIs(t, err, ErrRuntimeVersion)
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"3.9", "3.9.0", 0},
		{"3.9.18", "3.9", 1},
		{"3.9", "3.10", -1},
		{"go1.25.1", "1.24", 1},
		{"19c", "19", 0},
		{"", "1", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestExtractVersion(t *testing.T) {
	assert.Equal(t, "1.25.1", ExtractVersion("go version go1.25.1 linux/amd64"))
	assert.Equal(t, "3.9.18", ExtractVersion("Python 3.9.18"))
	assert.Equal(t, "", ExtractVersion("none"))
}
