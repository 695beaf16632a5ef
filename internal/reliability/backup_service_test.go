package reliability

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	sum, err := calculateChecksum(path)
	require.NoError(t, err)
	// sha256("hello")
	assert.Equal(t, "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)

	_, err = calculateChecksum(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestWriteMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup-metadata.json")
	meta := BackupMetadata{
		Timestamp: time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC),
		Databases: []DatabaseMetadata{{
			Name:      "analyses",
			Filename:  "analyses.db",
			SizeBytes: 1024,
			Checksum:  "sha256:abc",
		}},
	}
	require.NoError(t, writeMetadata(path, meta))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"analyses.db"`)
	assert.Contains(t, string(data), `"sha256:abc"`)
}

func TestCreateArchiveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "analyses.db")
	second := filepath.Join(dir, "backup-metadata.json")
	require.NoError(t, os.WriteFile(first, []byte("db contents"), 0644))
	require.NoError(t, os.WriteFile(second, []byte(`{"ok": true}`), 0644))

	archivePath := filepath.Join(dir, "backup.tar.gz")
	require.NoError(t, createArchive(archivePath, []string{first, second}))

	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	contents := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[hdr.Name] = string(body)
	}

	assert.Equal(t, "db contents", contents["analyses.db"])
	assert.Equal(t, `{"ok": true}`, contents["backup-metadata.json"])
}
