package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadJSONFileDecodesIntoTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixture.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"fw_svn": 3}`), 0o644))

	var v struct {
		FwSvn int `json:"fw_svn"`
	}
	require.NoError(t, readJSONFile(path, &v))
	require.Equal(t, 3, v.FwSvn)
}

func TestReadJSONFileMissingPathErrors(t *testing.T) {
	var v map[string]any
	err := readJSONFile("/nonexistent/fixture.json", &v)
	require.Error(t, err)
}
