package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestTestAndClean(t *testing.T) {
	dataDir := t.TempDir()
	b := bytes.NewBufferString("")

	// the json format leaves the global logger in place
	log.Logger = zerolog.New(zerolog.SyncWriter(b))

	root := NewRootCommand()
	root.SetArgs(strings.Split("test --log-format json -d "+dataDir, " "))
	require.NoError(t, root.Execute())
	out := b.String()
	require.Contains(t, out, "recorded run")
	require.Contains(t, out, "MacroAccuracy")
	require.FileExists(t, filepath.Join(dataDir, "out", "accuracy.tsv"))

	root = NewRootCommand()
	root.SetArgs(strings.Split("clean -d "+dataDir, " "))
	require.NoError(t, root.Execute())
	require.NoDirExists(t, filepath.Join(dataDir, "out"))
	require.NoDirExists(t, filepath.Join(dataDir, "temp"))
}

func TestInvalidLogging(t *testing.T) {
	for _, args := range []string{"test --log-level verbose", "test --log-format xml"} {
		root := NewRootCommand()
		root.SetArgs(strings.Split(args, " "))
		require.Error(t, root.Execute())
	}
}
