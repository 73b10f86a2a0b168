package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCLIRunner creates a temp workspace with a static-embeddings config and
// returns a closure that executes a fresh root command against it, so
// repeated calls within one test share the same underlying store.
func newCLIRunner(t *testing.T) func(args ...string) (string, error) {
	t.Helper()

	tmp := t.TempDir()
	cfgYAML := "store:\n  data_dir: " + filepath.Join(tmp, "data") + "\nembeddings:\n  provider: static\n  dimensions: 16\n  cache_size: 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmp, ".hybridstore.yaml"), []byte(cfgYAML), 0o644))

	oldDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmp))
	t.Cleanup(func() { _ = os.Chdir(oldDir) })

	return func(args ...string) (string, error) {
		cmd := NewRootCmd()
		buf := new(bytes.Buffer)
		cmd.SetOut(buf)
		cmd.SetErr(buf)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return buf.String(), err
	}
}

func TestVersionCmd_PrintsVersionString(t *testing.T) {
	run := newCLIRunner(t)
	out, err := run("version")
	require.NoError(t, err)
	assert.Contains(t, out, "hybridstore")
}

func TestStatsCmd_ReportsZeroOnFreshStore(t *testing.T) {
	run := newCLIRunner(t)
	out, err := run("stats")
	require.NoError(t, err)
	assert.Contains(t, out, "chunks: 0")
}

func TestIngestText_ThenSearch_FindsResult(t *testing.T) {
	run := newCLIRunner(t)

	_, err := run("ingest", "--text", "hybrid retrieval combines lexical and vector search")
	require.NoError(t, err)

	out, err := run("search", "lexical")
	require.NoError(t, err)
	assert.Contains(t, out, "hybrid retrieval")
}

func TestIngest_NoPathOrText_ReturnsError(t *testing.T) {
	run := newCLIRunner(t)
	_, err := run("ingest")
	assert.Error(t, err)
}

func TestDelete_MissingDocID_ReturnsError(t *testing.T) {
	run := newCLIRunner(t)
	_, err := run("delete")
	assert.Error(t, err)
}

func TestIngestText_ThenDelete_RemovesFromStats(t *testing.T) {
	run := newCLIRunner(t)

	_, err := run("ingest", "--text", "content to remove", "--doc-id", "doc-del")
	require.NoError(t, err)

	_, err = run("delete", "--doc-id", "doc-del")
	require.NoError(t, err)

	out, err := run("stats")
	require.NoError(t, err)
	assert.Contains(t, out, "chunks: 0")
}
