package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/vault/internal/sqlite"
	"github.com/mesh-intelligence/vault/pkg/types"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 56)...)

type testDirs struct {
	config string
	data   string
	work   string
}

func newTestDirs(t *testing.T) testDirs {
	t.Helper()
	root := t.TempDir()
	return testDirs{
		config: filepath.Join(root, "config"),
		data:   filepath.Join(root, "data"),
		work:   root,
	}
}

func (d testDirs) run(args ...string) (string, error) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config-dir", d.config, "--data-dir", d.data}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (d testDirs) writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(d.work, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func (d testDirs) contribute(t *testing.T, args ...string) *types.Contribution {
	t.Helper()
	img := d.writeFile(t, "image.png", pngBytes)
	out, err := d.run(append([]string{"--json", "contribute", "--image", img}, args...)...)
	require.NoError(t, err)
	var c types.Contribution
	require.NoError(t, json.Unmarshal([]byte(out), &c))
	return &c
}

func (d testDirs) uploads(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(d.data, "uploads"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestVersion(t *testing.T) {
	out, err := newTestDirs(t).run("version")
	require.NoError(t, err)
	assert.Contains(t, out, "vault v"+Version)
	assert.Contains(t, out, modulePath)
}

func TestInit(t *testing.T) {
	d := newTestDirs(t)
	out, err := d.run("init")
	require.NoError(t, err)
	assert.Contains(t, out, d.data)

	assert.FileExists(t, filepath.Join(d.config, "config.yaml"))
	assert.FileExists(t, filepath.Join(d.data, sqlite.DBFileName))
	assert.DirExists(t, filepath.Join(d.data, "uploads"))

	// Running init again keeps the existing store.
	_, err = d.run("init")
	require.NoError(t, err)
}

func TestContributeAndLineage(t *testing.T) {
	d := newTestDirs(t)

	root := d.contribute(t,
		"--prompt", "Draw the harbour",
		"--question", "What is missing?",
		"--question", "Who lives here?",
		"--description", "first light",
	)
	assert.True(t, root.IsRoot())
	assert.Equal(t, root.ID, root.LineageRootID)
	assert.Regexp(t, `^[0-9a-f]{32}$`, root.ShareToken)
	assert.Equal(t, cliAgent, root.ContributorAgent)

	child := d.contribute(t, "--parent", root.ShareToken, "--answer", "The boats", "--lat", "45.5", "--lon", "-73.6")
	require.NotNil(t, child.ParentID)
	assert.Equal(t, root.ID, *child.ParentID)
	assert.Equal(t, root.ID, child.LineageRootID)
	require.NotNil(t, child.Location)
	assert.InDelta(t, 45.5, child.Location.Latitude, 1e-9)

	out, err := d.run("--json", "lineage", child.ShareToken)
	require.NoError(t, err)
	var l types.Lineage
	require.NoError(t, json.Unmarshal([]byte(out), &l))
	require.Equal(t, 2, l.Depth())
	assert.Equal(t, root.ShareToken, l.Root().ShareToken)
	assert.Equal(t, child.ShareToken, l.Tip().ShareToken)
	require.NotNil(t, l.Prompt)
	assert.Equal(t, "Draw the harbour", *l.Prompt)
	require.NotNil(t, l.RootQuestions.Q2)
	assert.Equal(t, "Who lives here?", *l.RootQuestions.Q2)
	assert.False(t, l.Truncated)

	text, err := d.run("lineage", child.ShareToken)
	require.NoError(t, err)
	assert.Contains(t, text, "Prompt: Draw the harbour")
	assert.Contains(t, text, "Q1: What is missing?")
	assert.Contains(t, text, "The boats")

	assert.Len(t, d.uploads(t), 2)
}

func TestContribute_Errors(t *testing.T) {
	d := newTestDirs(t)
	img := d.writeFile(t, "image.png", pngBytes)
	txt := d.writeFile(t, "notes.txt", []byte("plain text, not an image"))
	_, err := d.run("init")
	require.NoError(t, err)

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{name: "missing image flag", args: []string{"contribute"}},
		{name: "image file absent", args: []string{"contribute", "--image", filepath.Join(d.work, "nope.png")}},
		{name: "not an image", args: []string{"contribute", "--image", txt}, wantErr: types.ErrNotImage},
		{name: "unknown parent", args: []string{"contribute", "--image", img, "--parent", "ffff"}, wantErr: types.ErrParentNotFound},
		{name: "too many questions", args: []string{"contribute", "--image", img, "--question", "a", "--question", "b", "--question", "c", "--question", "d"}},
		{name: "latitude without longitude", args: []string{"contribute", "--image", img, "--lat", "10"}},
		{name: "location out of range", args: []string{"contribute", "--image", img, "--lat", "91", "--lon", "0"}, wantErr: types.ErrInvalidLocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.run(tt.args...)
			require.Error(t, err)
			assert.Equal(t, exitUserError, exitCode(err))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	assert.Empty(t, d.uploads(t), "failed contributions must not leave images behind")
}

func TestLineage_NotFound(t *testing.T) {
	d := newTestDirs(t)
	_, err := d.run("lineage", "0000")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestLatest(t *testing.T) {
	d := newTestDirs(t)

	out, err := d.run("latest")
	require.NoError(t, err)
	assert.Contains(t, out, "No contributions with a location.")

	d.contribute(t, "--lat", "1", "--lon", "2")
	d.contribute(t)
	placed := d.contribute(t, "--lat", "3", "--lon", "4")

	out, err = d.run("--json", "latest")
	require.NoError(t, err)
	var list []*types.Contribution
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 2)
	assert.Equal(t, placed.ID, list[0].ID)

	out, err = d.run("--json", "latest", "--limit", "1")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Len(t, list, 1)
}

func TestExportImport(t *testing.T) {
	src := newTestDirs(t)
	root := src.contribute(t, "--prompt", "Draw the harbour")
	child := src.contribute(t, "--parent", root.ShareToken, "--answer", "The boats")

	dump := filepath.Join(src.work, "dump.jsonl")
	out, err := src.run("export", dump)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 2 contributions")

	dst := newTestDirs(t)
	out, err = dst.run("--json", "import", dump)
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`{"imported": 2, "file": %q}`, dump), out)

	out, err = dst.run("--json", "lineage", child.ShareToken)
	require.NoError(t, err)
	var l types.Lineage
	require.NoError(t, json.Unmarshal([]byte(out), &l))
	assert.Equal(t, 2, l.Depth())

	// A second import into the now populated store is refused.
	_, err = dst.run("import", dump)
	require.Error(t, err)
	assert.ErrorIs(t, err, sqlite.ErrStoreNotEmpty)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestSweep(t *testing.T) {
	d := newTestDirs(t)
	d.contribute(t)

	out, err := d.run("sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "Swept 0 pending contributions")
	assert.Len(t, d.uploads(t), 1)
}

func TestInvalidConfig(t *testing.T) {
	d := newTestDirs(t)
	require.NoError(t, os.MkdirAll(d.config, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(d.config, "config.yaml"), []byte("lineage:\n  integrity: sometimes\n"), 0o644))

	_, err := d.run("init")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrIntegrityPolicy)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "plain", err: errors.New("bad flag"), want: exitUserError},
		{name: "system", err: systemError(errors.New("disk full")), want: exitSysError},
		{name: "not found", err: classify(types.ErrNotFound), want: exitUserError},
		{name: "validation", err: classify(types.ErrMissingImage), want: exitUserError},
		{name: "integrity", err: classify(types.ErrIntegrity), want: exitSysError},
		{name: "storage", err: classify(errors.New("database is locked")), want: exitSysError},
		{name: "wrapped system", err: fmt.Errorf("open: %w", systemError(os.ErrPermission)), want: exitSysError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
