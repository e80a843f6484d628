package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/faize-ai/diskconv/internal/config"
	"github.com/faize-ai/diskconv/internal/convert"
	"github.com/faize-ai/diskconv/internal/domxml"
	"github.com/faize-ai/diskconv/internal/fsops"
	"github.com/faize-ai/diskconv/internal/qemuimg"
	"github.com/faize-ai/diskconv/internal/run"
	"github.com/faize-ai/diskconv/internal/virt"
)

func init() {
	// Assertions match plain text
	color.NoColor = true
}

// copyConverter "converts" by copying the source bytes to the destination.
type copyConverter struct {
	failOn map[string]bool
	calls  []qemuimg.Request
}

func (c *copyConverter) Probe(ctx context.Context) error { return nil }

func (c *copyConverter) Convert(ctx context.Context, req qemuimg.Request) error {
	c.calls = append(c.calls, req)
	if c.failOn[req.Source] {
		return fmt.Errorf("%w: exit code 1", qemuimg.ErrExitStatus)
	}
	data, err := os.ReadFile(req.Source)
	if err != nil {
		return err
	}
	return os.WriteFile(req.Destination, data, 0o644)
}

type testEnv struct {
	dir       string
	conn      *virt.MemoryConnection
	converter *copyConverter
	store     *run.Store
	env       *environment
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	store, err := run.NewStoreAt(filepath.Join(dir, "runs"))
	require.NoError(t, err)

	cfg, err := config.Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)

	te := &testEnv{
		dir:       dir,
		conn:      virt.NewMemoryConnection(),
		converter: &copyConverter{failOn: map[string]bool{}},
		store:     store,
	}
	te.env = &environment{
		cfg:       cfg,
		conn:      te.conn,
		converter: te.converter,
		fs:        fsops.NewRealFS(),
		log:       zap.NewNop(),
	}
	return te
}

// addDomain writes one raw image per name and registers a shut-off domain
// using them. It returns the image paths.
func (te *testEnv) addDomain(t *testing.T, name string, images ...string) []string {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "<domain type='kvm'><name>%s</name><devices>", name)
	var paths []string
	for i, image := range images {
		path := filepath.Join(te.dir, image)
		require.NoError(t, os.WriteFile(path, []byte("image "+image), 0o640))
		paths = append(paths, path)
		fmt.Fprintf(&b, "<disk type='file' device='disk'><driver name='qemu' type='raw'/><source file='%s'/><target dev='vd%c'/></disk>",
			path, 'a'+i)
	}
	b.WriteString("</devices></domain>")
	te.conn.AddDomain(name, b.String(), false)
	return paths
}

func (te *testEnv) convert(t *testing.T, opts convertOptions) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := convertDomain(context.Background(), te.env, te.store, opts, &out)
	return out.String(), err
}

func (te *testEnv) definedDisks(t *testing.T, name string) [][2]string {
	t.Helper()
	xml, ok := te.conn.Definition(name)
	require.True(t, ok)
	doc, err := domxml.Parse(xml)
	require.NoError(t, err)

	var disks [][2]string
	for _, d := range doc.FileDisks() {
		format, _ := d.DriverType()
		source, _ := d.SourceFile()
		disks = append(disks, [2]string{format, source})
	}
	return disks
}

func (te *testEnv) onlyRecord(t *testing.T) *run.Record {
	t.Helper()
	records, err := te.store.List(nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	return records[0]
}

var _ convert.Converter = (*copyConverter)(nil)
