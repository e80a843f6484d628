package convert

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/faize-ai/diskconv/internal/domxml"
	"github.com/faize-ai/diskconv/internal/driver"
	"github.com/faize-ai/diskconv/internal/fsops"
	"github.com/faize-ai/diskconv/internal/qemuimg"
	"github.com/faize-ai/diskconv/internal/virt"
)

type testDisk struct {
	driver string
	format string
	source string
	dev    string
}

// domainXML renders a domain with the given file-backed disks plus one
// block device that must always be ignored.
func domainXML(name string, disks ...testDisk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<domain type='kvm'>\n  <name>%s</name>\n  <devices>\n", name)
	for _, d := range disks {
		b.WriteString("    <disk type='file' device='disk'>\n")
		switch {
		case d.driver != "" && d.format != "":
			fmt.Fprintf(&b, "      <driver name='%s' type='%s'/>\n", d.driver, d.format)
		case d.driver != "":
			fmt.Fprintf(&b, "      <driver name='%s'/>\n", d.driver)
		case d.format != "":
			fmt.Fprintf(&b, "      <driver type='%s'/>\n", d.format)
		}
		if d.source != "" {
			fmt.Fprintf(&b, "      <source file='%s'/>\n", d.source)
		}
		if d.dev != "" {
			fmt.Fprintf(&b, "      <target dev='%s' bus='virtio'/>\n", d.dev)
		}
		b.WriteString("    </disk>\n")
	}
	b.WriteString("    <disk type='block' device='disk'>\n      <driver name='qemu' type='raw'/>\n      <source dev='/dev/sdz'/>\n    </disk>\n")
	b.WriteString("  </devices>\n</domain>\n")
	return b.String()
}

// fakeFS records image file operations in memory.
type fakeFS struct {
	files     map[string]fsops.Attrs
	chownErr  map[string]error
	chmodErr  map[string]error
	removeErr map[string]error

	chowned map[string][2]int
	chmoded map[string]uint32
	removed []string
}

func newFakeFS() *fakeFS {
	return &fakeFS{
		files:     map[string]fsops.Attrs{},
		chownErr:  map[string]error{},
		chmodErr:  map[string]error{},
		removeErr: map[string]error{},
		chowned:   map[string][2]int{},
		chmoded:   map[string]uint32{},
	}
}

func (f *fakeFS) Probe(path string) (fsops.Attrs, error) {
	a, ok := f.files[path]
	if !ok {
		return fsops.Attrs{}, fmt.Errorf("open %s: no such file or directory", path)
	}
	return a, nil
}

func (f *fakeFS) Chown(path string, uid, gid int) error {
	if err := f.chownErr[path]; err != nil {
		return err
	}
	f.chowned[path] = [2]int{uid, gid}
	return nil
}

func (f *fakeFS) Chmod(path string, mode uint32) error {
	if err := f.chmodErr[path]; err != nil {
		return err
	}
	f.chmoded[path] = mode
	return nil
}

func (f *fakeFS) Remove(path string) error {
	if err := f.removeErr[path]; err != nil {
		return err
	}
	f.removed = append(f.removed, path)
	delete(f.files, path)
	return nil
}

// fakeConverter records conversions and fails for configured sources.
type fakeConverter struct {
	probeErr error
	failOn   map[string]error
	probes   int
	calls    []qemuimg.Request
}

func newFakeConverter() *fakeConverter {
	return &fakeConverter{failOn: map[string]error{}}
}

func (c *fakeConverter) Probe(ctx context.Context) error {
	c.probes++
	return c.probeErr
}

func (c *fakeConverter) Convert(ctx context.Context, req qemuimg.Request) error {
	c.calls = append(c.calls, req)
	if err := c.failOn[req.Source]; err != nil {
		return err
	}
	return nil
}

func (c *fakeConverter) sources() []string {
	var out []string
	for _, r := range c.calls {
		out = append(out, r.Source)
	}
	return out
}

var errExit1 = fmt.Errorf("%w: exit code 1", qemuimg.ErrExitStatus)

type fixture struct {
	conn      *virt.MemoryConnection
	fs        *fakeFS
	converter *fakeConverter
	pipeline  *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		conn:      virt.NewMemoryConnection(),
		fs:        newFakeFS(),
		converter: newFakeConverter(),
	}
	f.pipeline = &Pipeline{
		Inspector: NewInspector(f.conn, driver.Default, nil),
		Planner:   NewPlanner(f.fs, driver.Default, nil),
		Executor:  NewExecutor(f.converter, f.fs, nil, nil),
		Committer: NewCommitter(f.conn, f.fs, nil),
	}
	return f
}

// addImage registers a source image owned by uid:gid with mode.
func (f *fixture) addImage(path string, uid, gid int, mode uint32) {
	f.fs.files[path] = fsops.Attrs{UID: uid, GID: gid, Mode: mode}
}

// persistedDisks parses the definition stored for name and returns its file disks.
func (f *fixture) persistedDisks(t *testing.T, name string) []*domxml.Disk {
	t.Helper()
	xml, ok := f.conn.Definition(name)
	require.True(t, ok)
	doc, err := domxml.Parse(xml)
	require.NoError(t, err)
	return doc.FileDisks()
}

func diskState(d *domxml.Disk) (string, string) {
	format, _ := d.DriverType()
	source, _ := d.SourceFile()
	return format, source
}
