package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/faize-ai/diskconv/internal/config"
	"github.com/faize-ai/diskconv/internal/convert"
	"github.com/faize-ai/diskconv/internal/run"
	"github.com/faize-ai/diskconv/internal/virt"
)

// executeCommand runs the root command with args against te's fakes.
func executeCommand(t *testing.T, te *testEnv, args ...string) (string, error) {
	t.Helper()

	origDial, origConverter, origStore := dialConnection, newConverter, openRunStore
	resetFlags(rootCmd)
	t.Cleanup(func() {
		dialConnection, newConverter, openRunStore = origDial, origConverter, origStore
		resetFlags(rootCmd)
	})
	dialConnection = func(cfg *config.Config, log *zap.Logger) (virt.Connection, error) {
		return te.conn, nil
	}
	newConverter = func(cfg *config.Config, log *zap.Logger) convert.Converter {
		return te.converter
	}
	openRunStore = func() (*run.Store, error) {
		return te.store, nil
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(te.dir, "missing.yaml")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores every flag of cmd and its subcommands to its default,
// including the Changed state that config fallbacks depend on.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func TestPlanCommand_Text(t *testing.T) {
	te := newTestEnv(t)
	paths := te.addDomain(t, "vm1", "a.img")

	out, err := executeCommand(t, te, "plan", "-n", "vm1", "-f", "qed", "-x")
	require.NoError(t, err)
	assert.Contains(t, out, " 0: [raw]:"+paths[0]+" -> [qed]:"+filepath.Join(te.dir, "a.qed"))
	assert.Empty(t, te.converter.calls)
	assert.Equal(t, 0, te.conn.Defined)
	assert.True(t, te.conn.Closed())
}

func TestPlanCommand_UsesConfiguredFormat(t *testing.T) {
	te := newTestEnv(t)
	te.addDomain(t, "vm1", "a.img")

	out, err := executeCommand(t, te, "plan", "-n", "vm1", "-o", "json")
	require.NoError(t, err)

	var entries []planEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "qcow2", entries[0].TargetFormat)
	assert.Equal(t, entries[0].Source, entries[0].Destination, "no extension change by default")
}

func TestPlanCommand_InvalidOutput(t *testing.T) {
	te := newTestEnv(t)
	_, err := executeCommand(t, te, "plan", "-n", "vm1", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}

func TestWritePlan(t *testing.T) {
	te := newTestEnv(t)
	paths := te.addDomain(t, "vm1", "a.img", "b.img")

	session, err := te.env.pipeline(nil).Prepare("vm1", "vdi", true)
	require.NoError(t, err)

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writePlan(&buf, session, "json"))

		var entries []planEntry
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entries))
		require.Len(t, entries, 2)
		assert.Equal(t, planEntry{
			Index:        1,
			Disk:         "vdb",
			Driver:       "qemu",
			Source:       paths[1],
			SourceFormat: "raw",
			Destination:  filepath.Join(te.dir, "b.vdi"),
			TargetFormat: "vdi",
			Owner:        entries[1].Owner,
			Permissions:  "0640",
		}, entries[1])
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writePlan(&buf, session, "yaml"))

		var entries []planEntry
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &entries))
		require.Len(t, entries, 2)
		assert.Equal(t, "vda", entries[0].Disk)
		assert.Equal(t, filepath.Join(te.dir, "a.vdi"), entries[0].Destination)
	})

	t.Run("text without tasks", func(t *testing.T) {
		empty, err := te.env.pipeline(nil).Prepare("vm1", "raw", false)
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, writePlan(&buf, empty, "text"))
		assert.Contains(t, buf.String(), "already use format 'raw'")
	})
}

func TestConvertCommand(t *testing.T) {
	te := newTestEnv(t)
	paths := te.addDomain(t, "vm1", "a.img", "b.img")

	out, err := executeCommand(t, te, "convert", "-n", "vm1", "-f", "qcow2", "-x", "-r", "--task", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed old image: "+paths[1])
	assert.FileExists(t, paths[0])
	assert.NoFileExists(t, paths[1])

	assert.Equal(t, [][2]string{
		{"raw", paths[0]},
		{"qcow2", filepath.Join(te.dir, "b.qcow2")},
	}, te.definedDisks(t, "vm1"))
	assert.True(t, te.conn.Closed())
}

func TestConvertCommand_RequiresDomain(t *testing.T) {
	te := newTestEnv(t)
	_, err := executeCommand(t, te, "convert")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain")
}

func saveRecords(t *testing.T, store *run.Store, statuses ...string) []*run.Record {
	t.Helper()
	var records []*run.Record
	for i, status := range statuses {
		r := run.NewRecord("vm1", "qemu:///system", "qcow2")
		r.Status = status
		r.StartedAt = time.Date(2024, 5, 1, 10, i, 0, 0, time.UTC)
		require.NoError(t, store.Save(r))
		records = append(records, r)
	}
	return records
}

func TestRunsCommand(t *testing.T) {
	te := newTestEnv(t)

	out, err := executeCommand(t, te, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "No recorded runs in "+te.store.Dir()+".")

	records := saveRecords(t, te.store, run.StatusCommitted, run.StatusFailed)
	records[1].Tasks = []run.TaskRecord{{Completed: true}, {}}
	require.NoError(t, te.store.Save(records[1]))

	out, err = executeCommand(t, te, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, shortID(records[0].ID))
	assert.Contains(t, out, "1/2")
	assert.Contains(t, out, "2024-05-01 10:01:00")
}

func TestPruneRuns(t *testing.T) {
	tests := []struct {
		name        string
		all         bool
		wantRemoved int
		wantLeft    int
	}{
		{name: "committed only", all: false, wantRemoved: 2, wantLeft: 2},
		{name: "all", all: true, wantRemoved: 4, wantLeft: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := run.NewStoreAt(t.TempDir())
			require.NoError(t, err)
			saveRecords(t, store, run.StatusCommitted, run.StatusFailed, run.StatusCommitted, run.StatusPartial)

			var buf bytes.Buffer
			removed, err := pruneRuns(&buf, store, tt.all)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRemoved, removed)

			left, err := store.List(nil)
			require.NoError(t, err)
			assert.Len(t, left, tt.wantLeft)
			for _, r := range left {
				assert.NotEqual(t, run.StatusCommitted, r.Status)
			}
		})
	}
}

func TestPruneCommand_Empty(t *testing.T) {
	te := newTestEnv(t)
	out, err := executeCommand(t, te, "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs to remove.")
}
