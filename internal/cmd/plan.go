package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/faize-ai/diskconv/internal/convert"
)

var (
	planDomain          string
	planFormat          string
	planAppendExtension bool
	planOutput          string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the conversion tasks for a domain",
	Long: `Inspect a shut-off domain and print the conversion tasks that 'convert'
would run. Nothing is converted and the domain definition is not changed.

Examples:
  diskconv plan -n vm1
  diskconv plan -n vm1 -f vmdk -x
  diskconv plan -n vm1 -o yaml`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planDomain, "domain", "n", "", "name of the domain the disks should be converted for (required)")
	planCmd.Flags().StringVarP(&planFormat, "output-format", "f", "", "target image format (default from config, qcow2)")
	planCmd.Flags().BoolVarP(&planAppendExtension, "add-type-extension", "x", false, "use the target format as file extension of the converted images")
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "text", "output format: text, json or yaml")
	_ = planCmd.MarkFlagRequired("domain")

	rootCmd.AddCommand(planCmd)
}

// planEntry is the serialized form of a task
type planEntry struct {
	Index        int    `json:"index" yaml:"index"`
	Disk         string `json:"disk,omitempty" yaml:"disk,omitempty"`
	Driver       string `json:"driver" yaml:"driver"`
	Source       string `json:"source" yaml:"source"`
	SourceFormat string `json:"source_format" yaml:"source_format"`
	Destination  string `json:"destination" yaml:"destination"`
	TargetFormat string `json:"target_format" yaml:"target_format"`
	Owner        string `json:"owner" yaml:"owner"`
	Permissions  string `json:"permissions" yaml:"permissions"`
}

func runPlan(cmd *cobra.Command, args []string) error {
	switch planOutput {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("invalid output format '%s': must be text, json or yaml", planOutput)
	}

	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.close()

	format := planFormat
	if !cmd.Flags().Changed("output-format") {
		format = env.cfg.Defaults.Format
	}
	appendExt := planAppendExtension
	if !cmd.Flags().Changed("add-type-extension") {
		appendExt = env.cfg.Defaults.ShouldAppendExtension()
	}

	session, err := env.pipeline(cmd.OutOrStdout()).Prepare(planDomain, format, appendExt)
	if err != nil {
		return err
	}

	return writePlan(cmd.OutOrStdout(), session, planOutput)
}

func writePlan(w io.Writer, session *convert.Session, output string) error {
	entries := make([]planEntry, 0, len(session.Tasks))
	for idx, task := range session.Tasks {
		entries = append(entries, planEntry{
			Index:        idx,
			Disk:         task.Disk.TargetDev,
			Driver:       task.Disk.DriverName,
			Source:       task.Disk.SourcePath,
			SourceFormat: task.Disk.DriverFormat,
			Destination:  task.DestinationPath,
			TargetFormat: task.TargetFormat,
			Owner:        fmt.Sprintf("%d:%d", task.OwnerID, task.GroupID),
			Permissions:  fmt.Sprintf("%04o", task.Permissions),
		})
	}

	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	default:
		if len(session.Tasks) == 0 {
			_, _ = fmt.Fprintf(w, "All disks of domain '%s' already use format '%s'.\n", session.Domain, session.TargetFormat)
			return nil
		}
		printTaskList(w, session.Tasks)
		return nil
	}
}
