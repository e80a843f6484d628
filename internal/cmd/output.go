package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/faize-ai/diskconv/internal/convert"
)

var (
	// fatih/color disables these automatically when stdout is not a terminal
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	formatColor  = color.New(color.FgCyan)
	dimColor     = color.New(color.FgHiBlack)
)

func printSuccess(w io.Writer, format string, args ...interface{}) {
	_, _ = successColor.Fprintf(w, "✓ "+format+"\n", args...)
}

func printWarning(w io.Writer, format string, args ...interface{}) {
	_, _ = warningColor.Fprintf(w, "Warning: "+format+"\n", args...)
}

func printError(w io.Writer, format string, args ...interface{}) {
	_, _ = errorColor.Fprintf(w, "✗ "+format+"\n", args...)
}

// printTaskList writes one line per task:
//
//	 0: [raw]:/vm/a.img -> [qcow2]:/vm/a.qcow2
func printTaskList(w io.Writer, tasks []*convert.Task) {
	for idx, task := range tasks {
		marker := ""
		if task.Completed {
			marker = dimColor.Sprint(" (done)")
		}
		_, _ = fmt.Fprintf(w, "%2d: %s:%s -> %s:%s%s\n", idx,
			formatColor.Sprintf("[%s]", task.Disk.DriverFormat), task.Disk.SourcePath,
			formatColor.Sprintf("[%s]", task.TargetFormat), task.DestinationPath,
			marker)
	}
}
