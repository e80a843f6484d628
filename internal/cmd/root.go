package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile    string
	debug      bool
	connectURI string

	// logger is replaced in PersistentPreRunE once the configuration is loaded
	logger      = zap.NewNop()
	closeLogger = func() error { return nil }
)

// Debug logs a formatted message at debug level
func Debug(format string, args ...interface{}) {
	logger.Sugar().Debugf(format, args...)
}

var rootCmd = &cobra.Command{
	Use:   "diskconv",
	Short: "diskconv - convert the disk images of libvirt domains",
	Long: `diskconv converts the disk images of a shut-off libvirt domain to another
format with qemu-img and updates the domain definition to use the new images.

Preview the conversion of a domain's disks:
  diskconv plan -n vm1 -f qcow2 -x

Convert and update the domain:
  diskconv convert -n vm1 -f qcow2 -x -p -o -k

Review past runs:
  diskconv runs
  diskconv prune`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	defer func() { _ = closeLogger() }()
	return rootCmd.Execute()
}

func init() {
	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.diskconv/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&connectURI, "connect", "u", "", "libvirt connection URI (default from config, qemu:///system)")
}
