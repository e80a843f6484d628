package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/faize-ai/diskconv/internal/config"
	"github.com/faize-ai/diskconv/internal/convert"
	"github.com/faize-ai/diskconv/internal/driver"
	"github.com/faize-ai/diskconv/internal/fsops"
	"github.com/faize-ai/diskconv/internal/logging"
	"github.com/faize-ai/diskconv/internal/qemuimg"
	"github.com/faize-ai/diskconv/internal/run"
	"github.com/faize-ai/diskconv/internal/virt"
)

// Hooks replaced by tests
var (
	dialConnection = func(cfg *config.Config, log *zap.Logger) (virt.Connection, error) {
		return virt.Dial(virt.Options{
			URI:     cfg.Connection.URI,
			Socket:  cfg.Connection.Socket,
			Timeout: cfg.Connection.ConnectTimeout(),
			Logger:  log,
		})
	}
	newConverter = func(cfg *config.Config, log *zap.Logger) convert.Converter {
		return qemuimg.NewRunner(cfg.Converter.Binary, log)
	}
	openRunStore = func() (*run.Store, error) {
		return run.NewStore()
	}
)

// environment holds what a command needs for one run
type environment struct {
	cfg       *config.Config
	conn      virt.Connection
	converter convert.Converter
	fs        fsops.FS
	log       *zap.Logger
}

// setupLogging loads the configuration and installs the logger
func setupLogging(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closeFn, err := logging.New(cfg.Logging, debug)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	_ = closeLogger()
	logger, closeLogger = log, closeFn
	return nil
}

// loadConfig loads the config file and applies persistent flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if connectURI != "" {
		cfg.Connection.URI = connectURI
	}
	return cfg, nil
}

// openEnvironment loads config and opens the management connection. The
// caller must call close.
func openEnvironment() (*environment, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	Debug("Config loaded, connecting to %s", cfg.Connection.URI)

	conn, err := dialConnection(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection to the hypervisor: %w", err)
	}

	return &environment{
		cfg:       cfg,
		conn:      conn,
		converter: newConverter(cfg, logger),
		fs:        fsops.NewRealFS(),
		log:       logger,
	}, nil
}

func (e *environment) close() {
	if err := e.conn.Close(); err != nil {
		Debug("Failed to close connection: %v", err)
	}
}

// pipeline builds the conversion pipeline; progress headers go to out
func (e *environment) pipeline(out io.Writer) *convert.Pipeline {
	return &convert.Pipeline{
		Inspector: convert.NewInspector(e.conn, driver.Default, e.log),
		Planner:   convert.NewPlanner(e.fs, driver.Default, e.log),
		Executor:  convert.NewExecutor(e.converter, e.fs, out, e.log),
		Committer: convert.NewCommitter(e.conn, e.fs, e.log),
	}
}
