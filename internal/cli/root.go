// Package cli implements the vault command-line interface.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/vault/internal/config"
	"github.com/mesh-intelligence/vault/internal/logging"
	"github.com/mesh-intelligence/vault/internal/paths"
	"github.com/mesh-intelligence/vault/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
}

// app is the state shared by the subcommands of one root command.
type app struct {
	flags   rootFlags
	cfg     *config.Config
	dataDir string
	log     *slog.Logger
}

// NewRootCmd creates the top-level "vault" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "vault",
		Short: "Store image contributions and the lineages they form",
		Long: "Vault keeps a forest of image contributions. Each contribution either starts\n" +
			"a lineage or answers the one it was shared from.",
		// Do not print usage on errors returned by subcommands.
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: platform data dir)")
	root.PersistentFlags().BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newServeCmd(a),
		newContributeCmd(a),
		newLineageCmd(a),
		newLatestCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newSweepCmd(a),
	)
	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
	os.Exit(exitSuccess)
}

// load resolves directories, reads the configuration and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return systemError(fmt.Errorf("load .env: %w", err))
	}

	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return systemError(fmt.Errorf("resolve config dir: %w", err))
	}
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dataDir, err := paths.ResolveDataDir(a.flags.dataDir, cfg.DataDir)
	if err != nil {
		return systemError(fmt.Errorf("resolve data dir: %w", err))
	}

	a.cfg = cfg
	a.dataDir = dataDir
	a.log = logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	return nil
}

// sysError marks failures of the environment rather than of the input.
type sysError struct{ err error }

func (e *sysError) Error() string { return e.err.Error() }
func (e *sysError) Unwrap() error { return e.err }

func systemError(err error) error {
	if err == nil {
		return nil
	}
	return &sysError{err: err}
}

// classify marks storage and integrity failures as system errors and leaves
// validation and not-found errors as user errors.
func classify(err error) error {
	switch types.KindOf(err) {
	case types.KindValidation, types.KindNotFound:
		return err
	default:
		return systemError(err)
	}
}

func exitCode(err error) int {
	var se *sysError
	if errors.As(err, &se) {
		return exitSysError
	}
	return exitUserError
}
