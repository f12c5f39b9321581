// Command muninn is a thin command-line wrapper around pkg/archive
// (§6): it resolves backend selection from flags, opens an Archive,
// dispatches to the requested operation, and prints a plain-text
// report. Configuration-file loading and plug-in discovery are
// deliberately left to the deployer (see registry.go) per the
// command-line-wrapper Non-goal; this binary only demonstrates how
// the pieces are wired together.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagDBLibrary          string
	flagDBConnectionString string
	flagDBTablePrefix      string

	flagStorageKind string
	flagStorageRoot string
	flagUseSymlinks bool

	flagCascadeGracePeriod int
	flagMaxCascadeCycles   int
	flagTempDir            string
)

var rootCmd = &cobra.Command{
	Use:   "muninn",
	Short: "Manage a product catalogue and its archived bytes",
	Long: "muninn operates a product catalogue: ingesting, archiving, searching, and " +
		"cascading removal of cross-referenced products, backed by a pluggable " +
		"database and storage layer.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDBLibrary, "db", "sqlite", "database backend: sqlite or postgresql")
	rootCmd.PersistentFlags().StringVar(&flagDBConnectionString, "db-connection-string", "", "database connection string")
	rootCmd.PersistentFlags().StringVar(&flagDBTablePrefix, "db-table-prefix", "", "table name prefix")

	rootCmd.PersistentFlags().StringVar(&flagStorageKind, "storage", "fs", "storage backend: fs, s3, swift, or none")
	rootCmd.PersistentFlags().StringVar(&flagStorageRoot, "storage-root", "", "filesystem storage root (fs backend)")
	rootCmd.PersistentFlags().BoolVar(&flagUseSymlinks, "use-symlinks", false, "symlink into storage instead of copying, where supported")

	rootCmd.PersistentFlags().IntVar(&flagCascadeGracePeriod, "cascade-grace-period", 0, "minutes after its archive_date before a product can be stripped or removed by cascade")
	rootCmd.PersistentFlags().IntVar(&flagMaxCascadeCycles, "max-cascade-cycles", 0, "cascade fixed-point iteration bound (0: use default)")
	rootCmd.PersistentFlags().StringVar(&flagTempDir, "tempdir", "", "tempdir setting stored in the archive configuration; rebuild and pull stage in the storage backend's own workspace, not here")

	rootCmd.AddCommand(prepareCmd, destroyCmd, infoCmd)
	rootCmd.AddCommand(ingestCmd, attachCmd, pullCmd)
	rootCmd.AddCommand(stripCmd, removeCmd)
	rootCmd.AddCommand(retrieveCmd, exportCmd)
	rootCmd.AddCommand(searchCmd, summaryCmd)
	rootCmd.AddCommand(tagCmd, untagCmd, listTagsCmd)
	rootCmd.AddCommand(updateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// fail prints err to stderr in the shape every command uses and
// returns it unchanged, so RunE bodies can `return fail(err)`.
func fail(err error) error {
	fmt.Fprintln(os.Stderr, err)
	return err
}
