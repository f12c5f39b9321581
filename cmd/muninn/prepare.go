package main

import (
	"github.com/spf13/cobra"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Create the catalogue schema and storage layout",
	Long:  `Prepare creates the database tables and storage root needed by an archive that doesn't yet exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closer, err := openArchive(cmd.Context())
		if err != nil {
			return fail(err)
		}
		defer closer()
		if err := a.Prepare(cmd.Context()); err != nil {
			return fail(err)
		}
		reportOK("archive prepared")
		return nil
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Drop the catalogue schema and remove all archived bytes",
	Long:  `Destroy irreversibly removes every catalogue table and every byte in storage. There is no confirmation prompt; callers are expected to confirm at the shell level.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closer, err := openArchive(cmd.Context())
		if err != nil {
			return fail(err)
		}
		defer closer()
		if err := a.Destroy(cmd.Context()); err != nil {
			return fail(err)
		}
		reportOK("archive destroyed")
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the configured backends and registered extensions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closer, err := openArchive(cmd.Context())
		if err != nil {
			return fail(err)
		}
		defer closer()

		cmd.Printf("database\t%s\n", flagDBLibrary)
		cmd.Printf("storage\t%s\n", flagStorageKind)
		for _, p := range a.Registry().ProductTypes() {
			cmd.Printf("product type\t%s\n", p.ProductType())
		}
		return nil
	},
}
