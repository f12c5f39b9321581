package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagRetrieveUUID bool

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query|uuid> <target-dir>",
	Short: "Copy archived bytes out of storage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closer, err := openArchive(cmd.Context())
		if err != nil {
			return fail(err)
		}
		defer closer()

		targetDir := args[1]
		if flagRetrieveUUID {
			id, err := parseUUIDArg(args[0])
			if err != nil {
				return fail(err)
			}
			paths, err := a.RetrieveByUUID(cmd.Context(), id, targetDir, flagUseSymlinks)
			if err != nil {
				return fail(err)
			}
			for _, p := range paths {
				fmt.Println(p)
			}
			return nil
		}

		results, err := a.Retrieve(cmd.Context(), args[0], targetDir, flagUseSymlinks)
		if err != nil {
			return fail(err)
		}
		for _, paths := range results {
			for _, p := range paths {
				fmt.Println(p)
			}
		}
		return nil
	},
}

func init() {
	retrieveCmd.Flags().BoolVar(&flagRetrieveUUID, "uuid", false, "treat the first argument as a product uuid instead of a query")
}

var flagExportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <uuid> <target-dir>",
	Short: "Export a product, optionally through a plug-in's format converter",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUUIDArg(args[0])
		if err != nil {
			return fail(err)
		}
		a, closer, err := openArchive(cmd.Context())
		if err != nil {
			return fail(err)
		}
		defer closer()

		paths, err := a.Export(cmd.Context(), id, flagExportFormat, args[1])
		if err != nil {
			return fail(err)
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&flagExportFormat, "format", "", "export format understood by the product type's exporter (plain retrieve if omitted)")
}
