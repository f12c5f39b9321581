package main

import (
	"github.com/spf13/cobra"
)

var (
	flagStripForce      bool
	flagStripNoCascade  bool
	flagRemoveForce     bool
	flagRemoveNoCascade bool
)

var stripCmd = &cobra.Command{
	Use:   "strip <query|uuid>",
	Short: "Delete a product's bytes, keeping its catalogue row",
	Long:  `Strip matches either a single uuid (with --uuid) or every product satisfying a query expression.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closer, err := openArchive(cmd.Context())
		if err != nil {
			return fail(err)
		}
		defer closer()

		if byUUID, _ := cmd.Flags().GetBool("uuid"); byUUID {
			id, err := parseUUIDArg(args[0])
			if err != nil {
				return fail(err)
			}
			if err := a.StripByUUID(cmd.Context(), id, flagStripForce, !flagStripNoCascade); err != nil {
				return fail(err)
			}
			reportOK("stripped")
			return nil
		}

		n, err := a.Strip(cmd.Context(), args[0], flagStripForce, !flagStripNoCascade)
		if err != nil {
			return fail(err)
		}
		reportOK("stripped %d product(s)", n)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <query|uuid>",
	Short: "Delete a product's catalogue row and its bytes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closer, err := openArchive(cmd.Context())
		if err != nil {
			return fail(err)
		}
		defer closer()

		if byUUID, _ := cmd.Flags().GetBool("uuid"); byUUID {
			id, err := parseUUIDArg(args[0])
			if err != nil {
				return fail(err)
			}
			if err := a.RemoveByUUID(cmd.Context(), id, flagRemoveForce, !flagRemoveNoCascade); err != nil {
				return fail(err)
			}
			reportOK("removed")
			return nil
		}

		n, err := a.Remove(cmd.Context(), args[0], flagRemoveForce, !flagRemoveNoCascade)
		if err != nil {
			return fail(err)
		}
		reportOK("removed %d product(s)", n)
		return nil
	},
}

func init() {
	stripCmd.Flags().Bool("uuid", false, "treat the argument as a product uuid instead of a query")
	stripCmd.Flags().BoolVar(&flagStripForce, "force", false, "strip even a product whose active flag is false")
	stripCmd.Flags().BoolVar(&flagStripNoCascade, "no-cascade", false, "don't run the cascade engine afterwards")

	removeCmd.Flags().Bool("uuid", false, "treat the argument as a product uuid instead of a query")
	removeCmd.Flags().BoolVar(&flagRemoveForce, "force", false, "remove even a product whose active flag is false")
	removeCmd.Flags().BoolVar(&flagRemoveNoCascade, "no-cascade", false, "don't run the cascade engine afterwards")
}
