package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stcorp/muninn/pkg/properties"
	"github.com/stcorp/muninn/pkg/values"
)

var (
	flagUpdateSet             []string
	flagUpdateRemoveNamespace []string
)

var updateCmd = &cobra.Command{
	Use:   "update <uuid>",
	Short: "Merge property changes into a product's stored metadata",
	Long: `Update applies --set namespace.field=value assignments (text-valued) and ` +
		`--remove-namespace drops, merging them the same way UpdateProperties merges any ` +
		`caller-supplied container: a removed namespace's fields are cleared, not deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUUIDArg(args[0])
		if err != nil {
			return fail(err)
		}

		update := properties.New()
		for _, assignment := range flagUpdateSet {
			ns, field, value, err := parseSetFlag(assignment)
			if err != nil {
				return fail(err)
			}
			update.Set(ns, field, values.NewText(value))
		}
		for _, ns := range flagUpdateRemoveNamespace {
			update.RemoveNamespace(ns)
		}

		a, closer, err := openArchive(cmd.Context())
		if err != nil {
			return fail(err)
		}
		defer closer()

		if err := a.UpdateProperties(cmd.Context(), id, update); err != nil {
			return fail(err)
		}
		reportOK("updated")
		return nil
	},
}

func init() {
	updateCmd.Flags().StringArrayVar(&flagUpdateSet, "set", nil, "namespace.field=value assignment, text-valued (repeatable)")
	updateCmd.Flags().StringArrayVar(&flagUpdateRemoveNamespace, "remove-namespace", nil, "namespace to clear entirely (repeatable)")
}

func parseSetFlag(assignment string) (namespace, field, value string, err error) {
	eq := strings.IndexByte(assignment, '=')
	if eq < 0 {
		return "", "", "", fmt.Errorf("--set %q: expected namespace.field=value", assignment)
	}
	ref, value := assignment[:eq], assignment[eq+1:]
	dot := strings.IndexByte(ref, '.')
	if dot < 0 {
		return "", "", "", fmt.Errorf("--set %q: field reference must be namespace.field", assignment)
	}
	return ref[:dot], ref[dot+1:], value, nil
}
