package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stcorp/muninn/pkg/dbbackend"
)

var (
	flagSearchOrderBy []string
	flagSearchLimit   int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "List products matching a query expression",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closer, err := openArchive(cmd.Context())
		if err != nil {
			return fail(err)
		}
		defer closer()

		order := make([]dbbackend.OrderTerm, 0, len(flagSearchOrderBy))
		for _, key := range flagSearchOrderBy {
			order = append(order, dbbackend.OrderTerm{Key: key})
		}

		rows, err := a.Search(cmd.Context(), args[0], order, flagSearchLimit, nil)
		if err != nil {
			return fail(err)
		}
		printRows(rows)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringSliceVar(&flagSearchOrderBy, "order-by", nil, "field to order results by (repeatable)")
	searchCmd.Flags().IntVar(&flagSearchLimit, "limit", 0, "maximum rows to return (0: unlimited)")
}

var flagSummaryGroupBy []string

var summaryCmd = &cobra.Command{
	Use:   "summary <query>",
	Short: "Report the number of products matching a query expression",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closer, err := openArchive(cmd.Context())
		if err != nil {
			return fail(err)
		}
		defer closer()

		groupBy := make([]dbbackend.GroupByTerm, 0, len(flagSummaryGroupBy))
		for _, field := range flagSummaryGroupBy {
			groupBy = append(groupBy, dbbackend.GroupByTerm{Field: field})
		}

		rows, err := a.Summary(cmd.Context(), args[0], nil, groupBy, false, "", nil)
		if err != nil {
			return fail(err)
		}
		for _, r := range rows {
			for k, v := range r.Group {
				fmt.Printf("%s=%s ", k, v.String())
			}
			fmt.Printf("count=%s", r.Aggregates["count"].String())
			fmt.Println()
		}
		return nil
	},
}

func init() {
	summaryCmd.Flags().StringSliceVar(&flagSummaryGroupBy, "group-by", nil, "field to group by (repeatable)")
}
