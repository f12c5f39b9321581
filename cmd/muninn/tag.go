package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tagCmd = &cobra.Command{
	Use:   "tag <uuid> <tag>",
	Short: "Attach a tag to a product",
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

		if err := a.Tag(cmd.Context(), id, args[1]); err != nil {
			return fail(err)
		}
		reportOK("tagged")
		return nil
	},
}

var untagCmd = &cobra.Command{
	Use:   "untag <uuid> <tag>",
	Short: "Remove a tag from a product",
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

		if err := a.Untag(cmd.Context(), id, args[1]); err != nil {
			return fail(err)
		}
		reportOK("untagged")
		return nil
	},
}

var listTagsCmd = &cobra.Command{
	Use:   "list-tags <uuid>",
	Short: "List the tags attached to a product",
	Args:  cobra.ExactArgs(1),
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

		tags, err := a.Tags(cmd.Context(), id)
		if err != nil {
			return fail(err)
		}
		for _, t := range tags {
			fmt.Println(t)
		}
		return nil
	},
}
