package main

import (
	"github.com/spf13/cobra"

	"github.com/stcorp/muninn/pkg/archive"
)

var (
	flagIngestProductType   string
	flagIngestCatalogueOnly bool
	flagIngestForce         bool
	flagIngestVerifyHash    bool
	flagIngestTags          []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Catalogue and archive one or more product files",
	Long: `Ingest identifies the product type from the given paths (unless --product-type ` +
		`is given), analyzes them for properties, inserts a catalogue row, and, unless ` +
		`--catalogue-only is set, copies the bytes into storage.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closer, err := openArchive(cmd.Context())
		if err != nil {
			return fail(err)
		}
		defer closer()

		props, err := a.Ingest(cmd.Context(), archive.IngestOptions{
			Paths:         args,
			ProductType:   flagIngestProductType,
			CatalogueOnly: flagIngestCatalogueOnly,
			UseSymlinks:   flagUseSymlinks,
			VerifyHash:    flagIngestVerifyHash,
			Force:         flagIngestForce,
			Tags:          flagIngestTags,
		})
		if err != nil {
			return fail(err)
		}
		printProperties(props)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&flagIngestProductType, "product-type", "", "product type (identified automatically if omitted)")
	ingestCmd.Flags().BoolVar(&flagIngestCatalogueOnly, "catalogue-only", false, "catalogue the product without archiving its bytes")
	ingestCmd.Flags().BoolVar(&flagIngestForce, "force", false, "reclaim a conflicting (product_type, product_name) slot")
	ingestCmd.Flags().BoolVar(&flagIngestVerifyHash, "verify-hash", false, "re-hash the stored bytes and compare against the source")
	ingestCmd.Flags().StringSliceVar(&flagIngestTags, "tag", nil, "tag to attach to the new product (repeatable)")
}

var (
	flagAttachProductType string
	flagAttachForce       bool
	flagAttachVerifyHash  bool
)

var attachCmd = &cobra.Command{
	Use:   "attach [paths...]",
	Short: "Restore bytes for an existing catalogue row that has none",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closer, err := openArchive(cmd.Context())
		if err != nil {
			return fail(err)
		}
		defer closer()

		props, err := a.Attach(cmd.Context(), archive.AttachOptions{
			Paths:       args,
			ProductType: flagAttachProductType,
			Force:       flagAttachForce,
			VerifyHash:  flagAttachVerifyHash,
			UseSymlinks: flagUseSymlinks,
		})
		if err != nil {
			return fail(err)
		}
		printProperties(props)
		return nil
	},
}

func init() {
	attachCmd.Flags().StringVar(&flagAttachProductType, "product-type", "", "product type (identified automatically if omitted)")
	attachCmd.Flags().BoolVar(&flagAttachForce, "force", false, "skip the recorded-size consistency check")
	attachCmd.Flags().BoolVar(&flagAttachVerifyHash, "verify-hash", false, "re-hash the stored bytes and compare against the source")
}

var flagPullVerifyHash bool

var pullCmd = &cobra.Command{
	Use:   "pull <uuid>",
	Short: "Fetch a product's bytes from its recorded remote_url",
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

		props, err := a.Pull(cmd.Context(), id, archive.PullOptions{VerifyHash: flagPullVerifyHash})
		if err != nil {
			return fail(err)
		}
		printProperties(props)
		return nil
	},
}

func init() {
	pullCmd.Flags().BoolVar(&flagPullVerifyHash, "verify-hash", false, "re-hash the stored bytes and compare against the source")
}
