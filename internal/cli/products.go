package cli

import (
	"github.com/spf13/cobra"

	"storefront/internal/apiclient"
)

type ProductsOptions struct {
	*RootOptions
	Filter apiclient.ProductFilter
}

func NewProductsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProductsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List catalog products",
		Long: `List catalog products, newest first.

Examples:
  cartctl products
  cartctl products --query tee --price 10-20
  cartctl products --page 2 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := opts.apiClient().Products(cmd.Context(), opts.Filter)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), page)
			}
			return RenderProducts(cmd.OutOrStdout(), page)
		},
	}

	cmd.Flags().StringVarP(&opts.Filter.Query, "query", "q", "", "case-insensitive name search")
	cmd.Flags().StringVar(&opts.Filter.Price, "price", "", "price range, min-max or min-")
	cmd.Flags().IntVar(&opts.Filter.Page, "page", 1, "page number, starting at 1")
	cmd.Flags().IntVar(&opts.Filter.Limit, "limit", 0, "page size (server default when 0)")

	return cmd
}
