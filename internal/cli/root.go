// Package cli implements the cartctl commands.
package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"storefront/internal/apiclient"
	"storefront/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server string
	Format string // "json" | "text"
	Client config.ClientConfig
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Client: config.LoadClient()}

	cmd := &cobra.Command{
		Use:   "cartctl",
		Short: "Storefront cart client",
		Long:  "Browse the storefront catalog and manage a cart that syncs optimistically with the server.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			opts.Server = strings.TrimRight(opts.Server, "/")
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", opts.Client.ServerURL, "storefront API base URL")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewProductsCommand(opts))
	cmd.AddCommand(NewShellCommand(opts))

	return cmd
}

func (o *RootOptions) apiClient() *apiclient.Client {
	c := o.Client
	return apiclient.NewClient(o.Server, c.Timeout, c.MaxRetries, c.RetryBase, c.RetryMax)
}
