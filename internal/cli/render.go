package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"storefront/internal/cart"
	"storefront/internal/domain"
)

// CartView is everything the shell shows about the cart.
type CartView struct {
	Snapshot cart.Snapshot
	Phase    cart.Phase
	Failure  *cart.SyncFailure
}

func RenderCart(w io.Writer, v CartView) error {
	if _, err := fmt.Fprintf(w, "phase: %s  sync: %s\n", v.Phase, v.Snapshot.SyncState); err != nil {
		return err
	}
	if v.Failure != nil {
		target := v.Failure.ProductID
		if target == "" {
			target = "-"
		}
		fmt.Fprintf(w, "last failure: %s %s: %v\n", v.Failure.Op, target, v.Failure.Err)
	}
	if len(v.Snapshot.Lines) == 0 {
		_, err := fmt.Fprintln(w, "(cart is empty)")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tPRODUCT\tNAME\tQTY\tPRICE\tSUBTOTAL")
	for _, l := range v.Snapshot.Lines {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			l.LineID, l.ProductID, l.Name, l.Quantity, l.UnitPrice.StringFixed(2), l.Subtotal().StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "total: %s (%d items)\n", v.Snapshot.Total.StringFixed(2), v.Snapshot.ItemCount())
	return err
}

func RenderProducts(w io.Writer, page domain.ProductPage) error {
	if len(page.Products) == 0 {
		_, err := fmt.Fprintln(w, "no products")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE")
	for _, p := range page.Products {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, p.Price.StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "page %d, %d of %d products\n", page.Page, len(page.Products), page.Total)
	return err
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
