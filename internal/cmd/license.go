package cmd

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/milalabs/licsync/internal/license"
)

// License creates the license command group.
func License() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license",
		Short: "Inspect and edit the local license store",
		Long: `Inspect and edit the local license store.

Changes are written to the store directory. A running server notices them
and pushes them to the remote.
`,
	}
	cmd.AddCommand(licenseList(), licenseAdd(), licenseLookup(), licenseActivate(), licenseClear())
	return cmd
}

func licenseList() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List license records",
			Args:  cobra.NoArgs,
		},
		[]commandLineFlag{collectionFlag},
		func(ctx *Context, _ []string) error {
			collection, _ := ctx.Command.Flags().GetString("collection")
			all, err := ctx.Licenses.ListAll(ctx.Context, collection)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(ctx.Command.OutOrStdout(), renderLicenses(all))
			return nil
		},
	)
}

func licenseAdd() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "add <license key>",
			Short: "Record a license",
			Args:  cobra.ExactArgs(1),
		},
		[]commandLineFlag{collectionFlag, productIDFlag, productNameFlag, emailFlag},
		func(ctx *Context, args []string) error {
			flags := ctx.Command.Flags()
			collection, _ := flags.GetString("collection")
			productID, _ := flags.GetString("product")
			productName, _ := flags.GetString("product-name")
			email, _ := flags.GetString("email")

			created, err := ctx.Licenses.RecordLicense(ctx.Context, collection, license.Record{
				LicenseKey:  args[0],
				ProductID:   productID,
				ProductName: productName,
				BuyerEmail:  email,
			})
			if err != nil {
				return err
			}
			w := ctx.Command.OutOrStdout()
			if !created {
				_, _ = fmt.Fprintf(w, "License %s already exists\n", args[0])
				return nil
			}
			_, _ = fmt.Fprintf(w, "License %s recorded\n", args[0])
			return nil
		},
	)
}

func licenseLookup() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "lookup <license key>",
			Short: "Show one license record",
			Args:  cobra.ExactArgs(1),
		},
		[]commandLineFlag{collectionFlag},
		func(ctx *Context, args []string) error {
			collection, _ := ctx.Command.Flags().GetString("collection")
			rec, err := ctx.Licenses.LookupLicense(ctx.Context, collection, args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(ctx.Command.OutOrStdout(), renderLicenses(license.Collection{*rec}))
			return nil
		},
	)
}

func licenseActivate() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "activate <license key>",
			Short: "Mark a license as activated",
			Args:  cobra.ExactArgs(1),
		},
		[]commandLineFlag{collectionFlag},
		func(ctx *Context, args []string) error {
			collection, _ := ctx.Command.Flags().GetString("collection")
			rec, err := ctx.Licenses.Activate(ctx.Context, collection, args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(ctx.Command.OutOrStdout(), "License %s activated at %s\n",
				rec.LicenseKey, rec.ActivatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	)
}

var errNotConfirmed = errors.New("not confirmed; pass --yes to clear")

func licenseClear() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every record from a collection, or from all",
			Args:  cobra.NoArgs,
		},
		[]commandLineFlag{collectionFlag, yesFlag},
		func(ctx *Context, _ []string) error {
			flags := ctx.Command.Flags()
			collection, _ := flags.GetString("collection")
			if yes, _ := flags.GetBool("yes"); !yes {
				return errNotConfirmed
			}
			if err := ctx.Licenses.ClearAll(ctx.Context, collection); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(ctx.Command.OutOrStdout(), "All licenses cleared")
			return nil
		},
	)
}

var licenseHeader = table.Row{
	"License Key",
	"Product",
	"Buyer",
	"Activated",
	"Issued At",
}

func renderLicenses(coll license.Collection) string {
	t := table.NewWriter()
	t.AppendHeader(licenseHeader)
	for _, r := range coll {
		product := r.ProductName
		if product == "" {
			product = r.ProductID
		}
		issued := ""
		if !r.IssuedAt.IsZero() {
			issued = r.IssuedAt.Format("2006-01-02 15:04:05")
		}
		t.AppendRow(table.Row{r.LicenseKey, product, r.BuyerEmail, r.Activated, issued})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", len(coll)})
	return t.Render()
}
