// Command settle composes a settlement offline from a catalog file and a
// draft, printing the confirmation summary. It touches no database and
// submits nothing, so totals can be re-derived for audits and disputes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/backend-sekolah/internal/catalog"
	"github.com/noah-isme/backend-sekolah/internal/common"
	"github.com/noah-isme/backend-sekolah/internal/money"
	"github.com/noah-isme/backend-sekolah/internal/payment"
	"github.com/noah-isme/backend-sekolah/internal/settlement"
)

type options struct {
	catalogPath string
	draftPath   string
	cardRate    string
	locale      string
	asJSON      bool
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "settle --catalog fees.json --draft draft.json",
		Short: "Compose a settlement offline and print its summary",
		Long: `Compose a settlement from a fee catalog and a counter draft.

The catalog is a JSON array of fee items; the draft has the same shape the
cashier console posts to /api/v1/settlements/preview. Use "-" to read the
draft from stdin.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, cmd.InOrStdin(), out)
		},
	}
	cmd.Flags().StringVarP(&opts.catalogPath, "catalog", "c", "", "fee catalog JSON file")
	cmd.Flags().StringVarP(&opts.draftPath, "draft", "d", "-", "draft JSON file")
	cmd.Flags().StringVar(&opts.cardRate, "card-rate", "1.2", "card surcharge percentage")
	cmd.Flags().StringVar(&opts.locale, "locale", "en-IN", "display locale for amounts")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the preview as JSON")
	_ = cmd.MarkFlagRequired("catalog")
	return cmd
}

func run(ctx context.Context, opts options, stdin io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rate, err := money.ParseRate(opts.cardRate)
	if err != nil {
		return err
	}

	f, err := os.Open(opts.catalogPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	items, err := catalog.LoadStatic(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	draft, err := readDraft(opts.draftPath, stdin)
	if err != nil {
		return err
	}

	svc := &payment.Service{
		Catalog:  items,
		Composer: settlement.NewComposer(settlement.DefaultPolicy.WithCardRate(rate)),
		Locale:   opts.locale,
		Logger:   zerolog.Nop(),
	}
	preview, err := svc.Preview(ctx, "", draft)
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(preview)
	}
	return printSummary(out, preview)
}

func readDraft(path string, stdin io.Reader) (payment.Draft, error) {
	var r io.Reader = stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return payment.Draft{}, fmt.Errorf("open draft: %w", err)
		}
		defer f.Close()
		r = f
	}
	var draft payment.Draft
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&draft); err != nil {
		return payment.Draft{}, fmt.Errorf("decode draft: %w", err)
	}
	if err := common.Validate(draft); err != nil {
		return payment.Draft{}, err
	}
	return draft, nil
}

func printSummary(out io.Writer, p payment.Preview) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, line := range p.Summary.Lines {
		fmt.Fprintf(tw, "%s\t%s\t\n", line.Label, line.Amount)
	}
	fmt.Fprintf(tw, "Subtotal\t%s\t\n", p.Summary.Subtotal)
	fmt.Fprintf(tw, "Surcharge (%s)\t%s\t\n", p.Summary.PaymentMethod, p.Summary.Surcharge)
	fmt.Fprintf(tw, "Total\t%s\t\n", p.Summary.Total)
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "confirmation %s\n", p.Confirmation)
	return err
}
