package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/generic"
)

var (
	clientID      int64
	fromDate      string
	toDate        string
	invoiceNumber int64
	invoiceDate   string
	dueDate       string
	scenarioID    string
)

// =============================================================================
// INVOICE COMMANDS
// =============================================================================

var nextNumberCmd = &cobra.Command{
	Use:   "next-number",
	Short: "Print the suggested next invoice number",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		next, err := current.svc.GetNextInvoiceNumber(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), next)
		return nil
	},
}

var previewCmd = &cobra.Command{
	Use:     "preview",
	Short:   "Aggregate a client's uninvoiced time without persisting",
	Example: `  billing preview --client 1 --from 2025-03-01 --to 2025-03-31`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		preview, err := current.svc.PreviewInvoice(cmd.Context(), billing.ClientID(clientID), fromDate, toDate)
		if err != nil {
			return err
		}
		printPreview(cmd.OutOrStdout(), *preview)
		return nil
	},
}

var createInvoiceCmd = &cobra.Command{
	Use:   "create-invoice",
	Short: "Bill a client's uninvoiced time for a date range",
	Example: `  billing create-invoice --client 1 --from 2025-03-01 --to 2025-03-31 \
      --number 1004 --date 2025-03-31 --due 2025-04-30`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		number := invoiceNumber
		if number == 0 {
			next, err := current.svc.GetNextInvoiceNumber(cmd.Context())
			if err != nil {
				return err
			}
			number = next
		}

		detail, err := current.svc.CreateInvoiceFromTimeEntries(cmd.Context(), billing.CreateInvoiceInput{
			ClientID:      billing.ClientID(clientID),
			StartDate:     fromDate,
			EndDate:       toDate,
			InvoiceNumber: number,
			InvoiceDate:   invoiceDate,
			DueDate:       dueDate,
		})
		if err != nil {
			return err
		}
		printInvoice(cmd.OutOrStdout(), *detail)
		return nil
	},
}

// =============================================================================
// STATEMENT AND SEED
// =============================================================================

var statementCmd = &cobra.Command{
	Use:     "statement",
	Short:   "Print a client's account statement",
	Example: `  billing statement --client 1 --from 2025-01-01 --to 2025-03-31`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stmt, err := current.svc.CalculateStatement(cmd.Context(), billing.ClientID(clientID), fromDate, toDate)
		if err != nil {
			return err
		}
		printStatement(cmd.OutOrStdout(), *stmt)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Reset the database and load a demo scenario",
	Long:  "Reset the database and load a demo scenario. Available: " + scenarioList(),
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api.LoadScenario(cmd.Context(), current.store, current.svc, scenarioID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "loaded scenario %s into %s\n", scenarioID, current.cfg.DBPath)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{previewCmd, createInvoiceCmd, statementCmd} {
		c.Flags().Int64Var(&clientID, "client", 0, "client id")
		c.Flags().StringVar(&fromDate, "from", "", "range start (YYYY-MM-DD, inclusive)")
		c.Flags().StringVar(&toDate, "to", "", "range end (YYYY-MM-DD, inclusive)")
		_ = c.MarkFlagRequired("client")
		_ = c.MarkFlagRequired("from")
		_ = c.MarkFlagRequired("to")
	}

	createInvoiceCmd.Flags().Int64Var(&invoiceNumber, "number", 0, "invoice number (default: next free)")
	createInvoiceCmd.Flags().StringVar(&invoiceDate, "date", "", "invoice date (YYYY-MM-DD)")
	createInvoiceCmd.Flags().StringVar(&dueDate, "due", "", "due date (YYYY-MM-DD)")
	_ = createInvoiceCmd.MarkFlagRequired("date")
	_ = createInvoiceCmd.MarkFlagRequired("due")

	seedCmd.Flags().StringVar(&scenarioID, "scenario", "consulting-quarter", "scenario id")
}

func scenarioList() string {
	var out string
	for i, s := range api.Scenarios() {
		if i > 0 {
			out += ", "
		}
		out += s.ID
	}
	return out
}

// exitCode distinguishes caller mistakes (2) from failures (1).
func exitCode(err error) int {
	if generic.IsClientError(err) {
		return 2
	}
	return 1
}

// =============================================================================
// OUTPUT
// =============================================================================

var printer = message.NewPrinter(language.English)

// money renders cents with grouped thousands, e.g. -12345678 -> -123,456.78.
func money(c generic.Cents) string {
	sign := ""
	if c.IsNegative() {
		sign = "-"
	}
	abs := int64(c.Abs())
	return sign + printer.Sprintf("%d", abs/100) + fmt.Sprintf(".%02d", abs%100)
}

func hours(minutes int64) string {
	return strconv.FormatFloat(float64(minutes)/60, 'f', 2, 64) + "h"
}

func project(name string) string {
	if name == "" {
		return "-"
	}
	return name
}

func printPreview(w io.Writer, p billing.Preview) {
	fmt.Fprintf(w, "Preview for %s, %s to %s\n", p.Client.Name, p.StartDate, p.EndDate)
	if len(p.Lines) == 0 {
		fmt.Fprintln(w, "  no uninvoiced time entries")
		return
	}
	for _, l := range p.Lines {
		fmt.Fprintf(w, "  %-8s %-16s %8s x %10s = %12s  (-%s, %d entries)\n",
			l.WorkTypeCode, project(l.ProjectName), hours(l.TotalMinutes),
			money(l.HourlyRateCents), money(l.AmountCents), money(l.DiscountCents), l.EntryCount)
	}
	fmt.Fprintf(w, "  subtotal %s  discount %s  total %s  (%d entries)\n",
		money(p.SubtotalCents), money(p.DiscountCents), money(p.TotalCents), p.TotalEntries)
}

func printInvoice(w io.Writer, d billing.InvoiceDetail) {
	fmt.Fprintf(w, "Invoice #%d for %s (%s), dated %s, due %s\n",
		d.InvoiceNumber, d.Client.Name, d.Status, d.InvoiceDate, d.DueDate)
	for _, l := range d.Lines {
		fmt.Fprintf(w, "  %-8s %-16s %8s = %12s  (-%s)\n",
			l.WorkTypeCode, project(l.ProjectName), hours(l.TotalMinutes), money(l.AmountCents), money(l.DiscountCents))
	}
	fmt.Fprintf(w, "  subtotal %s  discount %s  total %s\n",
		money(d.SubtotalCents), money(d.DiscountCents), money(d.TotalCents))
}

func printStatement(w io.Writer, s billing.Statement) {
	if s.Company.Name != "" {
		fmt.Fprintln(w, s.Company.Name)
	}
	fmt.Fprintf(w, "Statement for %s, %s to %s\n", s.Client.Name, s.StartDate, s.EndDate)
	fmt.Fprintf(w, "  %-10s  %-10s  %-50s %12s %12s\n", "", "", "Beginning balance", "", money(s.BeginningBalanceCents))
	for _, t := range s.Transactions {
		fmt.Fprintf(w, "  %-10s  %-10s  %-50s %12s %12s\n",
			t.Date, t.DocumentID, t.Description, money(t.AmountCents), money(t.RunningBalanceCents))
	}
	fmt.Fprintf(w, "  invoiced %s  paid %s  ending balance %s\n",
		money(s.PeriodInvoicesTotalCents), money(s.PeriodPaymentsTotalCents), money(s.EndingBalanceCents))
}
