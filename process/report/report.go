package report

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"tabungan/pkg/tabungan"
)

// MonthRange returns [first day of month, first day of next month) in UTC for
// a YYYY-MM string.
func MonthRange(month string) (time.Time, time.Time, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month format, expected YYYY-MM: %w", err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// RunReport prints verified totals for [start, end) and optionally every
// verified row of the period.
func RunReport(ctx context.Context, svc *tabungan.Service, out io.Writer, start, end time.Time, list bool) error {
	tot, err := svc.PeriodReport(ctx, start, end)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Report %s .. %s (UTC, verified only):\n", start.Format(time.DateOnly), end.Add(-time.Nanosecond).Format(time.DateOnly))
	fmt.Fprintf(out, "  transactions=%d deposits=%d withdrawals=%d net=%d\n", tot.Count, tot.TotalDeposits, tot.TotalWithdrawals, tot.Net)
	if !list {
		return nil
	}

	items, err := svc.VerifiedIn(ctx, start, end)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTUDENT\tTYPE\tNOMINAL\tVERIFIED_AT")
	for _, t := range items {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\n", t.ID, t.SiswaID, t.Type, t.Nominal, t.VerifiedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// RunReconcile prints every drifted account and returns how many there were.
func RunReconcile(ctx context.Context, svc *tabungan.Service, out io.Writer) (int, error) {
	drifts, err := svc.Reconcile(ctx)
	if err != nil {
		return 0, err
	}
	if len(drifts) == 0 {
		fmt.Fprintln(out, "all balances match the verified ledger")
		return 0, nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STUDENT\tSALDO\tEXPECTED\tDIFF")
	for _, d := range drifts {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", d.StudentID, d.Saldo, d.Expected, d.Saldo-d.Expected)
	}
	return len(drifts), tw.Flush()
}
