package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"tabungan/process/bootstrap"
	"tabungan/process/report"
)

func main() {
	month := flag.String("month", time.Now().UTC().Format("2006-01"), "month to report (YYYY-MM)")
	start := flag.String("start", "", "period start (YYYY-MM-DD), overrides -month")
	end := flag.String("end", "", "period end, inclusive (YYYY-MM-DD)")
	list := flag.Bool("list", false, "list verified rows of the period")
	flag.Parse()

	from, to, err := report.MonthRange(*month)
	if *start != "" || *end != "" {
		from, to, err = dayRange(*start, *end)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	env := bootstrap.MustEnv()
	if err := report.RunReport(context.Background(), env.Svc, os.Stdout, from, to, *list); err != nil {
		env.Log.WithError(err).Fatal("report failed")
	}
}

func dayRange(start, end string) (time.Time, time.Time, error) {
	from, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -start: %w", err)
	}
	to, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -end: %w", err)
	}
	return from, to.AddDate(0, 0, 1), nil
}
