package main

import (
	"context"
	"os"
	"time"

	"tabungan/process/bootstrap"
	"tabungan/process/report"
)

// Exits 1 when any account drifted from its verified transactions.
func main() {
	env := bootstrap.MustEnv()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	n, err := report.RunReconcile(ctx, env.Svc, os.Stdout)
	if err != nil {
		env.Log.WithError(err).Fatal("reconciliation failed")
	}
	if n > 0 {
		os.Exit(1)
	}
}
