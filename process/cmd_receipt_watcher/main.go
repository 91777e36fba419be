package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"tabungan/process/bootstrap"
	"tabungan/process/receiptwatch"
)

func main() {
	env := bootstrap.MustEnv()
	dir := flag.String("dir", filepath.Join(env.Config.UploadBase, "inbox"), "inbox directory to watch")
	workers := flag.Int("workers", 2, "concurrent attach workers")
	flag.Parse()

	w := receiptwatch.New(*dir, env.Svc, env.Log)
	w.Workers = *workers

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := w.Run(ctx); err != nil {
		env.Log.WithError(err).Fatal("receipt watcher stopped")
	}
}
