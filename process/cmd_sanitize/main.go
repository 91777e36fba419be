package main

import (
	"flag"

	"tabungan/process/bootstrap"
	"tabungan/process/sanitize"
)

func main() {
	dryRun := flag.Bool("dry-run", true, "Don't perform destructive actions; show what would be done")
	yes := flag.Bool("yes", false, "Confirm destructive action (required to actually truncate)")
	reseed := flag.Bool("reseed", false, "After truncation, reseed master roles and the admin user")
	tables := flag.String("tables", sanitize.DefaultTables, "Comma-separated list of tables to truncate")
	flag.Parse()

	env := bootstrap.MustEnv()
	err := sanitize.Run(env.DB, env.Log, sanitize.Options{
		Tables:        *tables,
		DryRun:        *dryRun,
		Yes:           *yes,
		Reseed:        *reseed,
		AdminPassword: env.Config.AdminPassword,
	})
	if err != nil {
		env.Log.WithError(err).Fatal("sanitize failed")
	}
}
