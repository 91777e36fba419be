// Package sanitize empties the ledger tables of a development database.
package sanitize

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tabungan/pkg/database"
)

// DefaultTables lists app tables children first.
const DefaultTables = "transaksis,tabungans,siswas,users,roles"

var nameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Options controls a Run.
type Options struct {
	Tables        string // comma separated
	DryRun        bool
	Yes           bool // required to actually truncate
	Reseed        bool // recreate master roles and the admin user afterwards
	AdminPassword string
}

// ParseTables splits a comma separated list, dropping empty and unsafe names.
func ParseTables(csv string) (valid, skipped []string) {
	for _, p := range strings.Split(csv, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !nameRe.MatchString(p) {
			skipped = append(skipped, p)
			continue
		}
		valid = append(valid, p)
	}
	return valid, skipped
}

// TruncateStatement builds the TRUNCATE for already validated names.
func TruncateStatement(tables []string) string {
	quoted := make([]string, 0, len(tables))
	for _, t := range tables {
		quoted = append(quoted, fmt.Sprintf("%q", t))
	}
	return fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(quoted, ", "))
}

// Run truncates the requested tables that exist in the public schema.
func Run(gdb *gorm.DB, log logrus.FieldLogger, opts Options) error {
	wanted, skipped := ParseTables(opts.Tables)
	for _, s := range skipped {
		log.WithField("table", s).Warn("skipping invalid table name")
	}

	existing := []string{}
	// check presence individually to avoid any injection risk
	for _, t := range wanted {
		var cnt int64
		if err := gdb.Raw("SELECT count(*) FROM pg_tables WHERE schemaname = 'public' AND tablename = ?", t).Scan(&cnt).Error; err != nil {
			return fmt.Errorf("failed to query pg_tables for %s: %w", t, err)
		}
		if cnt > 0 {
			existing = append(existing, t)
		} else {
			log.WithField("table", t).Info("table not found, skipping")
		}
	}
	if len(existing) == 0 {
		log.Info("no requested tables present in the database; nothing to do")
		return nil
	}
	log.WithField("tables", existing).Info("tables considered for truncation")

	if opts.DryRun {
		log.Info("dry-run enabled; no changes will be made. Use --dry-run=false --yes to execute.")
		return nil
	}
	if !opts.Yes {
		log.Warn("destructive operation, pass --yes to confirm execution. Aborting.")
		return nil
	}

	stmt := TruncateStatement(existing)
	log.WithField("sql", stmt).Info("executing")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := gdb.WithContext(ctx).Exec(stmt).Error; err != nil {
		return fmt.Errorf("truncate failed: %w", err)
	}
	log.Info("truncate completed")

	if opts.Reseed {
		if err := database.SeedRoles(gdb); err != nil {
			return err
		}
		if _, err := database.SeedAdmin(gdb, opts.AdminPassword); err != nil {
			return fmt.Errorf("reseed admin: %w", err)
		}
		log.Info("reseeded roles and admin user")
	}
	return nil
}
