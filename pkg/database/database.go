package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tabungan/models"
)

// Options configures the Postgres connection pool.
type Options struct {
	DSN             string
	LogLevel        string // silent, error, warn, info
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to Postgres and applies pool settings.
func Open(opts Options) (*gorm.DB, error) {
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, errors.New("DB_DSN is not set. This project requires a Postgres DSN in DB_DSN")
	}
	gdb, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{Logger: NewLogger(opts.LogLevel)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres database: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return gdb, nil
}

// NewLogger maps a level name onto the gorm logger.
func NewLogger(level string) logger.Interface {
	var lvl logger.LogLevel
	switch strings.ToLower(level) {
	case "info":
		lvl = logger.Info
	case "warn":
		lvl = logger.Warn
	case "silent":
		lvl = logger.Silent
	default:
		lvl = logger.Error
	}
	return logger.Default.LogMode(lvl)
}

// Migrate creates or updates the schema. Roles go first so the users FK can
// be applied; each model is migrated on its own so one failure doesn't block
// the rest. Failures are logged as warnings.
func Migrate(gdb *gorm.DB, log logrus.FieldLogger) {
	steps := []struct {
		table string
		model any
	}{
		{"roles", &models.Role{}},
		{"users", &models.User{}},
		{"siswas", &models.Siswa{}},
		{"tabungans", &models.Tabungan{}},
		{"transaksis", &models.Transaksi{}},
	}
	for _, s := range steps {
		if err := gdb.AutoMigrate(s.model); err != nil {
			log.WithError(err).WithField("table", s.table).Warn("migration warning")
		}
	}
}

// SeedRoles ensures the master roles exist.
func SeedRoles(gdb *gorm.DB) error {
	for _, r := range models.MasterRoles() {
		r := r
		if err := gdb.Where("name = ?", r.Name).FirstOrCreate(&r).Error; err != nil {
			return fmt.Errorf("failed to ensure role %s: %w", r.Name, err)
		}
	}
	return nil
}

// SeedAdmin creates the default administrator when no admin user exists yet.
// It reports whether a user was created.
func SeedAdmin(gdb *gorm.DB, password string) (bool, error) {
	var count int64
	if err := gdb.Model(&models.User{}).Where("username = ?", "admin").Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if err := CreateUser(gdb, "admin", password, models.RoleAdministrator, "Administrator"); err != nil {
		return false, err
	}
	return true, nil
}

// ErrUserExists is returned by CreateUser for a taken username.
var ErrUserExists = errors.New("user already exists")

// CreateUser hashes the password and stores a user with the given role name.
func CreateUser(gdb *gorm.DB, username, password, roleName, nama string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username required")
	}
	if len(password) < 6 { // basic password policy
		return fmt.Errorf("password too short (min 6)")
	}
	var role models.Role
	if err := gdb.Where("name = ?", roleName).First(&role).Error; err != nil {
		return fmt.Errorf("unknown role %q: %w", roleName, err)
	}
	// pre-check existing (optimistic)
	var existing models.User
	if err := gdb.Where("username = ?", username).First(&existing).Error; err == nil {
		return ErrUserExists
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	rid := role.ID
	user := models.User{Username: username, Nama: nama, HashedPassword: hashed, RoleID: &rid}
	if err := gdb.Create(&user).Error; err != nil {
		if IsUniqueViolation(err) { // race condition after initial check
			return ErrUserExists
		}
		return err
	}
	return nil
}

// ResetPassword replaces the password hash of an existing user.
func ResetPassword(gdb *gorm.DB, username, password string) error {
	if len(password) < 6 {
		return fmt.Errorf("password too short (min 6)")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	res := gdb.Model(&models.User{}).Where("username = ?", strings.TrimSpace(username)).Update("hashed_password", hashed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %q not found", username)
	}
	return nil
}

// IsUniqueViolation reports whether err is a unique constraint violation.
// Postgres errors are matched on SQLSTATE 23505; other drivers by message.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "already exists")
}
