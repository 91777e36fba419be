package tabungan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"tabungan/models"
	"tabungan/pkg/database"
)

// MaxListLimit caps list queries.
const MaxListLimit = 200

// Store is the gorm-backed ledger store. All balance changes go through
// Resolve, which runs the status compare-and-swap and the balance increment in
// one database transaction.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open gorm handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Filter selects transactions for listing.
type Filter struct {
	Status    models.TransaksiStatus // empty means any
	StudentID uint                   // zero means any
	Limit     int
	Offset    int
	Newest    bool // default order is oldest first
}

// Totals aggregates verified transactions of a period.
type Totals struct {
	TotalDeposits    int64 `json:"totalDeposits"`
	TotalWithdrawals int64 `json:"totalWithdrawals"`
	Count            int64 `json:"count"`
	Net              int64 `json:"net"`
}

// Resolution is the terminal state written by Resolve.
type Resolution struct {
	Status     models.TransaksiStatus
	VerifierID uint
	At         time.Time
	Reason     string
}

// ReceiptCheck is what gets stored when a deposit proof is attached.
type ReceiptCheck struct {
	Path       string
	Amount     *int64
	Confidence float64
	Mismatch   bool
}

func classify(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return persistence(err)
}

// CreateAccount stores a student and opens its savings account at zero.
func (s *Store) CreateAccount(ctx context.Context, siswa *models.Siswa) (*models.Tabungan, error) {
	var acct models.Tabungan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(siswa).Error; err != nil {
			return err
		}
		acct = models.Tabungan{SiswaID: siswa.ID, Saldo: 0, Active: true}
		return tx.Create(&acct).Error
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, invalid("student", "NIS or scan code already enrolled")
		}
		return nil, persistence(err)
	}
	acct.Siswa = siswa
	return &acct, nil
}

// AccountByStudent loads the account of a student, with the student preloaded.
func (s *Store) AccountByStudent(ctx context.Context, studentID uint) (*models.Tabungan, error) {
	var acct models.Tabungan
	if err := s.db.WithContext(ctx).Preload("Siswa").Where("siswa_id = ?", studentID).First(&acct).Error; err != nil {
		return nil, classify(err, fmt.Sprintf("account for student %d", studentID))
	}
	return &acct, nil
}

// AccountByScanCode resolves a scanned card to its account.
func (s *Store) AccountByScanCode(ctx context.Context, code string) (*models.Tabungan, error) {
	var siswa models.Siswa
	if err := s.db.WithContext(ctx).Where("scan_code = ?", code).First(&siswa).Error; err != nil {
		return nil, classify(err, fmt.Sprintf("student with scan code %q", code))
	}
	return s.AccountByStudent(ctx, siswa.ID)
}

// SetAccountActive opens or closes an account. Balance is untouched.
func (s *Store) SetAccountActive(ctx context.Context, studentID uint, active bool) error {
	res := s.db.WithContext(ctx).Model(&models.Tabungan{}).Where("siswa_id = ?", studentID).Update("active", active)
	if res.Error != nil {
		return persistence(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: account for student %d", ErrNotFound, studentID)
	}
	return nil
}

// ListAccounts returns every account ordered by id.
func (s *Store) ListAccounts(ctx context.Context) ([]models.Tabungan, error) {
	var accts []models.Tabungan
	if err := s.db.WithContext(ctx).Order("id").Find(&accts).Error; err != nil {
		return nil, persistence(err)
	}
	return accts, nil
}

// CreateTransaction inserts a new pending row.
func (s *Store) CreateTransaction(ctx context.Context, t *models.Transaksi) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return persistence(err)
	}
	return nil
}

// TransactionByID loads one transaction.
func (s *Store) TransactionByID(ctx context.Context, id string) (*models.Transaksi, error) {
	var t models.Transaksi
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, classify(err, "transaction "+id)
	}
	return &t, nil
}

// ListTransactions returns transactions matching f ordered by creation time.
func (s *Store) ListTransactions(ctx context.Context, f Filter) ([]models.Transaksi, error) {
	q := s.filtered(ctx, f)
	if f.Newest {
		q = q.Order("created_at desc").Order("id desc")
	} else {
		q = q.Order("created_at asc").Order("id asc")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	var items []models.Transaksi
	if err := q.Find(&items).Error; err != nil {
		return nil, persistence(err)
	}
	return items, nil
}

// CountTransactions counts the rows matching f, ignoring limit and offset.
func (s *Store) CountTransactions(ctx context.Context, f Filter) (int64, error) {
	var n int64
	if err := s.filtered(ctx, f).Count(&n).Error; err != nil {
		return 0, persistence(err)
	}
	return n, nil
}

func (s *Store) filtered(ctx context.Context, f Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Transaksi{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.StudentID != 0 {
		q = q.Where("siswa_id = ?", f.StudentID)
	}
	return q
}

// Resolve moves a pending transaction to a terminal status. For a verified
// transaction the signed nominal is added to the account balance with a single
// increment statement; a withdrawal only applies while saldo >= nominal and a
// deposit only while the sum still fits in int64. Either both writes commit or
// neither does.
//
// It returns the updated transaction and the account balance after the call.
func (s *Store) Resolve(ctx context.Context, id string, r Resolution) (*models.Transaksi, int64, error) {
	var (
		t       models.Transaksi
		balance int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&t).Error; err != nil {
			return classify(err, "transaction "+id)
		}
		if t.Status != models.StatusPending {
			return fmt.Errorf("%w: transaction %s is already %s", ErrInvalidTransition, id, t.Status)
		}

		// compare-and-swap on status; a concurrent resolver that got here
		// first leaves zero rows to update
		res := tx.Model(&models.Transaksi{}).
			Where("id = ? AND status = ?", id, models.StatusPending).
			Updates(map[string]any{
				"status":        r.Status,
				"verified_by":   r.VerifierID,
				"verified_at":   r.At,
				"reject_reason": r.Reason,
			})
		if res.Error != nil {
			return persistence(res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: transaction %s was resolved concurrently", ErrInvalidTransition, id)
		}

		if r.Status == models.StatusVerified {
			delta := t.SignedNominal()
			q := tx.Model(&models.Tabungan{}).Where("siswa_id = ?", t.SiswaID)
			if delta < 0 {
				q = q.Where("saldo >= ?", -delta)
			} else {
				q = q.Where("saldo <= ?", math.MaxInt64-delta)
			}
			res = q.Update("saldo", gorm.Expr("saldo + ?", delta))
			if res.Error != nil {
				return persistence(res.Error)
			}
			if res.RowsAffected == 0 {
				var n int64
				if err := tx.Model(&models.Tabungan{}).Where("siswa_id = ?", t.SiswaID).Count(&n).Error; err != nil {
					return persistence(err)
				}
				if n == 0 {
					return fmt.Errorf("%w: account for student %d", ErrNotFound, t.SiswaID)
				}
				if delta > 0 {
					return invalid("nominal", "deposit of %d would overflow the balance", t.Nominal)
				}
				return fmt.Errorf("%w: withdrawal of %d exceeds current balance", ErrInsufficientBalance, t.Nominal)
			}
		}

		if err := tx.Where("id = ?", id).First(&t).Error; err != nil {
			return persistence(err)
		}
		var acct models.Tabungan
		if err := tx.Where("siswa_id = ?", t.SiswaID).First(&acct).Error; err != nil {
			return classify(err, fmt.Sprintf("account for student %d", t.SiswaID))
		}
		balance = acct.Saldo
		return nil
	})
	if err != nil {
		if isClassified(err) {
			return nil, 0, err
		}
		return nil, 0, persistence(err)
	}
	return &t, balance, nil
}

// AttachReceipt records a deposit proof on a transaction that is still pending.
func (s *Store) AttachReceipt(ctx context.Context, id string, rc ReceiptCheck) (*models.Transaksi, error) {
	res := s.db.WithContext(ctx).Model(&models.Transaksi{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(map[string]any{
			"receipt_path":       rc.Path,
			"receipt_amount":     rc.Amount,
			"receipt_confidence": rc.Confidence,
			"receipt_mismatch":   rc.Mismatch,
		})
	if res.Error != nil {
		return nil, persistence(res.Error)
	}
	if res.RowsAffected == 0 {
		t, err := s.TransactionByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: transaction %s is already %s", ErrInvalidTransition, id, t.Status)
	}
	return s.TransactionByID(ctx, id)
}

// PeriodTotals sums verified transactions whose verification time is in
// [start, end).
func (s *Store) PeriodTotals(ctx context.Context, start, end time.Time) (Totals, error) {
	var tot Totals
	row := s.db.WithContext(ctx).Model(&models.Transaksi{}).
		Select(`CAST(COALESCE(SUM(CASE WHEN type = ? THEN nominal ELSE 0 END), 0) AS BIGINT),
			CAST(COALESCE(SUM(CASE WHEN type = ? THEN nominal ELSE 0 END), 0) AS BIGINT),
			COUNT(*)`, models.TipeSetor, models.TipeTarik).
		Where("status = ? AND verified_at >= ? AND verified_at < ?", models.StatusVerified, start, end).
		Row()
	if err := row.Scan(&tot.TotalDeposits, &tot.TotalWithdrawals, &tot.Count); err != nil {
		return Totals{}, persistence(err)
	}
	tot.Net = tot.TotalDeposits - tot.TotalWithdrawals
	return tot, nil
}

// VerifiedBetween lists verified transactions with verified_at in [start, end).
func (s *Store) VerifiedBetween(ctx context.Context, start, end time.Time) ([]models.Transaksi, error) {
	var items []models.Transaksi
	err := s.db.WithContext(ctx).
		Where("status = ? AND verified_at >= ? AND verified_at < ?", models.StatusVerified, start, end).
		Order("verified_at").Find(&items).Error
	if err != nil {
		return nil, persistence(err)
	}
	return items, nil
}

// VerifiedNet returns, per student, verified deposits minus verified
// withdrawals.
func (s *Store) VerifiedNet(ctx context.Context) (map[uint]int64, error) {
	rows, err := s.db.WithContext(ctx).Model(&models.Transaksi{}).
		Select(`siswa_id, CAST(COALESCE(SUM(CASE WHEN type = ? THEN nominal ELSE -nominal END), 0) AS BIGINT)`, models.TipeSetor).
		Where("status = ?", models.StatusVerified).
		Group("siswa_id").Rows()
	if err != nil {
		return nil, persistence(err)
	}
	defer rows.Close()
	out := map[uint]int64{}
	for rows.Next() {
		var (
			id  uint
			net int64
		)
		if err := rows.Scan(&id, &net); err != nil {
			return nil, persistence(err)
		}
		out[id] = net
	}
	if err := rows.Err(); err != nil {
		return nil, persistence(err)
	}
	return out, nil
}

func isClassified(err error) bool {
	for _, target := range []error{ErrValidation, ErrInsufficientBalance, ErrNotFound, ErrInvalidTransition, ErrPersistence} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
