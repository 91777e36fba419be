package tabungan

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"tabungan/models"
)

// PeriodReport sums verified transactions with verification time in
// [start, end). Pending and rejected rows never count.
func (s *Service) PeriodReport(ctx context.Context, start, end time.Time) (Totals, error) {
	if start.IsZero() || end.IsZero() {
		return Totals{}, invalid("start/end", "both required")
	}
	if !end.After(start) {
		return Totals{}, invalid("end", "must be after start")
	}
	return s.store.PeriodTotals(ctx, start.UTC(), end.UTC())
}

// VerifiedIn lists the rows PeriodReport sums, ordered by verification time.
func (s *Service) VerifiedIn(ctx context.Context, start, end time.Time) ([]models.Transaksi, error) {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return nil, invalid("start/end", "end must be after start")
	}
	return s.store.VerifiedBetween(ctx, start.UTC(), end.UTC())
}

// StatementLine is one row of a student statement. Balance is the running
// balance after this row, counting verified rows only.
type StatementLine struct {
	models.Transaksi
	Balance int64 `json:"runningBalance"`
}

// Statement is the full history of one student.
type Statement struct {
	Account *models.Tabungan `json:"account"`
	Lines   []StatementLine  `json:"lines"`
}

// Statement returns every transaction of a student ordered by creation time.
func (s *Service) Statement(ctx context.Context, studentID uint) (*Statement, error) {
	acct, err := s.Account(ctx, studentID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListTransactions(ctx, Filter{StudentID: studentID})
	if err != nil {
		return nil, err
	}
	st := &Statement{Account: acct, Lines: make([]StatementLine, 0, len(items))}
	var running int64
	for _, t := range items {
		if t.Status == models.StatusVerified {
			running += t.SignedNominal()
		}
		st.Lines = append(st.Lines, StatementLine{Transaksi: t, Balance: running})
	}
	return st, nil
}

// MonthTotals is one month of a yearly summary.
type MonthTotals struct {
	Month string `json:"month"` // YYYY-MM
	Totals
}

// MonthlySummary groups verified transactions of a year by verification month.
// Months without activity are omitted.
func (s *Service) MonthlySummary(ctx context.Context, year int) ([]MonthTotals, error) {
	if year < 2000 || year > 9999 {
		return nil, invalid("year", "out of range")
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	items, err := s.store.VerifiedBetween(ctx, start, start.AddDate(1, 0, 0))
	if err != nil {
		return nil, err
	}
	var out []MonthTotals
	idx := map[string]int{}
	for _, t := range items {
		if t.VerifiedAt == nil {
			continue
		}
		key := t.VerifiedAt.UTC().Format("2006-01")
		i, ok := idx[key]
		if !ok {
			out = append(out, MonthTotals{Month: key})
			i = len(out) - 1
			idx[key] = i
		}
		m := &out[i]
		if t.Type == models.TipeSetor {
			m.TotalDeposits += t.Nominal
		} else {
			m.TotalWithdrawals += t.Nominal
		}
		m.Count++
		m.Net = m.TotalDeposits - m.TotalWithdrawals
	}
	return out, nil
}

// Drift is an account whose cached saldo disagrees with its verified rows.
type Drift struct {
	StudentID uint  `json:"studentId"`
	Saldo     int64 `json:"balance"`
	Expected  int64 `json:"expected"`
}

// Reconcile recomputes every balance from verified transactions and returns
// the accounts that drifted. It never writes.
func (s *Service) Reconcile(ctx context.Context) ([]Drift, error) {
	accts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	net, err := s.store.VerifiedNet(ctx)
	if err != nil {
		return nil, err
	}
	drifts := []Drift{}
	for _, a := range accts {
		if exp := net[a.SiswaID]; exp != a.Saldo {
			drifts = append(drifts, Drift{StudentID: a.SiswaID, Saldo: a.Saldo, Expected: exp})
		}
	}
	balanceDriftAccounts.Set(float64(len(drifts)))
	if len(drifts) > 0 {
		s.log.WithFields(logrus.Fields{"accounts": len(accts), "drifted": len(drifts)}).Error("balance drift detected")
	} else {
		s.log.WithField("accounts", len(accts)).Info("balances reconciled")
	}
	return drifts, nil
}
