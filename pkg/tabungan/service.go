package tabungan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tabungan/models"
)

// DefaultMinNominal is the smallest accepted transaction, in rupiah.
const DefaultMinNominal int64 = 1000

// DefaultMaxNominal is the largest accepted transaction, in rupiah.
const DefaultMaxNominal int64 = 1_000_000_000_000

const maxNoteLen = 255

// Decision is what a treasurer does with a pending transaction.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision accepts approve/reject (and the setujui/tolak aliases).
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "setujui":
		return DecisionApprove, nil
	case "reject", "tolak":
		return DecisionReject, nil
	}
	return "", invalid("decision", "must be approve or reject, got %q", s)
}

// AmountReader extracts a rupiah amount from a receipt image.
type AmountReader interface {
	ReadAmount(path string) (amount int64, confidence float64, err error)
}

// Service owns every rule of the savings workflow. It is the only writer of
// transaction status and account balance.
type Service struct {
	store         *Store
	log           logrus.FieldLogger
	locker        Locker
	publisher     Publisher
	receipts      AmountReader
	minNominal    int64
	maxNominal    int64
	minConfidence float64
	now           func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithLocker guards verification with a cross-instance lock.
func WithLocker(l Locker) Option { return func(s *Service) { s.locker = l } }

// WithPublisher sets the event sink.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithMinNominal overrides DefaultMinNominal.
func WithMinNominal(n int64) Option { return func(s *Service) { s.minNominal = n } }

// WithMaxNominal overrides DefaultMaxNominal.
func WithMaxNominal(n int64) Option { return func(s *Service) { s.maxNominal = n } }

// WithReceiptReader enables OCR of deposit receipts. Amounts read with a
// confidence below minConfidence are stored but never flag a mismatch.
func WithReceiptReader(r AmountReader, minConfidence float64) Option {
	return func(s *Service) {
		s.receipts = r
		s.minConfidence = minConfidence
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService wires a Service around a store.
func NewService(store *Store, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		log:        log,
		locker:     nopLocker{},
		publisher:  nopPublisher{},
		minNominal: DefaultMinNominal,
		maxNominal: DefaultMaxNominal,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MinNominal is the configured minimum transaction amount.
func (s *Service) MinNominal() int64 { return s.minNominal }

// EnrollInput opens a savings account for a new student.
type EnrollInput struct {
	NIS      string
	Nama     string
	Kelas    string
	ScanCode string // defaults to NIS
}

// Enroll registers a student into the savings program with a zero balance.
func (s *Service) Enroll(ctx context.Context, in EnrollInput) (*models.Tabungan, error) {
	in.NIS = strings.TrimSpace(in.NIS)
	in.Nama = strings.TrimSpace(in.Nama)
	in.ScanCode = strings.TrimSpace(in.ScanCode)
	if in.NIS == "" {
		return nil, invalid("nis", "required")
	}
	if in.Nama == "" {
		return nil, invalid("name", "required")
	}
	if in.ScanCode == "" {
		in.ScanCode = in.NIS
	}
	acct, err := s.store.CreateAccount(ctx, &models.Siswa{
		NIS:      in.NIS,
		Nama:     in.Nama,
		Kelas:    strings.TrimSpace(in.Kelas),
		ScanCode: in.ScanCode,
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"student_id": acct.SiswaID, "nis": in.NIS}).Info("savings account opened")
	return acct, nil
}

// Account returns the account and current balance of a student.
func (s *Service) Account(ctx context.Context, studentID uint) (*models.Tabungan, error) {
	if studentID == 0 {
		return nil, invalid("studentId", "required")
	}
	return s.store.AccountByStudent(ctx, studentID)
}

// AccountByScan resolves a scanned student card.
func (s *Service) AccountByScan(ctx context.Context, code string) (*models.Tabungan, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, invalid("code", "required")
	}
	return s.store.AccountByScanCode(ctx, code)
}

// SetAccountActive closes or reopens an account.
func (s *Service) SetAccountActive(ctx context.Context, studentID uint, active bool) error {
	return s.store.SetAccountActive(ctx, studentID, active)
}

// SubmitInput is a deposit or withdrawal recorded at the front desk.
type SubmitInput struct {
	StudentID  uint
	Type       string
	Nominal    int64
	Note       string
	OperatorID uint
}

// Submit validates a transaction and stores it as pending. The balance is not
// touched; a withdrawal is only checked against the balance at this moment.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*models.Transaksi, error) {
	typ, err := models.ParseTransaksiType(in.Type)
	if err != nil {
		return nil, invalid("type", "must be deposit or withdrawal")
	}
	if in.StudentID == 0 {
		return nil, invalid("studentId", "required")
	}
	if in.OperatorID == 0 {
		return nil, invalid("operatorId", "required")
	}
	if in.Nominal < s.minNominal {
		return nil, invalid("nominal", "must be at least %d", s.minNominal)
	}
	if in.Nominal > s.maxNominal {
		return nil, invalid("nominal", "must be at most %d", s.maxNominal)
	}
	note := strings.TrimSpace(in.Note)
	if utf8.RuneCountInString(note) > maxNoteLen {
		return nil, invalid("note", "at most %d characters", maxNoteLen)
	}

	acct, err := s.store.AccountByStudent(ctx, in.StudentID)
	if err != nil {
		return nil, err
	}
	if !acct.Active {
		return nil, invalid("studentId", "savings account is closed")
	}
	if typ == models.TipeTarik && in.Nominal > acct.Saldo {
		s.log.WithFields(logrus.Fields{
			"student_id": in.StudentID,
			"nominal":    in.Nominal,
			"saldo":      acct.Saldo,
		}).Warn("withdrawal exceeds balance")
		return nil, fmt.Errorf("%w: withdrawal of %d exceeds balance %d", ErrInsufficientBalance, in.Nominal, acct.Saldo)
	}

	t := &models.Transaksi{
		ID:         uuid.NewString(),
		CreatedAt:  s.now().UTC(),
		SiswaID:    in.StudentID,
		OperatorID: in.OperatorID,
		Type:       typ,
		Nominal:    in.Nominal,
		Status:     models.StatusPending,
		Note:       note,
	}
	if err := s.store.CreateTransaction(ctx, t); err != nil {
		s.log.WithError(err).Error("create transaction failed")
		return nil, err
	}
	submittedTotal.WithLabelValues(string(typ)).Inc()
	s.log.WithFields(logrus.Fields{
		"transaction_id": t.ID,
		"student_id":     t.SiswaID,
		"type":           t.Type,
		"nominal":        t.Nominal,
		"operator_id":    t.OperatorID,
	}).Info("transaction pending")

	s.publish(ctx, newEvent(EventCreated, t, in.OperatorID, t.CreatedAt))
	return t, nil
}

// VerifyInput is a treasurer's decision on one transaction.
type VerifyInput struct {
	TransactionID string
	VerifierID    uint
	Decision      string
	Reason        string
}

// Verify resolves a pending transaction. Approving applies the signed nominal
// to the balance in the same unit of work as the status change; rejecting
// leaves the balance alone. A transaction that is no longer pending yields
// ErrInvalidTransition and nothing changes.
//
// Approving a withdrawal re-checks the balance: if it dropped below the
// nominal since submission, ErrInsufficientBalance is returned and the
// transaction stays pending.
func (s *Service) Verify(ctx context.Context, in VerifyInput) (t *models.Transaksi, err error) {
	decision, err := ParseDecision(in.Decision)
	if err != nil {
		return nil, err
	}
	defer func() { resolvedTotal.WithLabelValues(string(decision), outcome(err)).Inc() }()

	in.TransactionID = strings.TrimSpace(in.TransactionID)
	if in.TransactionID == "" {
		return nil, invalid("id", "required")
	}
	if in.VerifierID == 0 {
		return nil, invalid("verifierId", "required")
	}
	reason := strings.TrimSpace(in.Reason)
	if utf8.RuneCountInString(reason) > maxNoteLen {
		return nil, invalid("reason", "at most %d characters", maxNoteLen)
	}

	release, err := s.locker.Acquire(ctx, "tabungan:verify:"+in.TransactionID)
	switch {
	case errors.Is(err, ErrLockHeld):
		return nil, fmt.Errorf("%w: verification of %s already in progress", ErrInvalidTransition, in.TransactionID)
	case err != nil:
		// the status compare-and-swap still protects us
		s.log.WithError(err).Warn("verification lock unavailable, relying on database")
	default:
		defer release()
	}

	next := models.StatusVerified
	if decision == DecisionReject {
		next = models.StatusRejected
	}
	at := s.now().UTC()
	t, balance, err := s.store.Resolve(ctx, in.TransactionID, Resolution{
		Status:     next,
		VerifierID: in.VerifierID,
		At:         at,
		Reason:     reason,
	})
	fields := logrus.Fields{"transaction_id": in.TransactionID, "verifier_id": in.VerifierID, "decision": decision}
	if err != nil {
		s.log.WithFields(fields).WithError(err).Warn("verification refused")
		return nil, err
	}
	fields["saldo"] = balance
	s.log.WithFields(fields).Info("transaction resolved")

	ev := newEvent(EventRejected, t, in.VerifierID, at)
	if next == models.StatusVerified {
		ev.Type = EventVerified
		ev.BalanceAfter = &balance
	}
	s.publish(ctx, ev)
	return t, nil
}

// Transaction loads one transaction.
func (s *Service) Transaction(ctx context.Context, id string) (*models.Transaksi, error) {
	return s.store.TransactionByID(ctx, strings.TrimSpace(id))
}

// List returns transactions filtered by status and student. Pending queues are
// oldest first.
func (s *Service) List(ctx context.Context, f Filter) ([]models.Transaksi, error) {
	if f.Limit <= 0 || f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.ListTransactions(ctx, f)
}

// Page is one slice of a filtered transaction list.
type Page struct {
	Items  []models.Transaksi `json:"items"`
	Total  int64              `json:"total"`
	Offset int                `json:"offset"`
	Limit  int                `json:"limit"`
	// NextOffset is nil on the last page.
	NextOffset *int `json:"nextOffset"`
}

// ListPage is List plus the number of rows matching the filter, so callers
// can tell when a result was cut at the limit.
func (s *Service) ListPage(ctx context.Context, f Filter) (*Page, error) {
	if f.Limit <= 0 || f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	total, err := s.store.CountTransactions(ctx, f)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListTransactions(ctx, f)
	if err != nil {
		return nil, err
	}
	p := &Page{Items: items, Total: total, Offset: f.Offset, Limit: f.Limit}
	if next := f.Offset + len(items); int64(next) < total {
		p.NextOffset = &next
	}
	return p, nil
}

// PendingQueue is the treasurer's work list, oldest first.
func (s *Service) PendingQueue(ctx context.Context) ([]models.Transaksi, error) {
	return s.List(ctx, Filter{Status: models.StatusPending})
}

// AttachReceipt stores a deposit proof on a pending transaction. For deposits
// the amount is read from the image; a confident reading that differs from
// the nominal marks the transaction for the treasurer's attention. OCR
// failures never block the workflow.
func (s *Service) AttachReceipt(ctx context.Context, id, path string) (*models.Transaksi, error) {
	t, err := s.store.TransactionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: transaction %s is already %s", ErrInvalidTransition, id, t.Status)
	}
	rc := ReceiptCheck{Path: path}
	if s.receipts != nil && t.Type == models.TipeSetor {
		amt, conf, err := s.receipts.ReadAmount(path)
		if err != nil {
			s.log.WithError(err).WithField("transaction_id", id).Warn("receipt OCR failed")
		} else {
			rc.Amount = &amt
			rc.Confidence = conf
			rc.Mismatch = conf >= s.minConfidence && amt != t.Nominal
		}
	}
	out, err := s.store.AttachReceipt(ctx, id, rc)
	if err != nil {
		return nil, err
	}
	if out.ReceiptMismatch {
		s.log.WithFields(logrus.Fields{
			"transaction_id": id,
			"nominal":        out.Nominal,
			"receipt_amount": *out.ReceiptAmount,
		}).Warn("receipt amount differs from nominal")
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"event":          ev.Type,
			"transaction_id": ev.TransactionID,
		}).Warn("publish event failed")
	}
}
