package tabungan

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tabungan/models"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *gorm.DB) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "tabungan.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one connection serializes writers the way row locks do on postgres
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := gdb.AutoMigrate(&models.Siswa{}, &models.Tabungan{}, &models.Transaksi{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewService(NewStore(gdb), log, opts...), gdb
}

func enroll(t *testing.T, svc *Service, nis string) uint {
	t.Helper()
	acct, err := svc.Enroll(context.Background(), EnrollInput{NIS: nis, Nama: "Siswa " + nis, Kelas: "7A"})
	if err != nil {
		t.Fatalf("enroll %s: %v", nis, err)
	}
	return acct.SiswaID
}

func submit(t *testing.T, svc *Service, studentID uint, typ string, nominal int64) *models.Transaksi {
	t.Helper()
	tx, err := svc.Submit(context.Background(), SubmitInput{StudentID: studentID, Type: typ, Nominal: nominal, OperatorID: 1})
	if err != nil {
		t.Fatalf("submit %s %d: %v", typ, nominal, err)
	}
	return tx
}

func approve(svc *Service, id string) (*models.Transaksi, error) {
	return svc.Verify(context.Background(), VerifyInput{TransactionID: id, VerifierID: 2, Decision: "approve"})
}

func fund(t *testing.T, svc *Service, studentID uint, nominal int64) {
	t.Helper()
	tx := submit(t, svc, studentID, "deposit", nominal)
	if _, err := approve(svc, tx.ID); err != nil {
		t.Fatalf("approve funding deposit: %v", err)
	}
}

func balanceOf(t *testing.T, svc *Service, studentID uint) int64 {
	t.Helper()
	acct, err := svc.Account(context.Background(), studentID)
	if err != nil {
		t.Fatalf("account %d: %v", studentID, err)
	}
	return acct.Saldo
}

func TestWithdrawApproveTwice(t *testing.T) {
	svc, _ := newTestService(t)
	sid := enroll(t, svc, "1001")
	fund(t, svc, sid, 50000)

	w := submit(t, svc, sid, "withdrawal", 20000)
	if w.Status != models.StatusPending {
		t.Fatalf("expected pending got %s", w.Status)
	}
	if got := balanceOf(t, svc, sid); got != 50000 {
		t.Fatalf("pending withdrawal must not touch balance, got %d", got)
	}

	out, err := approve(svc, w.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if out.Status != models.StatusVerified || out.VerifiedBy == nil || *out.VerifiedBy != 2 || out.VerifiedAt == nil {
		t.Fatalf("unexpected resolved transaction: %+v", out)
	}
	if got := balanceOf(t, svc, sid); got != 30000 {
		t.Fatalf("expected 30000 got %d", got)
	}

	if _, err := approve(svc, w.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on second approve, got %v", err)
	}
	if got := balanceOf(t, svc, sid); got != 30000 {
		t.Fatalf("second approve changed balance to %d", got)
	}
}

func TestWithdrawalAboveBalanceRejectedAtSubmit(t *testing.T) {
	svc, gdb := newTestService(t)
	sid := enroll(t, svc, "1002")

	_, err := svc.Submit(context.Background(), SubmitInput{StudentID: sid, Type: "tarik", Nominal: 5000, OperatorID: 1})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance got %v", err)
	}
	var n int64
	gdb.Model(&models.Transaksi{}).Count(&n)
	if n != 0 {
		t.Fatalf("no transaction row expected, found %d", n)
	}
}

func TestNominalBelowMinimum(t *testing.T) {
	svc, _ := newTestService(t)
	sid := enroll(t, svc, "1003")

	_, err := svc.Submit(context.Background(), SubmitInput{StudentID: sid, Type: "deposit", Nominal: 500, OperatorID: 1})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation got %v", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "nominal" {
		t.Fatalf("expected nominal validation error got %#v", err)
	}

	// the boundary itself is accepted
	if _, err := svc.Submit(context.Background(), SubmitInput{StudentID: sid, Type: "deposit", Nominal: 1000, OperatorID: 1}); err != nil {
		t.Fatalf("nominal 1000 should be accepted: %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, _ := newTestService(t)
	sid := enroll(t, svc, "1004")
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	cases := map[string]SubmitInput{
		"unknown type":     {StudentID: sid, Type: "transfer", Nominal: 5000, OperatorID: 1},
		"missing student":  {Type: "deposit", Nominal: 5000, OperatorID: 1},
		"missing operator": {StudentID: sid, Type: "deposit", Nominal: 5000},
		"negative":         {StudentID: sid, Type: "deposit", Nominal: -5000, OperatorID: 1},
		"above maximum":    {StudentID: sid, Type: "deposit", Nominal: DefaultMaxNominal + 1, OperatorID: 1},
		"long note":        {StudentID: sid, Type: "deposit", Nominal: 5000, Note: string(long), OperatorID: 1},
	}
	for name, in := range cases {
		if _, err := svc.Submit(context.Background(), in); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: expected ErrValidation got %v", name, err)
		}
	}

	if _, err := svc.Submit(context.Background(), SubmitInput{StudentID: 999, Type: "deposit", Nominal: 5000, OperatorID: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown student: expected ErrNotFound got %v", err)
	}
}

func TestNominalMaximum(t *testing.T) {
	svc, _ := newTestService(t)
	sid := enroll(t, svc, "1005")

	if _, err := svc.Submit(context.Background(), SubmitInput{StudentID: sid, Type: "deposit", Nominal: DefaultMaxNominal, OperatorID: 1}); err != nil {
		t.Fatalf("nominal at the maximum must be accepted: %v", err)
	}
	_, err := svc.Submit(context.Background(), SubmitInput{StudentID: sid, Type: "deposit", Nominal: DefaultMaxNominal + 1, OperatorID: 1})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "nominal" {
		t.Fatalf("expected nominal validation error got %v", err)
	}
}

func TestDepositApprovalCannotOverflowBalance(t *testing.T) {
	svc, _ := newTestService(t, WithMaxNominal(math.MaxInt64))
	sid := enroll(t, svc, "1006")
	fund(t, svc, sid, math.MaxInt64)

	dep := submit(t, svc, sid, "deposit", 1000)
	_, err := approve(svc, dep.ID)
	if !errors.Is(err, ErrValidation) || errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrValidation got %v", err)
	}
	if got := balanceOf(t, svc, sid); got != math.MaxInt64 {
		t.Fatalf("balance changed to %d", got)
	}
	still, err := svc.Transaction(context.Background(), dep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if still.Status != models.StatusPending {
		t.Fatalf("refused deposit must stay pending, got %s", still.Status)
	}

	// the account keeps working once the balance has room again
	w := submit(t, svc, sid, "withdrawal", 5000)
	if _, err := approve(svc, w.ID); err != nil {
		t.Fatalf("approve withdrawal: %v", err)
	}
	if _, err := approve(svc, dep.ID); err != nil {
		t.Fatalf("deposit should fit after the withdrawal: %v", err)
	}
	if got := balanceOf(t, svc, sid); got != math.MaxInt64-4000 {
		t.Fatalf("expected %d got %d", int64(math.MaxInt64-4000), got)
	}
}

func TestApprovalOrderIndependent(t *testing.T) {
	for _, depositFirst := range []bool{true, false} {
		svc, _ := newTestService(t)
		sid := enroll(t, svc, "2001")
		// the withdrawal pre-check needs funds at submission time
		fund(t, svc, sid, 4000)
		start := balanceOf(t, svc, sid)

		d := submit(t, svc, sid, "deposit", 10000)
		w := submit(t, svc, sid, "withdrawal", 4000)
		order := []string{d.ID, w.ID}
		if !depositFirst {
			order = []string{w.ID, d.ID}
		}
		for _, id := range order {
			if _, err := approve(svc, id); err != nil {
				t.Fatalf("depositFirst=%v approve %s: %v", depositFirst, id, err)
			}
		}
		if got := balanceOf(t, svc, sid) - start; got != 6000 {
			t.Fatalf("depositFirst=%v expected net +6000 got %d", depositFirst, got)
		}
	}
}

func TestRejectLeavesBalance(t *testing.T) {
	svc, _ := newTestService(t)
	sid := enroll(t, svc, "3001")
	fund(t, svc, sid, 25000)

	for _, typ := range []string{"deposit", "withdrawal"} {
		tx := submit(t, svc, sid, typ, 7000)
		before := balanceOf(t, svc, sid)
		out, err := svc.Verify(context.Background(), VerifyInput{TransactionID: tx.ID, VerifierID: 2, Decision: "tolak", Reason: "uang tidak diterima"})
		if err != nil {
			t.Fatalf("reject %s: %v", typ, err)
		}
		if out.Status != models.StatusRejected || out.RejectReason != "uang tidak diterima" {
			t.Fatalf("unexpected rejected row %+v", out)
		}
		if after := balanceOf(t, svc, sid); after != before {
			t.Fatalf("reject %s changed balance %d -> %d", typ, before, after)
		}
		if _, err := approve(svc, tx.ID); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("approve after reject: expected ErrInvalidTransition got %v", err)
		}
	}
}

func TestVerifyErrors(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := approve(svc, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
	if _, err := svc.Verify(context.Background(), VerifyInput{TransactionID: "x", VerifierID: 2, Decision: "maybe"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad decision: expected ErrValidation got %v", err)
	}
	if _, err := svc.Verify(context.Background(), VerifyInput{TransactionID: "x", Decision: "approve"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing verifier: expected ErrValidation got %v", err)
	}
}

func TestApproveWithdrawalRechecksBalance(t *testing.T) {
	svc, _ := newTestService(t)
	sid := enroll(t, svc, "4001")
	fund(t, svc, sid, 10000)

	w1 := submit(t, svc, sid, "withdrawal", 8000)
	w2 := submit(t, svc, sid, "withdrawal", 5000)
	if _, err := approve(svc, w1.ID); err != nil {
		t.Fatalf("approve w1: %v", err)
	}
	if _, err := approve(svc, w2.ID); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("approve w2: expected ErrInsufficientBalance got %v", err)
	}
	if got := balanceOf(t, svc, sid); got != 2000 {
		t.Fatalf("expected 2000 got %d", got)
	}
	still, err := svc.Transaction(context.Background(), w2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if still.Status != models.StatusPending || still.VerifiedAt != nil {
		t.Fatalf("refused approval must roll back, got %+v", still)
	}
	if _, err := svc.Verify(context.Background(), VerifyInput{TransactionID: w2.ID, VerifierID: 2, Decision: "reject"}); err != nil {
		t.Fatalf("reject after refused approval: %v", err)
	}
}

func TestConcurrentApproveAppliesOnce(t *testing.T) {
	svc, _ := newTestService(t)
	sid := enroll(t, svc, "5001")
	d := submit(t, svc, sid, "deposit", 15000)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := approve(svc, d.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrInvalidTransition):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if successes != 1 || conflicts != n-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d/%d", n-1, successes, conflicts)
	}
	if got := balanceOf(t, svc, sid); got != 15000 {
		t.Fatalf("expected 15000 got %d", got)
	}
}

func TestBalanceMatchesVerifiedLedger(t *testing.T) {
	svc, _ := newTestService(t)
	ids := []uint{enroll(t, svc, "6001"), enroll(t, svc, "6002"), enroll(t, svc, "6003")}
	rng := rand.New(rand.NewSource(42))
	ctx := context.Background()

	var pending []string
	for i := 0; i < 120; i++ {
		sid := ids[rng.Intn(len(ids))]
		switch op := rng.Intn(4); {
		case op <= 1:
			typ := "deposit"
			if op == 1 {
				typ = "withdrawal"
			}
			tx, err := svc.Submit(ctx, SubmitInput{StudentID: sid, Type: typ, Nominal: int64(1+rng.Intn(20)) * 1000, OperatorID: 1})
			if err == nil {
				pending = append(pending, tx.ID)
			} else if !errors.Is(err, ErrInsufficientBalance) {
				t.Fatalf("submit: %v", err)
			}
		case len(pending) > 0:
			k := rng.Intn(len(pending))
			id := pending[k]
			pending = append(pending[:k], pending[k+1:]...)
			decision := "approve"
			if op == 3 {
				decision = "reject"
			}
			_, err := svc.Verify(ctx, VerifyInput{TransactionID: id, VerifierID: 2, Decision: decision})
			if err != nil && !errors.Is(err, ErrInsufficientBalance) {
				t.Fatalf("verify: %v", err)
			}
		}
	}

	drifts, err := svc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(drifts) != 0 {
		t.Fatalf("balances drifted from verified ledger: %+v", drifts)
	}
	for _, sid := range ids {
		if bal := balanceOf(t, svc, sid); bal < 0 {
			t.Fatalf("student %d went negative: %d", sid, bal)
		}
	}
}

func TestReconcileReportsDrift(t *testing.T) {
	svc, gdb := newTestService(t)
	sid := enroll(t, svc, "7001")
	fund(t, svc, sid, 12000)

	if err := gdb.Model(&models.Tabungan{}).Where("siswa_id = ?", sid).Update("saldo", 99000).Error; err != nil {
		t.Fatal(err)
	}
	drifts, err := svc.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(drifts) != 1 || drifts[0].StudentID != sid || drifts[0].Saldo != 99000 || drifts[0].Expected != 12000 {
		t.Fatalf("unexpected drifts %+v", drifts)
	}
}

func TestEnrollAndScan(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	acct, err := svc.Enroll(ctx, EnrollInput{NIS: "8001", Nama: "Budi", ScanCode: "QR-8001"})
	if err != nil {
		t.Fatal(err)
	}
	if acct.Saldo != 0 || !acct.Active {
		t.Fatalf("new account should be active with zero balance: %+v", acct)
	}
	got, err := svc.AccountByScan(ctx, "QR-8001")
	if err != nil {
		t.Fatal(err)
	}
	if got.SiswaID != acct.SiswaID || got.Siswa == nil || got.Siswa.Nama != "Budi" {
		t.Fatalf("scan resolved wrong account %+v", got)
	}
	if _, err := svc.Enroll(ctx, EnrollInput{NIS: "8001", Nama: "Dup"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("duplicate NIS: expected ErrValidation got %v", err)
	}
	if _, err := svc.AccountByScan(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown scan code: expected ErrNotFound got %v", err)
	}
}

func TestClosedAccountRejectsSubmit(t *testing.T) {
	svc, _ := newTestService(t)
	sid := enroll(t, svc, "8101")
	if err := svc.SetAccountActive(context.Background(), sid, false); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Submit(context.Background(), SubmitInput{StudentID: sid, Type: "deposit", Nominal: 5000, OperatorID: 1}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for closed account got %v", err)
	}
}

func TestStoreFailureIsPersistenceError(t *testing.T) {
	svc, gdb := newTestService(t)
	sid := enroll(t, svc, "8201")
	sqlDB, _ := gdb.DB()
	sqlDB.Close()

	if _, err := svc.Submit(context.Background(), SubmitInput{StudentID: sid, Type: "deposit", Nominal: 5000, OperatorID: 1}); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence got %v", err)
	}
	if _, err := approve(svc, "any"); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence got %v", err)
	}
}

type fakeLocker struct {
	err      error
	released int
}

func (f *fakeLocker) Acquire(context.Context, string) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	return func() { f.released++ }, nil
}

func TestVerifyLock(t *testing.T) {
	held := &fakeLocker{err: ErrLockHeld}
	svc, _ := newTestService(t, WithLocker(held))
	sid := enroll(t, svc, "9001")
	d := submit(t, svc, sid, "deposit", 3000)

	if _, err := approve(svc, d.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("held lock: expected ErrInvalidTransition got %v", err)
	}
	if got := balanceOf(t, svc, sid); got != 0 {
		t.Fatalf("held lock must not change balance, got %d", got)
	}

	// redis down: the status swap still guards the transition
	held.err = errors.New("dial tcp: connection refused")
	if _, err := approve(svc, d.ID); err != nil {
		t.Fatalf("lock backend failure should not block: %v", err)
	}

	held.err = nil
	d2 := submit(t, svc, sid, "deposit", 3000)
	if _, err := approve(svc, d2.ID); err != nil {
		t.Fatal(err)
	}
	if held.released != 1 {
		t.Fatalf("expected lock released once, got %d", held.released)
	}
}

type capturePublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (c *capturePublisher) Publish(_ context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return c.err
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	pub := &capturePublisher{}
	svc, _ := newTestService(t, WithPublisher(pub))
	sid := enroll(t, svc, "9101")
	d := submit(t, svc, sid, "deposit", 8000)
	if _, err := approve(svc, d.ID); err != nil {
		t.Fatal(err)
	}
	r := submit(t, svc, sid, "withdrawal", 2000)
	if _, err := svc.Verify(context.Background(), VerifyInput{TransactionID: r.ID, VerifierID: 2, Decision: "reject"}); err != nil {
		t.Fatal(err)
	}
	// refused transitions publish nothing
	_, _ = approve(svc, r.ID)

	want := []string{EventCreated, EventVerified, EventCreated, EventRejected}
	if len(pub.events) != len(want) {
		t.Fatalf("expected %d events got %d: %+v", len(want), len(pub.events), pub.events)
	}
	for i, typ := range want {
		if pub.events[i].Type != typ {
			t.Fatalf("event %d: expected %s got %s", i, typ, pub.events[i].Type)
		}
	}
	if b := pub.events[1].BalanceAfter; b == nil || *b != 8000 {
		t.Fatalf("verified event should carry balance 8000, got %v", b)
	}
	if pub.events[3].BalanceAfter != nil {
		t.Fatalf("rejected event must not carry a balance")
	}
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	svc, _ := newTestService(t, WithPublisher(pub))
	sid := enroll(t, svc, "9201")
	d := submit(t, svc, sid, "deposit", 8000)
	if _, err := approve(svc, d.ID); err != nil {
		t.Fatalf("publish failure leaked into verify: %v", err)
	}
	if got := balanceOf(t, svc, sid); got != 8000 {
		t.Fatalf("expected 8000 got %d", got)
	}
}

type fakeReader struct {
	amount int64
	conf   float64
	err    error
}

func (f fakeReader) ReadAmount(string) (int64, float64, error) { return f.amount, f.conf, f.err }

func TestAttachReceipt(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name     string
		reader   fakeReader
		mismatch bool
		amount   *int64
	}{
		{"confident mismatch", fakeReader{amount: 15000, conf: 0.9}, true, ptr(15000)},
		{"confident match", fakeReader{amount: 10000, conf: 0.9}, false, ptr(10000)},
		{"low confidence", fakeReader{amount: 15000, conf: 0.2}, false, ptr(15000)},
		{"ocr error", fakeReader{err: errors.New("no amount detected")}, false, nil},
	}
	for _, tc := range cases {
		svc, _ := newTestService(t, WithReceiptReader(tc.reader, 0.5))
		sid := enroll(t, svc, "9301")
		d := submit(t, svc, sid, "deposit", 10000)
		out, err := svc.AttachReceipt(ctx, d.ID, "receipts/"+d.ID+".jpg")
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if out.ReceiptMismatch != tc.mismatch {
			t.Errorf("%s: mismatch=%v want %v", tc.name, out.ReceiptMismatch, tc.mismatch)
		}
		if (out.ReceiptAmount == nil) != (tc.amount == nil) || (out.ReceiptAmount != nil && *out.ReceiptAmount != *tc.amount) {
			t.Errorf("%s: receipt amount %v want %v", tc.name, out.ReceiptAmount, tc.amount)
		}
		if out.ReceiptPath == "" {
			t.Errorf("%s: receipt path not stored", tc.name)
		}
	}
}

func TestAttachReceiptRequiresPending(t *testing.T) {
	svc, _ := newTestService(t)
	sid := enroll(t, svc, "9401")
	d := submit(t, svc, sid, "deposit", 10000)
	if _, err := approve(svc, d.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AttachReceipt(context.Background(), d.ID, "x.jpg"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition got %v", err)
	}
}

func TestPendingQueueOldestFirst(t *testing.T) {
	clock := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, WithClock(func() time.Time { return clock }))
	sid := enroll(t, svc, "9501")
	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, submit(t, svc, sid, "deposit", 2000).ID)
		clock = clock.Add(time.Minute)
	}
	if _, err := approve(svc, ids[1]); err != nil {
		t.Fatal(err)
	}
	q, err := svc.PendingQueue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(q) != 2 || q[0].ID != ids[0] || q[1].ID != ids[2] {
		t.Fatalf("unexpected queue order %+v", q)
	}
}

func ptr(v int64) *int64 { return &v }
