package models

import (
	"fmt"
	"strings"
	"time"
)

// TransaksiType is either a deposit (setor) or a withdrawal (tarik).
type TransaksiType string

const (
	TipeSetor TransaksiType = "deposit"
	TipeTarik TransaksiType = "withdrawal"
)

// ParseTransaksiType accepts the English names and the setor/tarik aliases.
func ParseTransaksiType(s string) (TransaksiType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deposit", "setor":
		return TipeSetor, nil
	case "withdrawal", "withdraw", "tarik":
		return TipeTarik, nil
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

// TransaksiStatus is the verification state of a transaction.
type TransaksiStatus string

const (
	StatusPending  TransaksiStatus = "pending"
	StatusVerified TransaksiStatus = "verified"
	StatusRejected TransaksiStatus = "rejected"
)

// ParseTransaksiStatus validates a status filter value.
func ParseTransaksiStatus(s string) (TransaksiStatus, error) {
	switch st := TransaksiStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusVerified, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown transaction status %q", s)
}

// Terminal reports whether no further transition is allowed.
func (s TransaksiStatus) Terminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// Transaksi is one deposit or withdrawal request. It is created pending by the
// front desk and resolved exactly once by a treasurer.
type Transaksi struct {
	ID           string          `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt    time.Time       `gorm:"index" json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	SiswaID      uint            `gorm:"index;not null" json:"studentId"`
	OperatorID   uint            `gorm:"index;not null" json:"operatorId"`
	Type         TransaksiType   `gorm:"size:16;not null" json:"type"`
	Nominal      int64           `gorm:"not null" json:"nominal"` // whole rupiah
	Status       TransaksiStatus `gorm:"size:16;not null;index" json:"status"`
	Note         string          `gorm:"size:255" json:"note,omitempty"`
	VerifiedBy   *uint           `gorm:"index" json:"verifierId,omitempty"`
	VerifiedAt   *time.Time      `gorm:"index" json:"verifiedAt,omitempty"`
	RejectReason string          `gorm:"size:255" json:"rejectReason,omitempty"`

	// Deposit proof (bukti setor) and what OCR read from it.
	ReceiptPath       string  `gorm:"size:512" json:"receiptPath,omitempty"`
	ReceiptAmount     *int64  `json:"receiptAmount,omitempty"`
	ReceiptConfidence float64 `json:"receiptConfidence,omitempty"`
	ReceiptMismatch   bool    `gorm:"default:false" json:"receiptMismatch"`
}

// SignedNominal is the balance effect of the transaction once verified.
func (t *Transaksi) SignedNominal() int64 {
	if t.Type == TipeTarik {
		return -t.Nominal
	}
	return t.Nominal
}
