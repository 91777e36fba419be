package models

import "time"

// Tabungan is the savings account of one student (one-to-one with Siswa).
// Saldo is a cached value; it only changes when a transaction is verified.
type Tabungan struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	SiswaID   uint      `gorm:"uniqueIndex;not null" json:"studentId"`
	Siswa     *Siswa    `gorm:"foreignKey:SiswaID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"student,omitempty"`
	Saldo     int64     `gorm:"not null;default:0" json:"balance"` // whole rupiah
	// Accounts are never deleted while transactions reference them; closing
	// an account flips Active instead.
	Active bool `gorm:"default:true;not null" json:"active"`
}
