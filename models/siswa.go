package models

import "time"

// Siswa is an enrolled student. ScanCode is what the front-desk scanner reads
// from the student card (QR or barcode content).
type Siswa struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	NIS       string    `gorm:"size:32;uniqueIndex;not null" json:"nis"`
	Nama      string    `gorm:"size:255;not null" json:"name"`
	Kelas     string    `gorm:"size:32" json:"class,omitempty"`
	ScanCode  string    `gorm:"size:128;uniqueIndex;not null" json:"scanCode"`
}
