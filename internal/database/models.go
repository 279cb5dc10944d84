package database

import (
	"fmt"
	"strings"
	"time"
)

// Transmission is one packet handed to the serializer
type Transmission struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	RunID     string    `gorm:"index;size:36;not null" json:"run_id"`
	Seq       uint8     `gorm:"not null" json:"seq"`
	Mode      string    `gorm:"size:8;not null" json:"mode"`
	PacketLen int       `json:"packet_len"`
	Words     int       `json:"words"`
	SentAt    time.Time `gorm:"index" json:"sent_at"`
}

// TableName specifies the table name for GORM
func (Transmission) TableName() string {
	return "transmissions"
}

// IsValid checks if the record has required fields
func (t Transmission) IsValid() bool {
	return t.RunID != "" && t.Mode != "" && t.PacketLen > 0 && t.Words > 0
}

// String returns a formatted string representation
func (t Transmission) String() string {
	return fmt.Sprintf("seq %d %s %dB/%dw @ %s", t.Seq, t.Mode, t.PacketLen, t.Words,
		t.SentAt.Format("15:04:05.000"))
}

// BERReport is the outcome of one receiver log analysis
type BERReport struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	RunID       string    `gorm:"index;size:36" json:"run_id"`
	Source      string    `gorm:"size:255" json:"source"`
	Mode        string    `gorm:"size:8;not null" json:"mode"`
	Packets     int       `json:"packets"`
	Transmitted int       `json:"transmitted"`
	BitErrors   int64     `json:"bit_errors"`
	BER         float64   `json:"ber"`
	ETX         float64   `json:"etx"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (BERReport) TableName() string {
	return "ber_reports"
}

// SanitizeFields cleans up the report fields
func (r *BERReport) SanitizeFields() {
	r.RunID = strings.TrimSpace(r.RunID)
	r.Source = strings.TrimSpace(r.Source)
	r.Mode = strings.ToLower(strings.TrimSpace(r.Mode))
}

// String returns a formatted string representation
func (r BERReport) String() string {
	result := fmt.Sprintf("%s: %d/%d packets, BER %.3e, ETX %.3f", r.Mode, r.Packets, r.Transmitted, r.BER, r.ETX)
	if r.Source != "" {
		result += fmt.Sprintf(" [%s]", r.Source)
	}
	return result
}
