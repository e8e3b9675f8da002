package model

import "time"

// DonationStatus of a contact record.
type DonationStatus string

const (
	DonationStatusPending   DonationStatus = "pending"
	DonationStatusCompleted DonationStatus = "completed"
	DonationStatusCancelled DonationStatus = "cancelled"
)

// Donation records that a hospital contacted a donor for an emergency.
type Donation struct {
	ID          string         `json:"id" db:"id"`
	DonorID     string         `json:"donor_id" db:"donor_id"`
	EmergencyID string         `json:"emergency_id" db:"emergency_id"`
	Status      DonationStatus `json:"status" db:"status"`
	Date        time.Time      `json:"date" db:"date"`
}
