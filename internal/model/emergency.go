package model

import "time"

// Urgency levels of an emergency request.
type Urgency string

const (
	UrgencyNormal   Urgency = "Normal"
	UrgencyUrgent   Urgency = "Urgent"
	UrgencyCritical Urgency = "Critical"
)

func (u Urgency) Valid() bool {
	return u == UrgencyNormal || u == UrgencyUrgent || u == UrgencyCritical
}

// EmergencyStatus moves forward only: open -> in_progress -> completed.
type EmergencyStatus string

const (
	EmergencyStatusOpen       EmergencyStatus = "open"
	EmergencyStatusInProgress EmergencyStatus = "in_progress"
	EmergencyStatusCompleted  EmergencyStatus = "completed"
)

func (s EmergencyStatus) Valid() bool {
	return s.rank() > 0
}

func (s EmergencyStatus) rank() int {
	switch s {
	case EmergencyStatusOpen:
		return 1
	case EmergencyStatusInProgress:
		return 2
	case EmergencyStatusCompleted:
		return 3
	}
	return 0
}

// CanTransition reports whether moving from s to next keeps the status
// monotonic. Staying in place counts as allowed.
func (s EmergencyStatus) CanTransition(next EmergencyStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	return next.rank() >= s.rank()
}

// EmergencyRequest is a hospital's call for blood.
type EmergencyRequest struct {
	ID              string          `json:"id" db:"id"`
	PatientName     string          `json:"patient_name" db:"patient_name"`
	BloodTypeNeeded BloodType       `json:"blood_type_needed" db:"blood_type_needed"`
	UnitsNeeded     int             `json:"units_needed" db:"units_needed"`
	Hospital        string          `json:"hospital" db:"hospital"`
	Address         string          `json:"address" db:"address"`
	Lat             *float64        `json:"lat,omitempty" db:"lat"`
	Lon             *float64        `json:"lon,omitempty" db:"lon"`
	UrgencyLevel    Urgency         `json:"urgency_level" db:"urgency_level"`
	ContactNumber   string          `json:"contact_number" db:"contact_number"`
	Status          EmergencyStatus `json:"status" db:"status"`
	City            string          `json:"city" db:"city"`
	CreatedBy       string          `json:"created_by" db:"created_by"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// NewEmergency carries the fields a hospital supplies at creation.
type NewEmergency struct {
	PatientName     string    `json:"patient_name" binding:"required"`
	BloodTypeNeeded BloodType `json:"blood_type_needed" binding:"required,bloodtype"`
	UnitsNeeded     int       `json:"units_needed" binding:"required,gt=0"`
	Hospital        string    `json:"hospital" binding:"required"`
	Address         string    `json:"address"`
	Lat             *float64  `json:"lat"`
	Lon             *float64  `json:"lon"`
	UrgencyLevel    Urgency   `json:"urgency_level" binding:"required,oneof=Normal Urgent Critical"`
	ContactNumber   string    `json:"contact_number"`
	City            string    `json:"city" binding:"required"`
}

// EmergencyFilter narrows emergency listings. Zero values match everything.
type EmergencyFilter struct {
	CreatedBy string          `form:"created_by"`
	Status    EmergencyStatus `form:"status"`
	Urgency   Urgency         `form:"urgency"`
	City      string          `form:"city"`
}
