package model

import "time"

// User is a donor or hospital account.
type User struct {
	ID        string    `json:"id" db:"id"`
	FullName  string    `json:"full_name" db:"full_name"`
	Email     string    `json:"email" db:"email"`
	BloodType BloodType `json:"blood_type" db:"blood_type"`
	Country   string    `json:"country" db:"country"`
	City      string    `json:"city" db:"city"`
	Phone     string    `json:"phone" db:"phone"`
	Role      Role      `json:"role" db:"role"`
	Available bool      `json:"available" db:"available"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (u *User) IsDonor() bool {
	return u != nil && u.Role == RoleDonor
}

func (u *User) IsHospital() bool {
	return u != nil && u.Role == RoleHospital
}

// NewUser carries the registration fields a caller controls.
type NewUser struct {
	FullName  string    `json:"full_name" binding:"required"`
	Email     string    `json:"email" binding:"required,email"`
	BloodType BloodType `json:"blood_type" binding:"required,bloodtype"`
	Country   string    `json:"country"`
	City      string    `json:"city" binding:"required"`
	Phone     string    `json:"phone"`
	Role      Role      `json:"role" binding:"required,oneof=donor hospital"`
}

// DirectoryFilter narrows the donor directory.
type DirectoryFilter struct {
	Search       string    `form:"q"`
	BloodType    BloodType `form:"blood_type"`
	Availability string    `form:"availability" binding:"omitempty,oneof=all available unavailable"`
	City         string    `form:"city"`
}

// Availability filter values.
const (
	AvailabilityAll         = "all"
	AvailabilityAvailable   = "available"
	AvailabilityUnavailable = "unavailable"
)

// CityMine restricts the directory to the caller's city.
const CityMine = "my_city"

// DirectoryEntry is a donor plus the recipient types it can give to.
type DirectoryEntry struct {
	User
	CanDonateTo []BloodType `json:"can_donate_to"`
}
