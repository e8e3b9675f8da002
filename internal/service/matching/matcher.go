package matching

import (
	"sort"

	"github.com/lifedrop/lifedrop-api/internal/bloodtype"
	"github.com/lifedrop/lifedrop-api/internal/model"
)

// IsEligible reports whether donor may be notified about emergency: a donor
// role, available, in the same city and of a compatible blood type.
func IsEligible(emergency *model.EmergencyRequest, donor *model.User) bool {
	if emergency == nil || donor == nil {
		return false
	}
	return donor.Role == model.RoleDonor &&
		donor.Available &&
		model.SameCity(donor.City, emergency.City) &&
		bloodtype.CanReceive(emergency.BloodTypeNeeded, donor.BloodType)
}

// FindEligibleDonors filters roster down to the donors eligible for
// emergency. Roster order is kept; no proximity or urgency ranking is applied.
func FindEligibleDonors(emergency *model.EmergencyRequest, roster []model.User) []model.User {
	eligible := make([]model.User, 0)
	for i := range roster {
		if IsEligible(emergency, &roster[i]) {
			eligible = append(eligible, roster[i])
		}
	}
	return eligible
}

// NearbyOpenEmergencies lists the open emergencies in the donor's city,
// newest first.
func NearbyOpenEmergencies(donor *model.User, emergencies []model.EmergencyRequest) []model.EmergencyRequest {
	nearby := make([]model.EmergencyRequest, 0)
	if donor == nil {
		return nearby
	}
	for _, e := range emergencies {
		if e.Status == model.EmergencyStatusOpen && model.SameCity(e.City, donor.City) {
			nearby = append(nearby, e)
		}
	}
	sort.SliceStable(nearby, func(i, j int) bool {
		return nearby[i].CreatedAt.After(nearby[j].CreatedAt)
	})
	return nearby
}
