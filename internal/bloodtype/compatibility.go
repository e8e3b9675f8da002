// Package bloodtype holds the ABO/Rh compatibility table.
package bloodtype

import "github.com/lifedrop/lifedrop-api/internal/model"

// donorsFor maps each recipient type to the donor types it may receive from.
// O- gives to everyone, AB+ receives from everyone.
var donorsFor = map[model.BloodType][]model.BloodType{
	model.BloodTypeAPos:  {model.BloodTypeAPos, model.BloodTypeANeg, model.BloodTypeOPos, model.BloodTypeONeg},
	model.BloodTypeANeg:  {model.BloodTypeANeg, model.BloodTypeONeg},
	model.BloodTypeBPos:  {model.BloodTypeBPos, model.BloodTypeBNeg, model.BloodTypeOPos, model.BloodTypeONeg},
	model.BloodTypeBNeg:  {model.BloodTypeBNeg, model.BloodTypeONeg},
	model.BloodTypeABPos: {model.BloodTypeAPos, model.BloodTypeANeg, model.BloodTypeBPos, model.BloodTypeBNeg, model.BloodTypeABPos, model.BloodTypeABNeg, model.BloodTypeOPos, model.BloodTypeONeg},
	model.BloodTypeABNeg: {model.BloodTypeANeg, model.BloodTypeBNeg, model.BloodTypeABNeg, model.BloodTypeONeg},
	model.BloodTypeOPos:  {model.BloodTypeOPos, model.BloodTypeONeg},
	model.BloodTypeONeg:  {model.BloodTypeONeg},
}

// DonorsCompatibleWith returns the donor types that may give to recipient.
// Unknown types get an empty set. The returned slice is a copy.
func DonorsCompatibleWith(recipient model.BloodType) []model.BloodType {
	donors := donorsFor[recipient]
	out := make([]model.BloodType, len(donors))
	copy(out, donors)
	return out
}

// CanReceive reports whether recipient may receive blood from donor.
func CanReceive(recipient, donor model.BloodType) bool {
	for _, t := range donorsFor[recipient] {
		if t == donor {
			return true
		}
	}
	return false
}

// RecipientsFor returns the recipient types donor can give to, in display order.
func RecipientsFor(donor model.BloodType) []model.BloodType {
	var out []model.BloodType
	for _, recipient := range model.BloodTypes {
		if CanReceive(recipient, donor) {
			out = append(out, recipient)
		}
	}
	return out
}

// Chart is the full recipient -> donors table, used by the compatibility endpoint.
func Chart() map[model.BloodType][]model.BloodType {
	chart := make(map[model.BloodType][]model.BloodType, len(donorsFor))
	for recipient := range donorsFor {
		chart[recipient] = DonorsCompatibleWith(recipient)
	}
	return chart
}
