package store

import (
	"github.com/lifedrop/lifedrop-api/internal/model"
)

// Tx is the view handed to Update callbacks. Reads see the committed state;
// writes are staged and become visible once the callback returns nil.
type Tx struct {
	s     *Store
	batch []Mutation
}

func (tx *Tx) stage(op Op, c Collection, rec interface{}) {
	tx.batch = append(tx.batch, Mutation{Op: op, Collection: c, Record: rec})
}

func (tx *Tx) NewID() string {
	return tx.s.backend.NewID()
}

func (tx *Tx) Users() []model.User {
	return clone(tx.s.users)
}

func (tx *Tx) User(id string) (*model.User, bool) {
	return find(tx.s.users, func(u model.User) bool { return u.ID == id })
}

func (tx *Tx) UserByEmail(email string) (*model.User, bool) {
	return tx.s.userByEmailLocked(email)
}

func (tx *Tx) Emergency(id string) (*model.EmergencyRequest, bool) {
	return find(tx.s.emergencies, func(e model.EmergencyRequest) bool { return e.ID == id })
}

// Donations returns the committed donations accepted by match.
func (tx *Tx) Donations(match func(model.Donation) bool) []model.Donation {
	out := make([]model.Donation, 0)
	for _, d := range tx.s.donations {
		if match == nil || match(d) {
			out = append(out, d)
		}
	}
	return out
}

// Notifications returns the committed notifications accepted by match.
func (tx *Tx) Notifications(match func(model.Notification) bool) []model.Notification {
	out := make([]model.Notification, 0)
	for _, n := range tx.s.notifications {
		if match == nil || match(n) {
			out = append(out, n)
		}
	}
	return out
}

func (tx *Tx) Notification(id string) (*model.Notification, bool) {
	return find(tx.s.notifications, func(n model.Notification) bool { return n.ID == id })
}

func (tx *Tx) InsertUser(u model.User) {
	tx.stage(OpInsert, CollectionUsers, u)
}

func (tx *Tx) UpdateUser(u model.User) {
	tx.stage(OpUpdate, CollectionUsers, u)
}

func (tx *Tx) InsertEmergency(e model.EmergencyRequest) {
	tx.stage(OpInsert, CollectionEmergencies, e)
}

func (tx *Tx) UpdateEmergency(e model.EmergencyRequest) {
	tx.stage(OpUpdate, CollectionEmergencies, e)
}

func (tx *Tx) InsertDonation(d model.Donation) {
	tx.stage(OpInsert, CollectionDonations, d)
}

func (tx *Tx) UpdateDonation(d model.Donation) {
	tx.stage(OpUpdate, CollectionDonations, d)
}

func (tx *Tx) InsertNotifications(ns ...model.Notification) {
	for _, n := range ns {
		tx.stage(OpInsert, CollectionNotifications, n)
	}
}

func (tx *Tx) UpdateNotification(n model.Notification) {
	tx.stage(OpUpdate, CollectionNotifications, n)
}
