package remote

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/store"
)

const (
	selectProfiles      = `SELECT id, full_name, email, blood_type, country, city, phone, role, available, created_at FROM profiles ORDER BY created_at`
	selectEmergencies   = `SELECT id, patient_name, blood_type_needed, units_needed, hospital, address, lat, lon, urgency_level, contact_number, status, city, created_by, created_at FROM emergency_requests ORDER BY created_at`
	selectDonations     = `SELECT id, donor_id, emergency_id, status, date FROM donations_history ORDER BY date`
	selectNotifications = `SELECT id, user_id, message, read, created_at, emergency_id FROM notifications ORDER BY created_at`

	selectProfileByEmail = `SELECT id, full_name, email, blood_type, country, city, phone, role, available, created_at FROM profiles WHERE email = $1`
)

var upserts = map[store.Collection]string{
	store.CollectionUsers: `
		INSERT INTO profiles (id, full_name, email, blood_type, country, city, phone, role, available, created_at)
		VALUES (:id, :full_name, :email, :blood_type, :country, :city, :phone, :role, :available, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			blood_type = EXCLUDED.blood_type,
			country = EXCLUDED.country,
			city = EXCLUDED.city,
			phone = EXCLUDED.phone,
			available = EXCLUDED.available`,
	store.CollectionEmergencies: `
		INSERT INTO emergency_requests (id, patient_name, blood_type_needed, units_needed, hospital, address, lat, lon,
			urgency_level, contact_number, status, city, created_by, created_at)
		VALUES (:id, :patient_name, :blood_type_needed, :units_needed, :hospital, :address, :lat, :lon,
			:urgency_level, :contact_number, :status, :city, :created_by, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon`,
	store.CollectionDonations: `
		INSERT INTO donations_history (id, donor_id, emergency_id, status, date)
		VALUES (:id, :donor_id, :emergency_id, :status, :date)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`,
	store.CollectionNotifications: `
		INSERT INTO notifications (id, user_id, message, read, created_at, emergency_id)
		VALUES (:id, :user_id, :message, :read, :created_at, :emergency_id)
		ON CONFLICT (id) DO UPDATE SET read = EXCLUDED.read`,
}

func loadSnapshot(ctx context.Context, db *sqlx.DB) (*store.Snapshot, error) {
	snap := &store.Snapshot{
		Users:         make([]model.User, 0),
		Emergencies:   make([]model.EmergencyRequest, 0),
		Donations:     make([]model.Donation, 0),
		Notifications: make([]model.Notification, 0),
	}
	if err := db.SelectContext(ctx, &snap.Users, selectProfiles); err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	if err := db.SelectContext(ctx, &snap.Emergencies, selectEmergencies); err != nil {
		return nil, fmt.Errorf("load emergency_requests: %w", err)
	}
	if err := db.SelectContext(ctx, &snap.Donations, selectDonations); err != nil {
		return nil, fmt.Errorf("load donations_history: %w", err)
	}
	if err := db.SelectContext(ctx, &snap.Notifications, selectNotifications); err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}
	return snap, nil
}

func upsert(ctx context.Context, tx *sqlx.Tx, m store.Mutation) error {
	query, ok := upserts[m.Collection]
	if !ok {
		return fmt.Errorf("unknown table %q", m.Collection)
	}
	if _, err := tx.NamedExecContext(ctx, query, m.Record); err != nil {
		return fmt.Errorf("%s %s: %w", m.Op, m.Collection, err)
	}
	return nil
}
