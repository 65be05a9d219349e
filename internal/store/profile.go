package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Profile is a persisted calibration: the neutral pose plus the thresholds and
// sensitivity it was used with.
type Profile struct {
	ID           string
	Name         string
	NeutralYaw   float64
	NeutralPitch float64
	Thresholds   json.RawMessage
	Sensitivity  float64
	Samples      int
	Spread       float64
	CalibratedAt time.Time
	CreatedAt    time.Time
	// ExpiresAt is zero for profiles that never expire.
	ExpiresAt time.Time
}

// Expired reports whether the profile has expired at now.
func (p *Profile) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// ProfileRepository provides operations on calibration profiles.
type ProfileRepository struct {
	db *sql.DB
}

// Profiles returns the profile repository for this store.
func (s *Store) Profiles() *ProfileRepository {
	return &ProfileRepository{db: s.db}
}

const profileColumns = `id, name, neutral_yaw, neutral_pitch, thresholds, sensitivity,
	samples, spread, calibrated_at, created_at, expires_at`

func scanProfile(row rowScanner) (*Profile, error) {
	p := &Profile{}
	var thresholds string
	var expires sql.NullTime

	err := row.Scan(&p.ID, &p.Name, &p.NeutralYaw, &p.NeutralPitch, &thresholds, &p.Sensitivity,
		&p.Samples, &p.Spread, &p.CalibratedAt, &p.CreatedAt, &expires)
	if err != nil {
		return nil, err
	}

	p.Thresholds = json.RawMessage(thresholds)
	if expires.Valid {
		p.ExpiresAt = expires.Time
	}
	return p, nil
}

// Create inserts a new profile. An empty ID is filled with a new UUID.
func (r *ProfileRepository) Create(p *Profile) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now().UTC()
	if p.Sensitivity <= 0 {
		p.Sensitivity = 1
	}

	thresholds := p.Thresholds
	if thresholds == nil {
		thresholds = json.RawMessage("{}")
	}

	var expires any
	if !p.ExpiresAt.IsZero() {
		expires = p.ExpiresAt.UTC()
	}

	_, err := r.db.Exec(
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.NeutralYaw, p.NeutralPitch, string(thresholds), p.Sensitivity,
		p.Samples, p.Spread, p.CalibratedAt.UTC(), p.CreatedAt, expires,
	)
	return err
}

// GetByID retrieves a profile by its ID.
func (r *ProfileRepository) GetByID(id string) (*Profile, error) {
	p, err := scanProfile(r.db.QueryRow(
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`,
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// Latest returns the most recently calibrated profile for name that has not
// expired at now.
func (r *ProfileRepository) Latest(name string, now time.Time) (*Profile, error) {
	profiles, err := r.query(
		`SELECT `+profileColumns+` FROM profiles
		 WHERE name = ? ORDER BY calibrated_at DESC, rowid DESC`,
		name,
	)
	if err != nil {
		return nil, err
	}

	for _, p := range profiles {
		if !p.Expired(now) {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

// List retrieves all profiles, newest first.
func (r *ProfileRepository) List() ([]*Profile, error) {
	return r.query(`SELECT ` + profileColumns + ` FROM profiles ORDER BY calibrated_at DESC, rowid DESC`)
}

func (r *ProfileRepository) query(q string, args ...any) ([]*Profile, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return profiles, nil
}

// Delete removes a profile by its ID.
func (r *ProfileRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}

	return expectRow(result)
}

// DeleteExpired removes every profile expired at now and returns how many
// were removed.
func (r *ProfileRepository) DeleteExpired(now time.Time) (int, error) {
	profiles, err := r.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, p := range profiles {
		if !p.Expired(now) {
			continue
		}
		if err := r.Delete(p.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
