package erp

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const profileCols = `id, name, url, consumer_key, consumer_secret, rooms_url, bookings_url, enabled,
	last_sync_at, last_sync_status, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	if err := row.Scan(&p.ID, &p.Name, &p.URL, &p.ConsumerKey, &p.ConsumerSecret, &p.RoomsURL,
		&p.BookingsURL, &p.Enabled, &p.LastSyncAt, &p.LastSyncStatus, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *Repo) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return scanProfile(r.DB.QueryRow(ctx, `SELECT `+profileCols+` FROM sync_profiles WHERE id=$1`, id))
}

func (r *Repo) ListProfiles(ctx context.Context, enabledOnly bool) ([]Profile, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+profileCols+` FROM sync_profiles
	                               WHERE ($1 = false OR enabled) ORDER BY name`, enabledOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// SaveProfile upserts the configuration fields. Sync state (watermark and
// status) is only written through UpdateProfileSync.
func (r *Repo) SaveProfile(ctx context.Context, p *Profile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.DB.QueryRow(ctx, `
		INSERT INTO sync_profiles(id, name, url, consumer_key, consumer_secret, rooms_url, bookings_url, enabled)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			consumer_key = EXCLUDED.consumer_key,
			consumer_secret = EXCLUDED.consumer_secret,
			rooms_url = EXCLUDED.rooms_url,
			bookings_url = EXCLUDED.bookings_url,
			enabled = EXCLUDED.enabled,
			updated_at = now()
		RETURNING last_sync_at, last_sync_status, created_at, updated_at`,
		p.ID, p.Name, p.URL, p.ConsumerKey, p.ConsumerSecret, p.RoomsURL, p.BookingsURL, p.Enabled,
	).Scan(&p.LastSyncAt, &p.LastSyncStatus, &p.CreatedAt, &p.UpdatedAt)
}
