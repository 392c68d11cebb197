package erp

import (
	"context"

	"github.com/google/uuid"
)

const bookingCols = `id, name, product_id, customer_id, room_name, remote_room_id, check_in, check_out,
	status, remote_booking_id, last_sync_status, last_sync_at, created_at`

func (r *Repo) CreateBooking(ctx context.Context, b *Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return r.DB.QueryRow(ctx, `
		INSERT INTO bookings(id, name, product_id, customer_id, room_name, remote_room_id,
		                     check_in, check_out, status, remote_booking_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at`,
		b.ID, b.Name, b.ProductID, b.CustomerID, b.RoomName, b.RemoteRoomID,
		b.CheckIn, b.CheckOut, b.Status, b.RemoteBookingID,
	).Scan(&b.CreatedAt)
}

// ListUnpushedBookings: booking yang belum punya id dari storefront, urut dari yang paling lama.
func (r *Repo) ListUnpushedBookings(ctx context.Context) ([]Booking, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+bookingCols+` FROM bookings
	                               WHERE remote_booking_id = '' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		var b Booking
		if err := rows.Scan(&b.ID, &b.Name, &b.ProductID, &b.CustomerID, &b.RoomName, &b.RemoteRoomID,
			&b.CheckIn, &b.CheckOut, &b.Status, &b.RemoteBookingID, &b.LastSyncStatus,
			&b.LastSyncAt, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SaveBookingSync persists the fields written by the booking pusher.
func (r *Repo) SaveBookingSync(ctx context.Context, b *Booking) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE bookings
		SET remote_room_id = $2, remote_booking_id = $3, last_sync_status = $4, last_sync_at = $5
		WHERE id = $1`, b.ID, b.RemoteRoomID, b.RemoteBookingID, b.LastSyncStatus, b.LastSyncAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}
