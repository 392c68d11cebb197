package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/woo-erp-sync/internal/erp"
	"github.com/ariefcatur/woo-erp-sync/internal/redisx"
	"github.com/ariefcatur/woo-erp-sync/internal/woo"
	"go.uber.org/zap"
)

const bookingTimeLayout = "2006-01-02 15:04:05"

// PushBookings sends every booking without a storefront id to the booking
// endpoint. The run fails only when there is nothing to send; individual
// bookings record their own status and the loop continues.
func (s *Service) PushBookings(ctx context.Context, p *erp.Profile) *Result {
	res := newResult(FlowBookings, p.ID, s.now)

	bookings, err := s.Store.ListUnpushedBookings(ctx)
	if err != nil {
		return res.fail(fmt.Sprintf("Bookings Sync Error: %v", err))
	}
	if len(bookings) == 0 {
		return res.fail("No new bookings to send.")
	}
	res.Fetched = len(bookings)

	for i := range bookings {
		s.pushBooking(ctx, p, &bookings[i], res)
	}
	return res.finish(fmt.Sprintf("Bookings Sync Complete: %d sent, %d failed.", res.Created, res.Failed))
}

func (s *Service) pushBooking(ctx context.Context, p *erp.Profile, b *erp.Booking, res *Result) {
	title := b.Name
	if title == "" {
		title = "Booking for " + b.RoomName
	}
	in := woo.BookingInput{
		Title:    title,
		CheckIn:  b.CheckIn.Format(bookingTimeLayout),
		CheckOut: b.CheckOut.Format(bookingTimeLayout),
		Status:   b.Status,
	}

	if b.RemoteRoomID == "" && b.RoomName != "" {
		b.RemoteRoomID = s.lookupRoom(ctx, p, b.RoomName)
	}
	switch {
	case b.RemoteRoomID != "":
		in.RoomID = woo.RoomIDValue(b.RemoteRoomID)
	case b.RoomName != "":
		in.RoomName = b.RoomName
	default:
		s.saveBooking(ctx, b, "Missing room id and room name", res)
		return
	}

	id, err := s.Woo.CreateBooking(ctx, p.BookingsURL, in)
	var se *woo.StatusError
	switch {
	case errors.As(err, &se):
		s.log().Error("booking API error", zap.String("booking", b.Name), zap.Int("status", se.Code), zap.String("body", se.Body))
		s.saveBooking(ctx, b, fmt.Sprintf("WP API error: %d", se.Code), res)
	case errors.Is(err, woo.ErrNoID):
		s.saveBooking(ctx, b, "No ID returned from WP", res)
	case err != nil:
		s.log().Error("sending booking", zap.String("booking", b.Name), zap.Error(err))
		s.saveBooking(ctx, b, fmt.Sprintf("Error: %v", err), res)
	default:
		now := s.now()
		b.RemoteBookingID = id
		b.LastSyncAt = &now
		s.saveBooking(ctx, b, "Sent successfully", res)
	}
}

// saveBooking persists the per-record status and counts the booking.
func (s *Service) saveBooking(ctx context.Context, b *erp.Booking, status string, res *Result) {
	b.LastSyncStatus = status
	sent := b.RemoteBookingID != ""
	if err := s.Store.SaveBookingSync(ctx, b); err != nil {
		s.log().Error("save booking sync status", zap.String("booking_id", b.ID.String()), zap.Error(err))
		if sent {
			status = fmt.Sprintf("sent as %s but not saved: %v", b.RemoteBookingID, err)
		}
		sent = false
	}
	if sent {
		res.Created++
		return
	}
	res.addFailure(b.ID.String(), status)
}

// lookupRoom resolves a storefront room id by name: redis first, then the
// room search endpoint. Lookup errors are logged and yield "".
func (s *Service) lookupRoom(ctx context.Context, p *erp.Profile, name string) string {
	if p.RoomsURL == "" {
		return ""
	}
	key := redisx.RoomKey(p.ID.String(), name)
	if s.Cache != nil {
		if id, ok, err := s.Cache.Get(ctx, key); err == nil && ok {
			return id
		}
	}

	id, err := s.Woo.SearchRoom(ctx, p.RoomsURL, name)
	if err != nil {
		s.log().Error("fetching room id", zap.String("room", name), zap.Error(err))
		return ""
	}
	if id != "" && s.Cache != nil {
		if err := s.Cache.Set(ctx, key, id, redisx.TTLRoom); err != nil {
			s.log().Warn("cache room id", zap.String("room", name), zap.Error(err))
		}
	}
	return id
}
