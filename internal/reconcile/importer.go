package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/woo-erp-sync/internal/erp"
	kafkax "github.com/ariefcatur/woo-erp-sync/internal/kafka"
	"github.com/ariefcatur/woo-erp-sync/internal/redisx"
	"github.com/ariefcatur/woo-erp-sync/internal/woo"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const bookingStatusConfirmed = "confirmed"

// ImportOrders pulls every storefront order created since the watermark and
// turns the ones not seen before into customer, product, sales order and
// booking records. Pages are fetched completely before anything is written,
// so a failing page leaves the store untouched.
func (s *Service) ImportOrders(ctx context.Context, p *erp.Profile) *Result {
	res := newResult(FlowImport, p.ID, s.now)
	since := res.StartedAt.AddDate(0, 0, -s.lookbackDays())
	if p.LastSyncAt != nil {
		since = *p.LastSyncAt
	}

	orders, err := s.fetchOrders(ctx, credentials(p), since)
	if err != nil {
		var se *woo.StatusError
		if errors.As(err, &se) {
			return res.fail(fmt.Sprintf("WooCommerce HTTP Error: %d", se.Code))
		}
		return res.fail(fmt.Sprintf("WooCommerce Sync Error: %v", err))
	}
	res.Fetched = len(orders)

	for i := range orders {
		o := &orders[i]
		created, err := s.importOrder(ctx, p, o, res)
		if err != nil {
			// records from earlier orders stay; nothing is rolled back
			res.addFailure(strconv.FormatInt(o.ID, 10), err.Error())
			return res.fail(fmt.Sprintf("WooCommerce Sync Error: %v", err))
		}
		if created {
			res.Created++
		} else {
			res.Skipped++
		}
	}
	return res.finish(fmt.Sprintf("WooCommerce Sync Complete: %d new orders imported.", res.Created))
}

// fetchOrders pages until the storefront returns an empty page.
func (s *Service) fetchOrders(ctx context.Context, cred woo.Credentials, since time.Time) ([]woo.Order, error) {
	var all []woo.Order
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		orders, err := s.Woo.ListOrders(ctx, cred, since, page)
		if err != nil {
			return nil, err
		}
		if len(orders) == 0 {
			return all, nil
		}
		all = append(all, orders...)
		s.log().Debug("fetched order page", zap.Int("page", page), zap.Int("orders", len(orders)))
	}
}

// importOrder returns false when the order was already imported.
func (s *Service) importOrder(ctx context.Context, p *erp.Profile, o *woo.Order, res *Result) (bool, error) {
	ref := strconv.FormatInt(o.ID, 10)

	cust, err := s.resolveCustomer(ctx, o)
	if err != nil {
		return false, fmt.Errorf("order %s: customer: %w", ref, err)
	}

	done, err := s.alreadyImported(ctx, ref)
	if err != nil {
		return false, fmt.Errorf("order %s: dedup check: %w", ref, err)
	}
	if done {
		return false, nil
	}

	orderDate := parseOrderDate(o.DateCreated, s.now())
	checkIn, checkOut := stayDates(o.MetaData, orderDate)

	lines, err := s.resolveLines(ctx, o)
	if err != nil {
		return false, fmt.Errorf("order %s: products: %w", ref, err)
	}

	so := &erp.SalesOrder{
		CustomerID:  cust.ID,
		ExternalRef: ref,
		Origin:      erp.OriginStorefront,
		OrderDate:   orderDate,
		State:       erp.StateConfirmed,
		Imported:    true,
		Lines:       lines,
	}
	if err := s.Store.CreateSalesOrder(ctx, so); err != nil {
		if errors.Is(err, erp.ErrAlreadyExists) {
			// concurrent run got there first
			return false, nil
		}
		return false, fmt.Errorf("order %s: sales order: %w", ref, err)
	}

	// first line item is the room
	if len(lines) == 0 {
		res.warn("order %s has no line items, booking not created", ref)
	} else {
		room := lines[0]
		b := &erp.Booking{
			Name:       "Woo order " + ref,
			ProductID:  &room.ProductID,
			CustomerID: &cust.ID,
			RoomName:   room.Name,
			CheckIn:    checkIn,
			CheckOut:   checkOut,
			Status:     bookingStatusConfirmed,
		}
		if err := s.Store.CreateBooking(ctx, b); err != nil {
			return false, fmt.Errorf("order %s: booking: %w", ref, err)
		}
		s.log().Info("created booking for storefront order",
			zap.String("external_ref", ref), zap.String("customer", cust.Name))
	}

	s.markImported(ctx, ref, so.ID)
	s.publishImported(p, so)
	return true, nil
}

func (s *Service) resolveCustomer(ctx context.Context, o *woo.Order) (*erp.Customer, error) {
	email := strings.TrimSpace(o.Billing.Email)
	if email == "" {
		email = fmt.Sprintf("woo_%d@example.com", o.ID)
	}
	c, err := s.Store.FindCustomerByEmail(ctx, email)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, erp.ErrNotFound) {
		return nil, err
	}

	name := strings.TrimSpace(o.Billing.FirstName + " " + o.Billing.LastName)
	if name == "" {
		name = fmt.Sprintf("Woo Customer %d", o.ID)
	}
	c = &erp.Customer{Name: name, Email: email, Phone: o.Billing.Phone}
	if err := s.Store.CreateCustomer(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// alreadyImported checks the redis marker first; the store stays the source of truth.
func (s *Service) alreadyImported(ctx context.Context, ref string) (bool, error) {
	if s.Cache != nil {
		if ok, err := s.Cache.Exists(ctx, redisx.ImportedOrderKey(ref)); err == nil && ok {
			return true, nil
		}
	}
	return s.Store.SalesOrderExists(ctx, ref)
}

func (s *Service) markImported(ctx context.Context, ref string, orderID uuid.UUID) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Set(ctx, redisx.ImportedOrderKey(ref), orderID.String(), redisx.TTLImported); err != nil {
		s.log().Warn("mark imported order", zap.String("external_ref", ref), zap.Error(err))
	}
}

func (s *Service) resolveLines(ctx context.Context, o *woo.Order) ([]erp.OrderLine, error) {
	lines := make([]erp.OrderLine, 0, len(o.LineItems))
	for _, item := range o.LineItems {
		name := item.Name
		if name == "" {
			name = "Unknown"
		}
		prod, err := s.Store.FindProduct(ctx, name, item.SKU)
		if errors.Is(err, erp.ErrNotFound) {
			prod = &erp.Product{Name: name, ListPrice: item.Price, SKU: item.SKU}
			if prod.SKU == "" {
				prod.SKU = fmt.Sprintf("WOO-%d", item.ID)
			}
			if item.ProductID > 0 {
				prod.RemoteProductID = strconv.FormatInt(item.ProductID, 10)
			}
			err = s.Store.CreateProduct(ctx, prod)
		}
		if err != nil {
			return nil, err
		}

		qty := item.Quantity
		if qty.IsZero() {
			qty = decimal.NewFromInt(1)
		}
		lines = append(lines, erp.OrderLine{
			ProductID: prod.ID,
			Name:      name,
			Quantity:  qty,
			PriceUnit: item.Price,
		})
	}
	return lines, nil
}

func (s *Service) publishImported(p *erp.Profile, so *erp.SalesOrder) {
	if s.OrderEvents == nil {
		return
	}
	profileID := p.ID.String()
	ev := erp.Envelope{
		EventID:       uuid.NewString(),
		EventType:     erp.EventOrderImported,
		EventVersion:  1,
		OccurredAt:    s.now(),
		Producer:      s.ServiceName,
		CorrelationID: profileID,
		Payload: kafkax.MustMarshal(erp.OrderImportedPayload{
			ProfileID:   profileID,
			OrderID:     so.ID.String(),
			ExternalRef: so.ExternalRef,
			CustomerID:  so.CustomerID.String(),
			Lines:       len(so.Lines),
		}),
	}
	s.OrderEvents.Publish(erp.PartitionKey(profileID), kafkax.MustMarshal(ev),
		kafkax.EventHeaders(erp.EventOrderImported, 1)...,
	)
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// stayLayouts adds the human formats booking plugins store in order meta.
var stayLayouts = append(append([]string{}, dateLayouts...),
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
)

func parseTime(s string, layouts []string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseOrderDate never fails: anything unparsable becomes now.
func parseOrderDate(s string, now time.Time) time.Time {
	if t, ok := parseTime(s, dateLayouts); ok {
		return t
	}
	return now
}

func parseStayDate(s string) (time.Time, bool) {
	if t, ok := parseTime(s, stayLayouts); ok {
		return t, true
	}
	// some plugins keep a unix timestamp
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil && n > 0 {
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}

// stayDates scans order meta for check-in / check-out values. The first
// matching key wins per field, even when its value is empty. Missing check-in
// falls back to the order date, missing check-out to one night after check-in.
func stayDates(meta []woo.Meta, orderDate time.Time) (checkIn, checkOut time.Time) {
	var in, out string
	var inFound, outFound bool
	for _, m := range meta {
		key := strings.ToLower(m.Key)
		switch {
		case strings.Contains(key, "checkin") || strings.Contains(key, "check_in"):
			if !inFound {
				in, inFound = m.StringValue(), true
			}
		case strings.Contains(key, "checkout") || strings.Contains(key, "check_out"):
			if !outFound {
				out, outFound = m.StringValue(), true
			}
		}
	}

	checkIn, ok := parseStayDate(in)
	if !ok {
		checkIn = orderDate
	}
	checkOut, ok = parseStayDate(out)
	if !ok {
		checkOut = checkIn.AddDate(0, 0, 1)
	}
	return checkIn, checkOut
}
