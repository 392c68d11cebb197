package reconcile

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ariefcatur/woo-erp-sync/internal/erp"
	"github.com/ariefcatur/woo-erp-sync/internal/redisx"
	"github.com/ariefcatur/woo-erp-sync/internal/woo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const order501 = `[{
	"id": 501,
	"billing": {"email": "a@b.com", "first_name": "Ana", "last_name": "Bell", "phone": "555-0101"},
	"date_created": "2026-10-01T10:00:00",
	"line_items": [{"id": 11, "product_id": 42, "name": "Deluxe Room", "sku": "", "price": 100, "quantity": 1}],
	"meta_data": []
}]`

func TestImport_SingleOrderEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.woo.pages = []string{order501}

	res, err := f.svc.Run(context.Background(), f.profile.ID, FlowImport)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, "WooCommerce Sync Complete: 1 new orders imported.", res.Message)

	customers := f.store.Customers()
	require.Len(t, customers, 1)
	assert.Equal(t, "a@b.com", customers[0].Email)
	assert.Equal(t, "Ana Bell", customers[0].Name)

	products := f.store.Products()
	require.Len(t, products, 1)
	assert.Equal(t, "Deluxe Room", products[0].Name)
	assert.Equal(t, "WOO-11", products[0].SKU)
	assert.Equal(t, "42", products[0].RemoteProductID)

	orders := f.store.Orders()
	require.Len(t, orders, 1)
	so := orders[0]
	assert.Equal(t, "501", so.ExternalRef)
	assert.Equal(t, erp.OriginStorefront, so.Origin)
	assert.Equal(t, erp.StateConfirmed, so.State)
	assert.True(t, so.Imported)
	assert.False(t, so.Synced)
	assert.Equal(t, customers[0].ID, so.CustomerID)
	assert.Equal(t, time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC), so.OrderDate)
	require.Len(t, so.Lines, 1)
	assert.True(t, decimal.NewFromInt(100).Equal(so.Lines[0].PriceUnit), "price_unit=%s", so.Lines[0].PriceUnit)
	assert.True(t, decimal.NewFromInt(1).Equal(so.Lines[0].Quantity))
	assert.Equal(t, products[0].ID, so.Lines[0].ProductID)

	bookings := f.store.Bookings()
	require.Len(t, bookings, 1)
	b := bookings[0]
	require.NotNil(t, b.ProductID)
	assert.Equal(t, products[0].ID, *b.ProductID)
	require.NotNil(t, b.CustomerID)
	assert.Equal(t, customers[0].ID, *b.CustomerID)
	assert.Equal(t, "Deluxe Room", b.RoomName)
	assert.Equal(t, so.OrderDate, b.CheckIn)
	assert.Equal(t, b.CheckIn.AddDate(0, 0, 1), b.CheckOut)

	p := f.reloadProfile(t)
	require.NotNil(t, p.LastSyncAt)
	assert.True(t, fixedNow.Equal(*p.LastSyncAt))
	assert.Equal(t, res.Message, p.LastSyncStatus)

	// one data page plus the empty terminator
	assert.Equal(t, 2, f.woo.listCalls())
	q := f.woo.listQueries[0]
	assert.Equal(t, "ck_test", q.Get("consumer_key"))
	assert.Equal(t, "cs_test", q.Get("consumer_secret"))
	assert.Equal(t, fixedNow.AddDate(0, 0, -7).Format(time.RFC3339), q.Get("after"))
	assert.Equal(t, "100", q.Get("per_page"))
	assert.Equal(t, "date", q.Get("orderby"))
	assert.Equal(t, "desc", q.Get("order"))

	ok, _ := f.cache.Exists(context.Background(), redisx.ImportedOrderKey("501"))
	assert.True(t, ok)

	msgs := f.orders.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, erp.EventOrderImported, decodeEnvelope(t, msgs[0]).EventType)
	require.Len(t, f.runs.messages(), 1)
}

func TestImport_Idempotent(t *testing.T) {
	tests := []struct {
		name     string
		useCache bool
	}{
		{"redis marker", true},
		{"store check only", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if !tt.useCache {
				f.svc.Cache = nil
			}
			f.woo.pages = []string{order501}

			first, err := f.svc.Run(context.Background(), f.profile.ID, FlowImport)
			require.NoError(t, err)
			assert.Equal(t, 1, first.Created)

			second, err := f.svc.Run(context.Background(), f.profile.ID, FlowImport)
			require.NoError(t, err)
			assert.Equal(t, OutcomeSuccess, second.Outcome)
			assert.Equal(t, 0, second.Created)
			assert.Equal(t, 1, second.Skipped)

			count := 0
			for _, o := range f.store.Orders() {
				if o.ExternalRef == "501" {
					count++
				}
			}
			assert.Equal(t, 1, count)
			assert.Len(t, f.store.Bookings(), 1)
			assert.Len(t, f.store.Customers(), 1)

			// the second run starts from the watermark left by the first
			assert.Equal(t, fixedNow.Format(time.RFC3339), f.woo.listQueries[2].Get("after"))
		})
	}
}

func TestImport_PaginationStopsOnEmptyPage(t *testing.T) {
	f := newFixture(t)
	f.woo.pages = []string{
		`[{"id": 1, "billing": {"email": "x1@shop.test"}, "line_items": []}]`,
		`[{"id": 2, "billing": {"email": "x2@shop.test"}, "line_items": []}]`,
		`[{"id": 3, "billing": {"email": "x3@shop.test"}, "line_items": []}]`,
	}

	res := f.svc.ImportOrders(context.Background(), f.profile)

	assert.Equal(t, 4, f.woo.listCalls())
	for i, q := range f.woo.listQueries {
		assert.Equal(t, []string{strconv.Itoa(i + 1)}, q["page"])
	}
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 3, res.Created)
	// orders without line items get no booking
	assert.Len(t, res.Warnings, 3)
	assert.Empty(t, f.store.Bookings())
}

func TestImport_SharedEmailResolvesOneCustomer(t *testing.T) {
	f := newFixture(t)
	f.woo.pages = []string{`[
		{"id": 10, "billing": {"email": "same@shop.test", "first_name": "Sam"}, "line_items": [{"id": 1, "name": "Room A", "price": "50.00", "quantity": 1}]},
		{"id": 11, "billing": {"email": "same@shop.test", "first_name": "Sam"}, "line_items": [{"id": 2, "name": "Room A", "price": "50.00", "quantity": 2}]}
	]`}

	res := f.svc.ImportOrders(context.Background(), f.profile)
	require.Equal(t, OutcomeSuccess, res.Outcome)

	require.Len(t, f.store.Customers(), 1)
	assert.Len(t, f.store.Products(), 1, "product matched by name")
	orders := f.store.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, orders[0].CustomerID, orders[1].CustomerID)
}

func TestImport_SyntheticCustomerAndProduct(t *testing.T) {
	f := newFixture(t)
	f.woo.pages = []string{`[{"id": 77, "billing": {}, "line_items": [{"id": 9, "price": 10, "quantity": 0}]}]`}

	res := f.svc.ImportOrders(context.Background(), f.profile)
	require.Equal(t, OutcomeSuccess, res.Outcome)

	c := f.store.Customers()
	require.Len(t, c, 1)
	assert.Equal(t, "woo_77@example.com", c[0].Email)
	assert.Equal(t, "Woo Customer 77", c[0].Name)

	p := f.store.Products()
	require.Len(t, p, 1)
	assert.Equal(t, "Unknown", p[0].Name)
	assert.Equal(t, "WOO-9", p[0].SKU)
	assert.Empty(t, p[0].RemoteProductID)

	o := f.store.Orders()
	require.Len(t, o, 1)
	assert.True(t, decimal.NewFromInt(1).Equal(o[0].Lines[0].Quantity))
}

func TestImport_ExistingProductMatchedBySKU(t *testing.T) {
	f := newFixture(t)
	existing := &erp.Product{Name: "Suite (old name)", SKU: "SUITE-1", ListPrice: decimal.NewFromInt(200)}
	require.NoError(t, f.store.CreateProduct(context.Background(), existing))
	f.woo.pages = []string{`[{"id": 5, "billing": {"email": "s@shop.test"}, "line_items": [{"id": 3, "name": "Suite", "sku": "SUITE-1", "price": 220, "quantity": 1}]}]`}

	f.svc.ImportOrders(context.Background(), f.profile)

	require.Len(t, f.store.Products(), 1)
	assert.Equal(t, existing.ID, f.store.Orders()[0].Lines[0].ProductID)
}

func TestImport_UnparsableDateUsesNow(t *testing.T) {
	f := newFixture(t)
	f.woo.pages = []string{`[{"id": 8, "billing": {"email": "d@shop.test"}, "date_created": "sometime last week", "line_items": [{"id": 1, "name": "Twin Room", "price": 80, "quantity": 1}]}]`}

	res := f.svc.ImportOrders(context.Background(), f.profile)
	require.Equal(t, OutcomeSuccess, res.Outcome)

	o := f.store.Orders()
	require.Len(t, o, 1)
	assert.Equal(t, fixedNow, o[0].OrderDate)
	b := f.store.Bookings()
	require.Len(t, b, 1)
	assert.Equal(t, fixedNow, b[0].CheckIn)
	assert.Equal(t, fixedNow.AddDate(0, 0, 1), b[0].CheckOut)
}

func TestImport_StayDatesFromMeta(t *testing.T) {
	f := newFixture(t)
	f.woo.pages = []string{`[{
		"id": 9,
		"billing": {"email": "m@shop.test"},
		"date_created": "2026-10-01T10:00:00",
		"line_items": [{"id": 1, "name": "Deluxe Room", "price": 100, "quantity": 1}],
		"meta_data": [
			{"key": "_Check_In_Date", "value": "2026-11-05"},
			{"key": "checkin_backup", "value": "2027-01-01"},
			{"key": "CheckOut", "value": "2026-11-08 12:00"}
		]
	}]`}

	f.svc.ImportOrders(context.Background(), f.profile)

	b := f.store.Bookings()
	require.Len(t, b, 1)
	assert.Equal(t, time.Date(2026, 11, 5, 0, 0, 0, 0, time.UTC), b[0].CheckIn)
	assert.Equal(t, time.Date(2026, 11, 8, 12, 0, 0, 0, time.UTC), b[0].CheckOut)
}

func TestImport_HTTPErrorAbortsWithoutWrites(t *testing.T) {
	f := newFixture(t)
	f.woo.pages = []string{order501, order501}
	f.woo.failPage = 2

	res, err := f.svc.Run(context.Background(), f.profile.ID, FlowImport)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.Equal(t, "WooCommerce HTTP Error: 500", res.Message)
	assert.Equal(t, 2, f.woo.listCalls())
	assert.Empty(t, f.store.Orders())
	assert.Empty(t, f.store.Customers())

	p := f.reloadProfile(t)
	assert.Nil(t, p.LastSyncAt)
	assert.Equal(t, "WooCommerce HTTP Error: 500", p.LastSyncStatus)
}

func TestStayDates(t *testing.T) {
	orderDate := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	meta := func(kv ...string) []woo.Meta {
		var out []woo.Meta
		for i := 0; i < len(kv); i += 2 {
			out = append(out, woo.Meta{Key: kv[i], Value: []byte(kv[i+1])})
		}
		return out
	}

	tests := []struct {
		name    string
		meta    []woo.Meta
		wantIn  time.Time
		wantOut time.Time
	}{
		{
			name:    "no meta",
			wantIn:  orderDate,
			wantOut: orderDate.AddDate(0, 0, 1),
		},
		{
			name:    "check_in only",
			meta:    meta("check_in", `"2026-03-10"`),
			wantIn:  time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			wantOut: time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "human format",
			meta:    meta("Booking Checkin", `"March 12, 2026"`, "booking checkout", `"March 14, 2026"`),
			wantIn:  time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
			wantOut: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "unix timestamp",
			meta:    meta("checkin_ts", `1773187200`),
			wantIn:  time.Unix(1773187200, 0).UTC(),
			wantOut: time.Unix(1773187200, 0).UTC().AddDate(0, 0, 1),
		},
		{
			name:    "empty first match still wins",
			meta:    meta("_checkin", `""`, "checkin_backup", `"2026-03-20"`, "check_out", `null`, "checkout_alt", `"2026-03-25"`),
			wantIn:  orderDate,
			wantOut: orderDate.AddDate(0, 0, 1),
		},
		{
			name:    "garbage falls back",
			meta:    meta("checkin", `"soon"`, "checkout", `{"a":1}`),
			wantIn:  orderDate,
			wantOut: orderDate.AddDate(0, 0, 1),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out := stayDates(tt.meta, orderDate)
			assert.Equal(t, tt.wantIn, in)
			assert.Equal(t, tt.wantOut, out)
		})
	}
}

func TestImport_ListTransportError(t *testing.T) {
	f := newFixture(t)
	f.woo.Close()

	res := f.svc.ImportOrders(context.Background(), f.profile)
	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.Contains(t, res.Message, "WooCommerce Sync Error:")
}

func TestImport_StoreErrorAbortsRun(t *testing.T) {
	f := newFixture(t)
	f.svc.Store = &flakyStore{MemStore: f.store, failOrderAfter: 1}
	f.woo.pages = []string{`[
		{"id": 31, "billing": {"email": "o1@shop.test"}, "line_items": [{"id": 1, "name": "Room A", "price": 50, "quantity": 1}]},
		{"id": 32, "billing": {"email": "o2@shop.test"}, "line_items": [{"id": 2, "name": "Room B", "price": 60, "quantity": 1}]},
		{"id": 33, "billing": {"email": "o3@shop.test"}, "line_items": [{"id": 3, "name": "Room C", "price": 70, "quantity": 1}]}
	]`}

	res, err := f.svc.Run(context.Background(), f.profile.ID, FlowImport)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "32", res.Failures[0].ItemID)
	assert.True(t, strings.HasPrefix(res.Message, "WooCommerce Sync Error: "), res.Message)

	// earlier records stay, nothing after the failing order is written
	orders := f.store.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, "31", orders[0].ExternalRef)
	assert.Len(t, f.store.Bookings(), 1)
	for _, c := range f.store.Customers() {
		assert.NotEqual(t, "o3@shop.test", c.Email)
	}

	p := f.reloadProfile(t)
	assert.Nil(t, p.LastSyncAt)
	assert.Equal(t, res.Message, p.LastSyncStatus)
}
