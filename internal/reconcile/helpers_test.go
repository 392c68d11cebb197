package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/woo-erp-sync/internal/erp"
	"github.com/ariefcatur/woo-erp-sync/internal/woo"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

// fakeWoo is an in-process storefront: order list pages, order create,
// room search and booking create.
type fakeWoo struct {
	*httptest.Server

	mu          sync.Mutex
	pages       []string
	failPage    int
	listQueries []url.Values
	posted      []woo.OrderInput
	orderStatus int
	rooms       map[string]int64
	roomCalls   int
	bookings    []woo.BookingInput
	bookingResp func(in woo.BookingInput) (int, string)
}

func newFakeWoo(t *testing.T) *fakeWoo {
	f := &fakeWoo{rooms: map[string]int64{}, orderStatus: http.StatusCreated}
	mux := http.NewServeMux()
	mux.HandleFunc("/orders", f.handleOrders)
	mux.HandleFunc("/rooms", f.handleRooms)
	mux.HandleFunc("/bookings", f.handleBookings)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeWoo) handleOrders(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Method == http.MethodPost {
		var in woo.OrderInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.posted = append(f.posted, in)
		w.WriteHeader(f.orderStatus)
		_, _ = w.Write([]byte(`{"id":` + strconv.Itoa(9000+len(f.posted)) + `}`))
		return
	}

	f.listQueries = append(f.listQueries, r.URL.Query())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if f.failPage > 0 && page == f.failPage {
		http.Error(w, `{"code":"boom"}`, http.StatusInternalServerError)
		return
	}
	if page >= 1 && page <= len(f.pages) {
		_, _ = w.Write([]byte(f.pages[page-1]))
		return
	}
	_, _ = w.Write([]byte(`[]`))
}

func (f *fakeWoo) handleRooms(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roomCalls++
	id, ok := f.rooms[r.URL.Query().Get("search")]
	if !ok {
		_, _ = w.Write([]byte(`[]`))
		return
	}
	_, _ = w.Write([]byte(`[{"id":` + strconv.FormatInt(id, 10) + `}]`))
}

func (f *fakeWoo) handleBookings(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var in woo.BookingInput
	_ = json.NewDecoder(r.Body).Decode(&in)
	f.bookings = append(f.bookings, in)
	code, body := http.StatusCreated, `{"id":`+strconv.Itoa(500+len(f.bookings))+`}`
	if f.bookingResp != nil {
		code, body = f.bookingResp(in)
	}
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

func (f *fakeWoo) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listQueries)
}

// memCache implements Cache on a map.
type memCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemCache() *memCache { return &memCache{data: map[string]string{}} }

func (c *memCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[key]; ok {
		return false, nil
	}
	c.data[key] = value
	return true, nil
}

func (c *memCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok, nil
}

func (c *memCache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// capturePublisher records what would have gone to kafka.
type capturePublisher struct {
	mu   sync.Mutex
	msgs []kafkago.Message
}

func (p *capturePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, kafkago.Message{Key: key, Value: value, Headers: headers})
}

func (p *capturePublisher) messages() []kafkago.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]kafkago.Message(nil), p.msgs...)
}

func decodeEnvelope(t *testing.T, m kafkago.Message) erp.Envelope {
	t.Helper()
	var env erp.Envelope
	require.NoError(t, json.Unmarshal(m.Value, &env))
	return env
}

type fixture struct {
	svc     *Service
	store   *erp.MemStore
	woo     *fakeWoo
	cache   *memCache
	runs    *capturePublisher
	orders  *capturePublisher
	profile *erp.Profile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fw := newFakeWoo(t)
	store := erp.NewMemStore()
	p := &erp.Profile{
		Name:           "main shop",
		URL:            fw.URL + "/orders",
		ConsumerKey:    "ck_test",
		ConsumerSecret: "cs_test",
		RoomsURL:       fw.URL + "/rooms",
		BookingsURL:    fw.URL + "/bookings",
		Enabled:        true,
	}
	require.NoError(t, store.SaveProfile(context.Background(), p))

	f := &fixture{
		store:   store,
		woo:     fw,
		cache:   newMemCache(),
		runs:    &capturePublisher{},
		orders:  &capturePublisher{},
		profile: p,
	}
	f.svc = &Service{
		Store:       store,
		Woo:         woo.NewClient(woo.Timeouts{List: 5 * time.Second, Lookup: 2 * time.Second}),
		Cache:       f.cache,
		RunEvents:   f.runs,
		OrderEvents: f.orders,
		ServiceName: "woo-sync-test",
		Now:         func() time.Time { return fixedNow },
	}
	return f
}

func (f *fixture) reloadProfile(t *testing.T) *erp.Profile {
	t.Helper()
	p, err := f.store.GetProfile(context.Background(), f.profile.ID)
	require.NoError(t, err)
	return p
}

// flakyStore fails selected calls on an otherwise working MemStore.
type flakyStore struct {
	*erp.MemStore

	mu             sync.Mutex
	profileErrs    int // GetProfile fails this many times
	failOrderAfter int // CreateSalesOrder fails once this many orders were created; 0 disables
	ordersCreated  int
}

var errStoreDown = errors.New("db connection reset")

func (s *flakyStore) GetProfile(ctx context.Context, id uuid.UUID) (*erp.Profile, error) {
	s.mu.Lock()
	if s.profileErrs > 0 {
		s.profileErrs--
		s.mu.Unlock()
		return nil, errStoreDown
	}
	s.mu.Unlock()
	return s.MemStore.GetProfile(ctx, id)
}

func (s *flakyStore) CreateSalesOrder(ctx context.Context, o *erp.SalesOrder) error {
	s.mu.Lock()
	if s.failOrderAfter > 0 && s.ordersCreated >= s.failOrderAfter {
		s.mu.Unlock()
		return errStoreDown
	}
	s.ordersCreated++
	s.mu.Unlock()
	return s.MemStore.CreateSalesOrder(ctx, o)
}
