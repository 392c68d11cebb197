package woo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// PerPage is the page size requested from the order-list endpoint.
const PerPage = 100

const maxResponseSize = 10 * 1024 * 1024

var (
	ErrMissingCredentials = errors.New("woo: missing url, consumer key or consumer secret")
	ErrMissingEndpoint    = errors.New("woo: missing endpoint url")
	ErrNoID               = errors.New("woo: response has no id")
)

// StatusError is returned for any unexpected HTTP status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string { return fmt.Sprintf("woo: HTTP %d", e.Code) }

// Credentials identify one storefront order endpoint.
type Credentials struct {
	URL            string
	ConsumerKey    string
	ConsumerSecret string
}

func (c Credentials) Validate() error {
	if c.URL == "" || c.ConsumerKey == "" || c.ConsumerSecret == "" {
		return ErrMissingCredentials
	}
	return nil
}

func (c Credentials) query() url.Values {
	q := url.Values{}
	q.Set("consumer_key", c.ConsumerKey)
	q.Set("consumer_secret", c.ConsumerSecret)
	return q
}

// Timeouts per call class. Paging calls get more room than single lookups.
type Timeouts struct {
	List    time.Duration
	Lookup  time.Duration
	Booking time.Duration
	Order   time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		List:    30 * time.Second,
		Lookup:  10 * time.Second,
		Booking: 15 * time.Second,
		Order:   30 * time.Second,
	}
}

// Client talks to the storefront REST API.
type Client struct {
	list    *http.Client
	lookup  *http.Client
	booking *http.Client
	order   *http.Client
}

func NewClient(t Timeouts) *Client {
	d := DefaultTimeouts()
	if t.List <= 0 {
		t.List = d.List
	}
	if t.Lookup <= 0 {
		t.Lookup = d.Lookup
	}
	if t.Booking <= 0 {
		t.Booking = d.Booking
	}
	if t.Order <= 0 {
		t.Order = d.Order
	}
	return &Client{
		list:    &http.Client{Timeout: t.List},
		lookup:  &http.Client{Timeout: t.Lookup},
		booking: &http.Client{Timeout: t.Booking},
		order:   &http.Client{Timeout: t.Order},
	}
}

// ListOrders fetches one page of orders created after since, newest first.
// Only HTTP 200 is accepted.
func (c *Client) ListOrders(ctx context.Context, cred Credentials, since time.Time, page int) ([]Order, error) {
	q := cred.query()
	q.Set("after", since.UTC().Format(time.RFC3339))
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(PerPage))
	q.Set("orderby", "date")
	q.Set("order", "desc")

	body, code, err := c.do(ctx, c.list, http.MethodGet, withQuery(cred.URL, q), nil)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, &StatusError{Code: code, Body: string(body)}
	}
	var orders []Order
	if err := json.Unmarshal(body, &orders); err != nil {
		return nil, fmt.Errorf("woo: decode orders page %d: %w", page, err)
	}
	return orders, nil
}

// CreateOrder posts a new order and returns the storefront id.
func (c *Client) CreateOrder(ctx context.Context, cred Credentials, in OrderInput) (string, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	body, code, err := c.do(ctx, c.order, http.MethodPost, withQuery(cred.URL, cred.query()), b)
	if err != nil {
		return "", err
	}
	if code != http.StatusOK && code != http.StatusCreated {
		return "", &StatusError{Code: code, Body: string(body)}
	}
	var out struct {
		ID json.RawMessage `json:"id"`
	}
	_ = json.Unmarshal(body, &out)
	return idString(out.ID), nil
}

// SearchRoom returns the id of the first room matching name, or "" when the
// search returns nothing.
func (c *Client) SearchRoom(ctx context.Context, roomsURL, name string) (string, error) {
	if roomsURL == "" {
		return "", ErrMissingEndpoint
	}
	q := url.Values{}
	q.Set("search", name)
	body, code, err := c.do(ctx, c.lookup, http.MethodGet, withQuery(roomsURL, q), nil)
	if err != nil {
		return "", err
	}
	if code != http.StatusOK {
		return "", &StatusError{Code: code, Body: string(body)}
	}
	var rooms []struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &rooms); err != nil {
		return "", fmt.Errorf("woo: decode rooms: %w", err)
	}
	if len(rooms) == 0 {
		return "", nil
	}
	return idString(rooms[0].ID), nil
}

// CreateBooking posts a booking. A successful response must carry an id.
func (c *Client) CreateBooking(ctx context.Context, bookingsURL string, in BookingInput) (string, error) {
	if bookingsURL == "" {
		return "", ErrMissingEndpoint
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	body, code, err := c.do(ctx, c.booking, http.MethodPost, bookingsURL, b)
	if err != nil {
		return "", err
	}
	if code != http.StatusOK && code != http.StatusCreated {
		return "", &StatusError{Code: code, Body: string(body)}
	}
	var out struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("woo: decode booking: %w", err)
	}
	id := idString(out.ID)
	if id == "" {
		return "", ErrNoID
	}
	return id, nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, target string, payload []byte) ([]byte, int, error) {
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, 0, fmt.Errorf("woo: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("woo: read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// withQuery merges q into the query string already present on raw.
func withQuery(raw string, q url.Values) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	cur := u.Query()
	for k, vs := range q {
		cur[k] = vs
	}
	u.RawQuery = cur.Encode()
	return u.String()
}
