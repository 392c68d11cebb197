package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/woo-erp-sync/internal/erp"
	kafkax "github.com/ariefcatur/woo-erp-sync/internal/kafka"
	"github.com/ariefcatur/woo-erp-sync/internal/redisx"
	"github.com/ariefcatur/woo-erp-sync/internal/woo"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var (
	ErrConfig      = errors.New("sync profile is not configured")
	ErrUnknownFlow = errors.New("unknown sync flow")
)

const (
	msgMissingCredentials = "Missing WooCommerce API credentials!"
	msgMissingBookingsURL = "Missing booking endpoint URL!"
)

// Storefront is the subset of woo.Client used by the flows.
type Storefront interface {
	ListOrders(ctx context.Context, cred woo.Credentials, since time.Time, page int) ([]woo.Order, error)
	CreateOrder(ctx context.Context, cred woo.Credentials, in woo.OrderInput) (string, error)
	SearchRoom(ctx context.Context, roomsURL, name string) (string, error)
	CreateBooking(ctx context.Context, bookingsURL string, in woo.BookingInput) (string, error)
}

// Cache is implemented by redisx.Cache.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, key string) error
}

// Publisher is implemented by kafka.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Service runs the sync flows for a profile. Cache, RunEvents and
// OrderEvents are optional.
type Service struct {
	Store        erp.Store
	Woo          Storefront
	Cache        Cache
	RunEvents    Publisher // publish run.completed
	OrderEvents  Publisher // publish order.imported
	Log          *zap.Logger
	ServiceName  string
	LookbackDays int
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Service) lookbackDays() int {
	if s.LookbackDays <= 0 {
		return 7
	}
	return s.LookbackDays
}

func credentials(p *erp.Profile) woo.Credentials {
	return woo.Credentials{URL: p.URL, ConsumerKey: p.ConsumerKey, ConsumerSecret: p.ConsumerSecret}
}

// Run executes one flow for the profile and records its status. The import
// watermark only moves when the import did not fail.
func (s *Service) Run(ctx context.Context, profileID uuid.UUID, flow Flow) (*Result, error) {
	if _, err := ParseFlow(string(flow)); err != nil {
		return nil, err
	}
	p, err := s.Store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", profileID, err)
	}

	if msg, err := checkConfig(p, flow); err != nil {
		s.log().Warn("sync run rejected", zap.String("profile_id", p.ID.String()),
			zap.String("flow", string(flow)), zap.Error(err))
		res := newResult(flow, p.ID, s.now).fail(msg)
		if uerr := s.Store.UpdateProfileSync(ctx, p.ID, msg, nil); uerr != nil {
			s.log().Error("save sync status", zap.Error(uerr))
		}
		return res, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	var res *Result
	switch flow {
	case FlowImport:
		res = s.ImportOrders(ctx, p)
	case FlowExport:
		res = s.ExportOrders(ctx, p)
	case FlowBookings:
		res = s.PushBookings(ctx, p)
	}

	var watermark *time.Time
	if flow == FlowImport && res.Outcome != OutcomeFailure {
		t := res.StartedAt
		watermark = &t
	}
	if err := s.Store.UpdateProfileSync(ctx, p.ID, res.Message, watermark); err != nil {
		return res, fmt.Errorf("save sync status: %w", err)
	}

	s.cacheResult(ctx, res)
	s.publishCompleted(res)

	lvl := zap.InfoLevel
	if res.Outcome != OutcomeSuccess {
		lvl = zap.WarnLevel
	}
	s.log().Log(lvl, res.Message,
		zap.String("profile_id", p.ID.String()),
		zap.String("flow", string(flow)),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("fetched", res.Fetched),
		zap.Int("created", res.Created),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.Duration("took", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res, nil
}

func checkConfig(p *erp.Profile, flow Flow) (string, error) {
	switch flow {
	case FlowBookings:
		if p.BookingsURL == "" {
			return msgMissingBookingsURL, woo.ErrMissingEndpoint
		}
	default:
		if err := credentials(p).Validate(); err != nil {
			return msgMissingCredentials, err
		}
	}
	return "", nil
}

// LastResult returns the cached result of the latest run, if any.
func (s *Service) LastResult(ctx context.Context, profileID uuid.UUID, flow Flow) (*Result, error) {
	if s.Cache == nil {
		return nil, erp.ErrNotFound
	}
	v, ok, err := s.Cache.Get(ctx, redisx.LastRunKey(profileID.String(), string(flow)))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, erp.ErrNotFound
	}
	var res Result
	if err := json.Unmarshal([]byte(v), &res); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}
	return &res, nil
}

func (s *Service) cacheResult(ctx context.Context, res *Result) {
	if s.Cache == nil {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	key := redisx.LastRunKey(res.ProfileID.String(), string(res.Flow))
	if err := s.Cache.Set(ctx, key, string(b), redisx.TTLLastRun); err != nil {
		s.log().Warn("cache last run", zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) publishCompleted(res *Result) {
	if s.RunEvents == nil {
		return
	}
	profileID := res.ProfileID.String()
	ev := erp.Envelope{
		EventID:       uuid.NewString(),
		EventType:     erp.EventRunCompleted,
		EventVersion:  1,
		OccurredAt:    s.now(),
		Producer:      s.ServiceName,
		CorrelationID: profileID,
		Payload: kafkax.MustMarshal(erp.RunCompletedPayload{
			ProfileID: profileID,
			Flow:      string(res.Flow),
			Outcome:   string(res.Outcome),
			Created:   res.Created,
			Skipped:   res.Skipped,
			Failed:    res.Failed,
			Message:   res.Message,
		}),
	}
	s.RunEvents.Publish(erp.PartitionKey(profileID), kafkax.MustMarshal(ev),
		kafkax.EventHeaders(erp.EventRunCompleted, 1)...,
	)
}

// HandleRunRequested: dipasang sebagai handler consumer di cmd/syncer.
func (s *Service) HandleRunRequested(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	var env erp.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != erp.EventRunRequested {
		return nil
	} // ignore

	// 2) dedup via Redis (pakai event_id)
	dedupKey := redisx.DedupKey("syncer", env.EventID)
	if s.Cache != nil {
		first, err := s.Cache.SetNX(ctx, dedupKey, "1", redisx.TTLDedup)
		if err == nil && !first {
			return nil
		}
	}

	// 3) decode payload
	p, err := kafkax.UnwrapPayload[erp.RunRequestedPayload](env.Payload)
	if err != nil {
		return err
	}
	profileID, err := uuid.Parse(p.ProfileID)
	if err != nil {
		s.log().Warn("run request with bad profile id", zap.String("profile_id", p.ProfileID))
		return nil
	}
	flow, err := ParseFlow(p.Flow)
	if err != nil {
		s.log().Warn("run request with bad flow", zap.String("flow", p.Flow))
		return nil
	}

	// config / profile errors are not retryable; commit and move on
	_, err = s.Run(ctx, profileID, flow)
	if err == nil || errors.Is(err, ErrConfig) || errors.Is(err, erp.ErrNotFound) {
		return nil
	}
	// retryable: lepas dedup key supaya redelivery tetap dijalankan
	if s.Cache != nil {
		if derr := s.Cache.Del(context.WithoutCancel(ctx), dedupKey); derr != nil {
			s.log().Warn("release dedup key", zap.String("key", dedupKey), zap.Error(derr))
		}
	}
	return err
}

// RequestRun publishes a run request for cmd/syncer.
func RequestRun(pub Publisher, producer string, profileID uuid.UUID, flow Flow, traceID string) string {
	id := profileID.String()
	ev := erp.Envelope{
		EventID:       uuid.NewString(),
		EventType:     erp.EventRunRequested,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: id,
		Payload:       kafkax.MustMarshal(erp.RunRequestedPayload{ProfileID: id, Flow: string(flow)}),
	}
	pub.Publish(erp.PartitionKey(id), kafkax.MustMarshal(ev),
		kafkax.EventHeaders(erp.EventRunRequested, 1)...,
	)
	return ev.EventID
}
