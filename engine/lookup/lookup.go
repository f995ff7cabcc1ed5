// Package lookup serves decoded vehicle records with at most one in-flight
// decoder request per VIN and a short-lived result cache.
package lookup

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/WessleyAI/vinwizard/engine/domain"
	"github.com/WessleyAI/vinwizard/pkg/fn"
	"github.com/WessleyAI/vinwizard/pkg/metrics"
)

// Decoder turns a VIN into a normalized vehicle record.
type Decoder interface {
	DecodeRecord(ctx context.Context, vin string) (domain.VehicleRecord, error)
}

// Publisher is notified after every successful decode.
type Publisher interface {
	Publish(ctx context.Context, ev LookupEvent) error
}

// LookupEvent describes a successful decode.
type LookupEvent struct {
	VIN       string    `json:"vin"`
	Make      string    `json:"make"`
	Model     string    `json:"model"`
	Year      string    `json:"year"`
	DecodedAt time.Time `json:"decoded_at"`
}

// Options configures a Service.
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
	// Timeout bounds a shared decode, which outlives any single caller.
	Timeout   time.Duration
	Publisher Publisher
	Metrics   *metrics.Registry
	Logger    *slog.Logger
}

// decoded pairs a record with the VIN it was decoded from.
type decoded struct {
	vin string
	rec domain.VehicleRecord
}

// Service is safe for concurrent use.
type Service struct {
	decode    fn.Stage[string, decoded]
	group     singleflight.Group
	cache     *expirable.LRU[string, domain.VehicleRecord]
	timeout   time.Duration
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time

	okTotal    *metrics.Counter
	errTotal   *metrics.Counter
	cacheHits  *metrics.Counter
	decodeTime *metrics.Histogram
}

// New wraps dec. Zero CacheSize, CacheTTL and Timeout default to 128
// entries, ten minutes and one minute.
func New(dec Decoder, opts Options) *Service {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	reg := opts.Metrics
	s := &Service{
		cache:      expirable.NewLRU[string, domain.VehicleRecord](opts.CacheSize, nil, opts.CacheTTL),
		timeout:    opts.Timeout,
		publisher:  opts.Publisher,
		logger:     opts.Logger,
		now:        time.Now,
		okTotal:    reg.Counter(metrics.WithLabels("vinwizard_lookups_total", "outcome", "ok"), "VIN lookups by outcome."),
		errTotal:   reg.Counter(metrics.WithLabels("vinwizard_lookups_total", "outcome", "error"), "VIN lookups by outcome."),
		cacheHits:  reg.Counter("vinwizard_lookup_cache_hits_total", "Lookups served from the result cache."),
		decodeTime: reg.Histogram("vinwizard_decode_duration_seconds", "Decoder round-trip latency.", nil),
	}
	fetch := fn.Lift(func(ctx context.Context, vin string) (decoded, error) {
		start := time.Now()
		rec, err := dec.DecodeRecord(ctx, vin)
		s.decodeTime.Since(start)
		return decoded{vin: vin, rec: rec}, err
	})
	s.decode = fn.TracedStage("lookup.decode", fn.Then(fetch, fn.TapStage(s.remember)))
	return s
}

// Lookup returns the record for vin. An empty vin returns nil, nil without
// calling the decoder. Concurrent calls for one VIN share a single request;
// a caller that gives up does not cancel it for the others.
func (s *Service) Lookup(ctx context.Context, vin string) (domain.VehicleRecord, error) {
	vin = domain.NormalizeVIN(vin)
	if vin == "" {
		return nil, nil
	}
	if rec, ok := s.cache.Get(vin); ok {
		s.cacheHits.Inc()
		s.okTotal.Inc()
		return rec, nil
	}

	ch := s.group.DoChan(vin, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.decode(shared, vin).Unwrap()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			s.errTotal.Inc()
			return nil, res.Err
		}
		s.okTotal.Inc()
		return res.Val.(decoded).rec, nil
	case <-ctx.Done():
		s.errTotal.Inc()
		return nil, ctx.Err()
	}
}

// remember caches a successful decode and announces it.
func (s *Service) remember(ctx context.Context, d decoded) {
	s.cache.Add(d.vin, d.rec)
	if s.publisher == nil {
		return
	}
	ev := LookupEvent{
		VIN:       d.vin,
		Make:      d.rec.Get(domain.AttrMake),
		Model:     d.rec.Get(domain.AttrModel),
		Year:      d.rec.Get(domain.AttrModelYear),
		DecodedAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish lookup event failed", "vin", d.vin, "err", err)
	}
}
