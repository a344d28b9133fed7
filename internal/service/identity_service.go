package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/alanyoungcy/alphamarket/internal/platform/neynar"
	"github.com/alanyoungcy/alphamarket/internal/query"
)

// IdentityClient resolves social profiles upstream.
type IdentityClient interface {
	HasKey() bool
	UsersByFIDs(ctx context.Context, fids []uint64) ([]domain.Profile, error)
	UsersByAddresses(ctx context.Context, addrs []string) (map[string][]domain.Profile, error)
}

// UpstreamRecorder receives upstream call outcomes. observability.Metrics
// satisfies it.
type UpstreamRecorder interface {
	RecordUpstream(service string, start time.Time, err error)
}

type nopUpstream struct{}

func (nopUpstream) RecordUpstream(string, time.Time, error) {}

// IdentityService caches profile lookups under order-independent keys.
type IdentityService struct {
	client IdentityClient
	cache  *query.Cache
	policy query.Policy
	rec    UpstreamRecorder
	logger *slog.Logger
}

// NewIdentityService creates an IdentityService. rec may be nil.
func NewIdentityService(client IdentityClient, cache *query.Cache, policy query.Policy, rec UpstreamRecorder, logger *slog.Logger) *IdentityService {
	if rec == nil {
		rec = nopUpstream{}
	}
	return &IdentityService{
		client: client,
		cache:  cache,
		policy: policy,
		rec:    rec,
		logger: logger.With(slog.String("component", "identity_service")),
	}
}

// Configured reports whether the upstream API key is present.
func (s *IdentityService) Configured() bool {
	return s.client.HasKey()
}

// FIDsKey is the cache key of a FID batch. Equal sets give equal keys
// regardless of order or duplicates.
func FIDsKey(fids []uint64) query.Key {
	norm := neynar.NormalizeFIDs(fids)
	parts := make([]string, len(norm))
	for i, f := range norm {
		parts[i] = strconv.FormatUint(f, 10)
	}
	return query.NewKey(keyUsers, "fids", strings.Join(parts, ","))
}

// AddressesKey is the cache key of an address batch.
func AddressesKey(addrs []string) query.Key {
	return query.NewKey(keyUsers, "addresses", strings.Join(neynar.NormalizeAddresses(addrs), ","))
}

// UsersByFIDs returns the profiles for fids. An upstream failure fails the
// whole batch.
func (s *IdentityService) UsersByFIDs(ctx context.Context, fids []uint64) ([]domain.Profile, error) {
	if !s.client.HasKey() {
		return nil, domain.ErrIdentityKeyMissing
	}
	norm := neynar.NormalizeFIDs(fids)
	if len(norm) == 0 {
		return []domain.Profile{}, nil
	}
	profiles, err := query.FetchAs(ctx, s.cache, FIDsKey(norm), s.policy, func(ctx context.Context) ([]domain.Profile, error) {
		start := time.Now()
		ps, err := s.client.UsersByFIDs(ctx, norm)
		s.rec.RecordUpstream("neynar", start, err)
		return ps, err
	})
	if err != nil {
		return nil, fmt.Errorf("identity_service: users by fid: %w", err)
	}
	return profiles, nil
}

// UsersByAddresses returns profiles keyed by lowercased address.
func (s *IdentityService) UsersByAddresses(ctx context.Context, addrs []string) (map[string][]domain.Profile, error) {
	if !s.client.HasKey() {
		return nil, domain.ErrIdentityKeyMissing
	}
	norm := neynar.NormalizeAddresses(addrs)
	if len(norm) == 0 {
		return map[string][]domain.Profile{}, nil
	}
	byAddr, err := query.FetchAs(ctx, s.cache, AddressesKey(norm), s.policy, func(ctx context.Context) (map[string][]domain.Profile, error) {
		start := time.Now()
		m, err := s.client.UsersByAddresses(ctx, norm)
		s.rec.RecordUpstream("neynar", start, err)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("identity_service: users by address: %w", err)
	}
	return byAddr, nil
}

// ProfilesByFID is the best-effort form of UsersByFIDs used for display
// enrichment. Failures are logged and yield an empty map.
func (s *IdentityService) ProfilesByFID(ctx context.Context, fids []uint64) map[uint64]domain.Profile {
	out := make(map[uint64]domain.Profile)
	if len(neynar.NormalizeFIDs(fids)) == 0 || !s.client.HasKey() {
		return out
	}
	profiles, err := s.UsersByFIDs(ctx, fids)
	if err != nil {
		s.logger.WarnContext(ctx, "profile enrichment failed", slog.String("error", err.Error()))
		return out
	}
	for _, p := range profiles {
		out[p.FID] = p
	}
	return out
}

// ProfileByAddress returns the first profile linked to addr, or nil.
func (s *IdentityService) ProfileByAddress(ctx context.Context, addr string) *domain.Profile {
	if !s.client.HasKey() {
		return nil
	}
	byAddr, err := s.UsersByAddresses(ctx, []string{addr})
	if err != nil {
		s.logger.WarnContext(ctx, "profile enrichment failed",
			slog.String("address", addr),
			slog.String("error", err.Error()),
		)
		return nil
	}
	ps := byAddr[strings.ToLower(addr)]
	if len(ps) == 0 {
		return nil
	}
	p := ps[0]
	return &p
}
