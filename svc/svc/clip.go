package svc

import (
	"clipstash/metrics"
	"clipstash/pkg/domain"
	"clipstash/svc/auth"
	"clipstash/svc/cache"
	"clipstash/svc/db"
	"clipstash/svc/util"
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const drainTimeout = 10 * time.Second

type Options struct {
	SweepInterval time.Duration
	Hasher        *auth.Hasher
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Store is the two-tier clip store. The fast tier is always written and
// consulted first; the durable tier is a best-effort mirror and refill
// source whose failures never reach the caller.
type Store struct {
	fast    *cache.LRU
	durable db.Durable
	hasher  *auth.Hasher
	locks   *keyLocks
	now     func() time.Time

	mu        sync.RWMutex
	closed    bool
	opWg      sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
	sweepQuit chan struct{}
	sweepDone chan struct{}
}

func NewStore(fast *cache.LRU, durable db.Durable, opts Options) *Store {
	if fast == nil {
		panic("clip store: nil fast tier")
	}
	if durable == nil {
		durable = db.Disabled{}
	}
	if opts.Hasher == nil {
		opts.Hasher = auth.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	s := &Store{
		fast:      fast,
		durable:   durable,
		hasher:    opts.Hasher,
		locks:     newKeyLocks(),
		now:       opts.Clock,
		sweepQuit: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go s.runSweeper(opts.SweepInterval)
	return s
}
func (s *Store) begin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	s.opWg.Add(1)
	return true
}

// Create stores a new clip and returns it with its token in ID. Input is
// trusted; bounds are checked by the caller.
func (s *Store) Create(ctx context.Context, p domain.CreateParams) (*domain.Clip, error) {
	if !s.begin() {
		return nil, domain.ErrServiceClosed
	}
	defer s.opWg.Done()
	token, err := util.NewToken()
	if err != nil {
		return nil, errors.Wrap(err, "gen token")
	}
	minutes := p.ExpirationMinutes
	if minutes <= 0 {
		minutes = domain.DefaultExpirationMinutes
	}
	contentType := p.ContentType
	if contentType == "" {
		contentType = domain.ContentText
	}
	now := s.now()
	clip := &domain.Clip{
		ID:               token,
		Content:          p.Content,
		ContentType:      contentType,
		CreatedAt:        now,
		ExpiresAt:        now.Add(time.Duration(minutes) * time.Minute),
		MaxAccess:        p.MaxAccess,
		BurnAfterReading: p.BurnAfterReading,
	}
	if p.Password != "" {
		clip.PasswordHash = s.hasher.Digest(p.Password)
	}
	s.fast.Set(clip)
	s.durablePut(ctx, clip)
	metrics.ClipsCreated.Inc()
	util.Debug().
		Str("token", util.RedactToken(token)).
		Int("minutes", minutes).
		Bool("password", clip.Protected()).
		Bool("burn", clip.BurnAfterReading).
		Int("max_access", clip.MaxAccess).
		Msg("clip created")
	return clip, nil
}

// Read returns the clip after enforcing expiry, password and access limits.
// Every rejection is domain.ErrClipNotFound. On success the returned clip
// carries the incremented access count, even when the read burned it.
func (s *Store) Read(ctx context.Context, token, password string) (*domain.Clip, error) {
	if !s.begin() {
		return nil, domain.ErrServiceClosed
	}
	defer s.opWg.Done()
	unlock := s.locks.Lock(token)
	defer unlock()

	clip := s.lookup(ctx, token)
	if clip == nil {
		metrics.ClipsRejected.WithLabelValues("missing").Inc()
		return nil, domain.ErrClipNotFound
	}
	if clip.Expired(s.now()) {
		s.remove(ctx, token, "expired")
		metrics.ClipsRejected.WithLabelValues("expired").Inc()
		return nil, domain.ErrClipNotFound
	}
	if clip.Protected() && !s.hasher.Verify(password, clip.PasswordHash) {
		metrics.ClipsRejected.WithLabelValues("password").Inc()
		util.Debug().Str("token", util.RedactToken(token)).Msg("password mismatch")
		return nil, domain.ErrClipNotFound
	}
	if clip.AccessExhausted() {
		s.remove(ctx, token, "max_access")
		metrics.ClipsRejected.WithLabelValues("max_access").Inc()
		return nil, domain.ErrClipNotFound
	}

	clip.AccessCount++
	s.fast.Set(clip)
	s.durablePut(ctx, clip)
	if clip.BurnAfterReading {
		s.remove(ctx, token, "burn")
	}
	metrics.ClipsRead.Inc()
	return clip, nil
}

// Peek returns metadata without counting an access or checking the
// password. Expired clips are still removed.
func (s *Store) Peek(ctx context.Context, token string) (*domain.ClipInfo, error) {
	if !s.begin() {
		return nil, domain.ErrServiceClosed
	}
	defer s.opWg.Done()
	unlock := s.locks.Lock(token)
	defer unlock()

	clip := s.lookup(ctx, token)
	if clip == nil {
		return nil, domain.ErrClipNotFound
	}
	if clip.Expired(s.now()) {
		s.remove(ctx, token, "expired")
		return nil, domain.ErrClipNotFound
	}
	return clip.Info(), nil
}

// Delete removes the clip from both tiers and reports whether either had it.
func (s *Store) Delete(ctx context.Context, token string) (bool, error) {
	if !s.begin() {
		return false, domain.ErrServiceClosed
	}
	defer s.opWg.Done()
	unlock := s.locks.Lock(token)
	defer unlock()

	existed := s.remove(ctx, token, "manual")
	return existed, nil
}

// Stats reads a snapshot of the fast tier and a best-effort durable key
// count. It never deletes anything.
func (s *Store) Stats(ctx context.Context) (*domain.Stats, error) {
	if !s.begin() {
		return nil, domain.ErrServiceClosed
	}
	defer s.opWg.Done()

	var durableCount int
	g, gctx := errgroup.WithContext(ctx)
	if s.durable.Connected() {
		g.Go(func() error {
			n, err := s.durable.Count(gctx)
			if err != nil {
				s.durableFault("count", "", err)
				return nil
			}
			durableCount = n
			return nil
		})
	}

	now := s.now()
	snapshot := s.fast.Snapshot()
	st := &domain.Stats{
		TotalClips:    len(snapshot),
		FastTierCount: len(snapshot),
	}
	for i := range snapshot {
		c := &snapshot[i]
		if c.Expired(now) {
			st.ExpiredClips++
		} else {
			st.ActiveClips++
		}
		st.TotalAccesses += c.AccessCount
		if st.OldestClip == nil || c.CreatedAt.Before(*st.OldestClip) {
			created := c.CreatedAt
			st.OldestClip = &created
		}
	}
	_ = g.Wait()
	st.DurableTierCount = durableCount
	st.DurableConnected = s.durable.Connected()
	return st, nil
}

// Close stops the sweeper, waits for in-flight operations and closes the
// durable tier. Later calls return the first result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.sweepQuit)
		<-s.sweepDone

		done := make(chan struct{})
		go func() {
			s.opWg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(drainTimeout):
			util.Warn().Msg("clip operations did not drain in time")
		}
		s.closeErr = s.durable.Close()
		util.Debug().Msg("clip store closed")
	})
	return s.closeErr
}

// lookup consults the fast tier, then the durable tier. A durable hit is
// written back into the fast tier before any policy is applied.
func (s *Store) lookup(ctx context.Context, token string) *domain.Clip {
	if clip, ok := s.fast.Get(token); ok {
		metrics.FastTierHits.Inc()
		return clip
	}
	metrics.FastTierMisses.Inc()
	if !s.durable.Connected() {
		return nil
	}
	clip, err := s.durable.Get(ctx, token)
	if err != nil {
		s.durableFault("get", token, err)
		return nil
	}
	if clip == nil {
		return nil
	}
	if clip.ID != token {
		util.Warn().Str("token", util.RedactToken(token)).Msg("durable record id mismatch, ignoring")
		return nil
	}
	s.fast.Set(clip)
	metrics.DurableRestores.Inc()
	util.Debug().Str("token", util.RedactToken(token)).Msg("clip restored from durable tier")
	return clip
}

// remove deletes token from both tiers. Deletion side effects must not be
// lost to a caller that disconnects, so the durable call ignores ctx
// cancellation.
func (s *Store) remove(ctx context.Context, token, reason string) bool {
	inFast := s.fast.Delete(token)
	inDurable := s.durableDelete(context.WithoutCancel(ctx), token)
	existed := inFast || inDurable
	if existed {
		metrics.ClipsDeleted.WithLabelValues(reason).Inc()
		util.Debug().Str("token", util.RedactToken(token)).Str("reason", reason).Msg("clip deleted")
	}
	return existed
}
func (s *Store) durablePut(ctx context.Context, clip *domain.Clip) {
	if !s.durable.Connected() {
		return
	}
	ttl := clip.Remaining(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.durable.Put(ctx, clip, ttl); err != nil {
		s.durableFault("put", clip.ID, err)
	}
}
func (s *Store) durableDelete(ctx context.Context, token string) bool {
	if !s.durable.Connected() {
		return false
	}
	ok, err := s.durable.Delete(ctx, token)
	if err != nil {
		s.durableFault("delete", token, err)
		return false
	}
	return ok
}
func (s *Store) durableFault(op, token string, err error) {
	metrics.DurableErrors.WithLabelValues(op).Inc()
	ev := util.Warn().Err(err).Str("op", op).Str("tier", s.durable.Name())
	if token != "" {
		ev = ev.Str("token", util.RedactToken(token))
	}
	ev.Msg("durable tier unavailable, continuing with fast tier")
}
