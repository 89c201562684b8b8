package lim

import (
	"clipstash/svc/util"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultCapacity = 10000
	sweepEvery      = 5 * time.Minute
	idleAfter       = 30 * time.Minute
	maxForwardHops  = 32
)

// Limiter keeps one token bucket per client address and endpoint. RPM is the
// steady refill rate and Burst the bucket size.
type Limiter struct {
	perSecond rate.Limit
	rpm       int
	burst     int
	proxies   []netip.Prefix
	capacity  int
	now       func() time.Time

	mu      sync.Mutex
	buckets map[bucketKey]*bucket

	quit     chan struct{}
	stopOnce sync.Once
}

type bucketKey struct {
	client   string
	endpoint string
}

type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// Result describes one charge against a bucket. Client is the address the
// charge was made for.
type Result struct {
	Client    string
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// New starts a limiter. Entries in trustedProxies are single addresses or
// CIDR ranges; malformed entries are ignored since cfg.Validate rejects them.
func New(rpm, burst int, trustedProxies []string) *Limiter {
	if rpm <= 0 {
		rpm = 60
	}
	if burst <= 0 {
		burst = 1
	}
	l := &Limiter{
		perSecond: rate.Limit(float64(rpm) / 60),
		rpm:       rpm,
		burst:     burst,
		proxies:   parseProxies(trustedProxies),
		capacity:  defaultCapacity,
		now:       time.Now,
		buckets:   make(map[bucketKey]*bucket),
		quit:      make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Limiter) run() {
	t := time.NewTicker(sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-l.quit:
			return
		case <-t.C:
			l.mu.Lock()
			n := l.dropIdleLocked(l.now())
			left := len(l.buckets)
			l.mu.Unlock()
			if n > 0 {
				util.Debug().Int("evicted", n).Int("remaining", left).Msg("rate limiter sweep")
			}
		}
	}
}

// dropIdleLocked removes buckets unused for idleAfter. l.mu must be held.
func (l *Limiter) dropIdleLocked(now time.Time) int {
	n := 0
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > idleAfter {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.quit) })
}

// Check charges one token to the request's client on endpoint.
func (l *Limiter) Check(r *http.Request, endpoint string) *Result {
	return l.Allow(l.ClientIP(r), endpoint)
}

// Allow charges one token to client on endpoint. A new client arriving while
// the table is full triggers an idle sweep; if nothing is idle it is refused.
func (l *Limiter) Allow(client, endpoint string) *Result {
	now := l.now()
	res := &Result{Client: client, Limit: l.rpm, Reset: now.Add(time.Minute)}

	l.mu.Lock()
	defer l.mu.Unlock()
	key := bucketKey{client: client, endpoint: endpoint}
	b := l.buckets[key]
	if b == nil {
		if len(l.buckets) >= l.capacity && l.dropIdleLocked(now) == 0 {
			util.Warn().Int("buckets", len(l.buckets)).Str("ip", util.RedactIP(client)).
				Msg("rate limiter full, refusing new client")
			return res
		}
		b = &bucket{tokens: rate.NewLimiter(l.perSecond, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	if !b.tokens.AllowN(now, 1) {
		return res
	}
	res.Allowed = true
	res.Remaining = max(int(b.tokens.TokensAt(now)), 0)
	return res
}

// ClientIP returns the peer address unless the peer is a trusted proxy, in
// which case X-Forwarded-For is read from the nearest hop outward and the
// first untrusted address wins. Unparseable hops are skipped.
func (l *Limiter) ClientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	if !l.trusted(peer) {
		return peer
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	if len(hops) > maxForwardHops {
		util.Warn().Int("hops", len(hops)).Msg("X-Forwarded-For too long, reading nearest hops only")
		hops = hops[len(hops)-maxForwardHops:]
	}
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		addr, err := netip.ParseAddr(hop)
		if err != nil {
			util.Debug().Str("hop", hop).Msg("skipping malformed X-Forwarded-For entry")
			continue
		}
		if !l.trustedAddr(addr) {
			return addr.String()
		}
	}
	return peer
}

func (l *Limiter) trusted(ip string) bool {
	if len(l.proxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	return err == nil && l.trustedAddr(addr)
}

func (l *Limiter) trustedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range l.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parseProxies(entries []string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(e, "/") {
			if p, err := netip.ParsePrefix(e); err == nil {
				out = append(out, p.Masked())
			}
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			a = a.Unmap()
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return out
}
