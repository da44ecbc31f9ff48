package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/campus-loyalty/api/responses"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
	pkgredis "github.com/angelmondragon/campus-loyalty/pkg/redis"
)

// WindowCounter is a fixed-window hit counter, normally Redis.
type WindowCounter interface {
	Hit(ctx context.Context, scope string, limit int64, window time.Duration) (pkgredis.Window, error)
}

// maxLimitedBody bounds how much of an auth body is buffered to find the utorid.
const maxLimitedBody = 64 << 10

// AuthRateLimitPolicy throttles one public auth surface by client IP and by
// the utorid named in the request body.
type AuthRateLimitPolicy struct {
	name        string
	window      time.Duration
	ipLimit     int
	utoridLimit int
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, utoridLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{name: name, window: window, ipLimit: ipLimit, utoridLimit: utoridLimit}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.utoridLimit > 0)
}

// limitCheck is one counter a request is charged against.
type limitCheck struct {
	dimension string
	scope     string
	limit     int
	logValue  string
}

// AuthRateLimit charges each request against its IP counter, then against a
// counter keyed by the sha256 of the lowercased utorid. The body is restored
// for the next handler. A Redis failure answers 503 rather than letting
// traffic through unthrottled.
func AuthRateLimit(policy AuthRateLimitPolicy, store WindowCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			checks, err := policy.checksFor(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
				return
			}
			for _, c := range checks {
				win, err := store.Hit(ctx, c.scope, int64(c.limit), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !win.Allowed {
					policy.reject(ctx, logg, w, c, win)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (p AuthRateLimitPolicy) checksFor(r *http.Request) ([]limitCheck, error) {
	var checks []limitCheck
	if ip := clientIP(r); p.ipLimit > 0 && ip != "" {
		checks = append(checks, limitCheck{dimension: "ip", scope: "ip:" + p.name + ":" + ip, limit: p.ipLimit, logValue: ip})
	}
	if p.utoridLimit == 0 || r.Body == nil {
		return checks, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxLimitedBody))
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	var peek struct {
		Utorid string `json:"utorid"`
	}
	if json.Unmarshal(body, &peek) == nil {
		if utorid := strings.ToLower(strings.TrimSpace(peek.Utorid)); utorid != "" {
			sum := sha256.Sum256([]byte(utorid))
			hash := hex.EncodeToString(sum[:])
			checks = append(checks, limitCheck{dimension: "utorid", scope: "utorid:" + p.name + ":" + hash, limit: p.utoridLimit, logValue: hash})
		}
	}
	return checks, nil
}

func (p AuthRateLimitPolicy) reject(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, c limitCheck, win pkgredis.Window) {
	retry := win.RetryAfter
	if retry <= 0 {
		retry = p.window
	}
	if logg != nil {
		key := "ip"
		if c.dimension == "utorid" {
			key = "utorid_hash"
		}
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":      p.name,
			"scope":       c.dimension,
			key:           c.logValue,
			"attempts":    win.Count,
			"limit":       c.limit,
			"retry_after": retry.Seconds(),
		}), "auth.rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

// clientIP trusts the first X-Forwarded-For hop, then X-Real-IP; the API only
// runs behind the campus load balancer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
