package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/duka-backend/api/responses"
	"github.com/angelmondragon/duka-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
	"github.com/angelmondragon/duka-backend/pkg/logger"
)

type counterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// CheckoutRateLimit caps checkout attempts per client IP and per customer
// phone within a fixed window. Phones are hashed before they reach Redis.
func CheckoutRateLimit(cfg config.CheckoutConfig, store counterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || cfg.RateLimitWindow <= 0 || (cfg.RateLimitIP <= 0 && cfg.RateLimitPhone <= 0) {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			type bucket struct {
				scope string
				value string
				limit int
			}
			buckets := []bucket{{scope: "checkout:ip", value: clientIP(r), limit: cfg.RateLimitIP}}

			if cfg.RateLimitPhone > 0 {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				if phone := customerPhone(body); phone != "" {
					buckets = append(buckets, bucket{scope: "checkout:phone", value: hashValue(phone), limit: cfg.RateLimitPhone})
				}
			}

			for _, b := range buckets {
				if b.limit <= 0 || b.value == "" {
					continue
				}
				count, err := store.IncrWithTTL(ctx, store.RateLimitKey(b.scope+":"+b.value), cfg.RateLimitWindow)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count > int64(b.limit) {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"scope":    b.scope,
							"attempts": count,
							"limit":    b.limit,
						}), "checkout.rate_limited")
					}
					w.Header().Set("Retry-After", strconv.Itoa(int(cfg.RateLimitWindow.Seconds())))
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many checkout attempts"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func customerPhone(body []byte) string {
	var payload struct {
		Customer struct {
			Phone string `json:"phone"`
		} `json:"customer"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	var digits strings.Builder
	for _, c := range payload.Customer.Phone {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	return digits.String()
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
