// Package counter keeps per-day business counters in Redis hashes.
package counter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	OrdersCreated   = "orders_created"
	OrdersPaid      = "orders_paid"
	OrdersFailed    = "orders_failed"
	CodesRedeemed   = "codes_redeemed"
	UsersDowngraded = "users_downgraded"
)

const (
	keyPrefix = "membership:counters:"
	keyTTL    = 90 * 24 * time.Hour
)

// Recorder is satisfied by *Counter and Nop.
type Recorder interface {
	Add(ctx context.Context, name string, delta int64)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Add(context.Context, string, int64) {}

// Counter writes one hash per UTC day, field = counter name.
type Counter struct {
	rdb redis.UniversalClient
	now func() time.Time
}

func New(rdb redis.UniversalClient) *Counter {
	return &Counter{rdb: rdb, now: func() time.Time { return time.Now().UTC() }}
}

func dayKey(t time.Time) string {
	return keyPrefix + t.UTC().Format("2006-01-02")
}

// Add increments a counter. Errors are logged, never returned, so a Redis
// outage cannot fail a payment.
func (c *Counter) Add(ctx context.Context, name string, delta int64) {
	if delta == 0 {
		return
	}
	key := dayKey(c.now())
	pipe := c.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key, name, delta)
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warnf("[Counter] failed to add %d to %s: %v", delta, name, err)
	}
}

// DailyStats is one day of counters.
type DailyStats struct {
	Date   string           `json:"date"`
	Values map[string]int64 `json:"values"`
}

// Last returns the most recent days (today included), oldest first.
func (c *Counter) Last(ctx context.Context, days int) ([]DailyStats, error) {
	if days <= 0 {
		days = 7
	}
	if days > 90 {
		days = 90
	}
	today := c.now()
	out := make([]DailyStats, 0, days)
	for i := days - 1; i >= 0; i-- {
		d := today.AddDate(0, 0, -i)
		raw, err := c.rdb.HGetAll(ctx, dayKey(d)).Result()
		if err != nil {
			return nil, fmt.Errorf("read counters for %s: %w", d.Format("2006-01-02"), err)
		}
		out = append(out, DailyStats{Date: d.Format("2006-01-02"), Values: parseValues(raw)})
	}
	return out, nil
}

func parseValues(raw map[string]string) map[string]int64 {
	names := make([]string, 0, len(raw))
	for k := range raw {
		names = append(names, k)
	}
	sort.Strings(names)

	values := make(map[string]int64, len(raw))
	for _, k := range names {
		n, err := strconv.ParseInt(raw[k], 10, 64)
		if err != nil {
			continue
		}
		values[k] = n
	}
	return values
}
