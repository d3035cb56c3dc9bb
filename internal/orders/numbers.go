package orders

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// counterStore is the shared sequence source order numbers draw from. The
// counter must be shared across instances so two API processes never mint
// the same number.
type counterStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	CounterKey(name string) string
}

// NumberGenerator mints human-facing order numbers: MO-YYYYMMDD-NNNN for
// master orders, with per-vendor suffixes derived from the master number.
type NumberGenerator struct {
	counters counterStore
	now      func() time.Time
}

func NewNumberGenerator(counters counterStore) *NumberGenerator {
	return &NumberGenerator{counters: counters, now: time.Now}
}

func (g *NumberGenerator) NextMasterNumber(ctx context.Context) (string, error) {
	day := g.now().UTC().Format("20060102")
	seq, err := g.counters.Incr(ctx, g.counters.CounterKey("orders:"+day))
	if err != nil {
		return "", fmt.Errorf("next order number: %w", err)
	}
	return fmt.Sprintf("MO-%s-%04d", day, seq), nil
}

// VendorOrderNumber derives the nth vendor order number from its master's.
func VendorOrderNumber(masterNumber string, seq int) string {
	return fmt.Sprintf("%s-%d", strings.Replace(masterNumber, "MO-", "VO-", 1), seq)
}
