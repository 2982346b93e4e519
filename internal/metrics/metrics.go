// Package metrics exposes the mint's Prometheus gauges: total ecash
// issued and redeemed per keyset, refreshed on a ticker from the
// store's ledger totals. These are observability on top of spec.md
// §8's conservation invariant (issued - redeemed tracks outstanding
// circulating ecash), not a substitute for it — the invariant itself
// is enforced by internal/ledger and internal/swap at transaction
// time, not by this package.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/obs"
	"github.com/paynet-mint/node/internal/storage"
)

// Gauges holds the per-keyset issued/redeemed vectors. Register them
// with a prometheus.Registerer once at startup; Refresh keeps their
// values current.
type Gauges struct {
	store storage.Store
	log   obs.Logger

	issued   *prometheus.GaugeVec
	redeemed *prometheus.GaugeVec
}

// New builds the gauge vectors, unregistered. Call Register before the
// first Refresh so values aren't lost to an unregistered collector.
func New(store storage.Store, log obs.Logger) *Gauges {
	return &Gauges{
		store: store,
		log:   log,
		issued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mint",
			Name:      "ecash_issued_total",
			Help:      "Total mint-unit value of blind signatures issued, per keyset.",
		}, []string{"keyset_id"}),
		redeemed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mint",
			Name:      "ecash_redeemed_total",
			Help:      "Total mint-unit value of proofs spent, per keyset.",
		}, []string{"keyset_id"}),
	}
}

// Register adds both gauge vectors to reg.
func (g *Gauges) Register(reg prometheus.Registerer) error {
	if err := reg.Register(g.issued); err != nil {
		return err
	}
	return reg.Register(g.redeemed)
}

// Refresh re-reads GetEcashIssued/GetEcashRedeemed and sets every
// label's gauge value to match — a plain snapshot, not a delta, so a
// missed tick self-heals on the next one.
func (g *Gauges) Refresh(ctx context.Context) error {
	issued, err := g.store.GetEcashIssued(ctx)
	if err != nil {
		return err
	}
	redeemed, err := g.store.GetEcashRedeemed(ctx)
	if err != nil {
		return err
	}

	for id, total := range issued {
		g.issued.WithLabelValues(keysetLabel(id)).Set(float64(total))
	}
	for id, total := range redeemed {
		g.redeemed.WithLabelValues(keysetLabel(id)).Set(float64(total))
	}
	return nil
}

// Run refreshes on every tick of interval until ctx is done, logging
// (not failing) a refresh error so a transient store hiccup doesn't
// bring the whole process down over a metrics side-channel.
func (g *Gauges) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.Refresh(ctx); err != nil {
				g.log.Errorf("metrics refresh failed: %v", err)
			}
		}
	}
}

func keysetLabel(id cashu.KeysetId) string { return string(id) }
