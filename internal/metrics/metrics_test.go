package metrics

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/obs"
	"github.com/paynet-mint/node/internal/storage"
	"github.com/paynet-mint/node/internal/storage/memstore"
)

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels prometheus.Labels) float64 {
	t.Helper()
	metric := &dto.Metric{}
	g, err := vec.GetMetricWith(labels)
	if err != nil {
		t.Fatalf("GetMetricWith: %v", err)
	}
	if err := g.Write(metric); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return metric.GetGauge().GetValue()
}

func TestRefreshSetsIssuedAndRedeemedGauges(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	log := obs.Wrap(obs.NewLogger(io.Discard, slog.LevelError))

	ksId := cashu.KeysetId("00aabbccddeeff00")
	if err := store.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.InsertBlindSignature(ctx, "b1", cashu.BlindedSignature{Id: ksId, Amount: 8, C_: "c1"}); err != nil {
			return err
		}
		_, err := tx.InsertSpentProof(ctx, "y1", 2, ksId, "secret-1", "c1", cashu.Spent)
		return err
	}); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	g := New(store, log)
	reg := prometheus.NewRegistry()
	if err := g.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := g.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if got := gaugeValue(t, g.issued, prometheus.Labels{"keyset_id": string(ksId)}); got != 8 {
		t.Fatalf("issued gauge = %v, want 8", got)
	}
	if got := gaugeValue(t, g.redeemed, prometheus.Labels{"keyset_id": string(ksId)}); got != 2 {
		t.Fatalf("redeemed gauge = %v, want 2", got)
	}
}
