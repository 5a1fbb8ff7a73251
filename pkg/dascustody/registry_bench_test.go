package dascustody_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/agenthands/dascustody/internal/testkit"
	"github.com/agenthands/dascustody/pkg/dascustody"
)

func BenchmarkEngineAssignment(b *testing.B) {
	for _, count := range []uint64{4, 8, 64, 128} {
		b.Run(fmt.Sprintf("Count_%d", count), func(b *testing.B) {
			engine, err := dascustody.New(dascustody.DefaultProfile())
			if err != nil {
				b.Fatal(err)
			}
			id := testkit.RandomNodeID(testkit.RNG(42))

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := engine.Assignment(id, dascustody.WithCount(count)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkRegistryTrackLookup(b *testing.B) {
	for _, name := range []string{"none", "zstd"} {
		b.Run(name, func(b *testing.B) {
			cfg := dascustody.Config{Dir: b.TempDir(), Profile: dascustody.DefaultProfile()}
			cfg.Transform.Name = name
			reg, err := dascustody.OpenRegistry(context.Background(), cfg)
			if err != nil {
				b.Fatal(err)
			}
			defer reg.Close()

			ctx := context.Background()
			rng := testkit.RNG(7)
			ids := make([]dascustody.NodeID, 256)
			for i := range ids {
				ids[i] = testkit.RandomNodeID(rng)
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				id := ids[i%len(ids)]
				if _, err := reg.TrackNode(ctx, id, dascustody.TrackMeta{}); err != nil {
					b.Fatal(err)
				}
				if _, err := reg.Lookup(ctx, id); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
