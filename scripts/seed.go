// Seed script for writing a demo knowledge base to the configured snapshot backend.
// Run with: go run ./scripts/seed.go
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/Harshitk-cp/atomspace/internal/config"
	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/Harshitk-cp/atomspace/internal/store"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	ctx := context.Background()

	rules, err := config.LoadRules(config.RulesFile())
	if err != nil {
		log.Fatalf("Failed to load rules: %v", err)
	}
	space := store.NewAtomSpace(domain.DefaultTypeRegistry(), zap.NewNop(), store.WithAlgebra(rules.Algebra()))

	concepts := map[string]domain.ID{}
	concept := func(name string) domain.ID {
		if id, ok := concepts[name]; ok {
			return id
		}
		id := mustInsert(space, domain.NewNode(domain.ConceptNode, name))
		concepts[name] = id
		return id
	}

	// Taxonomy for inheritance deduction and induction.
	taxonomy := []struct {
		from, to string
		s, c     float64
	}{
		{"cat", "mammal", 0.95, 0.9},
		{"dog", "mammal", 0.95, 0.9},
		{"whale", "mammal", 0.9, 0.8},
		{"mammal", "animal", 0.98, 0.95},
		{"sparrow", "bird", 0.95, 0.9},
		{"penguin", "bird", 0.9, 0.85},
		{"bird", "animal", 0.98, 0.95},
		{"cat", "pet", 0.7, 0.6},
		{"dog", "pet", 0.8, 0.7},
	}
	for _, t := range taxonomy {
		mustInsert(space, domain.NewLink(domain.InheritanceLink, concept(t.from), concept(t.to)).WithTV(t.s, t.c))
		fmt.Printf("Created inheritance: %s -> %s (%.2f, %.2f)\n", t.from, t.to, t.s, t.c)
	}

	// Implications for modus ponens and abduction.
	rain := mustInsert(space, domain.NewNode(domain.ConceptNode, "rain").WithTV(0.8, 0.8))
	concepts["rain"] = rain
	implications := []struct {
		from, to string
		s, c     float64
	}{
		{"rain", "wet-grass", 0.9, 0.9},
		{"sprinkler", "wet-grass", 0.85, 0.8},
		{"wet-grass", "slippery", 0.7, 0.7},
	}
	for _, im := range implications {
		mustInsert(space, domain.NewLink(domain.ImplicationLink, concept(im.from), concept(im.to)).WithTV(im.s, im.c))
		fmt.Printf("Created implication: %s => %s (%.2f, %.2f)\n", im.from, im.to, im.s, im.c)
	}

	snapshotter, closeFn, err := store.OpenSnapshotter(ctx, config.Snapshot())
	if err != nil {
		log.Fatalf("Failed to open snapshot backend: %v", err)
	}
	defer closeFn()
	if snapshotter == nil {
		log.Fatalf("SNAPSHOT_BACKEND=none: nothing to seed into")
	}

	snap := space.Snapshot()
	if err := snapshotter.Save(ctx, snap); err != nil {
		log.Fatalf("Failed to save snapshot: %v", err)
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Printf("Saved %d atoms to the %s backend\n", len(snap.Atoms), config.SnapshotBackend())
	fmt.Println("\nTo reason over the demo data, use:")
	fmt.Println("atomspace chain")
	fmt.Println(`atomspace prove '{"subtype":"InheritanceLink","outgoing":[{"var":"X"},{"subtype":"ConceptNode","name":"animal"}]}'`)
}

func mustInsert(space *store.AtomSpace, a *domain.Atom) domain.ID {
	res, err := space.Insert(a)
	if err != nil {
		log.Fatalf("Failed to insert %s: %v", a, err)
	}
	return res.ID
}
