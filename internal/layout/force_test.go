package layout

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"

	"meshmap/internal/domain"
)

func TestForceSolve(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		force := NewForce(ForceParams{})
		positions, err := force.Solve(context.Background(), layoutInput(nil, nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(positions) != 0 {
			t.Errorf("expected no positions, got %d", len(positions))
		}
	})

	t.Run("places every node finitely", func(t *testing.T) {
		ids := make([]string, 20)
		for i := range ids {
			ids[i] = fmt.Sprintf("n%02d", i)
		}
		pairs := [][2]string{{"n00", "n01"}, {"n01", "n02"}, {"n00", "n10"}, {"n05", "n15"}}
		force := NewForce(ForceParams{})
		positions, err := force.Solve(context.Background(), layoutInput(ids, pairs))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, id := range ids {
			pos, ok := positions[id]
			if !ok {
				t.Errorf("node %s has no position", id)
				continue
			}
			if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) {
				t.Errorf("node %s has degenerate position %+v", id, pos)
			}
		}
	})

	t.Run("refuses oversized graphs", func(t *testing.T) {
		ids := make([]string, 6)
		for i := range ids {
			ids[i] = fmt.Sprintf("n%d", i)
		}
		force := NewForce(ForceParams{MaxNodes: 5})
		_, err := force.Solve(context.Background(), layoutInput(ids, nil))
		if err == nil {
			t.Fatal("expected an error above the node limit")
		}
		if !strings.Contains(err.Error(), "exceeds simulation limit") {
			t.Errorf("expected a limit error, got %q", err)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		ids := []string{"a", "b", "c", "d", "e", "f"}
		pairs := [][2]string{{"a", "b"}, {"b", "c"}, {"d", "e"}}
		in := layoutInput(ids, pairs)
		first, err := NewForce(ForceParams{}).Solve(context.Background(), in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := NewForce(ForceParams{}).Solve(context.Background(), in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Error("expected identical layouts from identical input")
		}
	})

	t.Run("cancelled context stops the simulation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ids := []string{"a", "b", "c"}
		_, err := NewForce(ForceParams{}).Solve(ctx, layoutInput(ids, nil))
		if err == nil {
			t.Fatal("expected a context error")
		}
	})

	t.Run("linked pair ends closer than an unlinked one", func(t *testing.T) {
		ids := []string{"a", "b", "c", "d"}
		in := layoutInput(ids, [][2]string{{"a", "b"}})
		positions, err := NewForce(ForceParams{}).Solve(context.Background(), in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		linked := pointDist(positions["a"], positions["b"])
		unlinked := pointDist(positions["c"], positions["d"])
		if linked >= unlinked {
			t.Errorf("expected spring to pull the linked pair together: linked %f, unlinked %f", linked, unlinked)
		}
	})

	t.Run("coincident duplicate edges collapse to one link", func(t *testing.T) {
		ids := []string{"a", "b"}
		oneWay := layoutInput(ids, [][2]string{{"a", "b"}})
		bothWays := layoutInput(ids, [][2]string{{"a", "b"}, {"b", "a"}})
		first, err := NewForce(ForceParams{}).Solve(context.Background(), oneWay)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := NewForce(ForceParams{}).Solve(context.Background(), bothWays)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Error("expected the reverse edge to add no extra spring")
		}
	})
}

func pointDist(a, b domain.Position) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}
