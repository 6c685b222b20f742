package graph

import (
	"errors"
	"slices"
	"testing"
)

func build(ids ...ID) *Graph {
	g := New()
	for _, id := range ids {
		g.AddNode(id)
	}
	return g
}

func TestFeedsTransitive(t *testing.T) {
	t.Parallel()

	g := build(1, 2, 3, 4)
	g.SetEdges(1, []Edge{{From: 1, To: 2}})
	g.SetEdges(2, []Edge{{From: 2, To: 3, ViaSendsOnly: true}})

	tests := []struct {
		a, b      ID
		feeds     bool
		sendsOnly bool
	}{
		{1, 2, true, false},
		{2, 3, true, true},
		{1, 3, true, true},
		{3, 1, false, false},
		{1, 4, false, false},
		{1, 1, false, false},
	}
	for _, tc := range tests {
		f, s := g.Feeds(tc.a, tc.b)
		if f != tc.feeds || s != tc.sendsOnly {
			t.Errorf("Feeds(%d, %d) = %v, %v; want %v, %v", tc.a, tc.b, f, s, tc.feeds, tc.sendsOnly)
		}
	}
}

func TestPortPathWinsOverSendPath(t *testing.T) {
	t.Parallel()

	g := build(1, 2, 3)
	g.SetEdges(1, []Edge{{From: 1, To: 2, ViaSendsOnly: true}, {From: 1, To: 3}})
	g.SetEdges(3, []Edge{{From: 3, To: 2}})

	if f, s := g.Feeds(1, 2); !f || s {
		t.Fatalf("Feeds(1, 2) = %v, %v; the port path through 3 must count", f, s)
	}
	if f, s := g.DirectFeeds(1, 2); !f || !s {
		t.Fatalf("DirectFeeds(1, 2) = %v, %v", f, s)
	}

	g.SetEdges(1, []Edge{{From: 1, To: 2, ViaSendsOnly: true}, {From: 1, To: 2}})
	if e := g.Edges(1); len(e) != 1 || e[0].ViaSendsOnly {
		t.Fatalf("merged edges = %+v", e)
	}
}

func TestCacheInvalidation(t *testing.T) {
	t.Parallel()

	g := build(1, 2, 3)
	g.SetEdges(1, []Edge{{From: 1, To: 2}})
	if f, _ := g.Feeds(1, 3); f {
		t.Fatal("1 must not feed 3 yet")
	}

	g.SetEdges(2, []Edge{{From: 2, To: 3}})
	if f, _ := g.Feeds(1, 3); !f {
		t.Fatal("new edge 2->3 not seen by cached row of 1")
	}

	g.RemoveNode(2)
	if f, _ := g.Feeds(1, 3); f {
		t.Fatal("removed node still carries signal")
	}
	if g.Has(2) || len(g.Edges(1)) != 0 {
		t.Fatal("edges to removed node survived")
	}
}

func TestFedByAndDownstream(t *testing.T) {
	t.Parallel()

	g := build(1, 2, 3, 4)
	g.SetEdges(3, []Edge{{From: 3, To: 4}})
	g.SetEdges(1, []Edge{{From: 1, To: 3}})
	g.SetEdges(2, []Edge{{From: 2, To: 3, ViaSendsOnly: true}})

	if got := g.FedBy(4); !slices.Equal(got, []ID{1, 2, 3}) {
		t.Fatalf("FedBy(4) = %v", got)
	}
	if got := g.Downstream(1); !slices.Equal(got, []ID{3, 4}) {
		t.Fatalf("Downstream(1) = %v", got)
	}

	rel := g.Relation()
	if len(rel) != 5 {
		t.Fatalf("relation has %d pairs: %v", len(rel), rel)
	}
	if !rel[Pair{2, 4}] || rel[Pair{1, 4}] {
		t.Fatalf("relation send flags wrong: %v", rel)
	}
}

func TestOrder(t *testing.T) {
	t.Parallel()

	g := build(5, 1, 3, 2)
	g.SetEdges(5, []Edge{{From: 5, To: 2}})
	g.SetEdges(1, []Edge{{From: 1, To: 2}})
	g.SetEdges(2, []Edge{{From: 2, To: 3}})

	order, err := g.Order()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(order, []ID{1, 5, 2, 3}) {
		t.Fatalf("order = %v", order)
	}
}

func TestOrderReportsCycle(t *testing.T) {
	t.Parallel()

	g := build(1, 2, 3)
	g.SetEdges(2, []Edge{{From: 2, To: 3}})
	g.SetEdges(3, []Edge{{From: 3, To: 2, ViaSendsOnly: true}})

	order, err := g.Order()
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
	if !slices.Equal(order, []ID{1, 2, 3}) {
		t.Fatalf("order = %v", order)
	}
	if f, _ := g.Feeds(2, 2); f {
		t.Fatal("a route never feeds itself")
	}
}
