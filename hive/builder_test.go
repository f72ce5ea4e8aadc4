package hive

import (
	"context"
	"testing"
)

func noopNode(ctx context.Context, view StoreView, rc RunContext, emit TaskEmitter, env Environment) (NodeOutput, error) {
	return NodeOutput{Next: End()}, nil
}

func TestCompileSimpleGraph(t *testing.T) {
	r := newTestRegistry(t)
	b := NewBuilder(r)
	b.StartAt("plan")
	b.AddNode("plan", noopNode, nil, Always())
	b.AddEdge("plan", "act")
	b.AddNode("act", noopNode, nil, Always())

	g, err := b.Compile()
	if err != nil {
 t.Fatalf("Compile: %v", err)
	}
	if g.SchemaVersion == "" || g.GraphVersion == "" {
 t.Fatalf("expected non-empty versions, got schema=%q graph=%q", g.SchemaVersion, g.GraphVersion)
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	build := func() (*CompiledGraph, error) {
 r := newTestRegistry(t)
 b := NewBuilder(r)
 b.StartAt("plan")
 b.AddNode("plan", noopNode, nil, Always())
 b.AddEdge("plan", "act")
 b.AddNode("act", noopNode, nil, Always())
 return b.Compile()
	}
	g1, err := build()
	if err != nil {
 t.Fatalf("build 1: %v", err)
	}
	g2, err := build()
	if err != nil {
 t.Fatalf("build 2: %v", err)
	}
	if g1.SchemaVersion != g2.SchemaVersion {
 t.Fatalf("expected identical schemaVersion across builds, got %q != %q", g1.SchemaVersion, g2.SchemaVersion)
	}
	if g1.GraphVersion != g2.GraphVersion {
 t.Fatalf("expected identical graphVersion across builds, got %q != %q", g1.GraphVersion, g2.GraphVersion)
	}
}

func TestCompileGraphVersionChangesWithTrigger(t *testing.T) {
	r := newTestRegistry(t)

	plain := NewBuilder(r)
	plain.StartAt("plan")
	plain.AddNode("plan", noopNode, nil, Always())
	gPlain, err := plain.Compile()
	if err != nil {
 t.Fatalf("compile plain: %v", err)
	}

	triggered := NewBuilder(r)
	triggered.StartAt("plan")
	triggered.AddNode("plan", noopNode, nil, AnyOf("counter"))
	gTriggered, err := triggered.Compile()
	if err != nil {
 t.Fatalf("compile triggered: %v", err)
	}

	if gPlain.GraphVersion == gTriggered.GraphVersion {
 t.Fatalf("expected runWhen to change graphVersion")
	}
}

func TestCompileRejectsDuplicateRouter(t *testing.T) {
	r := newTestRegistry(t)
	b := NewBuilder(r)
	b.StartAt("plan")
	b.AddNode("plan", noopNode, nil, Always())
	b.AddNode("act", noopNode, nil, Always())
	router := func(view StoreView) RouteNext { return End() }
	b.AddRouter("plan", router)
	b.AddRouter("plan", router)

	_, err := b.Compile()
	if err == nil {
 t.Fatalf("expected duplicate router registration to fail compilation")
	}
	herr, ok := err.(*Error)
	if !ok || herr.Kind != KindDuplicateRouter {
 t.Fatalf("expected KindDuplicateRouter, got %v", err)
	}
}

func TestCompileRejectsUnknownEdgeEndpoint(t *testing.T) {
	r := newTestRegistry(t)
	b := NewBuilder(r)
	b.StartAt("plan")
	b.AddNode("plan", noopNode, nil, Always())
	b.AddEdge("plan", "missing")

	_, err := b.Compile()
	if err == nil {
 t.Fatalf("expected unknown edge endpoint to fail compilation")
	}
}

func TestCompileRejectsEmptyStart(t *testing.T) {
	r := newTestRegistry(t)
	b := NewBuilder(r)
	b.AddNode("plan", noopNode, nil, Always())
	if _, err := b.Compile(); err == nil {
 t.Fatalf("expected missing start node to fail compilation")
	}
}
