package hive

import (
	"context"
	"testing"
)

func greetingRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry([]ChannelSpec{
 NewChannelSpec[string]("greeting", ScopeGlobal, LastWriteWins(), UpdateSingle, PersistenceUntracked, func() string { return "" }, nil),
	})
	if err != nil {
 t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestRuntimeHelloWorld(t *testing.T) {
	r := greetingRegistry(t)
	b := NewBuilder(r)
	b.StartAt("greet")
	b.WithOutput(ChannelsProjection("greeting"))
	b.AddNode("greet", func(ctx context.Context, view StoreView, rc RunContext, emit TaskEmitter, env Environment) (NodeOutput, error) {
 return NodeOutput{
 Writes: []Write{{Channel: "greeting", Value: "hello, world"}},
 Next: End(),
 }, nil
	}, nil, Always())

	g, err := b.Compile()
	if err != nil {
 t.Fatalf("compile: %v", err)
	}

	rt := NewRuntime(g, Environment{}, nil, nil)
	h := rt.Run(context.Background(), ThreadID("t1"), Input{}, NewRunOptions())
	outcome, err := h.Wait()
	if err != nil {
 t.Fatalf("run failed: %v", err)
	}
	if outcome.Kind != OutcomeFinished {
 t.Fatalf("expected OutcomeFinished, got %v", outcome.Kind)
	}
	if outcome.Output == nil || len(outcome.Output.Channels) != 1 {
 t.Fatalf("expected one projected channel, got %+v", outcome.Output)
	}
	if outcome.Output.Channels[0].(string) != "hello, world" {
 t.Fatalf("expected greeting value, got %v", outcome.Output.Channels[0])
	}
}

func TestRuntimeOutOfStepsWhenGraphNeverEnds(t *testing.T) {
	r := greetingRegistry(t)
	b := NewBuilder(r)
	b.StartAt("loop")
	b.AddNode("loop", func(ctx context.Context, view StoreView, rc RunContext, emit TaskEmitter, env Environment) (NodeOutput, error) {
 return NodeOutput{
 Writes: []Write{{Channel: "greeting", Value: "again"}},
 Spawn: []TaskSeed{{NodeID: "loop", Overlay: NewOverlay(view.registry)}},
 Next: End(),
 }, nil
	}, nil, Always())

	g, err := b.Compile()
	if err != nil {
 t.Fatalf("compile: %v", err)
	}

	rt := NewRuntime(g, Environment{}, nil, nil)
	opts := NewRunOptions(WithMaxSteps(3))
	h := rt.Run(context.Background(), ThreadID("t2"), Input{}, opts)
	outcome, err := h.Wait()
	if err != nil {
 t.Fatalf("run failed: %v", err)
	}
	if outcome.Kind != OutcomeOutOfSteps {
 t.Fatalf("expected OutcomeOutOfSteps, got %v", outcome.Kind)
	}
}
