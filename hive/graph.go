package hive

import "context"

// Provenance records the origin of a task seed: graph (edges/routers) or
// spawn (fan-out), per GLOSSARY.
type Provenance int

const (
	ProvenanceGraph Provenance = iota
	ProvenanceSpawn
)

// TaskSeed names a node and the task-local overlay it should run with.
type TaskSeed struct {
	NodeID NodeID
	Overlay *Overlay
}

// FrontierTask is a TaskSeed paired with its provenance and whether it was
// produced by a join's rising edge (and therefore bypasses trigger
// filtering).
type FrontierTask struct {
	Seed TaskSeed
	Provenance Provenance
	IsJoinSeed bool
}

// Task is a scheduled, fingerprinted unit of work for one step.
type Task struct {
	TaskID TaskID
	Ordinal uint32
	Provenance Provenance
	NodeID NodeID
	Overlay *Overlay
	Fingerprint [32]byte
}

// RouteKind discriminates a node's or router's routing decision.
type RouteKind int

const (
	RouteUseGraphEdges RouteKind = iota
	RouteEnd
	RouteNodes
)

// RouteNext is the routing decision returned by a node or router.
type RouteNext struct {
	Kind RouteKind
	Nodes []NodeID
}

// End routes to no further node.
func End() RouteNext { return RouteNext{Kind: RouteEnd} }

// UseGraphEdges defers routing to static edges / the node's router.
func UseGraphEdges() RouteNext { return RouteNext{Kind: RouteUseGraphEdges} }

// Nodes routes explicitly to the given nodes, skipping static edges.
func Nodes(ids ...NodeID) RouteNext {
	if len(ids) == 0 {
		return End()
	}
	return RouteNext{Kind: RouteNodes, Nodes: ids}
}

// InterruptRequest is returned by a node to request a pending interruption.
// Payload is opaque to the runtime.
type InterruptRequest struct {
	Reason string
	Payload any
}

// NodeOutput is everything a node execution can produce in one attempt.
type NodeOutput struct {
	Writes []Write
	Spawn []TaskSeed
	Next RouteNext
	Interrupt *InterruptRequest
}

// RunContext is made available to every node execution.
type RunContext struct {
	RunID RunID
	AttemptID AttemptID
	ThreadID ThreadID
	StepIndex uint32
	Ordinal uint32
	NodeID NodeID
	Attempt int // 1-based retry attempt number 
	// Resume carries (interruptID, payload) on the first committed step of a
	// resumed attempt only; nil otherwise.
	Resume *ResumePayload
}

// ResumePayload is the value delivered to the winning node's successor on
// resume.
type ResumePayload struct {
	InterruptID InterruptID
	Payload any
}

// TaskEmitter is handed to node closures so they can stream model/tool
// events scoped to their own task.
type TaskEmitter interface {
	Emit(kind EventKind, fields map[string]any)
	Debug(name string, fields map[string]any)
}

// NodeFunc is a node's executable body. A non-nil error fails the attempt
// and is subject to the node's RetryPolicy ; NodeOutput is ignored
// when err is non-nil.
type NodeFunc func(ctx context.Context, view StoreView, rc RunContext, emit TaskEmitter, env Environment) (NodeOutput, error)

// RouterFunc evaluates a per-task StoreView and returns routing.
type RouterFunc func(view StoreView) RouteNext

// Trigger configures a node's runWhen filter.
type Trigger struct {
	Kind TriggerKind
	Channels []ChannelID
}

type TriggerKind int

const (
	TriggerAlways TriggerKind = iota
	TriggerAnyOf
	TriggerAllOf
)

// Always is the default trigger: the node always runs when seeded.
func Always() Trigger { return Trigger{Kind: TriggerAlways} }

// AnyOf requires at least one of the given global channels to have changed.
func AnyOf(channels ...ChannelID) Trigger { return Trigger{Kind: TriggerAnyOf, Channels: channels} }

// AllOf requires every given global channel to have changed.
func AllOf(channels ...ChannelID) Trigger { return Trigger{Kind: TriggerAllOf, Channels: channels} }

func (t Trigger) isDefault() bool { return t.Kind == TriggerAlways }

// CompiledNode is one node of a compiled graph.
type CompiledNode struct {
	ID NodeID
	Retry *RetryPolicy
	Run NodeFunc
	RunWhen Trigger
}

// Edge is a static, unconditional transition between two nodes.
type Edge struct {
	From NodeID
	To NodeID
}

// JoinEdge is a reusable barrier: target is scheduled once every parent has
// fired since the barrier's last consumption.
type JoinEdge struct {
	ID string
	Parents []NodeID
	Target NodeID
}

// OutputProjectionKind selects the shape of a run's final output.
type OutputProjectionKind int

const (
	OutputFullStore OutputProjectionKind = iota
	OutputChannels
)

// OutputProjection describes what a run returns as its final output.
type OutputProjection struct {
	Kind OutputProjectionKind
	Channels []ChannelID // only meaningful when Kind == OutputChannels; must be global
}

// FullStoreProjection projects the entire global store.
func FullStoreProjection() OutputProjection { return OutputProjection{Kind: OutputFullStore} }

// ChannelsProjection projects an ordered list of global channels.
func ChannelsProjection(ids ...ChannelID) OutputProjection {
	return OutputProjection{Kind: OutputChannels, Channels: ids}
}

// CompiledGraph is the validated, immutable output of Builder.Compile.
type CompiledGraph struct {
	Registry *Registry

	Start []NodeID
	Nodes map[NodeID]CompiledNode

	StaticEdges []Edge
	edgesByFrom map[NodeID][]Edge

	Routers map[NodeID]RouterFunc

	Joins []JoinEdge
	joinsByTarget map[NodeID][]JoinEdge

	Output OutputProjection

	SchemaVersion string
	GraphVersion string
}

// EdgesFrom returns the static edges originating at id, in declaration order.
func (g *CompiledGraph) EdgesFrom(id NodeID) []Edge { return g.edgesByFrom[id] }

// JoinsTargeting returns the join edges whose target is id.
func (g *CompiledGraph) JoinsTargeting(id NodeID) []JoinEdge { return g.joinsByTarget[id] }

// HasTriggers reports whether any node declares a non-default runWhen.
func (g *CompiledGraph) HasTriggers() bool {
	for _, n := range g.Nodes {
		if !n.RunWhen.isDefault() {
			return true
		}
	}
	return false
}
