package hive

import (
	"crypto/sha256"
	"sort"
	"strings"
)

// Builder compiles a registry plus a set of declared nodes, edges, routers
// and joins into an immutable CompiledGraph.
type Builder struct {
	registry *Registry

	start []NodeID
	nodes map[NodeID]CompiledNode

	edges []Edge

	routers map[NodeID]RouterFunc
	routerAdds []NodeID // from-node of every AddRouter call, in call order, including duplicates

	joins []JoinEdge

	output OutputProjection
}

// NewBuilder starts a graph build over the given registry.
func NewBuilder(r *Registry) *Builder {
	return &Builder{
		registry: r,
		nodes: make(map[NodeID]CompiledNode),
		routers: make(map[NodeID]RouterFunc),
		output: FullStoreProjection(),
	}
}

// StartAt declares one or more start nodes.
func (b *Builder) StartAt(ids ...NodeID) *Builder {
	b.start = append(b.start, ids...)
	return b
}

// AddNode registers a node. retry may be nil (no retries: single attempt).
func (b *Builder) AddNode(id NodeID, run NodeFunc, retry *RetryPolicy, runWhen Trigger) *Builder {
	b.nodes[id] = CompiledNode{ID: id, Retry: retry, Run: run, RunWhen: runWhen}
	return b
}

// AddEdge declares a static, unconditional edge.
func (b *Builder) AddEdge(from, to NodeID) *Builder {
	b.edges = append(b.edges, Edge{From: from, To: to})
	return b
}

// AddRouter declares the (at most one) router for a from-node.
func (b *Builder) AddRouter(from NodeID, router RouterFunc) *Builder {
	b.routerAdds = append(b.routerAdds, from)
	b.routers[from] = router
	return b
}

// AddJoin declares a join edge; ID is derived
func (b *Builder) AddJoin(parents []NodeID, target NodeID) *Builder {
	sorted := append([]NodeID{}, parents...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	strs := make([]string, len(sorted))
	for i, p := range sorted {
 strs[i] = string(p)
	}
	id := "join:" + strings.Join(strs, "+") + ":" + string(target)
	b.joins = append(b.joins, JoinEdge{ID: id, Parents: sorted, Target: target})
	return b
}

// WithOutput sets the output projection.
func (b *Builder) WithOutput(p OutputProjection) *Builder {
	b.output = p
	return b
}

// Compile validates the declared graph and produces an immutable
// CompiledGraph with derived schemaVersion/graphVersion.
//
// Errors select the smallest offending id, lexicographically, whenever more
// than one violation of the same kind exists. The exception is join edges:
// apart from duplicate join ids, a join violation is reported for the first
// offending join in declaration order.
func (b *Builder) Compile() (*CompiledGraph, error) {
	if len(b.start) == 0 {
 return nil, newErr(KindStartEmpty, "start must be non-empty")
	}
	if id, ok := firstDuplicate(b.start); ok {
 return nil, errNode(KindDuplicateStartNode, string(id), "duplicate start node")
	}

	nodeIDs := make([]NodeID, 0, len(b.nodes))
	for id := range b.nodes {
 nodeIDs = append(nodeIDs, id)
	}
	sort.Slice(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] })

	for _, id := range nodeIDs {
 if !ValidNodeID(id) {
 return nil, errNode(KindInvalidNodeIDReservedJoinCharacters, string(id), "node id contains reserved join characters")
 }
	}

	for _, id := range sortedCopy(b.start) {
 if _, ok := b.nodes[id]; !ok {
 return nil, errNode(KindUnknownStartNode, string(id), "start references unknown node")
 }
	}

	var badEdgeEndpoints []NodeID
	for _, e := range b.edges {
 if _, ok := b.nodes[e.From]; !ok {
 badEdgeEndpoints = append(badEdgeEndpoints, e.From)
 }
 if _, ok := b.nodes[e.To]; !ok {
 badEdgeEndpoints = append(badEdgeEndpoints, e.To)
 }
	}
	if id, ok := smallest(badEdgeEndpoints); ok {
 return nil, errNode(KindUnknownEdgeEndpoint, string(id), "edge references unknown node")
	}

	if from, ok := firstDuplicate(b.routerAdds); ok {
 return nil, errNode(KindDuplicateRouter, string(from), "router already declared for this from-node")
	}
	var badRouterFroms []NodeID
	for from := range b.routers {
 if _, ok := b.nodes[from]; !ok {
 badRouterFroms = append(badRouterFroms, from)
 }
	}
	if from, ok := smallest(badRouterFroms); ok {
 return nil, errNode(KindUnknownRouterFrom, string(from), "router references unknown from-node")
	}

	joinIDs := map[string]bool{}
	var dupJoinIDs []string
	for _, j := range b.joins {
 if len(j.Parents) == 0 {
 return nil, &Error{Kind: KindInvalidJoinEdge, JoinID: j.ID, Message: "join must have non-empty parents"}
 }
 if id, ok := firstDuplicate(j.Parents); ok {
 return nil, &Error{Kind: KindInvalidJoinEdge, JoinID: j.ID, NodeID: string(id), Message: "join parents must be unique"}
 }
 for _, p := range j.Parents {
 if p == j.Target {
 return nil, &Error{Kind: KindInvalidJoinEdge, JoinID: j.ID, Message: "join target cannot be its own parent"}
 }
 if _, ok := b.nodes[p]; !ok {
 return nil, errNode(KindUnknownJoinParent, string(p), "join references unknown parent")
 }
 }
 if _, ok := b.nodes[j.Target]; !ok {
 return nil, errNode(KindUnknownJoinTarget, string(j.Target), "join references unknown target")
 }
 if joinIDs[j.ID] {
 dupJoinIDs = append(dupJoinIDs, j.ID)
 }
 joinIDs[j.ID] = true
	}
	if len(dupJoinIDs) > 0 {
 sort.Strings(dupJoinIDs)
 return nil, &Error{Kind: KindDuplicateJoinEdge, JoinID: dupJoinIDs[0], Message: "duplicate join edge id"}
	}

	if b.output.Kind == OutputChannels {
 var unknown, taskLocal []ChannelID
 for _, c := range b.output.Channels {
 spec, ok := b.registry.Lookup(c)
 if !ok {
 unknown = append(unknown, c)
 continue
 }
 if spec.Scope == ScopeTaskLocal {
 taskLocal = append(taskLocal, c)
 }
 }
 if id, ok := smallestChannel(unknown); ok {
 return nil, errChannel(KindOutputProjectionUnknownChannel, string(id), "output projection references unknown channel")
 }
 if id, ok := smallestChannel(taskLocal); ok {
 return nil, errChannel(KindOutputProjectionIncludesTaskLocal, string(id), "output projection may not include task-local channels")
 }
	}

	edgesByFrom := map[NodeID][]Edge{}
	for _, e := range b.edges {
 edgesByFrom[e.From] = append(edgesByFrom[e.From], e)
	}
	joinsByTarget := map[NodeID][]JoinEdge{}
	for _, j := range b.joins {
 joinsByTarget[j.Target] = append(joinsByTarget[j.Target], j)
	}

	schemaVersion := computeSchemaVersion(b.registry)
	graphVersion := computeGraphVersion(b)

	start := sortedCopy(b.start)
	// preserve declared start order for scheduling, but validate uniqueness
	// against the sorted view above; keep declaration order in the compiled
	// graph since start order is observable (initial frontier order).
	_ = start

	g := &CompiledGraph{
 Registry: b.registry,
 Start: append([]NodeID{}, b.start...),
 Nodes: b.nodes,
 StaticEdges: append([]Edge{}, b.edges...),
 edgesByFrom: edgesByFrom,
 Routers: b.routers,
 Joins: append([]JoinEdge{}, b.joins...),
 joinsByTarget: joinsByTarget,
 Output: b.output,
 SchemaVersion: schemaVersion,
 GraphVersion: graphVersion,
	}
	return g, nil
}

func firstDuplicate(ids []NodeID) (NodeID, bool) {
	seen := map[NodeID]bool{}
	var dupes []NodeID
	for _, id := range ids {
 if seen[id] {
 dupes = append(dupes, id)
 }
 seen[id] = true
	}
	return smallest(dupes)
}

func smallest(ids []NodeID) (NodeID, bool) {
	if len(ids) == 0 {
 return "", false
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids[0], true
}

func smallestChannel(ids []ChannelID) (ChannelID, bool) {
	if len(ids) == 0 {
 return "", false
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids[0], true
}

func sortedCopy(ids []NodeID) []NodeID {
	out := append([]NodeID{}, ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// computeSchemaVersion is format H1: SHA-256 hex of channel specs sorted by
// id, fields (id, scope, persistence, reducer tag, update policy, codec id
// or empty, declared value type id) separated by 0x00.
func computeSchemaVersion(r *Registry) string {
	h := sha256.New()
	for _, id := range r.SortedIDs() {
		spec, _ := r.Lookup(id)
		codecID := ""
		if spec.Codec != nil {
			codecID = spec.Codec.ID()
		}
		fields := []string{
			string(spec.ID),
			spec.Scope.String(),
			spec.Persistence.String(),
			spec.Reducer.Tag,
			spec.UpdatePolicy.String(),
			codecID,
			spec.ValueTypeID(),
		}
		for _, f := range fields {
			h.Write([]byte(f))
			h.Write([]byte{0x00})
		}
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return hexDigest(out)
}

// computeGraphVersion is format H2: sorted node ids, ordered static edges,
// canonical join edges, router from ids, output projection, and (only if at
// least one node has non-default runWhen) the per-node runWhen
// configuration, tagged HGV2; otherwise HGV1.
func computeGraphVersion(b *Builder) string {
	h := sha256.New()

	nodeIDs := make([]NodeID, 0, len(b.nodes))
	for id := range b.nodes {
 nodeIDs = append(nodeIDs, id)
	}
	sort.Slice(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] })
	for _, id := range nodeIDs {
 h.Write([]byte(id))
 h.Write([]byte{0x00})
	}

	for _, e := range b.edges {
 h.Write([]byte(e.From))
 h.Write([]byte{0x00})
 h.Write([]byte(e.To))
 h.Write([]byte{0x00})
	}

	joins := append([]JoinEdge{}, b.joins...)
	sort.Slice(joins, func(i, j int) bool { return joins[i].ID < joins[j].ID })
	for _, j := range joins {
 h.Write([]byte(j.ID))
 h.Write([]byte{0x00})
	}

	routerFroms := make([]NodeID, 0, len(b.routers))
	for from := range b.routers {
 routerFroms = append(routerFroms, from)
	}
	sort.Slice(routerFroms, func(i, j int) bool { return routerFroms[i] < routerFroms[j] })
	for _, from := range routerFroms {
 h.Write([]byte(from))
 h.Write([]byte{0x00})
	}

	h.Write([]byte{byte(b.output.Kind)})
	for _, c := range b.output.Channels {
 h.Write([]byte(c))
 h.Write([]byte{0x00})
	}

	hasTriggers := false
	for _, n := range b.nodes {
		if !n.RunWhen.isDefault() {
			hasTriggers = true
			break
		}
	}
	if hasTriggers {
		h.Write([]byte("HGV2"))
		for _, id := range nodeIDs {
			n := b.nodes[id]
			h.Write([]byte{byte(n.RunWhen.Kind)})
			chans := append([]ChannelID{}, n.RunWhen.Channels...)
			sort.Slice(chans, func(i, j int) bool { return chans[i] < chans[j] })
			for _, c := range chans {
				h.Write([]byte(c))
				h.Write([]byte{0x00})
			}
		}
	} else {
		h.Write([]byte("HGV1"))
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return hexDigest(out)
}
