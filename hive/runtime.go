package hive

import (
	"context"
	"sort"
	"sync"
)

// OutcomeKind discriminates the terminal state of one attempt.
type OutcomeKind int

const (
	OutcomeFinished OutcomeKind = iota
	OutcomeInterrupted
	OutcomeOutOfSteps
	OutcomeCancelled
)

// ProjectedOutput is a run's final output, shaped by the graph's output
// projection.
type ProjectedOutput struct {
	Kind OutputProjectionKind
	FullStore map[ChannelID]any
	Channels []any
}

// Outcome is the terminal result of one attempt.
type Outcome struct {
	Kind OutcomeKind
	Output *ProjectedOutput
	CheckpointID CheckpointID
	Interruption *Interruption
	MaxSteps uint32
}

// Input carries the writes derived by the caller for the "input writes"
// step of an attempt.
type Input struct {
	Writes []Write
}

// RunHandle is returned by Run/Resume : a stream
// of events terminating with (and carrying) the same result as Outcome.
type RunHandle struct {
	RunID RunID
	AttemptID AttemptID
	ThreadID ThreadID

	stream *Stream

	done chan struct{}
	outcome Outcome
	err error
}

// Events returns the attempt's event stream.
func (h *RunHandle) Events() *Stream { return h.stream }

// Wait blocks until the attempt terminates and returns its outcome.
func (h *RunHandle) Wait() (Outcome, error) {
	<-h.done
	return h.outcome, h.err
}

func (h *RunHandle) finish(o Outcome) {
	h.outcome = o
	close(h.done)
}

func (h *RunHandle) fail(err error) {
	h.err = err
	close(h.done)
}

// Runtime executes a single CompiledGraph. Per-thread state is serialized:
// invocations on the same ThreadID enqueue in arrival order.
// There is no process-level mutable state outside a Runtime handle.
type Runtime struct {
	graph *CompiledGraph
	env Environment
	clock Clock
	store CheckpointStore

	mu sync.Mutex
	threadLocks map[ThreadID]*sync.Mutex
	states map[ThreadID]*threadState
	activeStreams map[RunID]*Stream
}

// NewRuntime constructs a Runtime bound to a compiled graph and its
// collaborators. store may be nil if checkpointing is never required by the
// configured policies.
func NewRuntime(graph *CompiledGraph, env Environment, clock Clock, store CheckpointStore) *Runtime {
	if env.Metrics == nil {
 env.Metrics = NullMetricsSink{}
	}
	if clock == nil {
 clock = SystemClock()
	}
	return &Runtime{
 graph: graph,
 env: env,
 clock: clock,
 store: store,
 threadLocks: map[ThreadID]*sync.Mutex{},
 states: map[ThreadID]*threadState{},
 activeStreams: map[RunID]*Stream{},
	}
}

func (rt *Runtime) lockFor(threadID ThreadID) *sync.Mutex {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	l, ok := rt.threadLocks[threadID]
	if !ok {
 l = &sync.Mutex{}
 rt.threadLocks[threadID] = l
	}
	return l
}

// Run starts (or continues) the thread's work with the given input.
func (rt *Runtime) Run(ctx context.Context, threadID ThreadID, input Input, opts RunOptions) *RunHandle {
	return rt.startAttempt(ctx, threadID, input, nil, opts)
}

type resumeRequest struct {
	interruptID InterruptID
	payload any
}

// Resume continues a pending interruption.
func (rt *Runtime) Resume(ctx context.Context, threadID ThreadID, interruptID InterruptID, payload any, opts RunOptions) *RunHandle {
	return rt.startAttempt(ctx, threadID, Input{}, &resumeRequest{interruptID: interruptID, payload: payload}, opts)
}

func (rt *Runtime) startAttempt(ctx context.Context, threadID ThreadID, input Input, resume *resumeRequest, opts RunOptions) *RunHandle {
	h := &RunHandle{
 ThreadID: threadID,
 AttemptID: NewAttemptID(),
 stream: NewStream(maxInt(opts.EventBufferCapacity, 1)),
 done: make(chan struct{}),
	}

	lock := rt.lockFor(threadID)
	go func() {
 lock.Lock()
 defer lock.Unlock()
 rt.runAttempt(ctx, h, threadID, input, resume, opts)
	}()
	return h
}

func (rt *Runtime) runAttempt(ctx context.Context, h *RunHandle, threadID ThreadID, input Input, resume *resumeRequest, opts RunOptions) {
	if err := opts.Validate(); err != nil {
 h.stream.Terminate(err)
 h.fail(err)
 return
	}

	state, loadedCheckpoint, err := rt.loadOrInitState(ctx, threadID)
	if err != nil {
 h.stream.Terminate(err)
 h.fail(err)
 return
	}
	state.currentAttemptID = h.AttemptID
	h.RunID = state.runID

	rt.mu.Lock()
	rt.activeStreams[state.runID] = h.stream
	rt.mu.Unlock()
	defer func() {
 rt.mu.Lock()
 delete(rt.activeStreams, state.runID)
 rt.mu.Unlock()
	}()

	emit := func(ev Event) { _ = h.stream.Push(ctx, ev) }

	emit(Event{Kind: EventRunStarted, ThreadID: threadID})
	if loadedCheckpoint {
 emit(Event{Kind: EventCheckpointLoaded, ThreadID: threadID, CheckpointID: state.latestCheckpointID})
	}

	if resume != nil {
 if state.interruption == nil {
 err := &Error{Kind: KindNoInterruptToResume}
 h.stream.Terminate(err)
 h.fail(err)
 return
 }
 if state.interruption.ID != resume.interruptID {
 err := &Error{Kind: KindResumeInterruptMismatch}
 h.stream.Terminate(err)
 h.fail(err)
 return
 }
 state.pendingResume = &ResumePayload{InterruptID: resume.interruptID, Payload: resume.payload}
 emit(Event{Kind: EventResumed, ThreadID: threadID, InterruptID: resume.interruptID})
	} else if state.interruption != nil {
 err := &Error{Kind: KindInterruptPending}
 h.stream.Terminate(err)
 h.fail(err)
 return
	}

	if len(input.Writes) > 0 {
 if err := rt.applyInputWrites(state, input.Writes); err != nil {
 h.stream.Terminate(err)
 h.fail(err)
 return
 }
	}
	if len(state.frontier) == 0 {
 for _, n := range rt.graph.Start {
 state.frontier = append(state.frontier, FrontierTask{
 Seed: TaskSeed{NodeID: n, Overlay: NewOverlay(rt.graph.Registry)},
 Provenance: ProvenanceGraph,
 })
 }
	}

	var stepsExecuted uint32
	for len(state.frontier) > 0 {
 if ctx.Err() != nil {
 emit(Event{Kind: EventCancelled, ThreadID: threadID})
 out := rt.projectOutput(state, opts)
 h.stream.Terminate(nil)
 h.finish(Outcome{Kind: OutcomeCancelled, Output: out, CheckpointID: state.latestCheckpointID})
 return
 }
 if stepsExecuted == opts.MaxSteps {
 out := rt.projectOutput(state, opts)
 h.stream.Terminate(nil)
 h.finish(Outcome{Kind: OutcomeOutOfSteps, Output: out, CheckpointID: state.latestCheckpointID, MaxSteps: opts.MaxSteps})
 return
 }

 outcome, err := rt.executeStep(ctx, state, opts, emit)
 if err != nil {
 h.stream.Terminate(err)
 h.fail(err)
 return
 }
 if outcome.cancelled {
 emit(Event{Kind: EventCancelled, ThreadID: threadID})
 out := rt.projectOutput(state, opts)
 h.stream.Terminate(nil)
 h.finish(Outcome{Kind: OutcomeCancelled, Output: out, CheckpointID: state.latestCheckpointID})
 return
 }

 stepsExecuted++
 state.stepIndex++
 if state.pendingResume != nil {
 state.pendingResume = nil
 state.interruption = nil
 }

 sortedUpdated := append([]ChannelID{}, outcome.updatedGlobals...)
 sort.Slice(sortedUpdated, func(i, j int) bool { return sortedUpdated[i] < sortedUpdated[j] })
 for _, c := range sortedUpdated {
 emit(Event{Kind: EventWriteApplied, ThreadID: threadID, ChannelID: c, PayloadHash: rt.writeAppliedHash(state, c)})
 }

 dropTok, dropDbg := h.stream.DrainedBacklog()
 if dropTok > 0 || dropDbg > 0 {
 emit(Event{Kind: EventStreamBackpressure, ThreadID: threadID, DroppedModelTokens: dropTok, DroppedDebug: dropDbg})
 }

 mandatorySave := outcome.interruptTask != nil
 policySave := opts.CheckpointPolicy.shouldSave(state.stepIndex)
 if mandatorySave || policySave {
 if rt.store == nil {
 err := newErr(KindCheckpointStoreMissing, "checkpoint required but no store configured")
 h.stream.Terminate(err)
 h.fail(err)
 return
 }
 cpID := ComputeCheckpointID(state.runID, state.stepIndex)
 var interruption *Interruption
 if outcome.interruptTask != nil {
 interruption = &Interruption{ID: ComputeInterruptID(outcome.interruptTask.TaskID), Payload: outcome.interruptReq.Payload}
 }
 cp := rt.buildCheckpoint(state, cpID, interruption)
 if err := rt.store.Save(ctx, cp); err != nil {
 h.stream.Terminate(err)
 h.fail(err)
 return
 }
 state.latestCheckpointID = cpID
 if interruption != nil {
 state.interruption = interruption
 }
 emit(Event{Kind: EventCheckpointSaved, ThreadID: threadID, CheckpointID: cpID})
 }

 if outcome.interruptTask != nil {
 emit(Event{Kind: EventInterrupted, ThreadID: threadID, InterruptID: state.interruption.ID})
 h.stream.Terminate(nil)
 h.finish(Outcome{Kind: OutcomeInterrupted, Interruption: state.interruption, CheckpointID: state.latestCheckpointID})
 return
 }

 emit(Event{Kind: EventStepFinished, ThreadID: threadID, StepIndex: state.stepIndex, HasStep: true, FrontierCount: len(state.frontier)})
	}

	out := rt.projectOutput(state, opts)
	emit(Event{Kind: EventRunFinished, ThreadID: threadID})
	h.stream.Terminate(nil)
	h.finish(Outcome{Kind: OutcomeFinished, Output: out, CheckpointID: state.latestCheckpointID})
}

func (rt *Runtime) applyInputWrites(state *threadState, writes []Write) error {
	records := make([]writeRecord, len(writes))
	for i, w := range writes {
 records[i] = writeRecord{ordinal: 0, emission: i, write: w}
	}
	if err := validateWrites(rt.graph.Registry, records, nil, false); err != nil {
 return err
	}
	updated, err := foldGlobalWrites(rt.graph.Registry, state.global, records)
	if err != nil {
 return err
	}
	for _, c := range updated {
 state.channelVersions[c]++
	}
	state.updatedLastCommit = updated
	return nil
}

func (rt *Runtime) writeAppliedHash(state *threadState, id ChannelID) string {
	spec, ok := rt.graph.Registry.Lookup(id)
	if !ok {
 return ""
	}
	v, _ := state.global.Get(id)
	return payloadHash(spec, v)
}

func (rt *Runtime) projectOutput(state *threadState, opts RunOptions) *ProjectedOutput {
	proj := rt.graph.Output
	if opts.OutputProjectionOverride != nil {
 proj = *opts.OutputProjectionOverride
	}
	switch proj.Kind {
	case OutputChannels:
 vals := make([]any, len(proj.Channels))
 for i, c := range proj.Channels {
 v, _ := state.global.Get(c)
 vals[i] = v
 }
 return &ProjectedOutput{Kind: OutputChannels, Channels: vals}
	default:
 full := map[ChannelID]any{}
 for _, id := range rt.graph.Registry.GlobalIDs() {
 v, _ := state.global.Get(id)
 full[id] = v
 }
 return &ProjectedOutput{Kind: OutputFullStore, FullStore: full}
	}
}

func (rt *Runtime) loadOrInitState(ctx context.Context, threadID ThreadID) (*threadState, bool, error) {
	rt.mu.Lock()
	state, ok := rt.states[threadID]
	rt.mu.Unlock()
	if ok {
 return state, false, nil
	}

	if rt.store != nil {
 cp, found, err := rt.store.LoadLatest(ctx, threadID)
 if err != nil {
 return nil, false, err
 }
 if found {
 state, err := rt.stateFromCheckpoint(cp)
 if err != nil {
 return nil, false, err
 }
 rt.mu.Lock()
 rt.states[threadID] = state
 rt.mu.Unlock()
 return state, true, nil
 }
	}

	state = freshThreadState(rt.graph.Registry, threadID, NewRunID())
	rt.mu.Lock()
	rt.states[threadID] = state
	rt.mu.Unlock()
	return state, false, nil
}

// stateFromCheckpoint decodes a persisted checkpoint into live thread state.
// Schema/graph version mismatch is fatal; unknown global channel
// ids select the lexicographically-smallest offender.
func (rt *Runtime) stateFromCheckpoint(cp Checkpoint) (*threadState, error) {
	registry := rt.graph.Registry
	if cp.SchemaVersion != rt.graph.SchemaVersion || cp.GraphVersion != rt.graph.GraphVersion {
 return nil, newErr(KindCheckpointVersionMismatch, "checkpoint schema/graph version does not match compiled graph")
	}

	global := NewGlobalStore(registry)
	var unknown []ChannelID
	for cid := range cp.GlobalDataByChannelID {
 if _, ok := registry.Lookup(cid); !ok {
 unknown = append(unknown, cid)
 }
	}
	if id, ok := smallestChannel(unknown); ok {
 return nil, &Error{Kind: KindCheckpointCorrupt, ChannelID: string(id), Field: "globalDataByChannelID", Message: "unexpected channel id"}
	}
	for _, cid := range registry.GlobalIDs() {
 spec, _ := registry.Lookup(cid)
 if spec.Persistence != PersistenceCheckpointed {
 continue
 }
 data, ok := cp.GlobalDataByChannelID[cid]
 if !ok {
 return nil, errChannel(KindCheckpointDecodeFailed, string(cid), "missing entry")
 }
 v, err := spec.Codec.Decode(data)
 if err != nil {
 return nil, errChannel(KindCheckpointDecodeFailed, string(cid), err.Error())
 }
 global.Set(cid, v)
	}

	state := &threadState{
 threadID: cp.ThreadID,
 runID: cp.RunID,
 stepIndex: cp.StepIndex,
 global: global,
 joinSeenParents: map[string]map[NodeID]bool{},
 channelVersions: map[ChannelID]uint64{},
 versionsSeenByNode: map[NodeID]map[ChannelID]uint64{},
 latestCheckpointID: cp.ID,
	}
	for c, v := range cp.ChannelVersions {
 state.channelVersions[c] = v
	}
	for n, m := range cp.VersionsSeenByNode {
 cpy := map[ChannelID]uint64{}
 for c, v := range m {
 cpy[c] = v
 }
 state.versionsSeenByNode[n] = cpy
	}

	validJoins := map[string]JoinEdge{}
	for _, j := range rt.graph.Joins {
 validJoins[j.ID] = j
	}
	for joinID, parents := range cp.JoinBarrierSeenByJoinID {
 j, ok := validJoins[joinID]
 if !ok {
 return nil, &Error{Kind: KindCheckpointCorrupt, JoinID: joinID, Field: "joinBarrierSeenByJoinID", Message: "unknown join id"}
 }
 allowed := map[NodeID]bool{}
 for _, p := range j.Parents {
 allowed[p] = true
 }
 seen := map[NodeID]bool{}
 for _, p := range parents {
 if !allowed[p] {
 return nil, &Error{Kind: KindCheckpointCorrupt, JoinID: joinID, Field: "joinBarrierSeenByJoinID", Message: "parent not valid for join"}
 }
 seen[p] = true
 }
 state.joinSeenParents[joinID] = seen
	}

	for _, f := range cp.Frontier {
 overlay := NewOverlay(registry)
 for _, tlid := range registry.TaskLocalIDs() {
 spec, _ := registry.Lookup(tlid)
 data, ok := f.LocalDataByChannel[tlid]
 if !ok {
 continue
 }
 v, err := spec.Codec.Decode(data)
 if err != nil {
 return nil, errChannel(KindCheckpointDecodeFailed, string(tlid), err.Error())
 }
 overlay.Set(tlid, v)
 }
 fp, err := TaskLocalFingerprint(registry, overlay)
 if err != nil {
 return nil, err
 }
 if fp != f.LocalFingerprint {
 return nil, &Error{Kind: KindCheckpointCorrupt, NodeID: string(f.NodeID), Field: "frontier", Message: "recomputed task-local fingerprint does not match stored value"}
 }
 state.frontier = append(state.frontier, FrontierTask{
 Seed: TaskSeed{NodeID: f.NodeID, Overlay: overlay},
 Provenance: f.Provenance,
 })
	}

	if cp.Interruption != nil {
 state.interruption = cp.Interruption
	}

	return state, nil
}

func (rt *Runtime) buildCheckpoint(state *threadState, id CheckpointID, interruption *Interruption) Checkpoint {
	registry := rt.graph.Registry

	globalData := map[ChannelID][]byte{}
	for _, cid := range registry.GlobalIDs() {
 spec, _ := registry.Lookup(cid)
 if spec.Persistence != PersistenceCheckpointed {
 continue
 }
 v, _ := state.global.Get(cid)
 encoded, _ := spec.Codec.Encode(v)
 globalData[cid] = encoded
	}

	var frontier []FrontierEntry
	for _, ft := range state.frontier {
 fp, _ := TaskLocalFingerprint(registry, ft.Seed.Overlay)
 data := map[ChannelID][]byte{}
 for _, tlid := range registry.TaskLocalIDs() {
 spec, _ := registry.Lookup(tlid)
 var v any
 if ft.Seed.Overlay != nil && ft.Seed.Overlay.Has(tlid) {
 v = ft.Seed.Overlay.Get(tlid)
 } else {
 v = spec.Initial()
 }
 encoded, _ := spec.Codec.Encode(v)
 data[tlid] = encoded
 }
 frontier = append(frontier, FrontierEntry{
 Provenance: ft.Provenance,
 NodeID: ft.Seed.NodeID,
 LocalFingerprint: fp,
 LocalDataByChannel: data,
 })
	}

	versionsPositive := map[ChannelID]uint64{}
	for c, v := range state.channelVersions {
 if v > 0 {
 versionsPositive[c] = v
 }
	}

	joinBarrier := map[string][]NodeID{}
	for _, j := range rt.graph.Joins {
 seen := state.joinSeenParents[j.ID]
 var parents []NodeID
 for p := range seen {
 parents = append(parents, p)
 }
 sort.Slice(parents, func(i, k int) bool { return parents[i] < parents[k] })
 joinBarrier[j.ID] = parents
	}

	return Checkpoint{
 ID: id,
 ThreadID: state.threadID,
 RunID: state.runID,
 StepIndex: state.stepIndex,
 SchemaVersion: rt.graph.SchemaVersion,
 GraphVersion: rt.graph.GraphVersion,
 FormatVersion: checkpointFormatHCP2,
 ChannelVersions: versionsPositive,
 VersionsSeenByNode: state.versionsSeenByNode,
 UpdatedChannelsLastCommit: state.updatedLastCommit,
 GlobalDataByChannelID: globalData,
 Frontier: frontier,
 JoinBarrierSeenByJoinID: joinBarrier,
 Interruption: interruption,
	}
}
