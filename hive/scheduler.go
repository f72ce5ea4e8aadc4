package hive

import (
	"context"
	"sort"
	"sync"
)

// threadState is the scheduler's per-thread working state.
type threadState struct {
	threadID ThreadID
	runID RunID
	currentAttemptID AttemptID
	stepIndex uint32
	global *GlobalStore
	frontier []FrontierTask
	joinSeenParents map[string]map[NodeID]bool
	interruption *Interruption
	latestCheckpointID CheckpointID
	channelVersions map[ChannelID]uint64
	versionsSeenByNode map[NodeID]map[ChannelID]uint64
	updatedLastCommit []ChannelID

	// pendingResume is visible to node executions only during the first
	// committed step of a resumed attempt ; cleared after that commit.
	pendingResume *ResumePayload

	// preCommitGlobal is a clone of the global store taken immediately
	// before a step's commit is applied; used to build per-task router
	// views. Cleared (nil) outside of step execution.
	preCommitGlobal *GlobalStore
}

func freshThreadState(registry *Registry, threadID ThreadID, runID RunID) *threadState {
	return &threadState{
 threadID: threadID,
 runID: runID,
 stepIndex: 0,
 global: NewGlobalStore(registry),
 joinSeenParents: map[string]map[NodeID]bool{},
 channelVersions: map[ChannelID]uint64{},
 versionsSeenByNode: map[NodeID]map[ChannelID]uint64{},
	}
}

// taskResult is one task's outcome for a step, after retries are exhausted.
type taskResult struct {
	ordinal int
	task Task
	output NodeOutput
	err error
	cancelled bool
	bufferedEv []Event
}

// writeRecord is one pending write tagged with its originating task ordinal
// and emission index, for deterministic ordering.
type writeRecord struct {
	ordinal int
	emission int
	write Write
}

// stepOutcome carries what executeStep discovered, for the caller
// (runAttempt) to drive checkpointing/event emission/outcome selection.
type stepOutcome struct {
	cancelled bool
	taskErr error
	interruptTask *Task
	interruptReq *InterruptRequest
	updatedGlobals []ChannelID
}

// executeStep runs one superstep: build tasks, snapshot trigger versions,
// execute concurrently with retries, commit, and compute the next frontier.
func (rt *Runtime) executeStep(ctx context.Context, state *threadState, opts RunOptions, emit func(Event)) (stepOutcome, error) {
	graph := rt.graph
	registry := graph.Registry

	if state.stepIndex == ^uint32(0) {
 return stepOutcome{}, newErr(KindStepIndexOutOfRange, "stepIndex exceeds u32 range")
	}
	if uint64(len(state.frontier)) > uint64(^uint32(0)) {
 return stepOutcome{}, newErr(KindTaskOrdinalOutOfRange, "frontier size exceeds u32 range")
	}

	tasks := make([]Task, len(state.frontier))
	for i, seed := range state.frontier {
 fp, err := TaskLocalFingerprint(registry, seed.Seed.Overlay)
 if err != nil {
 return stepOutcome{}, err
 }
 taskID := ComputeTaskID(state.runID, state.stepIndex, seed.Seed.NodeID, uint32(i), fp)
 tasks[i] = Task{
 TaskID: taskID,
 Ordinal: uint32(i),
 Provenance: seed.Provenance,
 NodeID: seed.Seed.NodeID,
 Overlay: seed.Seed.Overlay,
 Fingerprint: fp,
 }
	}

	// Snapshot versionsSeen for triggered nodes, pre-commit.
	for _, t := range tasks {
		node, ok := graph.Nodes[t.NodeID]
		if !ok || node.RunWhen.isDefault() {
			continue
		}
 seen := state.versionsSeenByNode[t.NodeID]
 if seen == nil {
 seen = map[ChannelID]uint64{}
 }
 for _, c := range node.RunWhen.Channels {
 seen[c] = state.channelVersions[c]
 }
 state.versionsSeenByNode[t.NodeID] = seen
	}

	stepIdx := state.stepIndex
	frontierCount := len(tasks)
	emit(Event{Kind: EventStepStarted, ThreadID: state.threadID, StepIndex: stepIdx, HasStep: true, FrontierCount: frontierCount})
	for _, t := range tasks {
 emit(Event{Kind: EventTaskStarted, ThreadID: state.threadID, StepIndex: stepIdx, HasStep: true, TaskOrdinal: t.Ordinal, HasOrdinal: true, NodeID: t.NodeID, TaskID: t.TaskID})
	}

	results, cancelled := rt.runTasksConcurrently(ctx, state, tasks, opts)

	if cancelled {
 for _, r := range results {
 emit(Event{Kind: EventTaskFailed, StepIndex: stepIdx, HasStep: true, TaskOrdinal: uint32(r.ordinal), HasOrdinal: true, NodeID: tasks[r.ordinal].NodeID, TaskID: tasks[r.ordinal].TaskID, Message: "cancelled"})
 }
 return stepOutcome{cancelled: true}, nil
	}

	sort.Slice(results, func(i, j int) bool { return results[i].ordinal < results[j].ordinal })
	for _, r := range results {
 if r.err != nil {
 emit(Event{Kind: EventTaskFailed, StepIndex: stepIdx, HasStep: true, TaskOrdinal: uint32(r.ordinal), HasOrdinal: true, NodeID: tasks[r.ordinal].NodeID, TaskID: tasks[r.ordinal].TaskID, Message: r.err.Error()})
 } else {
 emit(Event{Kind: EventTaskCommitted, StepIndex: stepIdx, HasStep: true, TaskOrdinal: uint32(r.ordinal), HasOrdinal: true, NodeID: tasks[r.ordinal].NodeID, TaskID: tasks[r.ordinal].TaskID})
 }
	}

	for _, r := range results {
 if r.err != nil {
 return stepOutcome{}, r.err
 }
	}

	// Replay deterministic-mode buffered stream events for the (now known
	// successful) attempt, in ordinal order.
	if opts.DeterministicTokenStreaming {
 for _, r := range results {
 for _, ev := range r.bufferedEv {
 ev.StepIndex = stepIdx
 ev.HasStep = true
 emit(ev)
 }
 }
	}

	state.preCommitGlobal = state.global.Clone()
	outcome, err := rt.commitAndAdvance(state, tasks, results, opts)
	state.preCommitGlobal = nil
	return outcome, err
}

// runTasksConcurrently executes tasks with parallelism
// clamp(1, maxConcurrentTasks, taskCount) and per-task retry/backoff.
func (rt *Runtime) runTasksConcurrently(ctx context.Context, state *threadState, tasks []Task, opts RunOptions) ([]taskResult, bool) {
	n := len(tasks)
	if n == 0 {
 return nil, false
	}
	parallelism := opts.MaxConcurrentTasks
	if parallelism < 1 {
 parallelism = 1
	}
	if parallelism > n {
 parallelism = n
	}

	results := make([]taskResult, n)
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup
	var cancelledFlag sync.Map // bool, set if ctx cancelled observed by any worker

	for i, t := range tasks {
 i, t := i, t
 wg.Add(1)
 sem <- struct{}{}
 go func() {
 defer wg.Done()
 defer func() { <-sem }()
 res := rt.runOneTask(ctx, state, t, i, opts)
 if res.cancelled {
 cancelledFlag.Store("x", true)
 }
 results[i] = res
	 }()
	}
	wg.Wait()

	_, cancelled := cancelledFlag.Load("x")
	if !cancelled {
 cancelled = ctx.Err() != nil
	}
	return results, cancelled
}

func (rt *Runtime) runOneTask(ctx context.Context, state *threadState, t Task, ordinal int, opts RunOptions) taskResult {
	graph := rt.graph
	node := graph.Nodes[t.NodeID]

	policy := RetryPolicy{MaxAttempts: 1}
	if node.Retry != nil {
 policy = *node.Retry
	}

	view := newStoreView(graph.Registry, state.global, t.Overlay)

	var tb *taskBuffer
	var sink func(Event)
	if opts.DeterministicTokenStreaming {
 tb = newTaskBuffer(opts.EventBufferCapacity)
 sink = func(ev Event) {
 ev.TaskOrdinal = uint32(ordinal)
 ev.HasOrdinal = true
 tb.push(ev)
 }
	} else {
 sink = func(ev Event) {
 ev.TaskOrdinal = uint32(ordinal)
 ev.HasOrdinal = true
 _ = rt.currentStream(state).Push(ctx, ev)
 }
	}
	emitter := &taskEmitter{sink: sink}

	var lastErr error
	for attempt := 1; attempt <= maxInt(policy.MaxAttempts, 1); attempt++ {
 if ctx.Err() != nil {
 return taskResult{ordinal: ordinal, task: t, cancelled: true}
 }
 rc := RunContext{
 RunID: state.runID,
 AttemptID: state.currentAttemptID,
 ThreadID: state.threadID,
 StepIndex: state.stepIndex,
 Ordinal: uint32(ordinal),
 NodeID: t.NodeID,
 Attempt: attempt,
 Resume: rt.resumeForStep(state),
 }
 if tb != nil {
 tb.drain()
 }
 out, err := node.Run(ctx, view, rc, emitter, rt.env)
 if err == nil {
 result := taskResult{ordinal: ordinal, task: t, output: out}
 if tb != nil {
 result.bufferedEv = tb.drain()
 }
 return result
 }

 lastErr = err
 retryable := policy.shouldRetry(err) && attempt < maxInt(policy.MaxAttempts, 1)
 if !retryable {
 break
 }

 sink(Event{Kind: EventTaskRetried, NodeID: t.NodeID, TaskID: t.TaskID, Message: err.Error()})
 rt.env.Metrics.IncTasksRetried()

 backoff := computeBackoffNs(policy, attempt)
 if backoff > 0 {
 if sleepErr := rt.clock.Sleep(ctx, backoff); sleepErr != nil {
 return taskResult{ordinal: ordinal, task: t, cancelled: true}
 }
 }
 if ctx.Err() != nil {
 return taskResult{ordinal: ordinal, task: t, cancelled: true}
 }
	}
	return taskResult{ordinal: ordinal, task: t, err: lastErr}
}

// resumeForStep exposes the pending resume payload to node executions only
// during the first committed step of a resumed attempt.
func (rt *Runtime) resumeForStep(state *threadState) *ResumePayload {
	return state.pendingResume
}

func maxInt(a, b int) int {
	if a > b {
 return a
	}
	return b
}

type taskEmitter struct{ sink func(Event) }

func (e *taskEmitter) Emit(kind EventKind, fields map[string]any) {
	e.sink(Event{Kind: kind, Metadata: fields})
}

func (e *taskEmitter) Debug(name string, fields map[string]any) {
	e.sink(Event{Kind: EventCustom, Name: name, Metadata: fields})
}

// currentStream resolves the live event stream for a thread's in-flight
// attempt; set by Runtime.Run before executeStep is invoked.
func (rt *Runtime) currentStream(state *threadState) *Stream {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.activeStreams[state.runID]
}

// commitAndAdvance performs (commit) and (next frontier).
func (rt *Runtime) commitAndAdvance(state *threadState, tasks []Task, results []taskResult, opts RunOptions) (stepOutcome, error) {
	graph := rt.graph
	registry := graph.Registry

	var globalRecords []writeRecord
	taskLocalRecords := map[int][]writeRecord{}
	for _, r := range results {
 for i, w := range r.output.Writes {
 rec := writeRecord{ordinal: r.ordinal, emission: i, write: w}
 spec, ok := registry.Lookup(w.Channel)
 if ok && spec.Scope == ScopeTaskLocal {
 taskLocalRecords[r.ordinal] = append(taskLocalRecords[r.ordinal], rec)
 } else {
 globalRecords = append(globalRecords, rec)
 }
 }
	}

	if err := validateWrites(registry, globalRecords, taskLocalRecords, true); err != nil {
 return stepOutcome{}, err
	}

	updatedGlobals, err := foldGlobalWrites(registry, state.global, globalRecords)
	if err != nil {
 return stepOutcome{}, err
	}
	for ord, recs := range taskLocalRecords {
 if err := foldTaskLocalWrites(registry, tasks[ord].Overlay, recs); err != nil {
 return stepOutcome{}, err
 }
	}
	for _, c := range updatedGlobals {
 state.channelVersions[c]++
	}
	state.updatedLastCommit = updatedGlobals

	var interruptTask *Task
	var interruptReq *InterruptRequest
	for _, r := range results {
 if r.output.Interrupt != nil {
 tcopy := tasks[r.ordinal]
 interruptTask = &tcopy
 interruptReq = r.output.Interrupt
 break // results already sorted by ordinal ascending before this call
 }
	}

	nextFrontier, err := rt.computeNextFrontier(state, tasks, results, globalRecords)
	if err != nil {
 return stepOutcome{}, err
	}
	state.frontier = nextFrontier

	return stepOutcome{
 interruptTask: interruptTask,
 interruptReq: interruptReq,
 updatedGlobals: updatedGlobals,
	}, nil
}

// validateWrites applies the precedence, checking the whole batch for
// each category before moving to the next. allowTaskLocal gates whether any
// task-local record is permitted at all (false for input-writes/external
// writes, step 3 and ).
func validateWrites(registry *Registry, globalRecords []writeRecord, taskLocalRecords map[int][]writeRecord, allowTaskLocal bool) error {
	var unknown []ChannelID
	all := append([]writeRecord{}, globalRecords...)
	for _, recs := range taskLocalRecords {
 all = append(all, recs...)
	}
	for _, rec := range all {
 if _, ok := registry.Lookup(rec.write.Channel); !ok {
 unknown = append(unknown, rec.write.Channel)
 }
	}
	if id, ok := smallestChannel(unknown); ok {
 return errChannel(KindUnknownChannelID, string(id), "write targets unknown channel")
	}

	if !allowTaskLocal {
 var ids []ChannelID
 for _, rec := range all {
 if spec, _ := registry.Lookup(rec.write.Channel); spec.Scope == ScopeTaskLocal {
 ids = append(ids, rec.write.Channel)
 }
 }
 if id, ok := smallestChannel(ids); ok {
 return errChannel(KindTaskLocalWriteNotAllowed, string(id), "task-local write not allowed on this path")
 }
	}

	var mismatched []ChannelID
	for _, rec := range all {
 spec, _ := registry.Lookup(rec.write.Channel)
 if !spec.checkType(rec.write.Value) {
 mismatched = append(mismatched, rec.write.Channel)
 }
	}
	if id, ok := smallestChannel(mismatched); ok {
 spec, _ := registry.Lookup(id)
 return &Error{Kind: KindChannelTypeMismatch, ChannelID: string(id), Message: "expected " + spec.ValueTypeID()}
	}

	globalCounts := map[ChannelID]int{}
	for _, rec := range globalRecords {
 globalCounts[rec.write.Channel]++
	}
	var violations []ChannelID
	for id, count := range globalCounts {
 spec, _ := registry.Lookup(id)
 if spec.UpdatePolicy == UpdateSingle && count > 1 {
 violations = append(violations, id)
 }
	}
	for _, recs := range taskLocalRecords {
 counts := map[ChannelID]int{}
 for _, r := range recs {
 counts[r.write.Channel]++
 }
 for id, count := range counts {
 spec, _ := registry.Lookup(id)
 if spec.UpdatePolicy == UpdateSingle && count > 1 {
 violations = append(violations, id)
 }
 }
	}
	if id, ok := smallestChannel(violations); ok {
 return &Error{Kind: KindUpdatePolicyViolation, ChannelID: string(id), Message: "single-update channel written more than once"}
	}
	return nil
}

// foldGlobalWrites commits global writes in registry-sorted channel order,
// each folded by (taskOrdinal ASC, emissionIndex ASC).
func foldGlobalWrites(registry *Registry, global *GlobalStore, records []writeRecord) ([]ChannelID, error) {
	byChannel := map[ChannelID][]writeRecord{}
	for _, r := range records {
 byChannel[r.write.Channel] = append(byChannel[r.write.Channel], r)
	}
	var updated []ChannelID
	for _, id := range registry.SortedIDs() {
 recs, ok := byChannel[id]
 if !ok {
 continue
 }
 sort.Slice(recs, func(i, j int) bool {
 if recs[i].ordinal != recs[j].ordinal {
 return recs[i].ordinal < recs[j].ordinal
 }
 return recs[i].emission < recs[j].emission
 })
 spec, _ := registry.Lookup(id)
 current, ok := global.Get(id)
 if !ok {
 current = spec.Initial()
 }
 for _, r := range recs {
 next, err := spec.Reducer.Reduce(current, r.write.Value)
 if err != nil {
 return nil, errChannel(KindInternalInvariantViolation, string(id), err.Error())
 }
 current = next
 }
 global.Set(id, current)
 updated = append(updated, id)
	}
	return updated, nil
}

// foldTaskLocalWrites commits one task's task-local writes, sorted by
// emission index, into its overlay.
func foldTaskLocalWrites(registry *Registry, overlay *Overlay, records []writeRecord) error {
	sort.Slice(records, func(i, j int) bool { return records[i].emission < records[j].emission })
	byChannel := map[ChannelID][]writeRecord{}
	for _, r := range records {
 byChannel[r.write.Channel] = append(byChannel[r.write.Channel], r)
	}
	for id, recs := range byChannel {
 spec, _ := registry.Lookup(id)
 current := overlay.Get(id)
 for _, r := range recs {
 next, err := spec.Reducer.Reduce(current, r.write.Value)
 if err != nil {
 return errChannel(KindInternalInvariantViolation, string(id), err.Error())
 }
 current = next
 }
 overlay.Set(id, current)
	}
	return nil
}

type seedCandidate struct {
	nodeID NodeID
	overlay *Overlay
	isJoinSeed bool
}

// computeNextFrontier implements (routing/spawn) and the join-barrier
// and trigger-filtering rules/
func (rt *Runtime) computeNextFrontier(state *threadState, tasks []Task, results []taskResult, globalRecords []writeRecord) ([]FrontierTask, error) {
	graph := rt.graph
	registry := graph.Registry

	recordsByOrdinal := map[int][]writeRecord{}
	for _, r := range globalRecords {
 recordsByOrdinal[r.ordinal] = append(recordsByOrdinal[r.ordinal], r)
	}

	var graphSeeds []seedCandidate
	var spawnSeeds []TaskSeed

	byOrdinal := map[int]taskResult{}
	for _, r := range results {
 byOrdinal[r.ordinal] = r
	}

	tasksThisStep := make([]Task, len(tasks))
	copy(tasksThisStep, tasks)

	for i, t := range tasks {
 r := byOrdinal[i]
 out := r.output

 for _, s := range out.Spawn {
 spawnSeeds = append(spawnSeeds, TaskSeed{NodeID: s.NodeID, Overlay: s.Overlay})
 }

 switch out.Next.Kind {
 case RouteEnd:
 // nothing
 case RouteNodes:
 for _, n := range out.Next.Nodes {
 graphSeeds = append(graphSeeds, seedCandidate{nodeID: n, overlay: t.Overlay})
 }
 case RouteUseGraphEdges:
 if router, ok := graph.Routers[t.NodeID]; ok {
 routerGlobal := rt.preStepGlobalForTask(state, recordsByOrdinal[i])
 view := newStoreView(registry, routerGlobal, t.Overlay)
 next := router(view)
 switch next.Kind {
 case RouteNodes:
 for _, n := range next.Nodes {
 graphSeeds = append(graphSeeds, seedCandidate{nodeID: n, overlay: t.Overlay})
 }
 case RouteEnd:
 // nothing
 default: // RouteUseGraphEdges falls through to static edges
 for _, e := range graph.EdgesFrom(t.NodeID) {
 graphSeeds = append(graphSeeds, seedCandidate{nodeID: e.To, overlay: t.Overlay})
 }
 }
 } else {
 for _, e := range graph.EdgesFrom(t.NodeID) {
 graphSeeds = append(graphSeeds, seedCandidate{nodeID: e.To, overlay: t.Overlay})
 }
 }
 }
	}

	for _, j := range graph.Joins {
 seen := state.joinSeenParents[j.ID]
 if seen == nil {
 seen = map[NodeID]bool{}
 }
 wasFull := len(seen) == len(j.Parents)
 targetRan := false
 for _, t := range tasksThisStep {
 if t.NodeID == j.Target {
 targetRan = true
 break
 }
 }
 if wasFull && targetRan {
 seen = map[NodeID]bool{}
 }
 before := len(seen) == len(j.Parents)
 isParent := map[NodeID]bool{}
 for _, p := range j.Parents {
 isParent[p] = true
 }
 for _, t := range tasksThisStep {
 if isParent[t.NodeID] {
 seen[t.NodeID] = true
 }
 }
 after := len(seen) == len(j.Parents)
 if !before && after {
 graphSeeds = append(graphSeeds, seedCandidate{nodeID: j.Target, overlay: NewOverlay(registry), isJoinSeed: true})
 }
 state.joinSeenParents[j.ID] = seen
	}

	// Dedup graph seeds by (nodeID, fingerprint(overlay)), insertion order.
	type dedupKey struct {
 node NodeID
 fp [32]byte
	}
	seenKeys := map[dedupKey]bool{}
	var deduped []seedCandidate
	for _, s := range graphSeeds {
 fp, err := TaskLocalFingerprint(registry, s.overlay)
 if err != nil {
 return nil, err
 }
 k := dedupKey{node: s.nodeID, fp: fp}
 if seenKeys[k] {
 continue
 }
 seenKeys[k] = true
 deduped = append(deduped, s)
	}

	// Trigger filtering : only applies to non-join seeds.
	var filtered []seedCandidate
	for _, s := range deduped {
 if s.isJoinSeed {
 filtered = append(filtered, s)
 continue
 }
 node, ok := graph.Nodes[s.nodeID]
 if !ok || node.RunWhen.isDefault() {
 filtered = append(filtered, s)
 continue
 }
 seenVersions := state.versionsSeenByNode[s.nodeID]
 changed := func(c ChannelID) bool {
 if seenVersions == nil {
 return true
 }
 seenV, ok := seenVersions[c]
 if !ok {
 return true
 }
 return state.channelVersions[c] > seenV
 }
 keep := false
 switch node.RunWhen.Kind {
 case TriggerAnyOf:
 for _, c := range node.RunWhen.Channels {
 if changed(c) {
 keep = true
 break
 }
 }
 case TriggerAllOf:
 keep = true
 for _, c := range node.RunWhen.Channels {
 if !changed(c) {
 keep = false
 break
 }
 }
 default:
 keep = true
 }
 if keep {
 filtered = append(filtered, s)
 }
	}

	out := make([]FrontierTask, 0, len(filtered)+len(spawnSeeds))
	for _, s := range filtered {
 out = append(out, FrontierTask{Seed: TaskSeed{NodeID: s.nodeID, Overlay: s.overlay}, Provenance: ProvenanceGraph, IsJoinSeed: s.isJoinSeed})
	}
	for _, s := range spawnSeeds {
 out = append(out, FrontierTask{Seed: s, Provenance: ProvenanceSpawn})
	}
	return out, nil
}

// preStepGlobalForTask builds the per-task router view required by :
// the pre-step global store with only this task's own global writes applied
// (lower-ordinal tasks' writes excluded).
func (rt *Runtime) preStepGlobalForTask(state *threadState, ownRecords []writeRecord) *GlobalStore {
	// state.global already reflects the full commit; reconstruct the
	// pre-step baseline by undoing is impractical for arbitrary reducers, so
	// instead we keep a pristine pre-commit clone the caller captured before
	// commitAndAdvance ran. See executeStep, which stashes it on state.
	base := state.preCommitGlobal
	if base == nil {
 base = state.global
	}
	clone := base.Clone()
	registry := rt.graph.Registry
	byChannel := map[ChannelID][]writeRecord{}
	for _, r := range ownRecords {
 byChannel[r.write.Channel] = append(byChannel[r.write.Channel], r)
	}
	for id, recs := range byChannel {
 sort.Slice(recs, func(i, j int) bool { return recs[i].emission < recs[j].emission })
 spec, _ := registry.Lookup(id)
 current, ok := clone.Get(id)
 if !ok {
 current = spec.Initial()
 }
 for _, r := range recs {
 next, err := spec.Reducer.Reduce(current, r.write.Value)
 if err != nil {
 continue
 }
 current = next
 }
 clone.Set(id, current)
	}
	return clone
}

