package hive

import "context"

// ApplyExternalWrites commits writes to a thread's global store outside of
// any run attempt : a human operator or external system patching state
// between runs. It behaves as a single synthetic committed step at the
// thread's current stepIndex — no node executes, the frontier and join
// barriers are untouched, and the result is unconditionally checkpointed
// regardless of the configured CheckpointPolicy, since this is the only
// record of the write ever happening.
//
// It fails with InterruptPending if the thread has a pending interruption;
// resume it first. Writes are validated exactly as a normal step's global
// writes are (task-local channels are never permitted here).
func (rt *Runtime) ApplyExternalWrites(ctx context.Context, threadID ThreadID, writes []Write) (CheckpointID, error) {
	lock := rt.lockFor(threadID)
	lock.Lock()
	defer lock.Unlock()

	state, _, err := rt.loadOrInitState(ctx, threadID)
	if err != nil {
 return "", err
	}
	if state.interruption != nil {
 return "", &Error{Kind: KindInterruptPending, Message: "thread has a pending interruption; resume it before writing externally"}
	}
	if rt.store == nil {
 return "", newErr(KindCheckpointStoreMissing, "external writes require a configured checkpoint store")
	}

	records := make([]writeRecord, len(writes))
	for i, w := range writes {
 records[i] = writeRecord{ordinal: 0, emission: i, write: w}
	}
	if err := validateWrites(rt.graph.Registry, records, nil, false); err != nil {
 return "", err
	}
	updated, err := foldGlobalWrites(rt.graph.Registry, state.global, records)
	if err != nil {
 return "", err
	}
	for _, c := range updated {
 state.channelVersions[c]++
	}
	state.updatedLastCommit = updated

	cpID := ComputeCheckpointID(state.runID, state.stepIndex)
	cp := rt.buildCheckpoint(state, cpID, state.interruption)
	if err := rt.store.Save(ctx, cp); err != nil {
 return "", err
	}
	state.latestCheckpointID = cpID

	if stream := rt.currentStream(state); stream != nil {
 _ = stream.Push(ctx, Event{Kind: EventCheckpointSaved, ThreadID: threadID, CheckpointID: cpID})
	}

	return cpID, nil
}
