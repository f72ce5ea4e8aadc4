package hive

// CheckpointPolicyKind selects when a step's commit triggers a checkpoint
// save.
type CheckpointPolicyKind int

const (
	CheckpointDisabled CheckpointPolicyKind = iota
	CheckpointEveryStep
	CheckpointEvery
	CheckpointOnInterrupt
)

// CheckpointPolicy configures checkpoint cadence.
type CheckpointPolicy struct {
	Kind CheckpointPolicyKind
	Steps int // only meaningful for CheckpointEvery; must be >= 1
}

// DisabledCheckpoints never saves except on mandatory interrupt/external-write saves.
func DisabledCheckpoints() CheckpointPolicy { return CheckpointPolicy{Kind: CheckpointDisabled} }

// EveryStepCheckpoints saves after every committed step.
func EveryStepCheckpoints() CheckpointPolicy { return CheckpointPolicy{Kind: CheckpointEveryStep} }

// EveryNStepsCheckpoints saves every n committed steps.
func EveryNStepsCheckpoints(n int) CheckpointPolicy {
	return CheckpointPolicy{Kind: CheckpointEvery, Steps: n}
}

// OnInterruptCheckpoints saves only when an interrupt is selected (still
// mandatory regardless, so this is equivalent to Disabled except for
// documentation intent).
func OnInterruptCheckpoints() CheckpointPolicy { return CheckpointPolicy{Kind: CheckpointOnInterrupt} }

func (p CheckpointPolicy) shouldSave(stepIndex uint32) bool {
	switch p.Kind {
	case CheckpointEveryStep:
		return true
	case CheckpointEvery:
		if p.Steps < 1 {
			return false
		}
		return stepIndex%uint32(p.Steps) == 0
	default:
		return false
	}
}

// StreamingMode selects what streaming-mode events accompany the commit
// event sequence.
type StreamingMode int

const (
	StreamingEvents StreamingMode = iota
	StreamingValues
	StreamingUpdates
	StreamingCombined
)

// RunOptions configures one run/resume/applyExternalWrites attempt.
type RunOptions struct {
	MaxSteps uint32
	MaxConcurrentTasks int
	CheckpointPolicy CheckpointPolicy
	DebugPayloads bool
	DeterministicTokenStreaming bool
	EventBufferCapacity int
	OutputProjectionOverride *OutputProjection
	StreamingMode StreamingMode
}

// DefaultRunOptions returns the defaults.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		MaxSteps: 100,
		MaxConcurrentTasks: 8,
		CheckpointPolicy: DisabledCheckpoints(),
		EventBufferCapacity: 4096,
		StreamingMode: StreamingEvents,
	}
}

// Validate checks the minima.
func (o RunOptions) Validate() error {
	if o.MaxConcurrentTasks < 1 {
		return newErr(KindInvalidRunOptions, "maxConcurrentTasks must be >= 1")
	}
	if o.EventBufferCapacity < 1 {
		return newErr(KindInvalidRunOptions, "eventBufferCapacity must be >= 1")
	}
	if o.CheckpointPolicy.Kind == CheckpointEvery && o.CheckpointPolicy.Steps < 1 {
		return newErr(KindInvalidRunOptions, "checkpointPolicy.every(steps) requires steps >= 1")
	}
	return nil
}

// Option mutates RunOptions; used with NewRunOptions for the functional
// option variant offered alongside a plain struct.
type Option func(*RunOptions)

// NewRunOptions builds RunOptions from defaults plus functional overrides.
func NewRunOptions(opts ...Option) RunOptions {
	o := DefaultRunOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func WithMaxSteps(n uint32) Option { return func(o *RunOptions) { o.MaxSteps = n } }

func WithMaxConcurrentTasks(n int) Option { return func(o *RunOptions) { o.MaxConcurrentTasks = n } }

func WithCheckpointPolicy(p CheckpointPolicy) Option {
	return func(o *RunOptions) { o.CheckpointPolicy = p }
}

func WithDebugPayloads(b bool) Option { return func(o *RunOptions) { o.DebugPayloads = b } }

func WithDeterministicTokenStreaming(b bool) Option {
	return func(o *RunOptions) { o.DeterministicTokenStreaming = b }
}

func WithEventBufferCapacity(n int) Option {
	return func(o *RunOptions) { o.EventBufferCapacity = n }
}

func WithOutputProjectionOverride(p OutputProjection) Option {
	return func(o *RunOptions) { o.OutputProjectionOverride = &p }
}

func WithStreamingMode(m StreamingMode) Option { return func(o *RunOptions) { o.StreamingMode = m } }
