package upload

import (
	"context"
	"sync"

	"github.com/dvmax/mediaforge/internal/domain"
)

type State string

const (
	StateIdle         State = "idle"
	StateValidating   State = "validating"
	StateUploading    State = "uploading"
	StateUploaded     State = "uploaded"
	StateTransforming State = "transforming"
	StateTransformed  State = "transformed"
	StateFailed       State = "failed"
)

// Event is one observation of the tracker: a state change or an upload
// progress tick. Delivery is best-effort; a dropped event only degrades
// feedback, never correctness.
type Event struct {
	State    State
	Progress int
	Code     domain.ErrorCode
	Message  string
}

type transport interface {
	Upload(ctx context.Context, job UploadJob, onProgress func(percent int)) (Asset, error)
	Transform(ctx context.Context, request domain.TransformRequest) (TransformResult, error)
}

// Tracker drives a single asset through the ingestion flow. Submit is
// accepted only from idle, so a second submission while an upload is in
// flight is rejected before any transport call. After a transform failure
// the uploaded asset reference is retained, letting the user retry effects
// without re-uploading.
type Tracker struct {
	mu         sync.Mutex
	transport  transport
	maxBytes   int64
	state      State
	failedFrom State
	asset      *Asset
	result     *TransformResult
	events     chan Event
}

func NewTracker(t transport, maxBytes int64) *Tracker {
	return &Tracker{
		transport: t,
		maxBytes:  maxBytes,
		state:     StateIdle,
		events:    make(chan Event, 64),
	}
}

// Events exposes the single-subscriber event stream.
func (t *Tracker) Events() <-chan Event {
	return t.events
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Asset returns the ingested asset, if the tracker has reached uploaded.
func (t *Tracker) Asset() (Asset, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.asset == nil {
		return Asset{}, false
	}
	return *t.asset, true
}

// Result returns the transformation outcome, if the tracker has reached
// transformed.
func (t *Tracker) Result() (TransformResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.result == nil {
		return TransformResult{}, false
	}
	return *t.result, true
}

// Submit validates the job and uploads it. Only accepted from idle.
func (t *Tracker) Submit(ctx context.Context, job UploadJob) (Asset, error) {
	t.mu.Lock()
	if t.state != StateIdle {
		state := t.state
		t.mu.Unlock()
		return Asset{}, domain.NewError(domain.CodeInvalidRequest, "an upload is already in progress or finished; reset first (state: "+string(state)+")")
	}
	t.setLocked(StateValidating)
	t.mu.Unlock()

	if err := ValidateJob(job, t.maxBytes); err != nil {
		t.fail(StateValidating, err)
		return Asset{}, err
	}

	t.mu.Lock()
	t.setLocked(StateUploading)
	t.mu.Unlock()

	asset, err := t.transport.Upload(ctx, job, func(percent int) {
		t.emit(Event{State: StateUploading, Progress: percent})
	})
	if err != nil {
		t.fail(StateUploading, err)
		return Asset{}, err
	}

	t.mu.Lock()
	t.asset = &asset
	t.setLocked(StateUploaded)
	t.mu.Unlock()
	return asset, nil
}

// ApplyEffects requests a transformation for the uploaded asset. Accepted
// from uploaded, and from failed when the failure happened while
// transforming.
func (t *Tracker) ApplyEffects(ctx context.Context, effectIDs []string) (TransformResult, error) {
	t.mu.Lock()
	retryable := t.state == StateFailed && t.failedFrom == StateTransforming && t.asset != nil
	if t.state != StateUploaded && !retryable {
		state := t.state
		t.mu.Unlock()
		return TransformResult{}, domain.NewError(domain.CodeInvalidRequest, "no uploaded asset to transform (state: "+string(state)+")")
	}
	asset := *t.asset
	t.setLocked(StateTransforming)
	t.mu.Unlock()

	result, err := t.transport.Transform(ctx, domain.TransformRequest{
		PublicID: asset.Identifier,
		Effects:  effectIDs,
		Kind:     asset.MediaType,
	})
	if err != nil {
		t.fail(StateTransforming, err)
		return TransformResult{}, err
	}

	t.mu.Lock()
	t.result = &result
	t.setLocked(StateTransformed)
	t.mu.Unlock()
	return result, nil
}

// Reset returns the tracker to idle. Only valid from a terminal state.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateTransformed && t.state != StateFailed {
		return domain.NewError(domain.CodeInvalidRequest, "cannot reset while in progress (state: "+string(t.state)+")")
	}
	t.asset = nil
	t.result = nil
	t.failedFrom = ""
	t.setLocked(StateIdle)
	return nil
}

func (t *Tracker) fail(from State, err error) {
	t.mu.Lock()
	t.failedFrom = from
	if from != StateTransforming {
		t.asset = nil
	}
	t.state = StateFailed
	t.mu.Unlock()
	t.emit(Event{State: StateFailed, Code: domain.CodeOf(err), Message: domain.MessageOf(err)})
}

// setLocked changes state and emits; the caller holds t.mu.
func (t *Tracker) setLocked(next State) {
	t.state = next
	t.emit(Event{State: next})
}

// emit never blocks: when the subscriber lags, the event is dropped.
func (t *Tracker) emit(event Event) {
	select {
	case t.events <- event:
	default:
	}
}
