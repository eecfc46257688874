package upload

import (
	"context"
	"testing"

	"github.com/dvmax/mediaforge/internal/domain"
)

type fakeTransport struct {
	uploadCalls    int
	transformCalls int
	uploadGate     chan struct{}
	uploadStarted  chan struct{}
	uploadErr      error
	transformErr   error
	asset          Asset
	result         TransformResult
}

func (f *fakeTransport) Upload(_ context.Context, _ UploadJob, onProgress func(int)) (Asset, error) {
	f.uploadCalls++
	if f.uploadStarted != nil {
		close(f.uploadStarted)
	}
	if f.uploadGate != nil {
		<-f.uploadGate
	}
	if f.uploadErr != nil {
		return Asset{}, f.uploadErr
	}
	if onProgress != nil {
		onProgress(50)
		onProgress(100)
	}
	return f.asset, nil
}

func (f *fakeTransport) Transform(_ context.Context, _ domain.TransformRequest) (TransformResult, error) {
	f.transformCalls++
	if f.transformErr != nil {
		return TransformResult{}, f.transformErr
	}
	return f.result, nil
}

func validJob() UploadJob {
	return NewJob([]byte("bytes"), "pic.jpg", "a picture")
}

func TestTrackerHappyPath(t *testing.T) {
	transport := &fakeTransport{
		asset:  Asset{ID: "image-uploads/pic", Identifier: "image-uploads/pic", MediaType: domain.KindImage},
		result: TransformResult{TransformedURL: "https://media.example.com/demo/image/upload/e_sepia:50/image-uploads/pic"},
	}
	tracker := NewTracker(transport, 0)

	asset, err := tracker.Submit(context.Background(), validJob())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if asset.ID != "image-uploads/pic" {
		t.Fatalf("unexpected asset %+v", asset)
	}
	if got := tracker.State(); got != StateUploaded {
		t.Fatalf("expected uploaded, got %s", got)
	}

	result, err := tracker.ApplyEffects(context.Background(), []string{"sepia"})
	if err != nil {
		t.Fatalf("apply effects: %v", err)
	}
	if result.TransformedURL == "" {
		t.Fatal("expected transformed URL")
	}
	if got := tracker.State(); got != StateTransformed {
		t.Fatalf("expected transformed, got %s", got)
	}
}

func TestTrackerRejectsSubmitWhileUploading(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{})
	transport := &fakeTransport{uploadGate: gate, uploadStarted: started, asset: Asset{ID: "x", Identifier: "x"}}
	tracker := NewTracker(transport, 0)

	firstDone := make(chan error, 1)
	go func() {
		_, err := tracker.Submit(context.Background(), validJob())
		firstDone <- err
	}()

	// Wait for the first submission to reach the transport.
	<-started

	_, err := tracker.Submit(context.Background(), validJob())
	if domain.CodeOf(err) != domain.CodeInvalidRequest {
		t.Fatalf("expected InvalidRequest, got %v", err)
	}

	close(gate)
	if err := <-firstDone; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if transport.uploadCalls != 1 {
		t.Fatalf("expected exactly one transport upload, got %d", transport.uploadCalls)
	}
}

func TestTrackerValidationFailsClosed(t *testing.T) {
	transport := &fakeTransport{}
	tracker := NewTracker(transport, 0)

	job := validJob()
	job.Title = "  "
	_, err := tracker.Submit(context.Background(), job)
	if domain.CodeOf(err) != domain.CodeMissingTitle {
		t.Fatalf("expected MissingTitle, got %v", err)
	}
	if transport.uploadCalls != 0 {
		t.Fatalf("expected zero transport calls, got %d", transport.uploadCalls)
	}
	if got := tracker.State(); got != StateFailed {
		t.Fatalf("expected failed, got %s", got)
	}

	if err := tracker.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := tracker.State(); got != StateIdle {
		t.Fatalf("expected idle after reset, got %s", got)
	}
}

func TestTrackerSizeLimitFailsClosed(t *testing.T) {
	transport := &fakeTransport{}
	tracker := NewTracker(transport, 4)

	job := NewJob([]byte("too many bytes"), "big.jpg", "big")
	_, err := tracker.Submit(context.Background(), job)
	if domain.CodeOf(err) != domain.CodeFileTooLarge {
		t.Fatalf("expected FileTooLarge, got %v", err)
	}
	if transport.uploadCalls != 0 {
		t.Fatalf("expected zero transport calls, got %d", transport.uploadCalls)
	}
}

func TestTrackerRetainsAssetAfterTransformFailure(t *testing.T) {
	transport := &fakeTransport{
		asset:        Asset{ID: "image-uploads/pic", Identifier: "image-uploads/pic", MediaType: domain.KindImage},
		transformErr: domain.NewError(domain.CodeNoValidEffects, "no valid effects provided"),
	}
	tracker := NewTracker(transport, 0)

	if _, err := tracker.Submit(context.Background(), validJob()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := tracker.ApplyEffects(context.Background(), []string{"bogus"}); domain.CodeOf(err) != domain.CodeNoValidEffects {
		t.Fatalf("expected NoValidEffects, got %v", err)
	}
	if got := tracker.State(); got != StateFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	if _, ok := tracker.Asset(); !ok {
		t.Fatal("uploaded asset must be retained after a transform failure")
	}

	transport.transformErr = nil
	transport.result = TransformResult{TransformedURL: "https://media.example.com/demo/image/upload/e_sepia:50/image-uploads/pic"}
	if _, err := tracker.ApplyEffects(context.Background(), []string{"sepia"}); err != nil {
		t.Fatalf("retry after transform failure: %v", err)
	}
	if got := tracker.State(); got != StateTransformed {
		t.Fatalf("expected transformed, got %s", got)
	}
}

func TestTrackerUploadFailureClearsAsset(t *testing.T) {
	transport := &fakeTransport{uploadErr: domain.NewError(domain.CodeRemoteUploadFailed, "media store rejected the upload")}
	tracker := NewTracker(transport, 0)

	if _, err := tracker.Submit(context.Background(), validJob()); domain.CodeOf(err) != domain.CodeRemoteUploadFailed {
		t.Fatalf("expected RemoteUploadFailed, got %v", err)
	}
	if _, ok := tracker.Asset(); ok {
		t.Fatal("no asset should be retained after an upload failure")
	}
	if _, err := tracker.ApplyEffects(context.Background(), []string{"sepia"}); domain.CodeOf(err) != domain.CodeInvalidRequest {
		t.Fatalf("expected InvalidRequest, got %v", err)
	}
}

func TestTrackerRejectsApplyEffectsFromIdle(t *testing.T) {
	tracker := NewTracker(&fakeTransport{}, 0)
	_, err := tracker.ApplyEffects(context.Background(), []string{"sepia"})
	if domain.CodeOf(err) != domain.CodeInvalidRequest {
		t.Fatalf("expected InvalidRequest, got %v", err)
	}
}

func TestTrackerRejectsResetMidFlight(t *testing.T) {
	transport := &fakeTransport{asset: Asset{ID: "x", Identifier: "x"}}
	tracker := NewTracker(transport, 0)

	if _, err := tracker.Submit(context.Background(), validJob()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := tracker.Reset(); domain.CodeOf(err) != domain.CodeInvalidRequest {
		t.Fatalf("expected InvalidRequest resetting from uploaded, got %v", err)
	}
}

func TestTrackerEventsAreBestEffort(t *testing.T) {
	transport := &fakeTransport{asset: Asset{ID: "x", Identifier: "x"}}
	tracker := NewTracker(transport, 0)

	// Nobody drains the channel; the tracker must still make progress.
	if _, err := tracker.Submit(context.Background(), validJob()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var states []State
	var progress []int
drain:
	for {
		select {
		case ev := <-tracker.Events():
			states = append(states, ev.State)
			if ev.Progress > 0 {
				progress = append(progress, ev.Progress)
			}
		default:
			break drain
		}
	}

	if len(states) == 0 {
		t.Fatal("expected buffered events")
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress regressed: %v", progress)
		}
	}
}
