package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TypeReconcileAsset re-creates a metadata row for a remote object that
	// uploaded successfully but failed to persist.
	TypeReconcileAsset = "asset:reconcile"

	// TypeProbeDerived resolves a derived-asset URL once and records its
	// size on the asset row.
	TypeProbeDerived = "asset:probe_derived"
)

// ReconcileAssetPayload carries everything needed to rebuild the metadata
// row without touching the remote object again.
type ReconcileAssetPayload struct {
	PublicID          string    `json:"public_id"`
	Kind              string    `json:"kind"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	OriginalSizeBytes int64     `json:"original_size_bytes"`
	UploadedAt        time.Time `json:"uploaded_at"`
}

type ProbeDerivedPayload struct {
	PublicID       string    `json:"public_id"`
	Kind           string    `json:"kind"`
	Descriptor     string    `json:"descriptor"`
	TransformedURL string    `json:"transformed_url"`
	RequestedAt    time.Time `json:"requested_at"`
}

func NewReconcileAssetTask(payload ReconcileAssetPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal reconcile payload: %w", err)
	}
	return asynq.NewTask(TypeReconcileAsset, body), nil
}

func ParseReconcileAssetPayload(task *asynq.Task) (ReconcileAssetPayload, error) {
	var payload ReconcileAssetPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReconcileAssetPayload{}, fmt.Errorf("unmarshal reconcile payload: %w", err)
	}
	return payload, nil
}

func NewProbeDerivedTask(payload ProbeDerivedPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal probe payload: %w", err)
	}
	return asynq.NewTask(TypeProbeDerived, body), nil
}

func ParseProbeDerivedPayload(task *asynq.Task) (ProbeDerivedPayload, error) {
	var payload ProbeDerivedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProbeDerivedPayload{}, fmt.Errorf("unmarshal probe payload: %w", err)
	}
	return payload, nil
}
