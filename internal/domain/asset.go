package domain

import (
	"strings"
	"time"
)

const (
	KindImage = "image"
	KindVideo = "video"
)

// ParseKind normalizes a user-supplied media type. Anything that is not
// explicitly "video" is treated as an image, matching the delivery grammar.
func ParseKind(raw string) string {
	if strings.ToLower(strings.TrimSpace(raw)) == KindVideo {
		return KindVideo
	}
	return KindImage
}

// Asset is one uploaded media object and its metadata record. PublicID is
// assigned by the remote media store and never changes; a row without a
// PublicID must never exist.
type Asset struct {
	PublicID          string    `json:"publicId"`
	Kind              string    `json:"mediaType"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	OriginalSizeBytes int64     `json:"originalSize"`
	DerivedSizeBytes  int64     `json:"derivedSize"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type TransformRequest struct {
	PublicID string   `json:"publicId"`
	Effects  []string `json:"effects"`
	Kind     string   `json:"mediaType"`
}

func (r TransformRequest) Validate() error {
	if strings.TrimSpace(r.PublicID) == "" {
		return NewError(CodeInvalidRequest, "publicId is required")
	}
	if len(r.Effects) == 0 {
		return NewError(CodeInvalidRequest, "no effects specified")
	}
	return nil
}
