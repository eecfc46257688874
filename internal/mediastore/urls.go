package mediastore

import (
	"fmt"
	"strings"
)

// URLBuilder derives original and transformed delivery URLs. Both are pure
// functions of their inputs; the remote store computes the transformation
// on first access, so building a URL performs no network call.
type URLBuilder struct {
	Base string
}

func (b URLBuilder) base() string {
	return strings.TrimRight(b.Base, "/")
}

func (b URLBuilder) Original(kind, publicID string) string {
	return fmt.Sprintf("%s/%s/upload/%s", b.base(), kind, publicID)
}

func (b URLBuilder) Derived(kind, descriptor, publicID string) string {
	return fmt.Sprintf("%s/%s/upload/%s/%s", b.base(), kind, descriptor, publicID)
}
