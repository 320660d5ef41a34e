// Package providers abstracts the systems objects are read from and written
// to. Sources and targets are both ObjectProviders; the engine never speaks
// a concrete wire protocol itself.
package providers

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get when the object doesn't exist.
var ErrNotFound = errors.New("object not found")

// Object is one source-native object with its provider-native identifier.
type Object struct {
	OriginID string
	Payload  map[string]interface{}
}

// Page is one page of listed objects. HasMore false ends traversal.
type Page struct {
	Objects []Object
	HasMore bool
}

// ObjectProvider lists, reads, writes, and deletes objects on one side of a
// synchronization. Delete is idempotent: deleting an absent object is
// success.
type ObjectProvider interface {
	List(ctx context.Context, ref string, page int) (*Page, error)
	Get(ctx context.Context, ref, id string) (map[string]interface{}, error)
	Write(ctx context.Context, ref string, object map[string]interface{}, existingID *string) (string, error)
	Delete(ctx context.Context, ref, id string) error
}

// Registry resolves a provider by its configured type (e.g. "memory",
// "http").
type Registry struct {
	providers map[string]ObjectProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: map[string]ObjectProvider{}}
}

func (r *Registry) Register(providerType string, provider ObjectProvider) {
	r.providers[providerType] = provider
}

func (r *Registry) Resolve(providerType string) (ObjectProvider, error) {
	provider, ok := r.providers[providerType]
	if !ok {
		return nil, errors.Errorf("no provider registered for type %q", providerType)
	}
	return provider, nil
}
