package workload

import (
	"context"
	"errors"
	"strings"
)

// ErrUnsupported is returned by backends that cannot perform an operation,
// such as update or delete against a message broker.
var ErrUnsupported = errors.New("operation not supported by backend")

// ID identifies a record created by a backend. Workers treat it as opaque.
type ID = string

// Patch is the set of fields written by an update.
type Patch map[string]any

// Target is one logical destination a Worker drives.
type Target struct {
	Namespace string
	Name      string
}

// ParseTarget splits "namespace.name" on the first dot. A value without a dot
// is a bare name, as used for topics.
func ParseTarget(s string) Target {
	ns, name, ok := strings.Cut(s, ".")
	if !ok {
		return Target{Name: s}
	}
	return Target{Namespace: ns, Name: name}
}

func (t Target) String() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// Record is a generated payload. The core never inspects it.
type Record struct {
	Key     string
	Headers map[string]string
	Fields  map[string]any
}

// Backend is the data store or broker a Worker drives. Errors are counted by
// the caller and never stop the run.
type Backend interface {
	Insert(ctx context.Context, target Target, rec Record) (ID, error)
	UpdateByID(ctx context.Context, target Target, id ID, patch Patch) (int64, error)
	DeleteByID(ctx context.Context, target Target, id ID) (int64, error)
}

// RecordSource produces records of roughly sizeBytes serialized bytes.
type RecordSource interface {
	Generate(sizeBytes int) Record
}

// RecordSourceFunc adapts a function to RecordSource.
type RecordSourceFunc func(sizeBytes int) Record

func (f RecordSourceFunc) Generate(sizeBytes int) Record { return f(sizeBytes) }
