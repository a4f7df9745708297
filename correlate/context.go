package correlate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Context identifies one logical request for error correlation. Contexts
// nest: a child derived inside an active context inherits its ambient
// identity (correlation id, trace id, user/session/job) unless a field is
// explicitly overridden.
type Context struct {
	CorrelationID string
	TraceID       string
	SpanID        string
	UserID        string
	SessionID     string
	JobID         string
	Service       string
	Operation     string
	Timestamp     time.Time
	Metadata      map[string]string
}

// Fields are the caller-supplied overrides when deriving a Context.
// Empty fields inherit from the ambient parent.
type Fields struct {
	CorrelationID string
	TraceID       string
	SpanID        string
	UserID        string
	SessionID     string
	JobID         string
	Service       string
	Operation     string
	Metadata      map[string]string
}

type contextKey struct{}

// NewContext derives a child context carrying a correlation Context built
// from the ambient parent (if any), the active OTel span (if any), and
// fields, in increasing precedence. Missing ids are generated.
//
// The returned *Context must be treated as immutable once published.
func NewContext(ctx context.Context, fields Fields) (context.Context, *Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	cc := &Context{Timestamp: time.Now()}

	if parent, ok := FromContext(ctx); ok {
		cc.CorrelationID = parent.CorrelationID
		cc.TraceID = parent.TraceID
		cc.UserID = parent.UserID
		cc.SessionID = parent.SessionID
		cc.JobID = parent.JobID
		cc.Service = parent.Service
		if len(parent.Metadata) > 0 {
			cc.Metadata = make(map[string]string, len(parent.Metadata))
			for k, v := range parent.Metadata {
				cc.Metadata[k] = v
			}
		}
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		if cc.TraceID == "" {
			cc.TraceID = sc.TraceID().String()
		}
		cc.SpanID = sc.SpanID().String()
	}

	applyFields(cc, fields)

	if cc.CorrelationID == "" {
		cc.CorrelationID = uuid.NewString()
	}
	if cc.TraceID == "" {
		cc.TraceID = uuid.NewString()
	}
	if cc.SpanID == "" {
		cc.SpanID = uuid.NewString()[:8]
	}

	return context.WithValue(ctx, contextKey{}, cc), cc
}

func applyFields(cc *Context, fields Fields) {
	if fields.CorrelationID != "" {
		cc.CorrelationID = fields.CorrelationID
	}
	if fields.TraceID != "" {
		cc.TraceID = fields.TraceID
	}
	if fields.SpanID != "" {
		cc.SpanID = fields.SpanID
	}
	if fields.UserID != "" {
		cc.UserID = fields.UserID
	}
	if fields.SessionID != "" {
		cc.SessionID = fields.SessionID
	}
	if fields.JobID != "" {
		cc.JobID = fields.JobID
	}
	if fields.Service != "" {
		cc.Service = fields.Service
	}
	if fields.Operation != "" {
		cc.Operation = fields.Operation
	}
	if len(fields.Metadata) > 0 {
		if cc.Metadata == nil {
			cc.Metadata = make(map[string]string, len(fields.Metadata))
		}
		for k, v := range fields.Metadata {
			cc.Metadata[k] = v
		}
	}
}

// FromContext returns the ambient correlation Context, if one is active.
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	cc, ok := ctx.Value(contextKey{}).(*Context)
	return cc, ok && cc != nil
}

// With scopes a derived correlation context over fn. Context scoping gives
// the push/pop pairing on every exit path, including panics.
func With(ctx context.Context, fields Fields, fn func(context.Context) error) error {
	scoped, _ := NewContext(ctx, fields)
	return fn(scoped)
}
