package tools

import "context"

// CallContext identifies the conversation a tool call belongs to. The agent
// loop attaches it to the context before dispatching tool calls so that
// identity-scoped tools (memory) operate on the right rows.
type CallContext struct {
	Identity  string
	Channel   string
	SessionID string
	// Sandboxed reports whether command execution is containerised for this
	// turn; Workspace is the session's writable directory either way.
	Sandboxed bool
	Workspace string
}

type callContextKey struct{}

// WithCallContext returns a context carrying the call context.
func WithCallContext(ctx context.Context, cc CallContext) context.Context {
	return context.WithValue(ctx, callContextKey{}, cc)
}

// CallContextFrom extracts the call context, if any.
func CallContextFrom(ctx context.Context) (CallContext, bool) {
	cc, ok := ctx.Value(callContextKey{}).(CallContext)
	return cc, ok
}

// WorkspaceFrom returns the session workspace carried by the call context,
// falling back to def when the context carries none.
func WorkspaceFrom(ctx context.Context, def string) string {
	if cc, ok := CallContextFrom(ctx); ok && cc.Workspace != "" {
		return cc.Workspace
	}
	return def
}
