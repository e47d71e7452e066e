package core

import "context"

type contextKey string

const ctxKeyRequester contextKey = "requester"

// Requester identifies who triggered an operation. The web layer attaches
// it to the request context and the service logs it with run submissions.
type Requester struct {
	IP        string
	UserAgent string
	Source    string // "web" or "cli"
}

// WithRequester returns a copy of ctx carrying r.
func WithRequester(ctx context.Context, r Requester) context.Context {
	return context.WithValue(ctx, ctxKeyRequester, r)
}

// RequesterFromContext extracts the requester, if any.
func RequesterFromContext(ctx context.Context) (Requester, bool) {
	r, ok := ctx.Value(ctxKeyRequester).(Requester)
	return r, ok
}

// logAttrs returns the non-empty fields as slog key/value pairs.
func (r Requester) logAttrs() []any {
	var attrs []any
	if r.Source != "" {
		attrs = append(attrs, "source", r.Source)
	}
	if r.IP != "" {
		attrs = append(attrs, "client_ip", r.IP)
	}
	if r.UserAgent != "" {
		attrs = append(attrs, "user_agent", r.UserAgent)
	}
	return attrs
}
