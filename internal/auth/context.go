package auth

import "context"

type contextKey string

const clientKey contextKey = "authClient"

// Client is the authenticated caller named by a token subject.
type Client struct {
	Sub string
}

// WithClient stores an authenticated client in the context.
func WithClient(ctx context.Context, client Client) context.Context {
	return context.WithValue(ctx, clientKey, client)
}

// ClientFromContext returns the authenticated client, if present.
func ClientFromContext(ctx context.Context) (Client, bool) {
	if ctx == nil {
		return Client{}, false
	}
	client, ok := ctx.Value(clientKey).(Client)
	return client, ok
}
