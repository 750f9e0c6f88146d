package ctxutil

import "context"

type runDataKey struct{}

// RunData identifies one engine invocation in logs and job arguments.
type RunData struct {
	RunID string
	Phase string
}

func WithRunData(ctx context.Context, rd *RunData) context.Context {
	return context.WithValue(Default(ctx), runDataKey{}, rd)
}

func GetRunData(ctx context.Context) *RunData {
	if ctx == nil {
		return nil
	}
	if rd, ok := ctx.Value(runDataKey{}).(*RunData); ok {
		return rd
	}
	return nil
}

func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
