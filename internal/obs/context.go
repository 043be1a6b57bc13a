package obs

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

type annotationsKey struct{}

// annotations collects request-scoped fields that handlers add after the
// request logger has already wrapped the request.
type annotations struct {
	mu     sync.Mutex
	keys   []string
	values map[string]string
}

func withAnnotations(ctx context.Context) (context.Context, *annotations) {
	a := &annotations{values: make(map[string]string)}
	return context.WithValue(ctx, annotationsKey{}, a), a
}

// Annotate attaches key=value to the request log line of the request ctx
// belongs to. Outside a RequestLogger it does nothing. A repeated key keeps
// its last value.
func Annotate(ctx context.Context, key, value string) {
	if ctx == nil || key == "" {
		return
	}
	a, ok := ctx.Value(annotationsKey{}).(*annotations)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, seen := a.values[key]; !seen {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

func (a *annotations) apply(evt *zerolog.Event) *zerolog.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, k := range a.keys {
		evt = evt.Str(k, a.values[k])
	}
	return evt
}
