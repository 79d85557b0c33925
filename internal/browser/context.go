// internal/browser/context.go
package browser

import "context"

// CombineContext returns a context that carries the values of parentCtx and
// is canceled when either context is done. The caller must call cancel.
func CombineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)
	stop := context.AfterFunc(secondaryCtx, cancel)
	return combinedCtx, func() {
		stop()
		cancel()
	}
}
