// Package async runs non-critical side effects (audit writes, sign-in emails) off the request path.
//
// A Runner gives every task panic recovery, a timeout, and error logging. Tasks are detached
// from the caller's cancellation so a finished HTTP request does not abort its audit write,
// and nothing a task does can surface as an error to the caller:
//
//	runner := async.NewRunner(logger, 5*time.Second)
//	runner.Go(r.Context(), "audit record", func(ctx context.Context) error {
//		return sink.Write(ctx, event)
//	})
//
// Wait blocks until in-flight tasks finish; it is used during shutdown and in tests.
package async
