/*
Package tracing provides lightweight request tracing over zap.

# Overview

Every bridge operation and HTTP request opens a span. Finished spans are
buffered and logged by a single collector goroutine: successful spans at
debug, failed spans at warn.

# Usage

	tracer := tracing.New("melius", logger)
	defer tracer.Close()

	span, ctx := tracer.StartSpan(ctx, "terminal.create")
	span.ClientID = clientID
	// ... perform operation ...
	span.Finish()
	tracer.Submit(span)

HTTP requests honour an incoming X-Trace-ID header and echo the trace id back.
*/
package tracing
