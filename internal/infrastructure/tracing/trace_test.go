package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStartSpanInheritsTrace(t *testing.T) {
	tracer := New("test", zap.NewNop())
	defer tracer.Close()

	parent, ctx := tracer.StartSpan(context.Background(), "parent")
	child, childCtx := tracer.StartSpan(ctx, "child")

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
	assert.Equal(t, child.SpanID, GetSpanID(childCtx))
	assert.NotEqual(t, parent.SpanID, child.SpanID)
}

func TestWithTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "abc")
	assert.Equal(t, TraceID("abc"), GetTraceID(ctx))

	assert.Equal(t, TraceID(""), GetTraceID(WithTraceID(context.Background(), "")))
}

func TestSubmitLogsSpans(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := New("test", zap.New(core))

	ok, _ := tracer.StartSpan(context.Background(), "fs.readFile")
	ok.Finish()
	tracer.Submit(ok)

	failed, _ := tracer.StartSpan(context.Background(), "terminal.kill")
	failed.SetError(errors.New("boom"))
	failed.Finish()
	tracer.Submit(failed)

	tracer.Close()

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, 1, logs.FilterMessage("span completed").Len())
	assert.Equal(t, 1, logs.FilterMessage("span completed with error").Len())
}

func TestSubmitAfterCloseIsDropped(t *testing.T) {
	tracer := New("test", zap.NewNop())
	tracer.Close()
	tracer.Close()

	span, _ := tracer.StartSpan(context.Background(), "late")
	assert.NotPanics(t, func() { tracer.Submit(span) })
}
