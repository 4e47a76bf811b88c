// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestOperationAndCommitSpans(t *testing.T) {
	rec := withRecorder(t)

	ctx, op := StartOperationSpan(context.Background(), "op-1", "markRead")
	_, commit := StartCommitSpan(ctx, "op-1", 0, 2)
	EndSpan(commit, errors.New("unavailable"))
	EndSpan(op, nil)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "batchop.commit", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.Int("commit.targets", 2))
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())

	assert.Equal(t, "batchop.execute", spans[1].Name())
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
	assert.Contains(t, spans[1].Attributes(), attribute.String("operation.type", "markRead"))
}

func TestRecoverySpan(t *testing.T) {
	rec := withRecorder(t)
	_, span := StartRecoverySpan(context.Background())
	EndSpan(span, nil)
	require.Len(t, rec.Ended(), 1)
	assert.Equal(t, "batchop.recover", rec.Ended()[0].Name())
}
