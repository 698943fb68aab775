package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"z-novel-context/internal/domain/entity"
	apperrors "z-novel-context/pkg/errors"
	"z-novel-context/pkg/logger"
	"z-novel-context/pkg/tracer"
)

func TestParseConstraints(t *testing.T) {
	tests := []struct {
		name    string
		raw     []string
		want    []entity.PromptConstraint
		wantErr bool
	}{
		{name: "empty", raw: nil, want: []entity.PromptConstraint{}},
		{
			name: "trims parts and keeps colons in the rule",
			raw:  []string{" character : Anna never lies: ever"},
			want: []entity.PromptConstraint{{Type: "character", Rule: "Anna never lies: ever", Scope: entity.ScopeLocal}},
		},
		{name: "missing separator", raw: []string{"style"}, wantErr: true},
		{name: "empty rule", raw: []string{"style:"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseConstraints(tt.raw)
			if tt.wantErr {
				assert.True(t, errors.Is(err, apperrors.ErrInvalidParam))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandTree(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"chunk", "context", "prompt", "templates", "think", "history", "branches", "switch", "merge", "next-prompt", "archive", "health"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestReportError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantLine string
	}{
		{name: "plain error", err: errors.New("boom"), wantCode: 1},
		{
			name:     "caller mistake",
			err:      apperrors.ErrTemplateNotFound.WithDetail("missing"),
			wantCode: 2,
			wantLine: "code: 3001",
		},
		{
			name:     "wrapped storage failure",
			err:      fmt.Errorf("archive: %w", apperrors.ErrDatabase),
			wantCode: 1,
			wantLine: "code: 5001",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			assert.Equal(t, tt.wantCode, reportError(&buf, tt.err))
			assert.Contains(t, buf.String(), "Error: "+tt.err.Error())
			if tt.wantLine == "" {
				assert.NotContains(t, buf.String(), "code:")
			} else {
				assert.Contains(t, buf.String(), tt.wantLine)
			}
		})
	}
}

type fakeChecker struct {
	checkErr error
	closed   bool
}

func (f *fakeChecker) HealthCheck(context.Context) error { return f.checkErr }

func (f *fakeChecker) Close() error {
	f.closed = true
	return nil
}

func TestCheckComponent(t *testing.T) {
	ctx := context.Background()

	t.Run("up with stats", func(t *testing.T) {
		c := &fakeChecker{}
		h := checkComponent(ctx,
			func() (*fakeChecker, error) { return c, nil },
			func(*fakeChecker) (any, error) { return map[string]int{"open": 1}, nil },
		)
		assert.Equal(t, statusUp, h.Status)
		assert.Equal(t, map[string]int{"open": 1}, h.Stats)
		assert.Empty(t, h.Error)
		assert.True(t, c.closed)
	})

	t.Run("connect failure", func(t *testing.T) {
		h := checkComponent(ctx,
			func() (*fakeChecker, error) { return nil, errors.New("dial refused") },
			nil,
		)
		assert.Equal(t, statusDown, h.Status)
		assert.Equal(t, "dial refused", h.Error)
	})

	t.Run("check failure skips stats", func(t *testing.T) {
		c := &fakeChecker{checkErr: errors.New("timeout")}
		called := false
		h := checkComponent(ctx,
			func() (*fakeChecker, error) { return c, nil },
			func(*fakeChecker) (any, error) {
				called = true
				return nil, nil
			},
		)
		assert.Equal(t, statusDown, h.Status)
		assert.False(t, called)
		assert.True(t, c.closed)
	})

	t.Run("stats failure keeps status", func(t *testing.T) {
		h := checkComponent(ctx,
			func() (*fakeChecker, error) { return &fakeChecker{}, nil },
			func(*fakeChecker) (any, error) { return nil, errors.New("no pool") },
		)
		assert.Equal(t, statusUp, h.Status)
		assert.Equal(t, "no pool", h.Error)
		assert.Nil(t, h.Stats)
	})
}

func TestWithCommandSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx := withCommandSpan(context.Background(), "chunk")
	defer tracer.SpanFromContext(ctx).End()

	traceID := tracer.TraceID(ctx)
	require.NotEmpty(t, traceID)
	assert.Equal(t, traceID, ctx.Value(logger.TraceIDKey))
	assert.Equal(t, tracer.SpanID(ctx), ctx.Value(logger.SpanIDKey))
}
