package eino

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/prompt"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-novel-context/pkg/logger"
	"z-novel-context/pkg/metrics"
	"z-novel-context/pkg/tracer"
)

// startTimeKey 在 Context 中保存渲染开始时间，OnEnd/OnError 据此计算耗时
type startTimeKey struct{}

// newPromptCallbackHandler 每次 ChatTemplate.Format 时记录一个 span、渲染次数和耗时
func newPromptCallbackHandler() *cbtemplate.PromptCallbackHandler {
	return &cbtemplate.PromptCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *prompt.CallbackInput) context.Context {
			ctx = context.WithValue(ctx, startTimeKey{}, time.Now())

			attrs := make([]attribute.KeyValue, 0, 4)
			if input != nil {
				attrs = append(attrs,
					attribute.Int("prompt.templates", len(input.Templates)),
					attribute.Int("prompt.variables", len(input.Variables)),
				)
			}
			if info != nil {
				attrs = append(attrs,
					attribute.String("eino.name", info.Name),
					attribute.String("eino.type", info.Type),
				)
			}
			ctx, _ = tracer.StartWithAttrs(ctx, "prompt.render", attrs...)
			return ctx
		},

		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *prompt.CallbackOutput) context.Context {
			metrics.PromptRenders.WithLabelValues("ok").Inc()
			d := elapsedSeconds(ctx)
			if d > 0 {
				metrics.PromptRenderDuration.Observe(d)
			}

			messages := 0
			if output != nil {
				messages = len(output.Result)
			}
			span := trace.SpanFromContext(ctx)
			span.SetAttributes(attribute.Int("prompt.messages", messages))
			span.End()

			logger.Debug(ctx, "prompt rendered", "messages", messages, "duration_ms", int64(d*1000))
			return ctx
		},

		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			metrics.PromptRenders.WithLabelValues("error").Inc()
			if d := elapsedSeconds(ctx); d > 0 {
				metrics.PromptRenderDuration.Observe(d)
			}

			span := trace.SpanFromContext(ctx)
			tracer.Fail(span, err)
			span.End()

			logger.Warn(ctx, "prompt render failed", "error", err.Error())
			return ctx
		},
	}
}

// elapsedSeconds 从 OnStart 写入的开始时间计算耗时；取不到时返回 0
func elapsedSeconds(ctx context.Context) float64 {
	start, ok := ctx.Value(startTimeKey{}).(time.Time)
	if !ok || start.IsZero() {
		return 0
	}
	return time.Since(start).Seconds()
}
