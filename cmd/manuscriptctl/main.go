// manuscriptctl 文稿上下文管理命令行工具
//
// 切分文稿、按位置检索上下文、记录可分支的推理步骤并组装 Prompt。
// 结果以 JSON 写到 stdout，日志写到 stderr。
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"z-novel-context/internal/application/session"
	"z-novel-context/internal/config"
	"z-novel-context/internal/domain/entity"
	"z-novel-context/internal/domain/repository"
	"z-novel-context/internal/infrastructure/extraction"
	"z-novel-context/internal/infrastructure/persistence/redis"
	einoobs "z-novel-context/internal/observability/eino"
	"z-novel-context/internal/workflow/prompt"
	apperrors "z-novel-context/pkg/errors"
	"z-novel-context/pkg/logger"
	"z-novel-context/pkg/tracer"
)

var (
	// 全局参数
	configPath string
	sessionID  string
	verbose    bool
	people     []string
	places     []string

	app *application
)

// application 单次命令执行期间的依赖
type application struct {
	cfg      *config.Config
	registry *session.Registry
	closers  []func(context.Context) error
}

var rootCmd = &cobra.Command{
	Use:   "manuscriptctl",
	Short: "Manuscript context management for narrative analysis",
	Long: `manuscriptctl splits a manuscript into analysed chunks, retrieves the
context around a position, records branching analysis steps and assembles
prompts for an external generator.

Sessions hold the reasoning log and context history. They survive between
invocations only when session.persist is enabled (Redis).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		app = a
		cmd.SetContext(withCommandSpan(cmd.Context(), cmd.Name()))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		tracer.SpanFromContext(cmd.Context()).End()
		if app == nil {
			return nil
		}
		return app.shutdown(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default configs/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&sessionID, "session", "s", "default", "analysis session id")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringSliceVar(&people, "people", nil, "names always extracted as characters")
	rootCmd.PersistentFlags().StringSliceVar(&places, "places", nil, "names always extracted as locations")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(reportError(os.Stderr, err))
	}
}

// reportError 输出错误并返回退出码：参数类错误（4xx）为 2，其余为 1
func reportError(w io.Writer, err error) int {
	fmt.Fprintln(w, "Error:", err)
	if !apperrors.IsAppError(err) {
		return 1
	}
	appErr := apperrors.AsAppError(err)
	fmt.Fprintf(w, "  code: %s\n", appErr.Code)
	if appErr.HTTPStatus >= 400 && appErr.HTTPStatus < 500 {
		return 2
	}
	return 1
}

// withCommandSpan 为本次命令开启根 Span，并把追踪 ID 写入日志上下文
func withCommandSpan(ctx context.Context, name string) context.Context {
	ctx, _ = tracer.Start(ctx, "manuscriptctl."+name)
	if id := tracer.TraceID(ctx); id != "" {
		ctx = logger.WithContext(ctx, logger.TraceIDKey, id)
		ctx = logger.WithContext(ctx, logger.SpanIDKey, tracer.SpanID(ctx))
	}
	return ctx
}

// bootstrap 加载配置并初始化日志、追踪和会话注册表
func bootstrap(ctx context.Context) (*application, error) {
	var cfg *config.Config
	var err error
	if configPath == "" {
		cfg, err = config.Load()
	} else {
		cfg, err = config.LoadFrom(configPath)
	}
	if err != nil {
		return nil, err
	}

	level := cfg.Observability.Logging.Level
	if verbose {
		level = "debug"
	}
	logger.InitWithWriter(os.Stderr, level, cfg.Observability.Logging.Format)

	a := &application{cfg: cfg}

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init tracer: %w", err)
	}
	a.closers = append(a.closers, shutdown)
	einoobs.Init()

	factory, err := managerFactory(cfg)
	if err != nil {
		return nil, err
	}

	var store repository.SnapshotStore
	if cfg.Session.Persist {
		client, err := redis.NewClient(&cfg.Cache.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		store = redis.NewSnapshotStore(client, cfg.Session.KeyPrefix)
	}

	a.registry = session.NewRegistry(store, factory, session.Options{
		TTL:             cfg.Session.TTL,
		CleanupInterval: cfg.Session.CleanupInterval,
	})
	return a, nil
}

// managerFactory 每个会话一个独立的组装器；额外模板包只读取一次
func managerFactory(cfg *config.Config) (session.Factory, error) {
	var pack []byte
	if path := cfg.Prompt.TemplatesFile; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read templates file %s: %w", path, err)
		}
		pack = data
	}
	extractor := extraction.NewHeuristicExtractor(
		extraction.WithKnownPeople(people...),
		extraction.WithKnownPlaces(places...),
	)
	window := cfg.Prompt.DefaultWindow

	return func() (*session.Manager, error) {
		assembler, err := prompt.NewDefaultAssembler()
		if err != nil {
			return nil, err
		}
		if pack != nil {
			globals, err := assembler.Registry().LoadTemplates(bytes.NewReader(pack))
			if err != nil {
				return nil, err
			}
			for _, c := range globals {
				assembler.AddGlobalConstraint(c)
			}
		}
		return session.NewManager(extractor, assembler, window), nil
	}, nil
}

func (a *application) shutdown(ctx context.Context) error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.cfg.Observability.Metrics.Enabled && a.cfg.Observability.Metrics.DumpOnExit {
		if err := dumpMetrics(os.Stderr); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// withSession 打开会话，在会话锁内执行 fn，结束后保存
func withSession(ctx context.Context, fn func(m *session.Manager) error) error {
	h, err := app.registry.Open(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := h.Do(fn); err != nil {
		return err
	}
	return app.registry.Close(ctx, sessionID)
}

// chunkOptions 配置值，命令行显式指定的参数优先
func chunkOptions(cmd *cobra.Command) entity.ChunkOptions {
	c := app.cfg.Chunking
	opts := entity.ChunkOptions{
		MaxChunkSize:     c.MaxChunkSize,
		OverlapSize:      c.OverlapSize,
		PreserveScenes:   c.PreserveScenes,
		PreserveChapters: c.PreserveChapters,
		ContextWindow:    c.ContextWindow,
	}
	flags := cmd.Flags()
	if flags.Changed("max-chunk-size") {
		opts.MaxChunkSize, _ = flags.GetInt("max-chunk-size")
	}
	if flags.Changed("overlap") {
		opts.OverlapSize, _ = flags.GetInt("overlap")
	}
	if flags.Changed("no-scenes") {
		opts.PreserveScenes = false
	}
	if flags.Changed("no-chapters") {
		opts.PreserveChapters = false
	}
	return opts
}

func addChunkFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-chunk-size", 0, "estimated token limit per chunk")
	cmd.Flags().Int("overlap", 0, "estimated tokens carried over from the previous chunk")
	cmd.Flags().Bool("no-scenes", false, "do not split at scene breaks")
	cmd.Flags().Bool("no-chapters", false, "do not split at chapter headings")
}

// readManuscript 读取文件，"-" 表示 stdin
func readManuscript(cmd *cobra.Command, path string) (string, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dumpMetrics(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
