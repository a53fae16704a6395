// =============================================================================
// FlowStudio 主入口
// =============================================================================
// 工作流服务与命令行工具：HTTP API、校验、分析、试运行与数据库迁移
//
// 使用方法:
//
//	flowstudio serve                          # 启动服务
//	flowstudio serve --config config.yaml     # 指定配置文件
//	flowstudio validate workflow.yaml         # 校验工作流文件
//	flowstudio analyze workflow.json --json   # 分析工作流，输出 JSON
//	flowstudio run workflow.yaml --input '{}' # 试运行（模型与工具为回显替身）
//	flowstudio migrate up                     # 运行数据库迁移
//	flowstudio version                        # 显示版本信息
//	flowstudio health                         # 健康检查
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/flowstudio/config"
	"github.com/BaSui01/flowstudio/types"
	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/analytics"
	"github.com/BaSui01/flowstudio/workflow/execution"
	"github.com/BaSui01/flowstudio/workflow/runner"
	"github.com/BaSui01/flowstudio/workflow/validation"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "validate":
		os.Exit(runValidate(os.Args[2:], os.Stdout))
	case "analyze":
		os.Exit(runAnalyze(os.Args[2:], os.Stdout))
	case "run":
		os.Exit(runRun(os.Args[2:], os.Stdout))
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, level := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting FlowStudio",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewServer(cfg, *configPath, logger, level).Run(ctx); err != nil {
		logger.Error("FlowStudio exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("FlowStudio stopped")
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🔍 validate / analyze 命令
// =============================================================================

// runValidate 校验工作流文件。返回码：0 有效，2 无效，1 读取失败。
func runValidate(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print the result as JSON")
	def, code := parseDefinitionArgs(fs, args)
	if def == nil {
		return code
	}

	res := validation.Validate(def)
	if *asJSON {
		if err := writeJSON(out, res); err != nil {
			return 1
		}
	} else {
		fmt.Fprint(out, renderValidation(displayName(def), res))
	}
	if !res.IsValid {
		return 2
	}
	return 0
}

// runAnalyze 分析工作流文件并输出报告
func runAnalyze(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print the report as JSON")
	maxPaths := fs.Int("max-paths", 0, "Cap on enumerated execution paths (0 uses the default)")
	zero := fs.Bool("zero-counts", false, "List node types that do not occur")
	def, code := parseDefinitionArgs(fs, args)
	if def == nil {
		return code
	}

	opts := []analytics.Option{analytics.WithMaxPaths(*maxPaths)}
	if *zero {
		opts = append(opts, analytics.WithZeroCounts())
	}
	rep := analytics.Analyze(def, opts...)
	if *asJSON {
		if err := writeJSON(out, rep); err != nil {
			return 1
		}
		return 0
	}
	fmt.Fprint(out, renderAnalysis(displayName(def), rep))
	return 0
}

// =============================================================================
// ▶️ run 命令
// =============================================================================

// runRun 在本地运行器上试运行工作流。返回码：0 完成，2 校验失败，3 执行失败。
func runRun(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	inputJSON := fs.String("input", "", "Input variables as a JSON object")
	timeout := fs.Duration("timeout", time.Minute, "Abort the run after this long")
	asJSON := fs.Bool("json", false, "Print the execution as JSON")
	def, code := parseDefinitionArgs(fs, args)
	if def == nil {
		return code
	}

	var input map[string]any
	if *inputJSON != "" {
		if err := json.Unmarshal([]byte(*inputJSON), &input); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --input: %v\n", err)
			return 1
		}
	}

	if res := validation.Validate(def); !res.IsValid {
		fmt.Fprint(out, renderValidation(displayName(def), res))
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	exec, err := runWorkflow(ctx, def, input, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		return 1
	}
	if *asJSON {
		if err := writeJSON(out, exec); err != nil {
			return 1
		}
	} else {
		fmt.Fprint(out, renderExecution(exec))
	}
	if exec.Status != execution.StatusCompleted {
		return 3
	}
	return 0
}

// runWorkflow 启动一次执行并等待终态。ctx 结束时停止执行并返回已取消的快照。
func runWorkflow(ctx context.Context, def *workflow.Definition, input map[string]any, logger *zap.Logger) (*execution.Execution, error) {
	local := runner.NewLocalRunner(runner.DefaultLocalConfig(), logger, dryRunOptions()...)
	coord := execution.NewCoordinator(local, execution.DefaultConfig(), logger)
	defer func() { _ = coord.Close(context.Background()) }()

	done := make(chan string, 1)
	sub := coord.SubscribeAll(func(ev execution.Event) {
		if ev.Status.Terminal() {
			select {
			case done <- ev.ExecutionID:
			default:
			}
		}
	})
	defer coord.Unsubscribe(sub)

	id, err := coord.Start(ctx, def, input)
	if err != nil {
		return nil, err
	}

	select {
	case <-done:
	case <-ctx.Done():
		if err := coord.Stop(id); err != nil && !types.IsErrorCode(err, types.ErrInvalidOperation) {
			return nil, err
		}
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	}
	return coord.Get(id)
}

// parseDefinitionArgs 解析参数并加载第一个位置参数指向的工作流文件
func parseDefinitionArgs(fs *flag.FlagSet, args []string) (*workflow.Definition, int) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, 0
		}
		return nil, 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: flowstudio %s <workflow.json|workflow.yaml> [options]\n", fs.Name())
		return nil, 1
	}
	def, err := workflow.LoadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", fs.Arg(0), err)
		return nil, 1
	}
	if def.ID == "" {
		def.ID = trimExt(filepath.Base(fs.Arg(0)))
	}
	return def, 0
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}

func displayName(def *workflow.Definition) string {
	if def.Metadata.Name != "" {
		return def.Metadata.Name
	}
	return def.ID
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode output: %v\n", err)
		return err
	}
	return nil
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	_ = fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("FlowStudio %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`FlowStudio - visual workflow service

Usage:
  flowstudio <command> [options]

Commands:
  serve      Start the FlowStudio server
  validate   Validate a workflow file
  analyze    Print complexity, paths, bottlenecks and suggestions
  run        Dry-run a workflow with echoing model and tool stand-ins
  migrate    Database migration commands
  version    Show version information
  health     Check server health
  help       Show this help message

Options for 'serve':
  --config <path>     Path to configuration file (YAML)

Options for 'validate', 'analyze' and 'run':
  --json              Print machine readable output
  --max-paths <n>     (analyze) cap on enumerated execution paths
  --zero-counts       (analyze) list node types that do not occur
  --input <json>      (run) input variables
  --timeout <d>       (run) abort after this duration (default 1m)

Examples:
  flowstudio serve --config /etc/flowstudio/config.yaml
  flowstudio validate examples/review.yaml
  flowstudio analyze examples/review.yaml --json
  flowstudio run examples/review.yaml --input '{"topic":"go"}'
  flowstudio migrate up
  flowstudio health --addr http://localhost:8080`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// initLogger 构建 logger，返回的 AtomicLevel 可在运行期调整
func initLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	zapConfig := zap.Config{
		Level:             level,
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger, level
}
