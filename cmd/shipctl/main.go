// shipctl 是 logship 投递管道的命令行入口。
//
// 用法:
//
//	shipctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config   管道配置文件路径 (.yaml/.yml/.json)
//
// 命令:
//
//	run            从 stdin（或 --follow 指定的文件）读取日志并投递
//	check          校验配置文件并打印 sink 摘要
//	help           显示帮助信息
//
// run 命令说明:
//
//	输入按行解析。JSON 行按 {time,level,msg,meta} 结构解读，
//	其余行原样作为 info 级消息投递。--follow 模式跟踪文件尾部，
//	文件被轮转后自动重新打开。--reload 模式监视配置文件变更并
//	热替换投递管道，旧管道在替换后正常关闭结清。
//
// 退出码:
//
//	0: 执行成功
//	1: 运行期错误（配置加载失败、管道构建失败、关闭超时等）
//	2: 参数错误（缺少 --config、未知命令等）
//
// 示例:
//
//	cat app.ndjson | shipctl -c pipeline.yaml run
//	shipctl -c pipeline.yaml run --follow /var/log/app/app.log
//	shipctl -c pipeline.yaml run --follow /var/log/app/app.log --reload
//	shipctl -c pipeline.yaml check
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/logship/pkg/config/xconf"
)

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "shipctl",
		Usage:   "logship 投递管道命令行入口",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "管道配置文件路径",
				Required: true,
			},
		},
		Commands: []*cli.Command{
			createRunCommand(),
			createCheckCommand(),
		},
		DefaultCommand: "help",
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一处理退出码映射，确保与文档退出码契约一致。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

// createRunCommand 创建 run 子命令。
func createRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "从 stdin 或文件读取日志并投递",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "follow",
				Aliases: []string{"f"},
				Usage:   "跟踪指定文件尾部而非读取 stdin",
			},
			&cli.BoolFlag{
				Name:  "reload",
				Usage: "监视配置文件变更并热替换管道",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cmdRun(ctx, cmd.String("config"), cmd.String("follow"), cmd.Bool("reload"))
		},
	}
}

// createCheckCommand 创建 check 子命令。
func createCheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "校验配置文件并打印 sink 摘要",
		Action: func(_ context.Context, cmd *cli.Command) error {
			return cmdCheck(cmd.String("config"), os.Stdout)
		},
	}
}

// cmdCheck 加载并校验配置，向 out 打印各 sink 的摘要。
func cmdCheck(path string, out io.Writer) error {
	cfg, err := xconf.Load(path)
	if err != nil {
		return err
	}
	for i, sink := range cfg.Sinks {
		name := sink.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(out, "sink[%d] kind=%s name=%s offload=%t\n", i, sink.Kind, name, sink.Offload)
	}
	fmt.Fprintf(out, "ok: %d sink(s)\n", len(cfg.Sinks))
	return nil
}

func run() int {
	app := createApp()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		if isCLIUsageError(err) {
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}

// isCLIUsageError 识别 CLI 框架产生的参数错误（未知 flag、缺少必填项等）。
func isCLIUsageError(err error) bool {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "flag provided but not defined") ||
		strings.Contains(msg, "Required flag") ||
		strings.Contains(msg, "No help topic")
}
