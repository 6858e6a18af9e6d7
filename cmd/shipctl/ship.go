package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hpcloud/tail"

	"github.com/omeyang/logship/pkg/config/xconf"
	"github.com/omeyang/logship/pkg/delivery/xtransport"
)

// closeTimeout 管道关闭结清的时间上限。
const closeTimeout = 10 * time.Second

// maxLineBytes stdin 单行上限，超长行会被 bufio.Scanner 截断报错。
const maxLineBytes = 1 << 20

// shipper 持有当前投递管道，--reload 模式下支持热替换。
type shipper struct {
	mu       sync.Mutex
	pipeline *xtransport.Pipeline
}

func (s *shipper) log(e xtransport.Entry) {
	s.mu.Lock()
	p := s.pipeline
	s.mu.Unlock()
	p.Log(e)
}

// swap 替换当前管道并返回旧管道，由调用方负责关闭。
func (s *shipper) swap(p *xtransport.Pipeline) *xtransport.Pipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.pipeline
	s.pipeline = p
	return old
}

func (s *shipper) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	s.mu.Lock()
	p := s.pipeline
	s.mu.Unlock()
	return p.Close(ctx)
}

// cmdRun 构建管道后把输入逐行投递，收到 SIGINT/SIGTERM 时结清退出。
func cmdRun(ctx context.Context, configPath, followPath string, reload bool) error {
	cfg, err := xconf.Load(configPath)
	if err != nil {
		return err
	}
	pipeline, err := xtransport.Build(ctx, cfg)
	if err != nil {
		return err
	}
	s := &shipper{pipeline: pipeline}

	if reload {
		watcher, werr := xconf.Watch(configPath, func(next *xconf.Pipeline, lerr error) {
			if lerr != nil {
				fmt.Fprintf(os.Stderr, "配置重载失败: %v\n", lerr)
				return
			}
			reloaded, berr := xtransport.Build(context.Background(), next)
			if berr != nil {
				fmt.Fprintf(os.Stderr, "管道重建失败: %v\n", berr)
				return
			}
			old := s.swap(reloaded)
			cctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if cerr := old.Close(cctx); cerr != nil {
				fmt.Fprintf(os.Stderr, "旧管道关闭失败: %v\n", cerr)
			}
		})
		if werr != nil {
			_ = s.close()
			return werr
		}
		watcher.StartAsync()
		defer func() { _ = watcher.Stop() }()
	}

	if followPath != "" {
		err = shipFromTail(ctx, s, followPath)
	} else {
		err = shipFromReader(ctx, s, os.Stdin)
	}

	if cerr := s.close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// shipFromReader 逐行读取 r 并投递，输入耗尽或 ctx 取消时返回。
func shipFromReader(ctx context.Context, s *shipper, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.log(parseLine(line))
	}
	return scanner.Err()
}

// shipFromTail 跟踪文件尾部投递新增行，文件被轮转后自动重新打开。
func shipFromTail(ctx context.Context, s *shipper, path string) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("tail %s: %w", path, err)
	}
	defer t.Cleanup()

	for {
		select {
		case <-ctx.Done():
			return t.Stop()
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line == nil || line.Err != nil {
				continue
			}
			text := strings.TrimRight(line.Text, "\r")
			if text == "" {
				continue
			}
			s.log(parseLine([]byte(text)))
		}
	}
}

// inputRecord 结构化输入行的解析形态。
type inputRecord struct {
	Time  time.Time         `json:"time"`
	Level string            `json:"level"`
	Msg   string            `json:"msg"`
	Meta  xtransport.Fields `json:"meta"`
}

// parseLine 把一行输入解析为日志条目。
// JSON 行按 {time,level,msg,meta} 解读，其余行原样作为 info 级消息。
func parseLine(line []byte) xtransport.Entry {
	var rec inputRecord
	if err := json.Unmarshal(line, &rec); err != nil || rec.Msg == "" {
		return xtransport.Entry{
			Message: string(line),
			Level:   xtransport.LevelInfo,
			Time:    time.Now().UTC(),
		}
	}
	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return xtransport.Entry{
		Message: rec.Msg,
		Level:   parseLevel(rec.Level),
		Time:    ts,
		Meta:    rec.Meta,
	}
}

// parseLevel 解析级别名，未知名称回落到 info。
func parseLevel(s string) xtransport.Level {
	switch strings.ToLower(s) {
	case "trace":
		return xtransport.LevelTrace
	case "debug":
		return xtransport.LevelDebug
	case "info", "":
		return xtransport.LevelInfo
	case "warn", "warning":
		return xtransport.LevelWarn
	case "error":
		return xtransport.LevelError
	case "fatal":
		return xtransport.LevelFatal
	default:
		return xtransport.LevelInfo
	}
}
