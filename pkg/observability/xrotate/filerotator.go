package xrotate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/omeyang/logship/pkg/resilience/xretry"
)

// Interval 时间桶轮转粒度。
type Interval int

const (
	// IntervalNone 不按时间轮转
	IntervalNone Interval = iota

	// IntervalHourly 每小时（UTC）轮转一次
	IntervalHourly

	// IntervalDaily 每天（UTC）轮转一次
	IntervalDaily
)

// Policy 轮转策略。
type Policy struct {
	// MaxBytes 文件大小阈值，达到或超过即触发轮转；0 表示不按大小轮转
	MaxBytes int64

	// Interval 时间桶粒度
	Interval Interval

	// MaxFiles 保留的轮转文件数量（最新的 N 个）；0 表示不清理
	MaxFiles int

	// Compress 轮转后是否 gzip 压缩
	Compress bool
}

// validate 校验策略字段。
func (p Policy) validate() error {
	if p.MaxBytes < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxBytes, p.MaxBytes)
	}
	if p.MaxFiles < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxFiles, p.MaxFiles)
	}
	if p.Interval < IntervalNone || p.Interval > IntervalDaily {
		return fmt.Errorf("%w: got %d", ErrInvalidInterval, p.Interval)
	}
	return nil
}

// transientFSCodes 重命名/删除操作容忍的瞬态文件系统错误码。
// Windows 上句柄尚未释放时 rename 会报 busy，短重试即可恢复。
var transientFSCodes = []string{"ENOENT", "EBUSY", "EAGAIN"}

// FileRotator 投递引擎使用的轮转状态机。
//
// 文件流由调用方（文件 transport）持有，Rotate 通过回调协调
// 关闭与重建。同一实例上最多只有一个轮转在执行：
// 并发调用者等待在途轮转完成并得到 false。
type FileRotator struct {
	path string
	dir  string
	base string
	ext  string

	policy Policy
	exec   *xretry.Executor
	now    func() time.Time

	mu       sync.Mutex
	rotating bool
	inflight chan struct{}
	bucket   string
}

// RotatorOption FileRotator 配置选项。
type RotatorOption func(*FileRotator)

// WithClock 注入时钟，用于测试时间桶切换与轮转文件命名。
func WithClock(now func() time.Time) RotatorOption {
	return func(r *FileRotator) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRetryExecutor 覆盖文件系统操作使用的重试执行器。
func WithRetryExecutor(exec *xretry.Executor) RotatorOption {
	return func(r *FileRotator) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// NewFileRotator 创建轮转状态机。
// path 是活动日志文件的路径；轮转产物写在同一目录下。
func NewFileRotator(path string, policy Policy, opts ...RotatorOption) (*FileRotator, error) {
	if path == "" {
		return nil, ErrEmptyFilename
	}
	if err := policy.validate(); err != nil {
		return nil, err
	}

	ext := filepath.Ext(path)
	r := &FileRotator{
		path:   path,
		dir:    filepath.Dir(path),
		base:   strings.TrimSuffix(filepath.Base(path), ext),
		ext:    ext,
		policy: policy,
		now:    time.Now,
		exec: xretry.New(
			xretry.WithMaxRetry(3),
			xretry.WithBaseDelay(50*time.Millisecond),
			xretry.WithMaxDelay(time.Second),
			xretry.WithRetryableCodes(transientFSCodes...),
		),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// ShouldRotate 判断是否应当轮转。
//
// 两个触发条件，任一满足即返回 true：
//   - 当前 UTC 时间桶与上次观测到的不同（首次观测只记录，不触发）
//   - size 达到或超过 MaxBytes
//
// 检查会更新存储的时间桶键：一次桶切换恰好触发一次。
func (r *FileRotator) ShouldRotate(size int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	hit := false
	if key := r.bucketKey(r.now()); key != "" {
		switch {
		case r.bucket == "":
			r.bucket = key
		case key != r.bucket:
			r.bucket = key
			hit = true
		}
	}
	if r.policy.MaxBytes > 0 && size >= r.policy.MaxBytes {
		hit = true
	}
	return hit
}

// bucketKey 返回 t 所属时间桶的键；不按时间轮转时返回空串。
func (r *FileRotator) bucketKey(t time.Time) string {
	switch r.policy.Interval {
	case IntervalHourly:
		return t.UTC().Format("2006-01-02T15")
	case IntervalDaily:
		return t.UTC().Format("2006-01-02")
	default:
		return ""
	}
}

// Rotate 执行一次轮转。
//
// 已有轮转在途时，等待其完成并返回 (false, nil)：并发调用者
// 观察到的是同一次物理轮转。否则依次执行：
//
//  1. closeSink 释放文件句柄
//  2. 将活动文件重命名为带时间戳的副本（重试，容忍瞬态错误）
//  3. 若启用压缩，流式压缩为 .gz 并删除未压缩副本
//  4. 若设置保留数量，删除超出数量的最旧轮转文件（绝不删除活动文件名）
//  5. 无论 2~4 结果如何，openSink 必然执行，transport 不会失去输出流
//
// 中间步骤的失败通过 onError 上报；返回值 rotated 表示本次调用
// 是否真正执行了轮转。
func (r *FileRotator) Rotate(ctx context.Context, closeSink, openSink func() error, onError func(error)) (rotated bool, err error) {
	if closeSink == nil || openSink == nil {
		return false, ErrNilSinkFunc
	}

	r.mu.Lock()
	if r.rotating {
		ch := r.inflight
		r.mu.Unlock()
		select {
		case <-ch:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	ch := make(chan struct{})
	r.rotating = true
	r.inflight = ch
	r.mu.Unlock()

	// 轮转标志在 doRotate 失败时同样被清除，状态机不会卡死
	defer func() {
		r.mu.Lock()
		r.rotating = false
		r.inflight = nil
		r.mu.Unlock()
		close(ch)
	}()

	return true, r.doRotate(ctx, closeSink, openSink, onError)
}

func (r *FileRotator) doRotate(ctx context.Context, closeSink, openSink func() error, onError func(error)) (err error) {
	report := func(e error) {
		if e != nil && onError != nil {
			onError(e)
		}
	}

	// openSink 在保证执行的收尾块中运行
	defer func() {
		if openErr := openSink(); openErr != nil {
			openErr = fmt.Errorf("xrotate: reopen after rotate: %w", openErr)
			report(openErr)
			if err == nil {
				err = openErr
			}
		}
	}()

	if cerr := closeSink(); cerr != nil {
		cerr = fmt.Errorf("xrotate: close before rotate: %w", cerr)
		report(cerr)
		return cerr
	}

	target := r.rotatedName()
	if rerr := r.exec.Do(ctx, func(context.Context) error {
		return classifyFS(os.Rename(r.path, target))
	}); rerr != nil {
		rerr = fmt.Errorf("xrotate: rename %s: %w", filepath.Base(target), rerr)
		report(rerr)
		return rerr
	}

	if r.policy.Compress {
		if cerr := r.compress(ctx, target); cerr != nil {
			// 压缩失败保留未压缩副本，仍参与保留清理
			report(fmt.Errorf("xrotate: compress %s: %w", filepath.Base(target), cerr))
		}
	}

	if r.policy.MaxFiles > 0 {
		if perr := r.prune(); perr != nil {
			report(fmt.Errorf("xrotate: prune: %w", perr))
		}
	}
	return nil
}

// rotatedName 生成轮转文件路径。
// 同一毫秒内的连续轮转追加递增序号避免覆盖。
func (r *FileRotator) rotatedName() string {
	token := timestampToken(r.now())
	name := filepath.Join(r.dir, r.base+"."+token+r.ext)
	for seq := 1; ; seq++ {
		if _, err := os.Stat(name); err != nil {
			if _, gerr := os.Stat(name + ".gz"); gerr != nil {
				return name
			}
		}
		name = filepath.Join(r.dir, fmt.Sprintf("%s.%s-%d%s", r.base, token, seq, r.ext))
	}
}

// timestampToken UTC 时间戳，':' 和 '.' 替换为 '-'，字典序即时间序。
// 纳秒精度，连续轮转几乎不会同名，保留清理的按名排序因此可靠。
func timestampToken(t time.Time) string {
	s := t.UTC().Format("2006-01-02T15:04:05.000000000Z")
	s = strings.ReplaceAll(s, ":", "-")
	return strings.ReplaceAll(s, ".", "-")
}

// compress 将 src 流式压缩为 src.gz，成功后删除 src（删除带重试）。
func (r *FileRotator) compress(ctx context.Context, src string) error {
	in, err := os.Open(src) //#nosec G304 -- 路径由轮转器自身生成
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // 只读句柄

	out, err := os.OpenFile(src+".gz", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644) //#nosec G302,G304
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(out)
	if _, err = io.Copy(gz, in); err == nil {
		err = gz.Close()
	} else {
		_ = gz.Close()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// 压缩产物不完整，删除之，保留未压缩副本
		_ = os.Remove(src + ".gz")
		return err
	}

	_ = in.Close()
	return r.exec.Do(ctx, func(context.Context) error {
		return classifyFS(os.Remove(src))
	})
}

// prune 删除超出保留数量的最旧轮转文件。
// 时间戳命名保证字典序即时间序；活动文件名绝不删除。
func (r *FileRotator) prune() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return err
	}

	live := filepath.Base(r.path)
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == live {
			continue
		}
		if r.matchesRotated(name) {
			names = append(names, name)
		}
	}
	if len(names) <= r.policy.MaxFiles {
		return nil
	}

	sort.Strings(names)
	var firstErr error
	for _, name := range names[:len(names)-r.policy.MaxFiles] {
		if rerr := os.Remove(filepath.Join(r.dir, name)); rerr != nil && firstErr == nil {
			firstErr = rerr
		}
	}
	return firstErr
}

// matchesRotated 判断文件名是否是本轮转器的产物。
func (r *FileRotator) matchesRotated(name string) bool {
	if !strings.HasPrefix(name, r.base+".") {
		return false
	}
	return strings.HasSuffix(name, r.ext) || strings.HasSuffix(name, r.ext+".gz")
}

// classifyFS 将文件系统错误包装为携带错误码的错误，
// 供重试白名单判断。nil 原样返回。
func classifyFS(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return xretry.NewCodedError("ENOENT", err)
	case errors.Is(err, syscall.EBUSY):
		return xretry.NewCodedError("EBUSY", err)
	case errors.Is(err, syscall.EAGAIN):
		return xretry.NewCodedError("EAGAIN", err)
	case errors.Is(err, fs.ErrPermission):
		return xretry.NewCodedError("EACCES", err)
	default:
		return xretry.NewCodedError("EIO", err)
	}
}
