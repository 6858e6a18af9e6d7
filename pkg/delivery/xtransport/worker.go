package xtransport

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// 线上控制令牌与错误前缀。
// 命令通道承载 Entry、[]byte（预序列化批次）或令牌字符串；
// 回复通道承载令牌或带 errorTag 前缀的序列化错误记录。
const (
	tokenReady   = "ready"
	tokenDrain   = "drain"
	tokenDrained = "drained"
	tokenClose   = "close"
	tokenClosed  = "closed"

	errorTag = "!logship-error!"
)

// worker offload 边界的通道组。
// 发起方与副本之间不共享内存，一切协调走消息传递。
type worker struct {
	// cmds 发起方 → 副本：日志、原始批次、控制令牌
	cmds chan any

	// replies 副本 → 发起方：回复令牌或带标签错误
	replies chan string

	// tokens dispatcher 过滤后只含控制令牌的流，供握手等待
	tokens chan string

	// done 副本 goroutine 退出信号
	done chan struct{}
}

func newWorker() *worker {
	return &worker{
		cmds:    make(chan any, 256),
		replies: make(chan string, 16),
		tokens:  make(chan string, 4),
		done:    make(chan struct{}),
	}
}

// send 投递一条消息给副本。
// 副本已退出时返回 false；与退出竞争产生的 send on closed
// panic 被 recover 吸收（副本退出极短窗口内 select 可能选中发送分支）。
func (w *worker) send(msg any) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case <-w.done:
		return false
	case w.cmds <- msg:
		return true
	}
}

// dispatch 发起方侧的回复分拣循环。
// 带 errorTag 前缀的消息是带外错误通知，转交 onWireError 后继续等待，
// 绝不满足任何握手；其余消息作为令牌送往握手等待方。
// replies 关闭（副本退出）时结束并关闭 tokens。
func (w *worker) dispatch(onWireError func(payload string)) {
	defer close(w.tokens)
	for msg := range w.replies {
		if payload, tagged := strings.CutPrefix(msg, errorTag); tagged {
			onWireError(payload)
			continue
		}
		w.tokens <- msg
	}
}

// await 等待一个确切的回复令牌。
// 四种出口：匹配令牌成功；非预期令牌立即失败；tokens 关闭
//（副本提前退出）立即失败；超时或 ctx 取消失败。
func (w *worker) await(ctx context.Context, want string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case tok, ok := <-w.tokens:
		if !ok {
			return fmt.Errorf("%w: waiting for %q", ErrWorkerExited, want)
		}
		if tok != want {
			return fmt.Errorf("%w: got %q, want %q", ErrUnexpectedReply, tok, want)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: waiting for %q", ErrHandshakeTimeout, want)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runReplica offload 副本的主循环，在独立 goroutine 中运行。
//
// 用构造参数重建一份本地 transport，把它的错误回调替换为跨边界的
// 带标签转发，然后逐条消费命令通道：日志走 Log、原始批次走
// acceptRaw、drain/close 令牌执行对应收尾并回复确认。
// 退出时先关 done（阻止新的发送）再关 replies（结束 dispatcher）。
func (t *Transport) runReplica() {
	w := t.w
	defer close(w.replies)
	defer close(w.done)

	replica, err := t.rebuild()
	if err != nil {
		w.replies <- errorTag + string(t.errSer.Serialize(err))
		return
	}
	replica.onError = func(de *DeliveryError) {
		w.reportError(t.errSer.Serialize(de))
	}

	w.replies <- tokenReady

	ctx := context.Background()
	for msg := range w.cmds {
		switch m := msg.(type) {
		case Entry:
			replica.Log(m)
		case []byte:
			replica.acceptRaw(ctx, m)
		case string:
			switch m {
			case tokenDrain:
				if _, ferr := replica.flushAndWait(ctx); ferr != nil {
					replica.handleError(&DeliveryError{Err: ferr})
				}
				w.replies <- tokenDrained
			case tokenClose:
				if cerr := replica.Close(ctx); cerr != nil {
					w.reportError(t.errSer.Serialize(cerr))
				}
				w.replies <- tokenClosed
				return
			}
		}
	}
}

// reportError 把序列化错误记录带标签送回发起方。
// sink 的 queue job 也可能触发，故与副本退出的竞争用 recover 兜底。
func (w *worker) reportError(record []byte) {
	defer func() { recover() }() //nolint:errcheck // recover 返回值无需检查
	w.replies <- errorTag + string(record)
}
