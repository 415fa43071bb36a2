// Package executor 在远程目标上执行单条命令
// 每次调用打开一个独立的 exec 通道，同一连接上的并发执行
// 互相不排队，调用方不能假设两次并发执行之间的先后顺序
package executor

import (
	"bytes"
	"context"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/wentf9/sshgate/pkg/errdefs"
	"github.com/wentf9/sshgate/pkg/models"
	"github.com/wentf9/sshgate/pkg/sshpool"
)

// Runner 基于连接池的远程执行器
type Runner struct {
	pool *sshpool.Pool
}

func NewRunner(pool *sshpool.Pool) *Runner {
	return &Runner{pool: pool}
}

// Execute 执行一条命令并等待结果
//
// 三种事件里先到的那个决定结果，且只决定一次:
//   - 通道带退出码关闭: 正常返回，非零退出码也是结果而不是错误
//   - 通道级错误: 返回 ErrExecution
//   - 超时: 强制关闭通道后按成功返回，ExitCode 为 nil、TimedOut 为
//     true，并带上已经到达的部分输出。超时说明这次尝试本身是明确
//     的，按结果上报，由调用方决定怎么处理
//
// timeout <= 0 表示不设超时。stdout 和 stderr 进入独立的缓冲区，
// 两个流之间的先后顺序不保证，各自流内的顺序保持
func (r *Runner) Execute(ctx context.Context, id models.Identity, command string, timeout time.Duration) (*models.CommandResult, error) {
	sess, err := r.pool.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}

	ch, err := sess.NewSession()
	if err != nil {
		return nil, errdefs.Wrap(errdefs.ErrExecution, err, "open exec channel on '%s'", id.Key())
	}
	defer ch.Close()

	var stdout, stderr safeBuffer
	ch.Stdout = &stdout
	ch.Stderr = &stderr

	if err := ch.Start(command); err != nil {
		return nil, errdefs.Wrap(errdefs.ErrExecution, err, "start '%s' on '%s'", truncate(command), id.Key())
	}

	done := make(chan error, 1)
	go func() {
		done <- ch.Wait()
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case err := <-done:
		res := &models.CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
		switch e := err.(type) {
		case nil:
			code := 0
			res.ExitCode = &code
		case *ssh.ExitError:
			code := e.ExitStatus()
			res.ExitCode = &code
		case *ssh.ExitMissingError:
			// 通道关闭但没有带退出码
		default:
			return nil, errdefs.Wrap(errdefs.ErrExecution, err, "run '%s' on '%s'", truncate(command), id.Key())
		}
		return res, nil

	case <-expired:
		ch.Close()
		return &models.CommandResult{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			TimedOut: true,
		}, nil

	case <-ctx.Done():
		ch.Signal(ssh.SIGKILL)
		return nil, errdefs.Wrap(errdefs.ErrExecution, ctx.Err(), "run '%s' on '%s'", truncate(command), id.Key())
	}
}

// safeBuffer 并发安全的输出累加器
// 通道的读取协程在写，超时路径在读，必须加锁
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func truncate(command string) string {
	if len(command) > 80 {
		return command[:80] + "..."
	}
	return command
}
