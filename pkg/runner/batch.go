package runner

import (
	"github.com/wentf9/sshgate/pkg/models"
	"github.com/wentf9/sshgate/pkg/utils"
)

type TaskFunc func(id models.Identity) error

type Result struct {
	Identity models.Identity
	Error    error
}

// RunParallel 对多个目标并行执行任务，并发数由工作池限制
// 结果通道缓冲区设为目标数量，防止阻塞 worker
func RunParallel(ids []models.Identity, concurrency uint, task TaskFunc) <-chan Result {
	wp := utils.NewWorkerPool(concurrency)
	results := make(chan Result, len(ids))
	go func() {
		for _, id := range ids {
			wp.Execute(func() {
				results <- Result{Identity: id, Error: task(id)}
			})
		}
		wp.Wait()
		close(results)
	}()
	return results
}
