package cmd

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/wentf9/sshgate/pkg/errdefs"
	"github.com/wentf9/sshgate/pkg/executor"
	"github.com/wentf9/sshgate/pkg/models"
	"github.com/wentf9/sshgate/pkg/runner"
	"github.com/wentf9/sshgate/pkg/sshpool"
)

type execOptions struct {
	Command   string
	TimeoutMs int
	TaskCount uint
}

// NewCmdExec 对一个或多个配置好的服务器执行命令
func NewCmdExec() *cobra.Command {
	o := &execOptions{}
	cmd := &cobra.Command{
		Use:   "exec [flags] <server>...",
		Short: "对一个或多个配置好的服务器执行命令",
		Long: `对配置文件中的服务器执行一条命令，命令受白名单约束。
用法示例:
sshgate exec web1 -c "uptime"
sshgate exec web1 web2 db1 -c "df -h" --task 3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.Command == "" {
				return fmt.Errorf("command is required (-c)")
			}
			return o.run(cmd.Context(), args)
		},
	}
	cmd.Flags().StringVarP(&o.Command, "cmd", "c", "", "要执行的命令")
	cmd.Flags().IntVar(&o.TimeoutMs, "timeout", 0, "超时毫秒数，0 表示不限")
	cmd.Flags().UintVar(&o.TaskCount, "task", 3, "并行执行的主机数")
	return cmd
}

func (o *execOptions) run(ctx context.Context, servers []string) error {
	provider, err := loadProvider()
	if err != nil {
		return err
	}
	if !provider.IsCommandAllowed(o.Command) {
		return errdefs.New(errdefs.ErrAuthorization,
			"command '%s' contains programs outside the allowlist", o.Command)
	}

	ids := make([]models.Identity, 0, len(servers))
	for _, name := range servers {
		id, err := provider.GetServerIdentity(name)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	pool := sshpool.NewPool(provider.MaxConnections(), provider.ConnectTimeout())
	defer pool.DisconnectAll()
	run := executor.NewRunner(pool)

	// 每台主机的结果拼成完整区块后在锁内一次性输出，
	// 并发执行时不同主机的区块不会交错
	var printMu sync.Mutex
	var failed int
	results := runner.RunParallel(ids, o.TaskCount, func(id models.Identity) error {
		res, err := run.Execute(ctx, id, o.Command, time.Duration(o.TimeoutMs)*time.Millisecond)
		if err != nil {
			return err
		}
		printMu.Lock()
		fmt.Print(formatHostResult(id.Name, res))
		printMu.Unlock()
		return nil
	})
	for r := range results {
		if r.Error != nil {
			failed++
			printMu.Lock()
			fmt.Printf("===== %s =====\nerror: %v\n", r.Identity.Name, r.Error)
			printMu.Unlock()
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d servers failed", failed, len(ids))
	}
	return nil
}

// formatHostResult 把一台主机的执行结果拼成一个输出区块
func formatHostResult(name string, res *models.CommandResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "===== %s =====\n%s", name, res.Stdout)
	if res.Stderr != "" {
		fmt.Fprintf(&b, "[stderr]\n%s", res.Stderr)
	}
	if res.TimedOut {
		b.WriteString("[timed out]\n")
	}
	return b.String()
}

func init() {
	rootCmd.AddCommand(NewCmdExec())
}
