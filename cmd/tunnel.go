package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wentf9/sshgate/pkg/sshpool"
	"github.com/wentf9/sshgate/pkg/tunnel"
)

// NewCmdTunnel 打开一条隧道并保持到收到中断信号
func NewCmdTunnel() *cobra.Command {
	return &cobra.Command{
		Use:   "tunnel <server> <local>:<remote_host>:<remote_port>",
		Short: "打开本地端口到远端目标的转发隧道",
		Long: `通过服务器的 SSH 连接把本地回环端口转发到远端目标，
按 Ctrl-C 退出。本地端口写 0 表示由操作系统动态分配。
用法示例:
sshgate tunnel web1 15432:127.0.0.1:5432
sshgate tunnel web1 0:10.0.0.8:6379`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			localPort, remoteHost, remotePort, err := parseTunnelSpec(args[1])
			if err != nil {
				return err
			}

			provider, err := loadProvider()
			if err != nil {
				return err
			}
			id, err := provider.GetServerIdentity(args[0])
			if err != nil {
				return err
			}

			pool := sshpool.NewPool(provider.MaxConnections(), provider.ConnectTimeout())
			defer pool.DisconnectAll()
			engine := tunnel.NewEngine(pool)
			defer engine.CloseAll()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := engine.Open(ctx, id, localPort, remoteHost, remotePort)
			if err != nil {
				return err
			}
			fmt.Printf("隧道已建立: 127.0.0.1:%d -> %s:%d (按 Ctrl-C 退出)\n",
				res.LocalPort, remoteHost, remotePort)
			<-ctx.Done()
			return nil
		},
	}
}

// parseTunnelSpec 解析 local:host:port 形式的隧道描述
func parseTunnelSpec(spec string) (int, string, int, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 {
		return 0, "", 0, fmt.Errorf("invalid tunnel spec '%s', expected local:host:port", spec)
	}
	localPort, err := strconv.Atoi(parts[0])
	if err != nil || localPort < 0 || localPort > 65535 {
		return 0, "", 0, fmt.Errorf("invalid local port '%s'", parts[0])
	}
	remotePort, err := strconv.Atoi(parts[2])
	if err != nil || remotePort < 1 || remotePort > 65535 {
		return 0, "", 0, fmt.Errorf("invalid remote port '%s'", parts[2])
	}
	return localPort, parts[1], remotePort, nil
}

func init() {
	rootCmd.AddCommand(NewCmdTunnel())
}
