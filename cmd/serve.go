package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/wentf9/sshgate/cmd/version"
	"github.com/wentf9/sshgate/pkg/logger"
	"github.com/wentf9/sshgate/pkg/mcpserver"
)

// serveCmd 以 MCP stdio 服务器形式运行
// stdout 归协议使用，所有日志走 stderr
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "以 MCP 服务器形式运行 (stdio 传输)",
	Long: `读取配置后在标准输入输出上运行 MCP 服务器，
供自动化客户端调用远程执行、隧道和文件传输工具。
收到 SIGINT/SIGTERM 时先关闭全部隧道再断开全部连接。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := loadProvider()
		if err != nil {
			return err
		}
		gate, err := mcpserver.NewGate(provider)
		if err != nil {
			return err
		}
		defer gate.Shutdown()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := mcpserver.NewServer(gate, version.Version)
		logger.Log.Info("sshgate MCP server starting", "version", version.Version)
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
