// Package mcpserver 把核心能力以 MCP (Model Context Protocol)
// 工具的形式暴露给自动化客户端，走 stdio 传输
// 处理器返回的 error 会被 SDK 转成工具级错误应答
package mcpserver

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wentf9/sshgate/pkg/audit"
	"github.com/wentf9/sshgate/pkg/config"
	"github.com/wentf9/sshgate/pkg/executor"
	"github.com/wentf9/sshgate/pkg/sshpool"
	"github.com/wentf9/sshgate/pkg/tunnel"
)

// Gate 聚合核心组件，是所有工具处理器的依赖入口
type Gate struct {
	Provider config.Provider
	Pool     *sshpool.Pool
	Runner   *executor.Runner
	Tunnels  *tunnel.Engine
	Audit    *audit.Logger
}

// NewGate 按配置装配连接池、执行器、隧道引擎和审计日志
func NewGate(provider config.Provider) (*Gate, error) {
	pool := sshpool.NewPool(provider.MaxConnections(), provider.ConnectTimeout())
	g := &Gate{
		Provider: provider,
		Pool:     pool,
		Runner:   executor.NewRunner(pool),
		Tunnels:  tunnel.NewEngine(pool),
	}
	if path := provider.AuditLogPath(); path != "" {
		lg, err := audit.Open(sshpool.ExpandHomeDir(path))
		if err != nil {
			return nil, err
		}
		g.Audit = lg
	}
	return g, nil
}

// Shutdown 先关隧道、再断开全部连接、最后收尾审计日志
// 顺序不可颠倒：隧道依赖连接
func (g *Gate) Shutdown() {
	g.Tunnels.CloseAll()
	g.Pool.DisconnectAll()
	g.Audit.Close()
}

// NewServer 构建 MCP 服务器并注册全部工具
func NewServer(g *Gate, version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "sshgate", Version: version}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "ssh_execute",
		Description: "Execute a command on a configured remote server. Every program in the command must be on the allowlist.",
	}, g.sshExecute)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "run_template",
		Description: "Render a configured command template with variables and execute it on a remote server.",
	}, g.runTemplate)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "tunnel_open",
		Description: "Open a local TCP tunnel (loopback only) forwarding to a remote host/port through a server's SSH connection. local_port 0 requests a dynamically assigned port.",
	}, g.tunnelOpen)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "tunnel_close",
		Description: "Close a tunnel previously opened with tunnel_open. Closing an unknown tunnel is a no-op.",
	}, g.tunnelClose)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "tunnel_list",
		Description: "List active tunnels.",
	}, g.tunnelList)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "upload_file",
		Description: "Upload a local file to a remote server over SFTP.",
	}, g.uploadFile)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "download_file",
		Description: "Download a remote file over SFTP.",
	}, g.downloadFile)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_files",
		Description: "List a remote directory over SFTP.",
	}, g.listFiles)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_file",
		Description: "Delete a remote file (or empty directory) over SFTP.",
	}, g.deleteFile)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_servers",
		Description: "List configured servers (no key material is returned).",
	}, g.listServers)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "check_server",
		Description: "Preflight reachability check: ICMP/UDP ping plus a TCP dial of the SSH port.",
	}, g.checkServer)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "disconnect_all",
		Description: "Close every tunnel, then every SSH session.",
	}, g.disconnectAll)

	return srv
}
