package mcpserver

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	probing "github.com/prometheus-community/pro-bing"

	"github.com/wentf9/sshgate/pkg/audit"
	"github.com/wentf9/sshgate/pkg/errdefs"
	"github.com/wentf9/sshgate/pkg/fileops"
	"github.com/wentf9/sshgate/pkg/models"
)

type ExecuteInput struct {
	Server    string `json:"server" jsonschema:"name of the configured server"`
	Command   string `json:"command" jsonschema:"command line to execute"`
	TimeoutMs int    `json:"timeout_ms,omitempty" jsonschema:"optional timeout in milliseconds; 0 disables the timer"`
}

type ExecuteOutput struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode *int   `json:"exit_code"`
	TimedOut bool   `json:"timed_out"`
}

func (g *Gate) sshExecute(ctx context.Context, req *mcp.CallToolRequest, in ExecuteInput) (*mcp.CallToolResult, ExecuteOutput, error) {
	out, err := g.execute(ctx, in.Server, in.Command, in.TimeoutMs)
	return nil, out, err
}

type TemplateInput struct {
	Server    string            `json:"server" jsonschema:"name of the configured server"`
	Template  string            `json:"template" jsonschema:"name of the configured command template"`
	Variables map[string]string `json:"variables,omitempty" jsonschema:"values for the template's placeholders"`
	TimeoutMs int               `json:"timeout_ms,omitempty" jsonschema:"optional timeout in milliseconds"`
}

func (g *Gate) runTemplate(ctx context.Context, req *mcp.CallToolRequest, in TemplateInput) (*mcp.CallToolResult, ExecuteOutput, error) {
	command, err := g.Provider.RenderTemplate(in.Template, in.Variables)
	if err != nil {
		return nil, ExecuteOutput{}, err
	}
	out, err := g.execute(ctx, in.Server, command, in.TimeoutMs)
	return nil, out, err
}

// execute 白名单检查、执行、审计三步的公共路径
// 白名单和容量决策永远显式报错，不会静默放过
func (g *Gate) execute(ctx context.Context, server, command string, timeoutMs int) (ExecuteOutput, error) {
	if command == "" {
		return ExecuteOutput{}, errdefs.New(errdefs.ErrConfiguration, "command is empty")
	}
	if timeoutMs < 0 {
		return ExecuteOutput{}, errdefs.New(errdefs.ErrConfiguration, "timeout_ms must be positive, got %d", timeoutMs)
	}
	id, err := g.Provider.GetServerIdentity(server)
	if err != nil {
		return ExecuteOutput{}, err
	}
	if !g.Provider.IsCommandAllowed(command) {
		g.Audit.Record(audit.Entry{Server: server, Command: command, Allowed: false})
		return ExecuteOutput{}, errdefs.New(errdefs.ErrAuthorization,
			"command '%s' contains programs outside the allowlist", command)
	}

	start := time.Now()
	res, err := g.Runner.Execute(ctx, id, command, time.Duration(timeoutMs)*time.Millisecond)
	entry := audit.Entry{
		Server:     server,
		Command:    command,
		Allowed:    true,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
		g.Audit.Record(entry)
		return ExecuteOutput{}, err
	}
	entry.ExitCode = res.ExitCode
	entry.TimedOut = res.TimedOut
	g.Audit.Record(entry)
	return ExecuteOutput{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
		TimedOut: res.TimedOut,
	}, nil
}

type TunnelInput struct {
	Server     string `json:"server" jsonschema:"name of the configured server"`
	LocalPort  int    `json:"local_port" jsonschema:"local loopback port; 0 requests a dynamically assigned port"`
	RemoteHost string `json:"remote_host" jsonschema:"host to reach from the remote side"`
	RemotePort int    `json:"remote_port" jsonschema:"port to reach on remote_host"`
}

type TunnelOpenOutput struct {
	LocalPort int    `json:"local_port"`
	Status    string `json:"status"`
}

func (g *Gate) tunnelOpen(ctx context.Context, req *mcp.CallToolRequest, in TunnelInput) (*mcp.CallToolResult, TunnelOpenOutput, error) {
	id, err := g.Provider.GetServerIdentity(in.Server)
	if err != nil {
		return nil, TunnelOpenOutput{}, err
	}
	res, err := g.Tunnels.Open(ctx, id, in.LocalPort, in.RemoteHost, in.RemotePort)
	if err != nil {
		return nil, TunnelOpenOutput{}, err
	}
	return nil, TunnelOpenOutput{LocalPort: res.LocalPort, Status: res.Status}, nil
}

type TunnelCloseOutput struct {
	Closed bool `json:"closed"`
}

func (g *Gate) tunnelClose(ctx context.Context, req *mcp.CallToolRequest, in TunnelInput) (*mcp.CallToolResult, TunnelCloseOutput, error) {
	id, err := g.Provider.GetServerIdentity(in.Server)
	if err != nil {
		return nil, TunnelCloseOutput{}, err
	}
	if err := g.Tunnels.Close(id, in.LocalPort, in.RemoteHost, in.RemotePort); err != nil {
		return nil, TunnelCloseOutput{}, err
	}
	return nil, TunnelCloseOutput{Closed: true}, nil
}

type EmptyInput struct{}

type TunnelListOutput struct {
	Tunnels []models.TunnelInfo `json:"tunnels"`
}

func (g *Gate) tunnelList(ctx context.Context, req *mcp.CallToolRequest, in EmptyInput) (*mcp.CallToolResult, TunnelListOutput, error) {
	return nil, TunnelListOutput{Tunnels: g.Tunnels.List()}, nil
}

type FileTransferInput struct {
	Server     string `json:"server" jsonschema:"name of the configured server"`
	LocalPath  string `json:"local_path" jsonschema:"path on the local machine"`
	RemotePath string `json:"remote_path" jsonschema:"path on the remote server"`
}

type FileTransferOutput struct {
	Done bool `json:"done"`
}

// withSFTP 获取会话并打开一次性 SFTP 子系统
func (g *Gate) withSFTP(ctx context.Context, server string, fn func(*fileops.Client) error) error {
	id, err := g.Provider.GetServerIdentity(server)
	if err != nil {
		return err
	}
	sess, err := g.Pool.Acquire(ctx, id)
	if err != nil {
		return err
	}
	client, err := fileops.NewClient(sess)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func (g *Gate) uploadFile(ctx context.Context, req *mcp.CallToolRequest, in FileTransferInput) (*mcp.CallToolResult, FileTransferOutput, error) {
	err := g.withSFTP(ctx, in.Server, func(c *fileops.Client) error {
		return c.Upload(ctx, in.LocalPath, in.RemotePath, nil)
	})
	if err != nil {
		return nil, FileTransferOutput{}, err
	}
	return nil, FileTransferOutput{Done: true}, nil
}

func (g *Gate) downloadFile(ctx context.Context, req *mcp.CallToolRequest, in FileTransferInput) (*mcp.CallToolResult, FileTransferOutput, error) {
	err := g.withSFTP(ctx, in.Server, func(c *fileops.Client) error {
		return c.Download(ctx, in.RemotePath, in.LocalPath, nil)
	})
	if err != nil {
		return nil, FileTransferOutput{}, err
	}
	return nil, FileTransferOutput{Done: true}, nil
}

type RemotePathInput struct {
	Server     string `json:"server" jsonschema:"name of the configured server"`
	RemotePath string `json:"remote_path" jsonschema:"path on the remote server"`
}

type ListFilesOutput struct {
	Files []models.FileInfo `json:"files"`
}

func (g *Gate) listFiles(ctx context.Context, req *mcp.CallToolRequest, in RemotePathInput) (*mcp.CallToolResult, ListFilesOutput, error) {
	var files []models.FileInfo
	err := g.withSFTP(ctx, in.Server, func(c *fileops.Client) error {
		var err error
		files, err = c.List(in.RemotePath)
		return err
	})
	if err != nil {
		return nil, ListFilesOutput{}, err
	}
	return nil, ListFilesOutput{Files: files}, nil
}

func (g *Gate) deleteFile(ctx context.Context, req *mcp.CallToolRequest, in RemotePathInput) (*mcp.CallToolResult, FileTransferOutput, error) {
	err := g.withSFTP(ctx, in.Server, func(c *fileops.Client) error {
		return c.Delete(in.RemotePath)
	})
	if err != nil {
		return nil, FileTransferOutput{}, err
	}
	return nil, FileTransferOutput{Done: true}, nil
}

type ServerSummary struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
}

type ListServersOutput struct {
	Servers []ServerSummary `json:"servers"`
}

func (g *Gate) listServers(ctx context.Context, req *mcp.CallToolRequest, in EmptyInput) (*mcp.CallToolResult, ListServersOutput, error) {
	var out ListServersOutput
	for _, name := range g.Provider.ListServers() {
		id, err := g.Provider.GetServerIdentity(name)
		if err != nil {
			continue
		}
		out.Servers = append(out.Servers, ServerSummary{
			Name: name, Host: id.Host, Port: id.Port, Username: id.Username,
		})
	}
	return nil, out, nil
}

type CheckServerInput struct {
	Server string `json:"server" jsonschema:"name of the configured server"`
}

type CheckServerOutput struct {
	PingOk      bool    `json:"ping_ok"`
	PacketLoss  float64 `json:"packet_loss"`
	AvgRttMs    int64   `json:"avg_rtt_ms"`
	SSHPortOpen bool    `json:"ssh_port_open"`
}

func (g *Gate) checkServer(ctx context.Context, req *mcp.CallToolRequest, in CheckServerInput) (*mcp.CallToolResult, CheckServerOutput, error) {
	id, err := g.Provider.GetServerIdentity(in.Server)
	if err != nil {
		return nil, CheckServerOutput{}, err
	}

	var out CheckServerOutput
	pinger, err := probing.NewPinger(id.Host)
	if err == nil {
		// 非特权 UDP ping，不需要 root
		pinger.SetPrivileged(false)
		pinger.Count = 3
		pinger.Timeout = 3 * time.Second
		if err := pinger.RunWithContext(ctx); err == nil {
			stats := pinger.Statistics()
			out.PingOk = stats.PacketsRecv > 0
			out.PacketLoss = stats.PacketLoss
			out.AvgRttMs = stats.AvgRtt.Milliseconds()
		}
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(id.Host, strconv.Itoa(id.Port)), 5*time.Second)
	if err == nil {
		conn.Close()
		out.SSHPortOpen = true
	}
	return nil, out, nil
}

type DisconnectOutput struct {
	ClosedTunnels  int `json:"closed_tunnels"`
	ClosedSessions int `json:"closed_sessions"`
}

func (g *Gate) disconnectAll(ctx context.Context, req *mcp.CallToolRequest, in EmptyInput) (*mcp.CallToolResult, DisconnectOutput, error) {
	out := DisconnectOutput{
		ClosedTunnels:  len(g.Tunnels.List()),
		ClosedSessions: g.Pool.Count(),
	}
	// 先隧道后会话
	g.Tunnels.CloseAll()
	g.Pool.DisconnectAll()
	return nil, out, nil
}
