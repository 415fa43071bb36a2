package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wentf9/sshgate/pkg/audit"
	"github.com/wentf9/sshgate/pkg/config"
	"github.com/wentf9/sshgate/pkg/errdefs"
	"github.com/wentf9/sshgate/pkg/executor"
	"github.com/wentf9/sshgate/pkg/models"
	"github.com/wentf9/sshgate/pkg/sshpool"
	"github.com/wentf9/sshgate/pkg/testutil"
	"github.com/wentf9/sshgate/pkg/tunnel"
)

func newGate(t *testing.T) (*Gate, *testutil.SSHServer, string) {
	t.Helper()
	srv := testutil.NewSSHServer(t)
	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")

	cfg := &config.Configuration{
		Servers: map[string]models.Identity{
			"web1": srv.Identity("alice"),
		},
		Security: config.Security{
			AllowedCommands: []string{"echo", "uptime"},
			MaxConnections:  3,
		},
		Templates: map[string]config.Template{
			"greet": {Command: "echo hello {{name}}"},
		},
	}
	pool := sshpool.NewPool(3, 5*time.Second, sshpool.WithoutKeepAlive())
	lg, err := audit.Open(auditPath)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	g := &Gate{
		Provider: config.NewProvider(cfg, nil),
		Pool:     pool,
		Runner:   executor.NewRunner(pool),
		Tunnels:  tunnel.NewEngine(pool),
		Audit:    lg,
	}
	t.Cleanup(g.Shutdown)
	return g, srv, auditPath
}

func readAudit(t *testing.T, path string) []audit.Entry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()
	var entries []audit.Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e audit.Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad audit line: %v", err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestSSHExecute(t *testing.T) {
	g, _, auditPath := newGate(t)
	ctx := context.Background()

	// 进程内服务端把命令原样回显到 stdout
	_, out, err := g.sshExecute(ctx, &mcp.CallToolRequest{}, ExecuteInput{
		Server: "web1", Command: "echo hi",
	})
	if err != nil {
		t.Fatalf("sshExecute: %v", err)
	}
	if out.Stdout != "echo hi" {
		t.Errorf("Stdout = %q", out.Stdout)
	}
	if out.ExitCode == nil || *out.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", out.ExitCode)
	}

	entries := readAudit(t, auditPath)
	if len(entries) != 1 {
		t.Fatalf("audit has %d entries, want 1", len(entries))
	}
	if !entries[0].Allowed || entries[0].Server != "web1" {
		t.Errorf("audit entry = %+v", entries[0])
	}
}

func TestSSHExecuteDeniedByAllowlist(t *testing.T) {
	g, _, auditPath := newGate(t)

	_, _, err := g.sshExecute(context.Background(), &mcp.CallToolRequest{}, ExecuteInput{
		Server: "web1", Command: "echo hi | rm -rf /",
	})
	if !errors.Is(err, errdefs.ErrAuthorization) {
		t.Fatalf("err = %v, want ErrAuthorization", err)
	}

	entries := readAudit(t, auditPath)
	if len(entries) != 1 {
		t.Fatalf("denied command must still be audited, got %d entries", len(entries))
	}
	if entries[0].Allowed {
		t.Error("audit entry marked allowed")
	}
}

func TestSSHExecuteValidation(t *testing.T) {
	g, _, _ := newGate(t)
	ctx := context.Background()

	if _, _, err := g.sshExecute(ctx, &mcp.CallToolRequest{}, ExecuteInput{Server: "web1"}); !errors.Is(err, errdefs.ErrConfiguration) {
		t.Errorf("empty command err = %v, want ErrConfiguration", err)
	}
	if _, _, err := g.sshExecute(ctx, &mcp.CallToolRequest{}, ExecuteInput{
		Server: "web1", Command: "echo hi", TimeoutMs: -1,
	}); !errors.Is(err, errdefs.ErrConfiguration) {
		t.Errorf("negative timeout err = %v, want ErrConfiguration", err)
	}
	if _, _, err := g.sshExecute(ctx, &mcp.CallToolRequest{}, ExecuteInput{
		Server: "ghost", Command: "echo hi",
	}); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("unknown server err = %v, want ErrNotFound", err)
	}
}

func TestRunTemplate(t *testing.T) {
	g, _, _ := newGate(t)
	ctx := context.Background()

	_, out, err := g.runTemplate(ctx, &mcp.CallToolRequest{}, TemplateInput{
		Server: "web1", Template: "greet", Variables: map[string]string{"name": "bob"},
	})
	if err != nil {
		t.Fatalf("runTemplate: %v", err)
	}
	if out.Stdout != "echo hello bob" {
		t.Errorf("Stdout = %q", out.Stdout)
	}

	_, _, err = g.runTemplate(ctx, &mcp.CallToolRequest{}, TemplateInput{
		Server: "web1", Template: "greet",
	})
	if !errors.Is(err, errdefs.ErrConfiguration) {
		t.Errorf("missing variable err = %v, want ErrConfiguration", err)
	}
}

func TestTunnelLifecycle(t *testing.T) {
	g, _, _ := newGate(t)
	ctx := context.Background()

	_, opened, err := g.tunnelOpen(ctx, &mcp.CallToolRequest{}, TunnelInput{
		Server: "web1", LocalPort: 0, RemoteHost: "127.0.0.1", RemotePort: 8080,
	})
	if err != nil {
		t.Fatalf("tunnelOpen: %v", err)
	}
	if opened.Status != tunnel.StatusOpened || opened.LocalPort == 0 {
		t.Fatalf("open result = %+v", opened)
	}

	_, listed, err := g.tunnelList(ctx, &mcp.CallToolRequest{}, EmptyInput{})
	if err != nil {
		t.Fatalf("tunnelList: %v", err)
	}
	if len(listed.Tunnels) != 1 || listed.Tunnels[0].LocalPort != opened.LocalPort {
		t.Fatalf("tunnel list = %+v", listed.Tunnels)
	}

	_, closed, err := g.tunnelClose(ctx, &mcp.CallToolRequest{}, TunnelInput{
		Server: "web1", LocalPort: opened.LocalPort, RemoteHost: "127.0.0.1", RemotePort: 8080,
	})
	if err != nil {
		t.Fatalf("tunnelClose: %v", err)
	}
	if !closed.Closed {
		t.Error("Closed = false")
	}

	_, listed, err = g.tunnelList(ctx, &mcp.CallToolRequest{}, EmptyInput{})
	if err != nil {
		t.Fatalf("tunnelList: %v", err)
	}
	if len(listed.Tunnels) != 0 {
		t.Errorf("tunnel list after close = %+v", listed.Tunnels)
	}
}

func TestListServersHidesSecrets(t *testing.T) {
	g, srv, _ := newGate(t)

	_, out, err := g.listServers(context.Background(), &mcp.CallToolRequest{}, EmptyInput{})
	if err != nil {
		t.Fatalf("listServers: %v", err)
	}
	if len(out.Servers) != 1 {
		t.Fatalf("got %d servers, want 1", len(out.Servers))
	}
	s := out.Servers[0]
	if s.Name != "web1" || s.Host != "127.0.0.1" || s.Port != srv.Port || s.Username != "alice" {
		t.Errorf("server summary = %+v", s)
	}
}

func TestDisconnectAll(t *testing.T) {
	g, _, _ := newGate(t)
	ctx := context.Background()

	if _, _, err := g.sshExecute(ctx, &mcp.CallToolRequest{}, ExecuteInput{Server: "web1", Command: "echo hi"}); err != nil {
		t.Fatalf("sshExecute: %v", err)
	}
	if _, _, err := g.tunnelOpen(ctx, &mcp.CallToolRequest{}, TunnelInput{
		Server: "web1", LocalPort: 0, RemoteHost: "127.0.0.1", RemotePort: 8080,
	}); err != nil {
		t.Fatalf("tunnelOpen: %v", err)
	}

	_, out, err := g.disconnectAll(ctx, &mcp.CallToolRequest{}, EmptyInput{})
	if err != nil {
		t.Fatalf("disconnectAll: %v", err)
	}
	if out.ClosedTunnels != 1 || out.ClosedSessions != 1 {
		t.Errorf("counts = %+v", out)
	}
	if g.Pool.Count() != 0 {
		t.Errorf("Pool.Count() = %d, want 0", g.Pool.Count())
	}
	if len(g.Tunnels.List()) != 0 {
		t.Error("tunnels remain after disconnectAll")
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	g, _, _ := newGate(t)
	if srv := NewServer(g, "test"); srv == nil {
		t.Fatal("NewServer returned nil")
	}
}
