// Package tunnel 管理本地 TCP 端口到远端目标的转发隧道
// 隧道只绑定回环地址；每个入站连接走所属 SSH 连接上独立的
// direct-tcpip 通道，与命令执行和其他隧道完全并发
package tunnel

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"sync"

	"github.com/wentf9/sshgate/pkg/errdefs"
	"github.com/wentf9/sshgate/pkg/logger"
	"github.com/wentf9/sshgate/pkg/models"
	"github.com/wentf9/sshgate/pkg/sshpool"
	"github.com/wentf9/sshgate/pkg/utils/concurrent"
)

const (
	StatusOpened        = "opened"
	StatusAlreadyActive = "already_active"
)

// OpenResult Open 的返回值
// LocalPort 是实际监听的端口：动态分配时是操作系统指定的端口
type OpenResult struct {
	LocalPort int    `json:"local_port"`
	Status    string `json:"status"`
}

// Engine 隧道管理器
// 注册表键为 (目标, 本地端口, 远端主机, 远端端口)；本地端口 0
// 表示动态分配，永远新建而不去重
type Engine struct {
	pool    *sshpool.Pool
	tunnels *concurrent.Map[string, *Tunnel]
}

// Tunnel 一条活跃隧道：本地监听器加转发状态
type Tunnel struct {
	identity   models.Identity
	localPort  int // 已解析的实际端口，动态隧道不会是 0
	remoteHost string
	remotePort int
	listener   net.Listener

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

func NewEngine(pool *sshpool.Pool) *Engine {
	return &Engine{
		pool:    pool,
		tunnels: concurrent.NewMap[string, *Tunnel](concurrent.HashString),
	}
}

func tunnelKey(id models.Identity, localPort int, remoteHost string, remotePort int) string {
	return fmt.Sprintf("%s|%d|%s|%d", id.Key(), localPort, remoteHost, remotePort)
}

// Open 打开一条隧道
// 非动态隧道重复打开是幂等的：返回 already_active，不会再起
// 第二个监听器。动态隧道 (localPort 0) 每次都新建，注册前先从
// 监听器解析出实际端口，后续枚举和关闭都用这个端口
func (e *Engine) Open(ctx context.Context, id models.Identity, localPort int, remoteHost string, remotePort int) (*OpenResult, error) {
	if localPort != 0 {
		if t, ok := e.tunnels.Get(tunnelKey(id, localPort, remoteHost, remotePort)); ok {
			return &OpenResult{LocalPort: t.localPort, Status: StatusAlreadyActive}, nil
		}
	}

	// 先确认连接可用，连接失败不应留下挂空的监听器
	if _, err := e.pool.Acquire(ctx, id); err != nil {
		return nil, err
	}

	// 只绑定回环地址，绝不暴露到非回环接口
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(localPort)))
	if err != nil {
		return nil, errdefs.Wrap(errdefs.ErrTunnelBind, err,
			"bind 127.0.0.1:%d for '%s'", localPort, id.Key())
	}
	resolved := ln.Addr().(*net.TCPAddr).Port

	t := &Tunnel{
		identity:   id,
		localPort:  resolved,
		remoteHost: remoteHost,
		remotePort: remotePort,
		listener:   ln,
		conns:      make(map[net.Conn]struct{}),
	}
	if existing, ok := e.tunnels.SetIfAbsent(tunnelKey(id, resolved, remoteHost, remotePort), t); !ok {
		// 并发打开输掉注册竞争，让出给先注册者
		ln.Close()
		return &OpenResult{LocalPort: existing.localPort, Status: StatusAlreadyActive}, nil
	}

	go e.acceptLoop(t)
	logger.Log.Info("tunnel opened", "target", id.Key(),
		"local", resolved, "remote", net.JoinHostPort(remoteHost, strconv.Itoa(remotePort)))
	return &OpenResult{LocalPort: resolved, Status: StatusOpened}, nil
}

// Close 关闭一条隧道；键不存在时静默返回
// 动态隧道用 Open 返回的实际端口关闭
func (e *Engine) Close(id models.Identity, localPort int, remoteHost string, remotePort int) error {
	t, ok := e.tunnels.Pop(tunnelKey(id, localPort, remoteHost, remotePort))
	if !ok {
		return nil
	}
	t.shutdown()
	logger.Log.Info("tunnel closed", "target", id.Key(), "local", t.localPort)
	return nil
}

// List 枚举当前活跃的隧道
func (e *Engine) List() []models.TunnelInfo {
	var out []models.TunnelInfo
	e.tunnels.IterCb(func(_ string, t *Tunnel) bool {
		out = append(out, models.TunnelInfo{
			Server:     t.identity.Name,
			LocalPort:  t.localPort,
			RemoteHost: t.remoteHost,
			RemotePort: t.remotePort,
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Server != out[j].Server {
			return out[i].Server < out[j].Server
		}
		return out[i].LocalPort < out[j].LocalPort
	})
	return out
}

// CloseAll 关闭全部隧道并清空注册表
func (e *Engine) CloseAll() {
	for _, t := range e.tunnels.PopAll() {
		t.shutdown()
	}
}

// acceptLoop 接受入站连接，每个连接一对转发协程
func (e *Engine) acceptLoop(t *Tunnel) {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			// 监听器被关闭，隧道结束
			return
		}
		t.track(conn)
		go e.relay(t, conn)
	}
}

// relay 为一个入站连接打开远端通道并双向转发
// 任意一侧关闭或出错都会连带关闭另一侧
func (e *Engine) relay(t *Tunnel, conn net.Conn) {
	defer t.untrack(conn)

	sess, err := e.pool.Acquire(context.Background(), t.identity)
	if err != nil {
		logger.Log.Warn("tunnel relay: no session", "target", t.identity.Key(), "err", err)
		conn.Close()
		return
	}
	remote, err := sess.Dial("tcp", net.JoinHostPort(t.remoteHost, strconv.Itoa(t.remotePort)))
	if err != nil {
		logger.Log.Warn("tunnel relay: channel open failed",
			"target", t.identity.Key(), "remote", t.remoteHost, "port", t.remotePort, "err", err)
		conn.Close()
		return
	}

	var once sync.Once
	closeBoth := func() {
		conn.Close()
		remote.Close()
	}
	go func() {
		io.Copy(remote, conn)
		once.Do(closeBoth)
	}()
	io.Copy(conn, remote)
	once.Do(closeBoth)
}

func (t *Tunnel) track(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		conn.Close()
		return
	}
	t.conns[conn] = struct{}{}
}

func (t *Tunnel) untrack(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, conn)
}

// shutdown 停掉监听器并掐断所有活跃转发
func (t *Tunnel) shutdown() {
	t.mu.Lock()
	t.closed = true
	conns := make([]net.Conn, 0, len(t.conns))
	for c := range t.conns {
		conns = append(conns, c)
	}
	t.conns = make(map[net.Conn]struct{})
	t.mu.Unlock()

	t.listener.Close()
	for _, c := range conns {
		c.Close()
	}
}
