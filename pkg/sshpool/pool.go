// Package sshpool 维护到各远程目标的 SSH 连接缓存
// 每个 (用户名, 主机, 端口) 三元组最多一条连接，懒建立，
// 只在显式断开或探测到死连接时销毁
package sshpool

import (
	"context"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"

	"github.com/wentf9/sshgate/pkg/errdefs"
	"github.com/wentf9/sshgate/pkg/logger"
	"github.com/wentf9/sshgate/pkg/models"
	"github.com/wentf9/sshgate/pkg/utils/concurrent"
)

const defaultKeepAliveInterval = 30 * time.Second

// Pool 连接池
type Pool struct {
	sessions *concurrent.Map[string, *Session]
	sf       singleflight.Group

	// mu 保护跨目标的容量判定: 已注册数加上还在拨号中的预留数
	// 不得超过上限。singleflight 只合并同一目标的重复请求，
	// 不同目标的并发拨号必须在这里排队抢名额
	mu       sync.Mutex
	reserved int

	maxSessions       int
	connectTimeout    time.Duration
	keepAlive         bool
	keepAliveInterval time.Duration
}

type PoolOption func(*Pool)

// WithoutKeepAlive 关闭后台心跳 (测试中避免额外协程干扰)
func WithoutKeepAlive() PoolOption {
	return func(p *Pool) {
		p.keepAlive = false
	}
}

// WithKeepAliveInterval 调整心跳间隔
func WithKeepAliveInterval(interval time.Duration) PoolOption {
	return func(p *Pool) {
		if interval > 0 {
			p.keepAliveInterval = interval
		}
	}
}

func NewPool(maxSessions int, connectTimeout time.Duration, opts ...PoolOption) *Pool {
	if maxSessions <= 0 {
		maxSessions = 5
	}
	if connectTimeout <= 0 {
		connectTimeout = 15 * time.Second
	}
	p := &Pool{
		sessions:          concurrent.NewMap[string, *Session](concurrent.HashString),
		maxSessions:       maxSessions,
		connectTimeout:    connectTimeout,
		keepAlive:         true,
		keepAliveInterval: defaultKeepAliveInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire 返回目标的连接，优先复用缓存
// 复用前先探活，死连接摘除后重建；并发的重复请求通过
// singleflight 合并成一次拨号
func (p *Pool) Acquire(ctx context.Context, id models.Identity) (*Session, error) {
	key := id.Key()
	if s, ok := p.sessions.Get(key); ok {
		if s.Alive() {
			return s, nil
		}
		logger.Log.Info("evicting dead session", "target", key)
		p.sessions.Remove(key)
		s.Close()
	}

	v, err, _ := p.sf.Do(key, func() (interface{}, error) {
		// 双重检查：等待期间别的协程可能已经建好了
		if s, ok := p.sessions.Get(key); ok && s.Alive() {
			return s, nil
		}
		// 拨号前先抢到名额，超限快速失败而不是挤掉旧连接
		if err := p.reserve(key); err != nil {
			return nil, err
		}
		s, err := p.connect(ctx, id)
		p.unreserve()
		return s, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// reserve 在慢速拨号开始前占用一个连接名额
// 名额统计包含已注册的会话和所有还没完成的拨号，
// 两个不同目标并发抢最后一个名额时只有一个能拿到
func (p *Pool) reserve(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sessions.Count()+p.reserved >= p.maxSessions {
		return errdefs.New(errdefs.ErrCapacity,
			"%d sessions already open, refusing to connect '%s'", p.maxSessions, key)
	}
	p.reserved++
	return nil
}

// unreserve 归还名额；成功路径上会话此时已经注册进 sessions
func (p *Pool) unreserve() {
	p.mu.Lock()
	p.reserved--
	p.mu.Unlock()
}

func (p *Pool) connect(ctx context.Context, id models.Identity) (*Session, error) {
	key := id.Key()
	cfg, err := p.buildClientConfig(id)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: p.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", id.Addr())
	if err != nil {
		return nil, errdefs.Wrap(errdefs.ErrTransport, err, "dial '%s'", key)
	}

	// NewClientConn 接管底层连接，握手完成才算就绪
	ncc, chans, reqs, err := ssh.NewClientConn(conn, id.Addr(), cfg)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, errdefs.Wrap(errdefs.ErrAuthentication, err, "key rejected for '%s'", key)
		}
		return nil, errdefs.Wrap(errdefs.ErrTransport, err, "handshake with '%s'", key)
	}

	s := &Session{identity: id, client: ssh.NewClient(ncc, chans, reqs)}
	p.sessions.Set(key, s)
	if p.keepAlive {
		startKeepAlive(s.client, p.keepAliveInterval, func(err error) {
			logger.Log.Warn("session lost", "target", key, "err", err)
			// 只摘除仍然注册为本会话的条目
			// 被淘汰的旧会话的心跳晚些才触发，不能误伤顶替上来的新会话
			p.sessions.RemoveIf(key, func(cur *Session) bool { return cur == s })
		})
	}
	logger.Log.Info("session established", "target", key)
	return s, nil
}

// buildClientConfig 解析私钥构建认证配置，仅支持私钥认证
func (p *Pool) buildClientConfig(id models.Identity) (*ssh.ClientConfig, error) {
	keyBytes, err := os.ReadFile(ExpandHomeDir(id.KeyPath))
	if err != nil {
		return nil, errdefs.Wrap(errdefs.ErrAuthentication, err, "read key for '%s'", id.Key())
	}
	var signer ssh.Signer
	if id.Passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(id.Passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyBytes)
	}
	if err != nil {
		return nil, errdefs.Wrap(errdefs.ErrAuthentication, err, "parse key '%s' for '%s'", id.KeyPath, id.Key())
	}
	return &ssh.ClientConfig{
		User:            id.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: 集成 known_hosts 检查
		Timeout:         p.connectTimeout,
	}, nil
}

// Count 当前缓存的会话数
func (p *Pool) Count() int {
	return p.sessions.Count()
}

// DisconnectAll 关闭全部连接并清空注册表
// 一次性取走全部条目再逐个关闭，不会留下半清理状态
func (p *Pool) DisconnectAll() {
	for key, s := range p.sessions.PopAll() {
		if err := s.Close(); err != nil {
			logger.Log.Debug("close session", "target", key, "err", err)
		}
	}
}

// ExpandHomeDir 把开头的 ~ 展开为当前用户的家目录
func ExpandHomeDir(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return home + path[1:]
		}
	}
	return path
}
