package sshpool

import (
	"context"
	"net"

	"golang.org/x/crypto/ssh"

	"github.com/wentf9/sshgate/pkg/models"
)

// Session 是到一个远程目标的已认证 SSH 连接
// 同一个 Session 上的 exec 通道和转发通道复用一条传输，互不阻塞
type Session struct {
	identity models.Identity
	client   *ssh.Client
}

func (s *Session) Identity() models.Identity {
	return s.identity
}

// SSHClient 暴露底层的 ssh.Client (供 SFTP 等高级操作使用)
func (s *Session) SSHClient() *ssh.Client {
	return s.client
}

// NewSession 在连接上打开一个新的 exec 通道
func (s *Session) NewSession() (*ssh.Session, error) {
	return s.client.NewSession()
}

// Alive 发送一次 keepalive 请求探测底层连接是否还活着
// "keepalive@openssh.com" 是 OpenSSH 标准的心跳请求类型，
// wantReply 为 true 时连接已断会立即报错
func (s *Session) Alive() bool {
	_, _, err := s.client.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

// Dial 通过这条连接打开一个 direct-tcpip 通道到远端目标
func (s *Session) Dial(network, addr string) (net.Conn, error) {
	return s.client.Dial(network, addr)
}

// DialContext 带取消的 Dial
// ssh.Client.Dial 本身不支持 Context，用协程包一层
func (s *Session) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := s.client.Dial(network, addr)
		ch <- result{conn: conn, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.conn, res.err
	}
}

// Close 关闭底层连接，所有复用它的通道都会随之失效
func (s *Session) Close() error {
	return s.client.Close()
}
