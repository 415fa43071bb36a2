// Package testutil 提供测试用的进程内 SSH 服务端
// 支持 exec 请求、direct-tcpip 转发和 sftp 子系统，
// 让连接池、执行器、隧道和文件操作可以走真实协议测试
package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/wentf9/sshgate/pkg/models"
)

// ExecHandler 处理一次 exec 请求
// keepOpen 为 true 时既不发退出码也不关通道，用于模拟挂死的命令
type ExecHandler func(command string, ch ssh.Channel) (exit int, keepOpen bool)

// SSHServer 进程内 SSH 服务端，接受任意公钥认证
type SSHServer struct {
	Port    int
	KeyPath string // 写到临时目录的客户端私钥，给连接池加载

	Exec ExecHandler

	listener net.Listener
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
}

// NewSSHServer 启动服务端并注册清理
func NewSSHServer(t *testing.T) *SSHServer {
	t.Helper()

	_, hostKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostSigner, err := ssh.NewSignerFromKey(hostKey)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}

	_, clientKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(clientKey, "")
	if err != nil {
		t.Fatalf("marshal client key: %v", err)
	}
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("write client key: %v", err)
	}

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			return nil, nil
		},
	}
	cfg.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &SSHServer{
		Port:     ln.Addr().(*net.TCPAddr).Port,
		KeyPath:  keyPath,
		listener: ln,
		conns:    make(map[net.Conn]struct{}),
		// 默认回显命令本身
		Exec: func(command string, ch ssh.Channel) (int, bool) {
			fmt.Fprint(ch, command)
			return 0, false
		},
	}
	go s.acceptLoop(cfg)
	t.Cleanup(s.Close)
	return s
}

// Identity 构造指向本服务端的目标标识
func (s *SSHServer) Identity(user string) models.Identity {
	return models.Identity{
		Name:     "test-" + user,
		Username: user,
		Host:     "127.0.0.1",
		Port:     s.Port,
		KeyPath:  s.KeyPath,
	}
}

// CloseClientConns 掐断所有已建立的客户端连接 (模拟网络断开)
func (s *SSHServer) CloseClientConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
	}
	s.conns = make(map[net.Conn]struct{})
}

func (s *SSHServer) Close() {
	s.listener.Close()
	s.CloseClientConns()
}

func (s *SSHServer) acceptLoop(cfg *ssh.ServerConfig) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		go s.handleConn(conn, cfg)
	}
}

func (s *SSHServer) handleConn(conn net.Conn, cfg *ssh.ServerConfig) {
	defer conn.Close()
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}
	// DiscardRequests 会应答 wantReply 的请求，keepalive 探活依赖它
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		switch newChan.ChannelType() {
		case "session":
			ch, requests, err := newChan.Accept()
			if err != nil {
				continue
			}
			go s.handleSession(ch, requests)
		case "direct-tcpip":
			go s.handleDirectTCPIP(newChan)
		default:
			newChan.Reject(ssh.UnknownChannelType, "unsupported channel type")
		}
	}
}

func (s *SSHServer) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	for req := range requests {
		switch req.Type {
		case "exec":
			var p struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &p); err != nil {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			go func() {
				exit, keepOpen := s.Exec(p.Command, ch)
				if keepOpen {
					return
				}
				ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(exit)}))
				ch.Close()
			}()
		case "subsystem":
			var p struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &p); err != nil || p.Name != "sftp" {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			go func() {
				srv, err := sftp.NewServer(ch)
				if err != nil {
					ch.Close()
					return
				}
				srv.Serve()
				ch.Close()
			}()
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

func (s *SSHServer) handleDirectTCPIP(newChan ssh.NewChannel) {
	var p struct {
		DestAddr   string
		DestPort   uint32
		OriginAddr string
		OriginPort uint32
	}
	if err := ssh.Unmarshal(newChan.ExtraData(), &p); err != nil {
		newChan.Reject(ssh.ConnectionFailed, "bad payload")
		return
	}
	target, err := net.Dial("tcp", net.JoinHostPort(p.DestAddr, strconv.Itoa(int(p.DestPort))))
	if err != nil {
		newChan.Reject(ssh.ConnectionFailed, err.Error())
		return
	}
	ch, requests, err := newChan.Accept()
	if err != nil {
		target.Close()
		return
	}
	go ssh.DiscardRequests(requests)

	var once sync.Once
	closeBoth := func() {
		ch.Close()
		target.Close()
	}
	go func() {
		io.Copy(target, ch)
		once.Do(closeBoth)
	}()
	go func() {
		io.Copy(ch, target)
		once.Do(closeBoth)
	}()
}
