// Package fileops 基于连接池的远程文件操作 (上传/下载/列表/删除)
// SFTP 子系统复用已有的 SSH 连接，不另行拨号
package fileops

import (
	"sort"

	"github.com/pkg/sftp"

	"github.com/wentf9/sshgate/pkg/errdefs"
	"github.com/wentf9/sshgate/pkg/models"
	"github.com/wentf9/sshgate/pkg/sshpool"
)

// ProgressCallback 进度回调，n 为本次增量传输的字节数
// 必须并发安全
type ProgressCallback func(n int)

// Client 包装 sftp.Client，持有底层 SSH 会话的引用
type Client struct {
	sftpClient *sftp.Client
	session    *sshpool.Session
}

// NewClient 在现有 SSH 会话上打开 SFTP 子系统
func NewClient(sess *sshpool.Session) (*Client, error) {
	client, err := sftp.NewClient(sess.SSHClient())
	if err != nil {
		return nil, errdefs.Wrap(errdefs.ErrExecution, err,
			"open sftp subsystem on '%s'", sess.Identity().Key())
	}
	return &Client{sftpClient: client, session: sess}, nil
}

// Close 关闭 SFTP 会话 (不关闭底层 SSH 连接，连接归池管理)
func (c *Client) Close() error {
	return c.sftpClient.Close()
}

// List 列出远程目录内容，按名称排序
func (c *Client) List(remotePath string) ([]models.FileInfo, error) {
	entries, err := c.sftpClient.ReadDir(remotePath)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.ErrExecution, err,
			"list '%s' on '%s'", remotePath, c.session.Identity().Key())
	}
	out := make([]models.FileInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.FileInfo{
			Name:    e.Name(),
			Size:    e.Size(),
			Mode:    e.Mode().String(),
			IsDir:   e.IsDir(),
			ModTime: e.ModTime().Format("2006-01-02 15:04:05"),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete 删除远程文件；对目录尝试删除空目录
func (c *Client) Delete(remotePath string) error {
	info, err := c.sftpClient.Stat(remotePath)
	if err != nil {
		return errdefs.Wrap(errdefs.ErrExecution, err,
			"stat '%s' on '%s'", remotePath, c.session.Identity().Key())
	}
	if info.IsDir() {
		err = c.sftpClient.RemoveDirectory(remotePath)
	} else {
		err = c.sftpClient.Remove(remotePath)
	}
	if err != nil {
		return errdefs.Wrap(errdefs.ErrExecution, err,
			"delete '%s' on '%s'", remotePath, c.session.Identity().Key())
	}
	return nil
}

// JoinPath 远程路径拼接 (SFTP 协议强制使用正斜杠)
func (c *Client) JoinPath(elem ...string) string {
	return c.sftpClient.Join(elem...)
}

// Stat 返回远程文件大小，供传输进度条使用
func (c *Client) Stat(remotePath string) (int64, error) {
	info, err := c.sftpClient.Stat(remotePath)
	if err != nil {
		return 0, errdefs.Wrap(errdefs.ErrExecution, err,
			"stat '%s' on '%s'", remotePath, c.session.Identity().Key())
	}
	return info.Size(), nil
}
