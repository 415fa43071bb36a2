package fileops

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/wentf9/sshgate/pkg/errdefs"
)

const copyChunkSize = 32 * 1024 // SFTP 默认包大小

// Upload 上传单个本地文件到远程路径
// 远程路径是已存在的目录时自动拼上文件名
func (c *Client) Upload(ctx context.Context, localPath, remotePath string, progress ProgressCallback) error {
	src, err := os.Open(localPath)
	if err != nil {
		return errdefs.Wrap(errdefs.ErrExecution, err, "open local file '%s'", localPath)
	}
	defer src.Close()

	if stat, err := c.sftpClient.Stat(remotePath); err == nil && stat.IsDir() {
		remotePath = c.JoinPath(remotePath, filepath.Base(localPath))
	}
	dst, err := c.sftpClient.Create(remotePath)
	if err != nil {
		return errdefs.Wrap(errdefs.ErrExecution, err,
			"create '%s' on '%s'", remotePath, c.session.Identity().Key())
	}
	defer dst.Close()

	if err := c.streamCopy(ctx, dst, src, progress); err != nil {
		return errdefs.Wrap(errdefs.ErrExecution, err,
			"upload '%s' to '%s'", localPath, c.session.Identity().Key())
	}
	return nil
}

// Download 下载远程文件到本地路径
// 本地路径是已存在的目录时自动拼上文件名
func (c *Client) Download(ctx context.Context, remotePath, localPath string, progress ProgressCallback) error {
	src, err := c.sftpClient.Open(remotePath)
	if err != nil {
		return errdefs.Wrap(errdefs.ErrExecution, err,
			"open '%s' on '%s'", remotePath, c.session.Identity().Key())
	}
	defer src.Close()

	if stat, err := os.Stat(localPath); err == nil && stat.IsDir() {
		localPath = filepath.Join(localPath, filepath.Base(remotePath))
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return errdefs.Wrap(errdefs.ErrExecution, err, "create local file '%s'", localPath)
	}
	defer dst.Close()

	if err := c.streamCopy(ctx, dst, src, progress); err != nil {
		return errdefs.Wrap(errdefs.ErrExecution, err,
			"download '%s' from '%s'", remotePath, c.session.Identity().Key())
	}
	return nil
}

// streamCopy 分块流式拷贝，每块之间检查取消并上报进度
func (c *Client) streamCopy(ctx context.Context, dst io.Writer, src io.Reader, progress ProgressCallback) error {
	buf := make([]byte, copyChunkSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			if progress != nil {
				progress(n)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
