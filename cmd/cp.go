package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wentf9/sshgate/pkg/fileops"
	"github.com/wentf9/sshgate/pkg/sshpool"
)

type cpOptions struct {
	Download bool
}

// NewCmdCp 在本地和配置好的服务器之间传输文件
func NewCmdCp() *cobra.Command {
	o := &cpOptions{}
	cmd := &cobra.Command{
		Use:   "cp <server> <src> <dst>",
		Short: "通过 SFTP 在本地和远程服务器之间传输文件",
		Long: `默认把本地文件上传到远程路径，--download 反向下载。
用法示例:
sshgate cp web1 ./app.tar.gz /opt/app/
sshgate cp web1 /var/log/app.log ./ --download`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Context(), args[0], args[1], args[2])
		},
	}
	cmd.Flags().BoolVar(&o.Download, "download", false, "从远程下载到本地")
	return cmd
}

func (o *cpOptions) run(ctx context.Context, server, src, dst string) error {
	provider, err := loadProvider()
	if err != nil {
		return err
	}
	id, err := provider.GetServerIdentity(server)
	if err != nil {
		return err
	}

	pool := sshpool.NewPool(provider.MaxConnections(), provider.ConnectTimeout())
	defer pool.DisconnectAll()
	sess, err := pool.Acquire(ctx, id)
	if err != nil {
		return err
	}
	client, err := fileops.NewClient(sess)
	if err != nil {
		return err
	}
	defer client.Close()

	var size int64 = -1
	if o.Download {
		size, _ = client.Stat(src)
	} else if info, err := os.Stat(src); err == nil {
		size = info.Size()
	}
	progress := newProgress(size, fmt.Sprintf("%s -> %s", src, dst))

	if o.Download {
		return client.Download(ctx, src, dst, progress)
	}
	return client.Upload(ctx, src, dst, progress)
}

// newProgress 交互式终端下返回进度条回调，否则不显示进度
// 进度条写 stderr，不污染可能被重定向的 stdout
func newProgress(size int64, desc string) fileops.ProgressCallback {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	bar := progressbar.NewOptions64(size,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
	)
	return func(n int) {
		bar.Add(n)
	}
}

func init() {
	rootCmd.AddCommand(NewCmdCp())
}
