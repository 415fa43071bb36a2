/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"net"
	"strconv"
	"time"

	ping "github.com/prometheus-community/pro-bing"
	"github.com/spf13/cobra"
)

// pingCmd 对配置好的服务器做连通性预检
var pingCmd = &cobra.Command{
	Use:   "ping <server>",
	Short: "对配置好的服务器做连通性预检 (ICMP + SSH 端口)",
	Long: `先对服务器地址做 ICMP/UDP ping，再尝试 TCP 连接它的
SSH 端口，用于在批量操作前确认目标可达。
示例: sshgate ping web1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := loadProvider()
		if err != nil {
			return err
		}
		id, err := provider.GetServerIdentity(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("正在 Ping %s (%s)...\n", args[0], id.Host)
		pinger, err := ping.NewPinger(id.Host)
		if err != nil {
			return fmt.Errorf("创建pinger失败: %w", err)
		}
		// 非特权 UDP ping，不需要 root
		pinger.SetPrivileged(false)
		pinger.Count = 4
		pinger.Interval = time.Second
		pinger.Timeout = 4 * time.Second
		pinger.OnFinish = func(stats *ping.Statistics) {
			fmt.Printf("%d 个包已发送, %d 个包已接收, %v%% 包丢失\n",
				stats.PacketsSent, stats.PacketsRecv, stats.PacketLoss)
			if stats.PacketsRecv > 0 {
				fmt.Printf("往返行程 最小/平均/最大 = %v/%v/%v\n",
					stats.MinRtt, stats.AvgRtt, stats.MaxRtt)
			}
		}
		if err := pinger.RunWithContext(cmd.Context()); err != nil {
			fmt.Printf("ping 失败: %v\n", err)
		}

		addr := net.JoinHostPort(id.Host, strconv.Itoa(id.Port))
		fmt.Printf("正在测试到 %s 的TCP连接...\n", addr)
		conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err != nil {
			fmt.Printf("SSH 端口 %d 已关闭或被过滤: %v\n", id.Port, err)
			return nil
		}
		conn.Close()
		fmt.Printf("SSH 端口 %d 是开放的!\n", id.Port)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
