package sshpool

import (
	"time"

	"golang.org/x/crypto/ssh"
)

// startKeepAlive 开启协程定期向服务端发送心跳
// 心跳失败说明连接已断：关闭 Client 让正在使用的通道立刻收到
// 错误，再通过 onDead 通知连接池摘除缓存
func startKeepAlive(client *ssh.Client, interval time.Duration, onDead func(err error)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
			if err != nil {
				client.Close()
				if onDead != nil {
					onDead(err)
				}
				return
			}
		}
	}()
}
