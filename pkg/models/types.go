package models

import "fmt"

// Identity 标识一个远程目标: (用户名, 主机, 端口) 三元组加上私钥信息
// Name 是配置文件中的服务器名称，仅用于日志和错误信息
type Identity struct {
	Name       string `yaml:"-" json:"name"`
	Username   string `yaml:"username" json:"username"`
	Host       string `yaml:"host" json:"host"`
	Port       int    `yaml:"port" json:"port"`
	KeyPath    string `yaml:"key_path" json:"-"`
	Passphrase string `yaml:"passphrase,omitempty" json:"-"` // 私钥密码
}

// Key 返回连接池使用的唯一键 user@host:port
func (i Identity) Key() string {
	return fmt.Sprintf("%s@%s:%d", i.Username, i.Host, i.Port)
}

// Addr 返回 host:port 形式的拨号地址
func (i Identity) Addr() string {
	return fmt.Sprintf("%s:%d", i.Host, i.Port)
}

// CommandResult 一次远程命令执行的结果，产生后不可变
// ExitCode 为 nil 表示命令没有正常退出 (超时被强制终止，或通道关闭时没有退出码)
type CommandResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode *int   `json:"exit_code"`
	TimedOut bool   `json:"timed_out"`
}

// TunnelInfo 描述一条活跃的端口转发隧道，用于枚举展示
type TunnelInfo struct {
	Server     string `json:"server"`
	LocalPort  int    `json:"local_port"`
	RemoteHost string `json:"remote_host"`
	RemotePort int    `json:"remote_port"`
}

// FileInfo 远程文件列表项
type FileInfo struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	Mode    string `json:"mode"`
	IsDir   bool   `json:"is_dir"`
	ModTime string `json:"mod_time"`
}
