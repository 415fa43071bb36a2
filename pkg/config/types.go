package config

import (
	"time"

	"github.com/wentf9/sshgate/pkg/models"
)

// Configuration 对应 yaml 配置文件的顶层结构
type Configuration struct {
	Servers   map[string]models.Identity `yaml:"servers"`
	Security  Security                   `yaml:"security"`
	Templates map[string]Template        `yaml:"templates,omitempty"`
	AuditLog  string                     `yaml:"audit_log,omitempty"`
}

// Security 安全与资源限制
type Security struct {
	// AllowedCommands 命令白名单；一条命令串里提取出的所有
	// 程序名都必须在名单内才允许执行
	AllowedCommands []string `yaml:"allowed_commands"`
	// MaxConnections 同时保持的 SSH 会话上限，超出时报错而不是挤掉旧会话
	MaxConnections int `yaml:"max_connections"`
	// ConnectTimeoutSeconds 建立连接的超时时间
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"`
}

// Template 预定义命令模板，{{var}} 占位符在执行前替换
type Template struct {
	Command     string `yaml:"command"`
	Description string `yaml:"description,omitempty"`
}

// Provider 定义上层组件获取配置数据的接口
type Provider interface {
	// GetServerIdentity 按名称查找目标服务器，未配置时返回 errdefs.ErrNotFound
	GetServerIdentity(name string) (models.Identity, error)
	// IsCommandAllowed 判断一条命令串是否整体通过白名单
	IsCommandAllowed(command string) bool
	// RenderTemplate 渲染命令模板，未知模板或未解析的占位符返回 errdefs.ErrConfiguration
	RenderTemplate(name string, vars map[string]string) (string, error)
	ListServers() []string
	MaxConnections() int
	ConnectTimeout() time.Duration
	AuditLogPath() string
}
