package config

import (
	"regexp"
	"sort"
	"time"

	"github.com/wentf9/sshgate/pkg/authz"
	"github.com/wentf9/sshgate/pkg/crypto"
	"github.com/wentf9/sshgate/pkg/errdefs"
	"github.com/wentf9/sshgate/pkg/models"
)

// placeholderPattern 匹配模板中的 {{var}} 占位符
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

type provider struct {
	cfg     *Configuration
	crypter *crypto.Crypter
}

// NewProvider 基于已加载的配置构建 Provider
// crypter 可以为 nil，此时不支持 ENC: 加密口令
func NewProvider(cfg *Configuration, crypter *crypto.Crypter) Provider {
	return &provider{cfg: cfg, crypter: crypter}
}

func (p *provider) GetServerIdentity(name string) (models.Identity, error) {
	srv, ok := p.cfg.Servers[name]
	if !ok {
		return models.Identity{}, errdefs.New(errdefs.ErrNotFound, "server '%s' is not configured", name)
	}
	srv.Name = name
	// 配置里的口令可能是 ENC: 加密形式，取出时解密
	if crypto.IsEncrypted(srv.Passphrase) {
		if p.crypter == nil {
			return models.Identity{}, errdefs.New(errdefs.ErrConfiguration,
				"server '%s': passphrase is encrypted but no key is available", name)
		}
		plain, err := p.crypter.Decrypt(srv.Passphrase)
		if err != nil {
			return models.Identity{}, errdefs.Wrap(errdefs.ErrConfiguration, err,
				"server '%s': decrypt passphrase", name)
		}
		srv.Passphrase = plain
	}
	return srv, nil
}

// IsCommandAllowed 提取命令串中会实际执行的所有程序名，
// 全部在白名单内才放行
func (p *provider) IsCommandAllowed(command string) bool {
	return authz.IsAllowed(command, p.cfg.Security.AllowedCommands)
}

func (p *provider) RenderTemplate(name string, vars map[string]string) (string, error) {
	tpl, ok := p.cfg.Templates[name]
	if !ok {
		return "", errdefs.New(errdefs.ErrConfiguration, "template '%s' is not configured", name)
	}
	var missing string
	out := placeholderPattern.ReplaceAllStringFunc(tpl.Command, func(m string) string {
		key := placeholderPattern.FindStringSubmatch(m)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		if missing == "" {
			missing = key
		}
		return m
	})
	if missing != "" {
		return "", errdefs.New(errdefs.ErrConfiguration,
			"template '%s': variable '%s' is not provided", name, missing)
	}
	return out, nil
}

func (p *provider) ListServers() []string {
	names := make([]string, 0, len(p.cfg.Servers))
	for name := range p.cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *provider) MaxConnections() int {
	return p.cfg.Security.MaxConnections
}

func (p *provider) ConnectTimeout() time.Duration {
	return time.Duration(p.cfg.Security.ConnectTimeoutSeconds) * time.Second
}

func (p *provider) AuditLogPath() string {
	return p.cfg.AuditLog
}
