package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/wentf9/sshgate/pkg/errdefs"
)

// Store 负责配置文件的读写
type Store interface {
	Load() (*Configuration, error)
	Save(cfg *Configuration) error
}

type defaultStore struct {
	Path string
}

func NewDefaultStore(path string) Store {
	return &defaultStore{Path: path}
}

// DefaultPath 返回默认配置文件位置 ~/.sshgate/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".sshgate", "config.yaml")
}

// DefaultKeyPath 返回加密密钥文件位置 ~/.sshgate/key
func DefaultKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sshgate.key"
	}
	return filepath.Join(home, ".sshgate", "key")
}

func (s *defaultStore) Load() (*Configuration, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.ErrConfiguration, err, "read config '%s'", s.Path)
	}
	var cfg Configuration
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errdefs.Wrap(errdefs.ErrConfiguration, err, "parse config '%s'", s.Path)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *defaultStore) Save(cfg *Configuration) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errdefs.Wrap(errdefs.ErrConfiguration, err, "marshal config")
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0700); err != nil {
		return errdefs.Wrap(errdefs.ErrConfiguration, err, "create config directory")
	}
	return os.WriteFile(s.Path, data, 0600)
}

// validate 补全默认值并检查必填字段
func validate(cfg *Configuration) error {
	if cfg.Security.MaxConnections <= 0 {
		cfg.Security.MaxConnections = 5
	}
	if cfg.Security.ConnectTimeoutSeconds <= 0 {
		cfg.Security.ConnectTimeoutSeconds = 15
	}
	for name, srv := range cfg.Servers {
		if srv.Host == "" {
			return errdefs.New(errdefs.ErrConfiguration, "server '%s': host is required", name)
		}
		if srv.Username == "" {
			return errdefs.New(errdefs.ErrConfiguration, "server '%s': username is required", name)
		}
		if srv.KeyPath == "" {
			return errdefs.New(errdefs.ErrConfiguration, "server '%s': key_path is required", name)
		}
		if srv.Port == 0 {
			srv.Port = 22
		}
		if srv.Port < 1 || srv.Port > 65535 {
			return errdefs.New(errdefs.ErrConfiguration, "server '%s': invalid port %d", name, srv.Port)
		}
		srv.Name = name
		cfg.Servers[name] = srv
	}
	for name, tpl := range cfg.Templates {
		if tpl.Command == "" {
			return errdefs.New(errdefs.ErrConfiguration, "template '%s': command is required", name)
		}
	}
	return nil
}
