/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/wentf9/sshgate/cmd/version"
	"github.com/wentf9/sshgate/pkg/config"
	"github.com/wentf9/sshgate/pkg/crypto"
	"github.com/wentf9/sshgate/pkg/logger"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sshgate [command] [flags]",
	Short: "sshgate 是面向自动化客户端的远程执行与端口转发控制面",
	Long: `sshgate 对一组预先配置的远程主机提供安全的命令执行、
TCP 隧道转发和文件传输能力。命令执行受白名单约束，
serve 子命令以 MCP 服务器形式把这些能力暴露给自动化客户端。`,
	Run: func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			version.PrintFullVersion()
			os.Exit(0)
		}
		cmd.Help()
		os.Exit(0)
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debugFlag, _ := cmd.Flags().GetBool("debug")
		if debugFlag {
			logger.SetLogLevel("debug")
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "显示版本信息")
	rootCmd.PersistentFlags().Bool("debug", false, "开启调试日志")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径 (默认 ~/.sshgate/config.yaml)")
}

// loadProvider 加载配置并构建 Provider
// 加密密钥不可用时继续运行，只是不支持 ENC: 口令
func loadProvider() (config.Provider, error) {
	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.NewDefaultStore(path).Load()
	if err != nil {
		return nil, err
	}
	var crypter *crypto.Crypter
	if key, err := crypto.LoadOrGenerateKey(config.DefaultKeyPath()); err == nil {
		crypter, _ = crypto.NewCrypter(key)
	}
	return config.NewProvider(cfg, crypter), nil
}
