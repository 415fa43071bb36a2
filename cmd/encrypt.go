package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wentf9/sshgate/pkg/config"
	"github.com/wentf9/sshgate/pkg/crypto"
)

// encryptCmd 生成可写入配置文件的 ENC: 加密口令
var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "加密私钥口令，输出可写入配置文件的 ENC: 值",
	Long: `读入明文口令，用本机密钥 (~/.sshgate/key) 加密后输出
ENC: 开头的密文，把它填到服务器配置的 passphrase 字段即可。
交互式终端下隐藏输入，管道输入时读取一行。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var plain string
		if term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprint(os.Stderr, "口令: ")
			data, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}
			plain = string(data)
		} else {
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return err
			}
			plain = strings.TrimRight(line, "\r\n")
		}
		if plain == "" {
			return fmt.Errorf("empty passphrase")
		}

		key, err := crypto.LoadOrGenerateKey(config.DefaultKeyPath())
		if err != nil {
			return err
		}
		crypter, err := crypto.NewCrypter(key)
		if err != nil {
			return err
		}
		out, err := crypter.Encrypt(plain)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(encryptCmd)
}
