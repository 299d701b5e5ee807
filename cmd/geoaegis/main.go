// file: cmd/geoaegis/main.go

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "v0.3.0"

// rootOptions 是所有子命令共享的全局参数
type rootOptions struct {
	ConfigPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "geoaegis",
		Short:        "GeoAegis 多后端地理/文本查询服务",
		Version:      version,
		SilenceUsage: true,
	}
	defaultConfig := os.Getenv("GEOAEGIS_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", defaultConfig, "配置文件路径 (也可用 GEOAEGIS_CONFIG 指定)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newTSQueryCommand())
	cmd.AddCommand(newTokenCommand(opts))
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}
