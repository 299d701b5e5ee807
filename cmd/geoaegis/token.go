// file: cmd/geoaegis/token.go

package main

import (
	"GeoAegis/aegconf"
	"GeoAegis/internal/aegmiddleware"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newTokenCommand 使用配置中的 jwt_secret 签发访问令牌
func newTokenCommand(opts *rootOptions) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "签发查询接口的访问令牌",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := aegconf.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			tok, err := aegmiddleware.IssueToken(cfg.Server.JWTSecret, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "令牌有效期")
	return cmd
}
