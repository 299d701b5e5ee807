// file: cmd/geoaegis/tsquery.go

package main

import (
	"GeoAegis/internal/tsquery"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// newTSQueryCommand 打印检索串编译后的 SQL 片段与绑定参数
func newTSQueryCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tsquery <column> <query>",
		Short: "编译全文检索串并打印 SQL 条件",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := tsquery.Compile(args[1])
			b := &tsquery.DollarBinder{}
			clause := expr.SQL(args[0], b)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"query":   expr.Query,
					"include": expr.Include,
					"exclude": expr.Exclude,
					"sql":     clause,
					"args":    b.Args,
				})
			}
			if clause == "" {
				fmt.Fprintln(out, "(空检索串，不生成条件)")
				return nil
			}
			fmt.Fprintln(out, clause)
			for i, a := range b.Args {
				fmt.Fprintf(out, "$%d = %q\n", i+1, a)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出编译结果")
	return cmd
}
