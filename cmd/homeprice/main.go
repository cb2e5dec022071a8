// Command homeprice 运行房价推理服务：HTTP API、离线批处理与命令行预测。
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/rushteam/homeprice/config/builders"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "homeprice",
		Short: "Housing price feature pipeline and inference service",
		Long: `homeprice 加载训练产物（schema、编码器、区域映射、模型），
对原始房屋记录做与训练一致的特征转换并输出价格预测。

Examples:
  homeprice serve --config config.yaml
  homeprice batch --date 2024-03-01
  homeprice predict --input houses.csv`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path (env HOMEPRICE_* overrides)")

	rootCmd.AddCommand(serveCmd(), batchCmd(), predictCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "homeprice %s (%s)\n", version, commit)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
