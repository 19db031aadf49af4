package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/vehicle-assist/backend/internal/bootstrap"
	"github.com/zhouzirui/vehicle-assist/backend/internal/config"
)

var timeout time.Duration

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	root := &cobra.Command{
		Use:          "intaketester",
		Short:        "Manually exercise the chat rules, classifier, transcriber and issue submitter",
		SilenceUsage: true,
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout", 45*time.Second, "请求超时时间")

	root.AddCommand(replyCmd())
	root.AddCommand(classifyCmd())
	root.AddCommand(transcribeCmd())
	root.AddCommand(submitCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("配置加载失败: %w", err)
	}
	return cfg, nil
}

// resolveVehicle maps a catalog id or name onto the display name.
func resolveVehicle(cfg *config.Config, ref string) (string, error) {
	vehicles, err := bootstrap.Vehicles(cfg.Catalog)
	if err != nil {
		return "", err
	}
	v, ok := vehicles.FindByID(ref)
	if !ok {
		return "", fmt.Errorf("unknown vehicle %q", ref)
	}
	return v.Name, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func printJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
