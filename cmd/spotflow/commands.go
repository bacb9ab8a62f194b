package api

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spotflow/conf"
	"spotflow/internal/model"
	"spotflow/pkg/kafka"
	"spotflow/pkg/logger"
	"spotflow/pkg/utils"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var Version = "dev"

// NewRootCmd 命令行入口
func NewRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "spotflow",
		Short: "spotflow - spot trading bot",
		Long: `spotflow trades spot pairs on OKX (or a local paper exchange) from external signals,
with risk-based position sizing and stop-loss / take-profit checks.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "conf/config.yaml", "Configuration file path")

	loadConfig := func() (*conf.Config, error) {
		if err := conf.LoadConfig(configPath); err != nil {
			return nil, err
		}
		cfg := conf.AppConfig
		logger.InitLogger(&cfg.Log, cfg.AppName)
		return &cfg, nil
	}

	rootCmd.AddCommand(newRunCmd(loadConfig))
	rootCmd.AddCommand(newSignalCmd(loadConfig))
	rootCmd.AddCommand(newConfigCmd(loadConfig))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

type configLoader func() (*conf.Config, error)

func newRunCmd(load configLoader) *cobra.Command {
	var paper bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the trading loop and the http server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if paper {
				cfg.Trading.Paper = true
			}

			app, err := NewApp(cfg)
			if err != nil {
				return err
			}
			// graceful shutdown
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&paper, "paper", false, "Use the local paper exchange")
	return cmd
}

// newSignalCmd 向 kafka 发送一条信号，用于联调
func newSignalCmd(load configLoader) *cobra.Command {
	var (
		action   string
		price    float64
		strategy string
	)
	cmd := &cobra.Command{
		Use:   "signal [SYMBOL]",
		Short: "Publish a trading signal to the configured kafka topic",
		Example: `  spotflow signal BTC/USDT --action buy
  spotflow signal ETH/USDT --action sell --price 2500`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Kafka.Broker == "" || cfg.Kafka.Topic == "" {
				return fmt.Errorf("kafka.broker and kafka.topic are required")
			}
			if _, err := model.ParseAction(action); err != nil {
				return err
			}

			msg := model.SignalMessage{
				Strategy:  strategy,
				Symbol:    utils.FormatSymbol(args[0]),
				Action:    action,
				Price:     price,
				Timestamp: time.Now(),
			}
			body, err := json.Marshal(msg)
			if err != nil {
				return err
			}

			producer := kafka.NewKafkaProducer(cfg.Kafka.Broker)
			defer producer.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := producer.Produce(ctx, cfg.Kafka.Topic, []byte(msg.Symbol), body); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signal sent: %s\n", body)
			return nil
		},
	}
	cmd.Flags().StringVar(&action, "action", "hold", "buy, sell or hold")
	cmd.Flags().Float64Var(&price, "price", 0, "Price when the signal fired")
	cmd.Flags().StringVar(&strategy, "strategy", "manual", "Strategy name")
	return cmd
}

func newConfigCmd(load configLoader) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d pairs, paper=%v, database=%v\n",
				len(cfg.Trading.Pairs), cfg.Trading.Paper, cfg.Db.Enabled())
			return nil
		},
	})
	return configCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "spotflow %s\n", Version)
		},
	}
}

// Execute 供 main 调用
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
