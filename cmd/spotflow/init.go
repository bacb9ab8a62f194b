package api

import (
	"context"
	"time"

	"spotflow/conf"
	"spotflow/internal/dao"
	"spotflow/internal/exchange"
	"spotflow/internal/exchange/okx"
	"spotflow/internal/handler/trading"
	"spotflow/internal/model"
	whhandler "spotflow/internal/handler/webhook"
	"spotflow/internal/order"
	"spotflow/internal/position"
	"spotflow/internal/risk"
	"spotflow/internal/router"
	"spotflow/internal/signal"
	"spotflow/internal/trader"
	"spotflow/internal/webhook"
	"spotflow/pkg/db"
	"spotflow/pkg/kafka"
	"spotflow/pkg/logger"
	"spotflow/pkg/utils"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// App 组装好的服务
type App struct {
	cfg    *conf.Config
	trader *trader.Trader
	feed   *signal.KafkaFeed
	router Router
	close  []func()
}

func NewApp(cfg *conf.Config) (*App, error) {
	app := &App{cfg: cfg}
	params := risk.ParametersFromConfig(cfg.Trading)

	gw, err := newGateway(cfg, params.FeeRate)
	if err != nil {
		return nil, err
	}
	gw = exchange.WithTimeout(gw, cfg.Trading.GatewayTimeout)

	journal, err := app.newJournal()
	if err != nil {
		return nil, err
	}

	ledger := position.NewLedger()
	coord := order.NewCoordinator(gw, ledger, params.FeeRate, order.WithJournal(journal))
	inbox := signal.NewInbox(cfg.Webhook.SignalExpiry)

	app.trader = trader.New(trader.ConfigFromConf(cfg.Trading), gw, coord, risk.NewSizer(params), inbox)

	var wh *whhandler.Handler
	if cfg.Webhook.Secret != "" {
		wh = whhandler.NewHandler(webhook.NewWebhookHandler(inbox, cfg.Webhook.Secret))
	} else {
		logger.Warnf("webhook.secret 未配置，/webhook 未启用")
	}
	history, _ := journal.(order.FillHistory)
	app.router = router.NewApiRouter(trading.NewHandler(ledger, coord, inbox, history), wh)

	if cfg.Kafka.Broker != "" && cfg.Kafka.Topic != "" {
		app.feed = signal.NewKafkaFeed(kafka.NewKafkaConsumer(cfg.Kafka.Broker), inbox, cfg.Kafka.Topic, cfg.Kafka.GroupID)
	}
	return app, nil
}

func newGateway(cfg *conf.Config, feeRate decimal.Decimal) (exchange.Gateway, error) {
	okxConf := okx.Config{
		ApiKey:     cfg.Okx.ApiKey,
		SecretKey:  cfg.Okx.SecretKey,
		Passphrase: cfg.Okx.Password,
		Simulated:  cfg.Okx.Simulated,
	}
	if !cfg.Trading.Paper {
		logger.Infof("使用 OKX 现货交易, simulated=%v", cfg.Okx.Simulated)
		return exchange.NewOkxExchange(okxConf)
	}

	// 模拟盘：本地撮合，初始价格取 OKX 公共行情，取不到时随机
	sim := exchange.NewSimulated(feeRate)
	sim.Deposit(cfg.Trading.QuoteCurrency, decimal.NewFromFloat(cfg.Trading.PaperBalance))
	if pub, err := exchange.NewOkxExchange(okx.Config{}); err == nil {
		for _, pair := range cfg.Trading.Pairs {
			var tk model.Ticker
			err := utils.Retry(context.Background(), 3, 500*time.Millisecond, true, func() error {
				ctx, cancel := context.WithTimeout(context.Background(), cfg.Trading.GatewayTimeout)
				defer cancel()
				var err error
				tk, err = pub.FetchTicker(ctx, pair)
				return err
			})
			if err != nil {
				logger.Warnf("模拟盘获取 %s 初始价格失败: %v", pair, err)
				continue
			}
			sim.SetPrice(pair, tk.Last)
		}
	}
	sim.EnableRandomWalk()
	logger.Infof("使用模拟盘, 初始资金 %v %s", cfg.Trading.PaperBalance, cfg.Trading.QuoteCurrency)
	return sim, nil
}

func (app *App) newJournal() (order.Journal, error) {
	if app.cfg.Db.Enabled() {
		d := app.cfg.Db
		datasource, err := db.Open(db.NewConfig(d.Username, d.Password, d.Host, d.Port, d.DbName))
		if err != nil {
			return nil, err
		}
		if err := dao.AutoMigrate(datasource); err != nil {
			return nil, err
		}
		app.close = append(app.close, func() {
			if sqlDB, err := datasource.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
		logger.Infof("成交记录写入 MySQL %s/%s", d.Host, d.DbName)
		return dao.NewOrderDao(datasource), nil
	}

	fj := order.NewFileJournal(app.cfg.Journal.FilePath)
	app.close = append(app.close, func() { _ = fj.Close() })
	logger.Infof("成交记录写入文件 %s", app.cfg.Journal.FilePath)
	return fj, nil
}

// Run 启动交易循环、信号订阅和 http 服务，ctx 结束后全部退出
func (app *App) Run(ctx context.Context) error {
	defer app.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(app.trader.Run(ctx))
	})
	if app.feed != nil {
		g.Go(func() error {
			return ignoreCanceled(app.feed.Run(ctx))
		})
	}
	g.Go(func() error {
		return NewServer(app.cfg).Run(ctx, app.router)
	})
	return g.Wait()
}

func (app *App) Close() {
	for _, f := range app.close {
		f()
	}
	app.close = nil
}

func ignoreCanceled(err error) error {
	if err == context.Canceled {
		return nil
	}
	return err
}
