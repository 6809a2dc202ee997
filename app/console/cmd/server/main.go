package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/joho/godotenv"

	"github.com/iWorld-y/deep_research/app/console/internal/biz"
	"github.com/iWorld-y/deep_research/app/console/internal/conf"
	"github.com/iWorld-y/deep_research/app/console/internal/server"
	"github.com/iWorld-y/deep_research/app/console/internal/service"
	"github.com/iWorld-y/deep_research/app/research/pkg/events"
	"github.com/iWorld-y/deep_research/app/research/pkg/genai"
	"github.com/iWorld-y/deep_research/app/research/pkg/search/factory"
	"github.com/iWorld-y/deep_research/app/research/pkg/workflow"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name 是服务的名称
	Name string = "console"
	// Version 是服务的版本号
	Version string
	// flagconf 是配置文件的路径命令行参数
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "app/console/configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()
	logger := log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
	)

	// 密钥允许通过 .env / 环境变量注入
	_ = godotenv.Load()

	c := config.New(
		config.WithSource(
			file.NewSource(flagconf),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		panic(err)
	}

	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		panic(err)
	}

	app, cleanup, err := initApp(&bc, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	if err := app.Run(); err != nil {
		panic(err)
	}
}

// initApp 手工装配依赖：搜索客户端 → 生成服务 → 控制器 → 业务层 → HTTP 服务
func initApp(bc *conf.Bootstrap, logger log.Logger) (*kratos.App, func(), error) {
	cfg := bc.Agent.ResearchConfig()
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("TAVILY_API_KEY"); v != "" {
		cfg.Search.Tavily.APIKey = v
	}
	if cfg.LLM.APIKey == "" {
		return nil, nil, fmt.Errorf("缺少 LLM API Key")
	}

	searcher, err := factory.NewSearcher(cfg)
	if err != nil {
		return nil, nil, err
	}
	svc, err := genai.NewService(context.Background(), cfg, searcher)
	if err != nil {
		return nil, nil, err
	}

	broker := events.NewBroker()
	controller := workflow.New(svc, broker, workflow.Options{MaxRetries: cfg.Research.MaxRetries})

	var schedule *conf.Schedule
	if bc.Agent != nil {
		schedule = bc.Agent.Schedule
	}
	uc, cleanup, err := biz.NewResearchUseCase(controller, broker, schedule, logger)
	if err != nil {
		return nil, nil, err
	}

	s := service.NewConsoleService(uc, logger)
	hs := server.NewHTTPServer(bc.Server, s, logger)

	app := kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(hs),
	)
	return app, cleanup, nil
}
