package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/iWorld-y/deep_research/app/research/pkg/config"
	"github.com/iWorld-y/deep_research/app/research/pkg/events"
	"github.com/iWorld-y/deep_research/app/research/pkg/export"
	"github.com/iWorld-y/deep_research/app/research/pkg/genai"
	"github.com/iWorld-y/deep_research/app/research/pkg/logger"
	"github.com/iWorld-y/deep_research/app/research/pkg/model"
	"github.com/iWorld-y/deep_research/app/research/pkg/search/factory"
	"github.com/iWorld-y/deep_research/app/research/pkg/workflow"
)

var (
	flagConf  = flag.String("conf", "configs/config.yaml", "配置文件路径")
	flagTopic = flag.String("topic", "", "研究主题")
	flagOut   = flag.String("out", "output", "报告输出目录")
)

func main() {
	flag.Parse()

	topic := strings.TrimSpace(*flagTopic)
	if topic == "" && flag.NArg() > 0 {
		topic = strings.TrimSpace(strings.Join(flag.Args(), " "))
	}
	if topic == "" {
		log.Fatal("用法: research -topic \"研究主题\"")
	}

	// 1. 加载配置
	cfg, err := config.LoadConfig(*flagConf)
	if err != nil {
		log.Fatalf("无法加载配置文件: %v", err)
	}
	if cfg.LLM.APIKey == "" {
		log.Fatal("配置错误: 未设置 llm.api_key (或环境变量 LLM_API_KEY)")
	}

	// 2. 初始化日志
	if err = logger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		log.Fatalf("无法初始化日志: %v", err)
	}
	logger.Log.Infof("启动深度研究: %s", topic)

	ctx := context.Background()

	// 3. 初始化搜索客户端与生成服务
	searcher, err := factory.NewSearcher(cfg)
	if err != nil {
		logger.Log.Fatalf("搜索客户端初始化失败: %v", err)
	}
	svc, err := genai.NewService(ctx, cfg, searcher)
	if err != nil {
		logger.Log.Fatalf("生成服务初始化失败: %v", err)
	}

	// 4. 组装控制器并订阅进度事件
	broker := events.NewBroker()
	controller := workflow.New(svc, broker, workflow.Options{MaxRetries: cfg.Research.MaxRetries})

	subCtx, subCancel := context.WithCancel(ctx)
	defer subCancel()
	go printProgress(broker.Subscribe(subCtx))

	// Ctrl+C 时停止当前操作而不是直接退出
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Log.Warn("收到停止信号，正在取消当前操作...")
		controller.Stop()
	}()

	// 5. 执行研究流程
	done, err := controller.Start(topic)
	if err != nil {
		logger.Log.Fatalf("启动失败: %v", err)
	}
	<-done

	switch controller.Phase() {
	case model.PhaseCompleted:
		// 继续导出
	case model.PhaseIdle:
		logger.Log.Info("已停止，未生成报告")
		return
	default:
		logger.Log.Fatal("研究流程失败，详情见日志")
	}

	report := controller.Report()
	if err := export.WriteFiles(report, *flagOut); err != nil {
		logger.Log.Fatalf("导出报告失败: %v", err)
	}
	logger.Log.Infof("报告已生成: %s/report.md (第 %d 版, 评审 %d/5)", *flagOut, report.Version, report.Score)

	// 6. 追问环节：逐行读取问题，空行或 EOF 结束
	fmt.Println("\n可以继续追问（直接回车结束）:")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			break
		}

		fdone, err := controller.FollowUp(question)
		if err != nil {
			logger.Log.Errorf("追问被拒绝: %v", err)
			continue
		}
		<-fdone

		// 每次追问后刷新导出文件
		if err := export.WriteFiles(controller.Report(), *flagOut); err != nil {
			logger.Log.Errorf("更新报告失败: %v", err)
		}
	}
	logger.Log.Info("研究结束")
}

// printProgress 把流程事件转成控制台日志
func printProgress(sub <-chan events.Event) {
	for ev := range sub {
		switch ev.Type {
		case events.TypePhase:
			logger.Log.Infof("阶段 → %s", ev.Phase)
		case events.TypeLog:
			if ev.Entry != nil {
				logger.Log.Infof("[%s] %s", ev.Entry.Phase, ev.Entry.Message)
			}
		case events.TypeReport:
			if ev.Report != nil {
				logger.Log.Infof("报告更新: 第 %d 版, %d 个来源", ev.Report.Version, len(ev.Report.Sources))
			}
		}
	}
}
