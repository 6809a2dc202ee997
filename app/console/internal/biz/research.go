package biz

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"

	"github.com/iWorld-y/deep_research/app/console/internal/conf"
	"github.com/iWorld-y/deep_research/app/research/pkg/events"
	"github.com/iWorld-y/deep_research/app/research/pkg/model"
)

// Pipeline 研究流水线能力
type Pipeline interface {
	Start(topic string) (<-chan struct{}, error)
	Stop()
	FollowUp(question string) (<-chan struct{}, error)
	Phase() model.Phase
	Report() *model.Report
	Logs() []model.LogEntry
	Retries() int
}

// ResearchUseCase 研究业务逻辑：封装流水线操作与定时研究任务
type ResearchUseCase struct {
	pipeline Pipeline
	broker   *events.Broker
	cron     *cron.Cron
	topics   []string
	next     int
	log      *log.Helper
}

// NewResearchUseCase 创建研究业务逻辑实例
// schedule 非空时按 cron 表达式轮流研究配置的主题；返回的 cleanup 停止定时器
func NewResearchUseCase(pipeline Pipeline, broker *events.Broker, schedule *conf.Schedule, logger log.Logger) (*ResearchUseCase, func(), error) {
	uc := &ResearchUseCase{
		pipeline: pipeline,
		broker:   broker,
		log:      log.NewHelper(logger),
	}

	if schedule != nil && schedule.Cron != "" && len(schedule.Topics) > 0 {
		uc.topics = schedule.Topics
		uc.cron = cron.New()
		if _, err := uc.cron.AddFunc(schedule.Cron, uc.runScheduled); err != nil {
			return nil, nil, err
		}
		uc.cron.Start()
		uc.log.Infof("定时研究已启用: %s, %d 个主题", schedule.Cron, len(schedule.Topics))
	}

	cleanup := func() {
		if uc.cron != nil {
			uc.cron.Stop()
		}
		uc.pipeline.Stop()
	}
	return uc, cleanup, nil
}

// runScheduled 定时触发：流水线空闲时轮流研究下一个主题
func (uc *ResearchUseCase) runScheduled() {
	if !uc.pipeline.Phase().Terminal() {
		uc.log.Warn("定时任务跳过: 上一轮研究尚未结束")
		return
	}
	topic := uc.topics[uc.next%len(uc.topics)]
	uc.next++

	if _, err := uc.pipeline.Start(topic); err != nil {
		uc.log.Errorf("定时研究启动失败 [%s]: %v", topic, err)
		return
	}
	uc.log.Infof("定时研究已启动: %s", topic)
}

// Start 启动一轮研究，立即返回当前阶段
func (uc *ResearchUseCase) Start(ctx context.Context, topic string) (model.Phase, error) {
	if _, err := uc.pipeline.Start(topic); err != nil {
		return uc.pipeline.Phase(), err
	}
	return uc.pipeline.Phase(), nil
}

// Stop 取消当前在途操作
func (uc *ResearchUseCase) Stop(ctx context.Context) model.Phase {
	uc.pipeline.Stop()
	return uc.pipeline.Phase()
}

// FollowUp 发起追问
func (uc *ResearchUseCase) FollowUp(ctx context.Context, question string) (model.Phase, error) {
	if _, err := uc.pipeline.FollowUp(question); err != nil {
		return uc.pipeline.Phase(), err
	}
	return uc.pipeline.Phase(), nil
}

// State 当前阶段、重写次数与报告快照
func (uc *ResearchUseCase) State(ctx context.Context) (model.Phase, int, *model.Report) {
	return uc.pipeline.Phase(), uc.pipeline.Retries(), uc.pipeline.Report()
}

// Logs 流程日志快照
func (uc *ResearchUseCase) Logs(ctx context.Context) []model.LogEntry {
	return uc.pipeline.Logs()
}

// Subscribe 订阅流程事件，ctx 结束时自动退订
func (uc *ResearchUseCase) Subscribe(ctx context.Context) <-chan events.Event {
	return uc.broker.Subscribe(ctx)
}
