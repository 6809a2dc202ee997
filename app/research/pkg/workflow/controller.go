package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iWorld-y/deep_research/app/research/pkg/events"
	"github.com/iWorld-y/deep_research/app/research/pkg/model"
)

var (
	ErrEmptyTopic    = errors.New("research topic is empty")
	ErrEmptyQuestion = errors.New("follow-up question is empty")
	ErrNoReport      = errors.New("no report available for follow-up")
	ErrBusy          = errors.New("research pipeline is still running")
)

// Service 控制器依赖的生成服务能力
type Service interface {
	Brainstorm(ctx context.Context, topic string) ([]model.SearchQuery, error)
	Refine(ctx context.Context, topic string, queries []model.SearchQuery) ([]model.SearchQuery, error)
	Search(ctx context.Context, queries []model.SearchQuery) ([]model.Evidence, []model.Source, error)
	Compile(ctx context.Context, topic string, material []model.Evidence, feedback, previous string) (string, error)
	Review(ctx context.Context, topic, body string) (*model.ReviewResult, error)
	FollowUp(ctx context.Context, topic, body, question string) (string, []model.Source, error)
}

// Options 控制器参数
type Options struct {
	MaxRetries int // 评审不通过时允许的最大重写次数，默认 2
}

// Controller 研究流程控制器
// 持有当前阶段、日志序列、报告与唯一的取消句柄；
// 同一时刻至多一条流水线在运行
type Controller struct {
	svc        Service
	broker     *events.Broker // 可为 nil
	maxRetries int

	mu         sync.Mutex
	phase      model.Phase
	logs       []model.LogEntry
	report     *model.Report
	queries    []model.SearchQuery
	retryCount int

	cancel context.CancelFunc
	runSeq uint64 // 每次 Start/FollowUp 自增，用于拒绝过期响应
}

// New 创建控制器
func New(svc Service, broker *events.Broker, opts Options) *Controller {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	return &Controller{
		svc:        svc,
		broker:     broker,
		maxRetries: maxRetries,
		phase:      model.PhaseIdle,
	}
}

// Start 启动一轮研究。若已有流水线在运行，先作废其取消句柄再开始。
// 返回的通道在流程到达终态时关闭。
func (c *Controller) Start(topic string) (<-chan struct{}, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	c.mu.Lock()
	// 先作废旧句柄，保证同一时刻只有一个有效句柄
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.runSeq++
	seq := c.runSeq

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	// 重置上一轮状态
	c.logs = nil
	c.report = nil
	c.queries = nil
	c.retryCount = 0

	c.setPhaseLocked(model.PhaseBrainstorming)
	c.appendLogLocked(fmt.Sprintf("开始研究：%s", topic), "")
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.runPipeline(ctx, seq, topic)
	}()
	return done, nil
}

// Stop 取消当前在途操作。没有在途操作时为空操作。
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// FollowUp 针对已完成的报告发起追问。
// 回答追加到报告正文，来源按 URL 合并；不修改 version/score/feedback。
func (c *Controller) FollowUp(question string) (<-chan struct{}, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	c.mu.Lock()
	if c.report == nil {
		c.mu.Unlock()
		return nil, ErrNoReport
	}
	if !c.phase.Terminal() {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	// 终态下句柄应已清空，保险起见仍作废一次
	if c.cancel != nil {
		c.cancel()
	}
	c.runSeq++
	seq := c.runSeq

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	topic := c.report.Topic
	body := c.report.Markdown

	c.setPhaseLocked(model.PhaseSearching)
	c.appendLogLocked(fmt.Sprintf("处理追问：%s", question), "")
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.runFollowUp(ctx, seq, topic, body, question)
	}()
	return done, nil
}

// Phase 当前阶段
func (c *Controller) Phase() model.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Report 当前报告的只读快照，可能为 nil
func (c *Controller) Report() *model.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report.Clone()
}

// Logs 日志序列快照
func (c *Controller) Logs() []model.LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.LogEntry, len(c.logs))
	copy(out, c.logs)
	return out
}

// Retries 本轮已执行的重写次数
func (c *Controller) Retries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount
}

// runPipeline 执行主流程并把结果映射到终态
func (c *Controller) runPipeline(ctx context.Context, seq uint64, topic string) {
	err := c.pipeline(ctx, seq, topic)
	switch {
	case err == nil:
		// 终态已在 pipeline 内提交
	case errors.Is(err, context.Canceled):
		// 用户主动停止：丢弃本轮未定稿的报告，回到空闲态
		c.commit(seq, func() {
			c.report = nil
			c.queries = nil
			c.appendLogLocked("已按用户要求停止", "")
			c.setPhaseLocked(model.PhaseIdle)
			c.cancel = nil
		})
	default:
		// 服务失败：保留已定稿内容，进入错误态
		c.commit(seq, func() {
			c.appendLogLocked("研究流程失败", err.Error())
			c.setPhaseLocked(model.PhaseError)
			c.cancel = nil
		})
	}
}

// pipeline 主流程：头脑风暴 → 反思 → (检索 → 编写 → 评审)*
func (c *Controller) pipeline(ctx context.Context, seq uint64, topic string) error {
	// 头脑风暴
	queries, err := c.svc.Brainstorm(ctx, topic)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.commit(seq, func() {
		c.queries = queries
		c.setPhaseLocked(model.PhaseReflecting)
		c.appendLogLocked(fmt.Sprintf("生成 %d 条候选查询，开始筛选", len(queries)), "")
	}) {
		return context.Canceled
	}

	// 反思：筛选出最终查询集，整组替换
	refined, err := c.svc.Refine(ctx, topic, queries)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.commit(seq, func() {
		c.queries = refined
		c.appendLogLocked(fmt.Sprintf("保留 %d 条查询", len(refined)), "")
	}) {
		return context.Canceled
	}

	// 检索-编写-评审循环：显式计数循环，重写次数受 maxRetries 约束
	feedback, previous := "", ""
	for attempt := 0; ; attempt++ {
		if !c.commit(seq, func() {
			c.setPhaseLocked(model.PhaseSearching)
			c.appendLogLocked("检索参考资料", "")
		}) {
			return context.Canceled
		}

		material, sources, err := c.svc.Search(ctx, refined)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if !c.commit(seq, func() {
			c.setPhaseLocked(model.PhaseCompiling)
			if attempt == 0 {
				c.appendLogLocked(fmt.Sprintf("基于 %d 份材料编写报告", len(material)), "")
			} else {
				c.appendLogLocked(fmt.Sprintf("重写报告（第 %d 次）", attempt), "")
			}
		}) {
			return context.Canceled
		}

		markdown, err := c.svc.Compile(ctx, topic, material, feedback, previous)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if !c.commit(seq, func() {
			c.report = &model.Report{
				Topic:    topic,
				Markdown: markdown,
				Sources:  model.DedupSources(sources),
				Version:  attempt + 1,
			}
			c.publishReportLocked()
			c.setPhaseLocked(model.PhaseReviewing)
			c.appendLogLocked("评审报告", "")
		}) {
			return context.Canceled
		}

		review, err := c.svc.Review(ctx, topic, markdown)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		approved := review.Approved()
		exhausted := attempt >= c.maxRetries
		if !c.commit(seq, func() {
			c.report.Score = review.Score
			c.report.Feedback = review.Feedback
			c.publishReportLocked()
			if approved || exhausted {
				if approved {
					c.appendLogLocked(fmt.Sprintf("评审通过（%d/5），研究完成", review.Score), "")
				} else {
					// 重写额度用尽后仍定稿，属于刻意的尽力而为策略
					c.appendLogLocked(fmt.Sprintf("评审未通过（%d/5），重写次数已用尽，按当前版本定稿", review.Score), review.Feedback)
				}
				c.setPhaseLocked(model.PhaseCompleted)
				c.cancel = nil
			} else {
				c.retryCount++
				c.setPhaseLocked(model.PhaseRewriting)
				c.appendLogLocked(fmt.Sprintf("评审未通过（%d/5），准备重写", review.Score), review.Feedback)
			}
		}) {
			return context.Canceled
		}
		if approved || exhausted {
			return nil
		}

		feedback, previous = review.Feedback, markdown
	}
}

// runFollowUp 追问流程：无论成功、失败还是取消，最终都回到 completed 并保留原报告
func (c *Controller) runFollowUp(ctx context.Context, seq uint64, topic, body, question string) {
	answer, sources, err := c.svc.FollowUp(ctx, topic, body, question)
	if err != nil {
		c.commit(seq, func() {
			if errors.Is(err, context.Canceled) {
				c.appendLogLocked("追问已按用户要求停止", "")
			} else {
				c.appendLogLocked("追问失败，保留原报告", err.Error())
			}
			c.setPhaseLocked(model.PhaseCompleted)
			c.cancel = nil
		})
		return
	}

	c.commit(seq, func() {
		c.report.Markdown += fmt.Sprintf("\n\n## 追问：%s\n\n%s", question, answer)
		c.report.Sources = model.MergeSources(c.report.Sources, sources)
		c.publishReportLocked()
		c.appendLogLocked("追问已回答", "")
		c.setPhaseLocked(model.PhaseCompleted)
		c.cancel = nil
	})
}

// commit 仅当 seq 仍为当前运行时才应用变更，阻止过期响应污染新一轮状态
func (c *Controller) commit(seq uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.runSeq {
		return false
	}
	fn()
	return true
}

// setPhaseLocked 需持有 c.mu 调用
func (c *Controller) setPhaseLocked(phase model.Phase) {
	c.phase = phase
	if c.broker != nil {
		c.broker.Publish(events.Event{Type: events.TypePhase, Phase: phase})
	}
}

// appendLogLocked 需持有 c.mu 调用
func (c *Controller) appendLogLocked(message, details string) {
	entry := model.LogEntry{
		ID:      uuid.NewString(),
		Time:    time.Now(),
		Phase:   c.phase,
		Message: message,
		Details: details,
	}
	c.logs = append(c.logs, entry)
	if c.broker != nil {
		c.broker.Publish(events.Event{Type: events.TypeLog, Phase: c.phase, Entry: &entry})
	}
}

// publishReportLocked 需持有 c.mu 调用
func (c *Controller) publishReportLocked() {
	if c.broker != nil {
		c.broker.Publish(events.Event{Type: events.TypeReport, Phase: c.phase, Report: c.report.Clone()})
	}
}
