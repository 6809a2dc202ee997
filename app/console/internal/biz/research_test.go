package biz

import (
	"context"
	"errors"
	"testing"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/deep_research/app/console/internal/conf"
	"github.com/iWorld-y/deep_research/app/research/pkg/events"
	"github.com/iWorld-y/deep_research/app/research/pkg/model"
)

// mockPipeline 模拟研究流水线
type mockPipeline struct {
	phase    model.Phase
	report   *model.Report
	started  []string
	stopped  int
	startErr error
}

func (m *mockPipeline) Start(topic string) (<-chan struct{}, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.started = append(m.started, topic)
	done := make(chan struct{})
	close(done)
	return done, nil
}

func (m *mockPipeline) Stop() { m.stopped++ }

func (m *mockPipeline) FollowUp(question string) (<-chan struct{}, error) {
	if m.report == nil {
		return nil, errors.New("no report")
	}
	done := make(chan struct{})
	close(done)
	return done, nil
}

func (m *mockPipeline) Phase() model.Phase     { return m.phase }
func (m *mockPipeline) Report() *model.Report  { return m.report }
func (m *mockPipeline) Logs() []model.LogEntry { return nil }
func (m *mockPipeline) Retries() int           { return 0 }

func newTestUseCase(t *testing.T, p Pipeline, schedule *conf.Schedule) *ResearchUseCase {
	t.Helper()
	uc, cleanup, err := NewResearchUseCase(p, events.NewBroker(), schedule, log.DefaultLogger)
	if err != nil {
		t.Fatalf("NewResearchUseCase: %v", err)
	}
	t.Cleanup(cleanup)
	return uc
}

func TestResearchUseCase_Start(t *testing.T) {
	p := &mockPipeline{phase: model.PhaseBrainstorming}
	uc := newTestUseCase(t, p, nil)

	phase, err := uc.Start(context.Background(), "量子计算")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if phase != model.PhaseBrainstorming {
		t.Errorf("phase = %s", phase)
	}
	if len(p.started) != 1 || p.started[0] != "量子计算" {
		t.Errorf("started = %v", p.started)
	}
}

func TestResearchUseCase_Stop(t *testing.T) {
	p := &mockPipeline{phase: model.PhaseIdle}
	uc := newTestUseCase(t, p, nil)

	uc.Stop(context.Background())
	// cleanup 还会再调一次 Stop
	if p.stopped != 1 {
		t.Errorf("stopped = %d, want 1", p.stopped)
	}
}

func TestResearchUseCase_InvalidCron(t *testing.T) {
	p := &mockPipeline{}
	_, _, err := NewResearchUseCase(p, events.NewBroker(), &conf.Schedule{
		Cron:   "not a cron expr",
		Topics: []string{"主题"},
	}, log.DefaultLogger)
	if err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

func TestResearchUseCase_ScheduledRotation(t *testing.T) {
	p := &mockPipeline{phase: model.PhaseIdle}
	uc := newTestUseCase(t, p, nil)
	uc.topics = []string{"甲", "乙"}

	uc.runScheduled()
	uc.runScheduled()
	uc.runScheduled()

	if len(p.started) != 3 {
		t.Fatalf("started = %d, want 3", len(p.started))
	}
	// 主题轮流使用
	if p.started[0] != "甲" || p.started[1] != "乙" || p.started[2] != "甲" {
		t.Errorf("rotation = %v", p.started)
	}
}

func TestResearchUseCase_ScheduledSkipsWhileRunning(t *testing.T) {
	p := &mockPipeline{phase: model.PhaseSearching}
	uc := newTestUseCase(t, p, nil)
	uc.topics = []string{"甲"}

	uc.runScheduled()
	if len(p.started) != 0 {
		t.Errorf("scheduled run should be skipped while pipeline is busy")
	}
}
