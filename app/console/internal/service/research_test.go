package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/deep_research/app/console/internal/biz"
	"github.com/iWorld-y/deep_research/app/research/pkg/events"
	"github.com/iWorld-y/deep_research/app/research/pkg/model"
	"github.com/iWorld-y/deep_research/app/research/pkg/workflow"
)

// mockPipeline 模拟研究流水线
type mockPipeline struct {
	phase  model.Phase
	report *model.Report
}

func (m *mockPipeline) Start(topic string) (<-chan struct{}, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, workflow.ErrEmptyTopic
	}
	m.phase = model.PhaseBrainstorming
	done := make(chan struct{})
	close(done)
	return done, nil
}

func (m *mockPipeline) Stop() { m.phase = model.PhaseIdle }

func (m *mockPipeline) FollowUp(question string) (<-chan struct{}, error) {
	if m.report == nil {
		return nil, workflow.ErrNoReport
	}
	done := make(chan struct{})
	close(done)
	return done, nil
}

func (m *mockPipeline) Phase() model.Phase     { return m.phase }
func (m *mockPipeline) Report() *model.Report  { return m.report }
func (m *mockPipeline) Logs() []model.LogEntry { return nil }
func (m *mockPipeline) Retries() int           { return 0 }

func newTestService(t *testing.T, p biz.Pipeline) *ConsoleService {
	t.Helper()
	uc, cleanup, err := biz.NewResearchUseCase(p, events.NewBroker(), nil, log.DefaultLogger)
	if err != nil {
		t.Fatalf("NewResearchUseCase: %v", err)
	}
	t.Cleanup(cleanup)
	return NewConsoleService(uc, log.DefaultLogger)
}

func TestStartHandler(t *testing.T) {
	s := newTestService(t, &mockPipeline{phase: model.PhaseIdle})

	req := httptest.NewRequest(http.MethodPost, "/api/research/start", strings.NewReader(`{"topic":"量子计算"}`))
	w := httptest.NewRecorder()
	s.Start(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	var reply phaseReply
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.Phase != model.PhaseBrainstorming {
		t.Errorf("phase = %s", reply.Phase)
	}
}

func TestStartHandlerRejectsEmptyTopic(t *testing.T) {
	s := newTestService(t, &mockPipeline{phase: model.PhaseIdle})

	req := httptest.NewRequest(http.MethodPost, "/api/research/start", strings.NewReader(`{"topic":"  "}`))
	w := httptest.NewRecorder()
	s.Start(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestStartHandlerMethodNotAllowed(t *testing.T) {
	s := newTestService(t, &mockPipeline{})

	req := httptest.NewRequest(http.MethodGet, "/api/research/start", nil)
	w := httptest.NewRecorder()
	s.Start(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestFollowUpHandlerWithoutReport(t *testing.T) {
	s := newTestService(t, &mockPipeline{phase: model.PhaseIdle})

	req := httptest.NewRequest(http.MethodPost, "/api/research/followup", strings.NewReader(`{"question":"为什么"}`))
	w := httptest.NewRecorder()
	s.FollowUp(w, req)

	// 没有报告时返回冲突
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestStateHandler(t *testing.T) {
	p := &mockPipeline{
		phase:  model.PhaseCompleted,
		report: &model.Report{Topic: "主题", Version: 2, Score: 4},
	}
	s := newTestService(t, p)

	req := httptest.NewRequest(http.MethodGet, "/api/research/state", nil)
	w := httptest.NewRecorder()
	s.State(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var reply stateReply
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.Phase != model.PhaseCompleted || reply.Report == nil || reply.Report.Version != 2 {
		t.Errorf("reply = %+v", reply)
	}
}

func TestStopHandler(t *testing.T) {
	p := &mockPipeline{phase: model.PhaseSearching}
	s := newTestService(t, p)

	req := httptest.NewRequest(http.MethodPost, "/api/research/stop", nil)
	w := httptest.NewRecorder()
	s.Stop(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var reply phaseReply
	_ = json.Unmarshal(w.Body.Bytes(), &reply)
	if reply.Phase != model.PhaseIdle {
		t.Errorf("phase = %s, want idle", reply.Phase)
	}
}
