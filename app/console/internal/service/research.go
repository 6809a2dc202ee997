package service

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/deep_research/app/console/internal/biz"
	"github.com/iWorld-y/deep_research/app/research/pkg/model"
	"github.com/iWorld-y/deep_research/app/research/pkg/workflow"
)

// ConsoleService 研究控制台的 HTTP 接口层
type ConsoleService struct {
	uc  *biz.ResearchUseCase
	log *log.Helper
}

// NewConsoleService 创建控制台服务实例
func NewConsoleService(uc *biz.ResearchUseCase, logger log.Logger) *ConsoleService {
	return &ConsoleService{
		uc:  uc,
		log: log.NewHelper(logger),
	}
}

type startReq struct {
	Topic string `json:"topic"`
}

type followUpReq struct {
	Question string `json:"question"`
}

type phaseReply struct {
	Phase model.Phase `json:"phase"`
}

type stateReply struct {
	Phase   model.Phase   `json:"phase"`
	Retries int           `json:"retries"`
	Report  *model.Report `json:"report,omitempty"`
}

type logsReply struct {
	Logs []model.LogEntry `json:"logs"`
}

type errorReply struct {
	Error string `json:"error"`
}

// Start 处理 POST /api/research/start
func (s *ConsoleService) Start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req startReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	phase, err := s.uc.Start(r.Context(), req.Topic)
	if err != nil {
		s.log.Warnf("启动研究被拒绝: %v", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, phaseReply{Phase: phase})
}

// Stop 处理 POST /api/research/stop
func (s *ConsoleService) Stop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	phase := s.uc.Stop(r.Context())
	writeJSON(w, http.StatusOK, phaseReply{Phase: phase})
}

// FollowUp 处理 POST /api/research/followup
func (s *ConsoleService) FollowUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req followUpReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	phase, err := s.uc.FollowUp(r.Context(), req.Question)
	if err != nil {
		s.log.Warnf("追问被拒绝: %v", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, phaseReply{Phase: phase})
}

// State 处理 GET /api/research/state
func (s *ConsoleService) State(w http.ResponseWriter, r *http.Request) {
	phase, retries, report := s.uc.State(r.Context())
	writeJSON(w, http.StatusOK, stateReply{Phase: phase, Retries: retries, Report: report})
}

// Logs 处理 GET /api/research/logs
func (s *ConsoleService) Logs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, logsReply{Logs: s.uc.Logs(r.Context())})
}

// Events 处理 GET /api/research/events (SSE)
// 客户端断开即退订
func (s *ConsoleService) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	sub := s.uc.Subscribe(r.Context())
	for ev := range sub {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if _, err := w.Write([]byte("event: " + ev.Type + "\ndata: " + string(data) + "\n\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}

// statusFor 把流水线的拒绝原因映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrEmptyTopic), errors.Is(err, workflow.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrNoReport), errors.Is(err, workflow.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorReply{Error: msg})
}
