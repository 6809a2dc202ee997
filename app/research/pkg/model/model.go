package model

import "time"

// Phase 研究流程所处阶段
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseBrainstorming Phase = "brainstorming"
	PhaseReflecting    Phase = "reflecting"
	PhaseSearching     Phase = "searching"
	PhaseCompiling     Phase = "compiling"
	PhaseReviewing     Phase = "reviewing"
	PhaseRewriting     Phase = "rewriting"
	PhaseCompleted     Phase = "completed"
	PhaseError         Phase = "error"
)

// Terminal 判断该阶段是否为终态（可接受新一轮 Start）
func (p Phase) Terminal() bool {
	switch p {
	case PhaseIdle, PhaseCompleted, PhaseError:
		return true
	}
	return false
}

// SearchQuery 候选搜索查询（头脑风暴产出，反思阶段筛选）
type SearchQuery struct {
	Query     string `json:"query"`
	Rationale string `json:"rationale"`
}

// Source 报告引用来源
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Evidence 检索到的一条参考材料，临时存储用于 LLM 编写报告
type Evidence struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Report 研究报告
// Version 从 1 开始，每完成一次重写加 1
type Report struct {
	Topic    string   `json:"topic"`
	Markdown string   `json:"markdown"`
	Sources  []Source `json:"sources"`
	Score    int      `json:"score,omitempty"`    // 1-5，0 表示尚未评审
	Feedback string   `json:"feedback,omitempty"` // 评审意见
	Version  int      `json:"version"`
}

// Clone 返回报告的深拷贝，供外部只读展示
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Sources = make([]Source, len(r.Sources))
	copy(cp.Sources, r.Sources)
	return &cp
}

// ReviewResult 评审结果
type ReviewResult struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// Approved 评分达到 4 分及以上视为通过
// 该规则由方法固定，调用方不可单独设置
func (r ReviewResult) Approved() bool {
	return r.Score >= 4
}

// LogEntry 流程日志条目，只追加不修改
type LogEntry struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Phase   Phase     `json:"phase"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// DedupSources 按 URL 去重，保留首次出现的顺序
func DedupSources(sources []Source) []Source {
	seen := make(map[string]struct{}, len(sources))
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s.URL == "" {
			continue
		}
		if _, ok := seen[s.URL]; ok {
			continue
		}
		seen[s.URL] = struct{}{}
		out = append(out, s)
	}
	return out
}

// MergeSources 合并新来源：URL 已存在则跳过，新条目按原顺序追加
func MergeSources(existing, incoming []Source) []Source {
	seen := make(map[string]struct{}, len(existing))
	out := make([]Source, 0, len(existing)+len(incoming))
	for _, s := range existing {
		seen[s.URL] = struct{}{}
		out = append(out, s)
	}
	for _, s := range incoming {
		if s.URL == "" {
			continue
		}
		if _, ok := seen[s.URL]; ok {
			continue
		}
		seen[s.URL] = struct{}{}
		out = append(out, s)
	}
	return out
}
