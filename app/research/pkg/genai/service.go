package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/go-shiori/go-readability"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/deep_research/app/research/pkg/config"
	"github.com/iWorld-y/deep_research/app/research/pkg/logger"
	dm "github.com/iWorld-y/deep_research/app/research/pkg/model"
	"github.com/iWorld-y/deep_research/app/research/pkg/search"
)

// ErrNoContent 生成服务未返回可解析内容
var ErrNoContent = errors.New("generation service returned no usable content")

// Service 生成服务客户端：统一封装头脑风暴、反思、检索编写、评审与追问
type Service struct {
	cfg       *config.Config
	chatModel model.ChatModel
	searcher  search.Searcher
	limiter   *rate.Limiter
}

// NewService 创建生成服务实例
func NewService(ctx context.Context, cfg *config.Config, searcher search.Searcher) (*Service, error) {
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM 初始化失败: %w", err)
	}

	limit := rate.Limit(float64(cfg.Concurrency.RPM) / 60.0)
	limiter := rate.NewLimiter(limit, cfg.Concurrency.QPS)

	return &Service{
		cfg:       cfg,
		chatModel: chatModel,
		searcher:  searcher,
		limiter:   limiter,
	}, nil
}

// Brainstorm 围绕主题生成候选搜索查询
func (s *Service) Brainstorm(ctx context.Context, topic string) ([]dm.SearchQuery, error) {
	prompt := fmt.Sprintf(`你是一名资深研究员。请围绕主题【%s】设计 %d 条用于网页搜索的候选查询。
请务必严格按照以下 JSON 格式返回，不要包含任何 markdown 标记：
[
	{"query": "搜索查询", "rationale": "一句话说明该查询的价值"}
]`, topic, s.cfg.Research.BrainstormCount)

	content, err := s.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var queries []dm.SearchQuery
	if err := json.Unmarshal([]byte(stripFences(content)), &queries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoContent, err)
	}
	if len(queries) == 0 {
		return nil, ErrNoContent
	}
	return queries, nil
}

// Refine 让模型从候选查询中挑选最有效的子集，并按需改写为更适合搜索引擎的表述
func (s *Service) Refine(ctx context.Context, topic string, queries []dm.SearchQuery) ([]dm.SearchQuery, error) {
	candidates, err := json.Marshal(queries)
	if err != nil {
		return nil, fmt.Errorf("marshal queries: %w", err)
	}

	prompt := fmt.Sprintf(`研究主题：【%s】
以下是候选搜索查询列表（JSON）：
%s

请从中挑选 %d 条最有助于完成该主题研究的查询，可以适当改写使其更适合搜索引擎。
请务必严格按照以下 JSON 格式返回，不要包含任何 markdown 标记：
[
	{"query": "搜索查询", "rationale": "保留理由"}
]`, topic, string(candidates), s.cfg.Research.RefinedCount)

	content, err := s.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var refined []dm.SearchQuery
	if err := json.Unmarshal([]byte(stripFences(content)), &refined); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoContent, err)
	}
	if len(refined) == 0 {
		return nil, ErrNoContent
	}
	if len(refined) > s.cfg.Research.RefinedCount {
		refined = refined[:s.cfg.Research.RefinedCount]
	}
	return refined, nil
}

// Search 按查询集串行检索参考材料，保持引用顺序稳定
// 摘要太短时尝试抓取页面正文
func (s *Service) Search(ctx context.Context, queries []dm.SearchQuery) ([]dm.Evidence, []dm.Source, error) {
	var (
		gathered []dm.Evidence
		sources  []dm.Source
	)

	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		resp, err := s.searcher.Search(ctx, &search.Request{
			Query:      q.Query,
			MaxResults: s.cfg.Research.ResultsPerQuery,
		})
		if err != nil {
			logger.Log.Warnf("搜索查询失败 [%s]: %v", q.Query, err)
			continue
		}

		for _, item := range resp.Results {
			content := item.Content
			if len(content) < s.cfg.Research.MinContentLength {
				if err := ctx.Err(); err != nil {
					return nil, nil, err
				}
				fetched, err := fetchAndCleanContent(item.URL)
				if err == nil && len(fetched) > len(content) {
					content = fetched
				}
			}
			content = truncateContent(content, 5000)
			gathered = append(gathered, dm.Evidence{Title: item.Title, URL: item.URL, Content: content})
			sources = append(sources, dm.Source{Title: item.Title, URL: item.URL})
		}
	}

	if len(gathered) == 0 {
		return nil, nil, fmt.Errorf("%w: no search results", ErrNoContent)
	}
	return gathered, sources, nil
}

// Compile 基于检索材料编写（或重写）报告正文
// feedback/previous 非空表示重写：要求模型在保留优点的同时回应评审意见
func (s *Service) Compile(ctx context.Context, topic string, material []dm.Evidence, feedback, previous string) (string, error) {
	if len(material) == 0 {
		return "", fmt.Errorf("%w: no material for topic %q", ErrNoContent, topic)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "研究主题：【%s】\n\n以下是通过网页搜索获得的参考材料：\n\n", topic)
	for i, ev := range material {
		fmt.Fprintf(&sb, "材料 %d:\n标题: %s\n链接: %s\n内容: %s\n\n", i+1, ev.Title, ev.URL, ev.Content)
	}

	sb.WriteString(`你是一名资深研究分析师。请基于上述材料撰写一份结构完整的研究报告（Markdown 格式），
要求：有标题、分章节、结论明确，只依据材料中的事实，不要编造引用。直接输出 Markdown 正文，不要附加任何解释。`)

	if feedback != "" && previous != "" {
		fmt.Fprintf(&sb, `

这是一次重写。上一版报告如下：
---
%s
---
评审意见：%s
请在保留上一版优点的前提下，针对评审意见逐条改进。`, previous, feedback)
	}

	markdown, err := s.generate(ctx, sb.String())
	if err != nil {
		return "", err
	}
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return "", ErrNoContent
	}
	return markdown, nil
}

// Review 按固定的四项标准评审报告
func (s *Service) Review(ctx context.Context, topic, body string) (*dm.ReviewResult, error) {
	prompt := fmt.Sprintf(`你是一名严格的评审专家。请从四个维度评审以下关于【%s】的研究报告：
相关性、深度、清晰度、内容质量。
请务必严格按照以下 JSON 格式返回，不要包含任何 markdown 标记：
{
	"score": 3,
	"feedback": "具体、可执行的改进意见"
}
评分说明：score 为 1-5 的整数，4 分及以上表示可以定稿。

报告正文：
%s`, topic, body)

	content, err := s.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var result dm.ReviewResult
	if err := json.Unmarshal([]byte(stripFences(content)), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoContent, err)
	}
	if result.Score < 1 || result.Score > 5 {
		return nil, fmt.Errorf("%w: score %d out of range", ErrNoContent, result.Score)
	}
	return &result, nil
}

// FollowUp 基于已完成的报告回答追问，并附带新的引用来源
func (s *Service) FollowUp(ctx context.Context, topic, body, question string) (string, []dm.Source, error) {
	var sources []dm.Source
	var sb strings.Builder

	resp, err := s.searcher.Search(ctx, &search.Request{
		Query:      question,
		MaxResults: s.cfg.Research.ResultsPerQuery,
	})
	if err != nil {
		logger.Log.Warnf("追问检索失败 [%s]: %v", question, err)
	} else {
		sb.WriteString("补充检索材料：\n\n")
		for i, item := range resp.Results {
			fmt.Fprintf(&sb, "材料 %d:\n标题: %s\n链接: %s\n内容: %s\n\n", i+1, item.Title, item.URL, item.Content)
			sources = append(sources, dm.Source{Title: item.Title, URL: item.URL})
		}
	}

	prompt := fmt.Sprintf(`已有一份关于【%s】的研究报告：
---
%s
---
%s
用户的追问：%s
请结合报告与补充材料，用 Markdown 直接回答该问题，不要重复报告原文。`, topic, body, sb.String(), question)

	answer, err := s.generate(ctx, prompt)
	if err != nil {
		return "", nil, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", nil, ErrNoContent
	}
	return answer, sources, nil
}

// generate 调用 LLM (带限流与 429 重试)
func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	maxRetries := 3
	baseDelay := 2 * time.Second
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", err
		}

		messages := []*schema.Message{
			{Role: schema.System, Content: "你是一个严谨的研究助手。按用户要求的格式输出，不要输出多余内容。"},
			{Role: schema.User, Content: prompt},
		}

		resp, err := s.chatModel.Generate(ctx, messages)
		if err != nil {
			if !isRateLimited(err) {
				return "", err
			}
			lastErr = err
			if i == maxRetries {
				break
			}
			select {
			case <-time.After(baseDelay * time.Duration(1 << i)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			continue
		}

		content := strings.TrimSpace(resp.Content)
		if content == "" {
			return "", ErrNoContent
		}
		return content, nil
	}
	return "", lastErr
}

// isRateLimited 判断是否为 429 限流错误
func isRateLimited(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "too many requests")
}

// stripFences 去掉模型输出中可能包裹的 ```json 代码块标记
func stripFences(content string) string {
	clean := strings.TrimSpace(content)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	return strings.TrimSpace(clean)
}

// truncateContent 按字节上限截断材料正文，回退到字符边界避免切出乱码
func truncateContent(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// fetchAndCleanContent 抓取 URL 并提取核心文本
func fetchAndCleanContent(url string) (string, error) {
	article, err := readability.FromURL(url, 30*time.Second)
	if err != nil {
		return "", err
	}
	return article.TextContent, nil
}
