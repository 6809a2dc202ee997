package conf

import (
	"github.com/iWorld-y/deep_research/app/research/pkg/config"
)

type Bootstrap struct {
	Server *Server
	Agent  *Agent
}

type Server struct {
	Http *HTTP
}

type HTTP struct {
	Addr    string
	Timeout string
}

// Agent 研究流水线配置，结构与 CLI 的 configs/config.yaml 保持一致
type Agent struct {
	Llm         *LLM         `json:"llm"`
	Search      *Search      `json:"search"`
	Research    *Research    `json:"research"`
	Log         *Log         `json:"log"`
	Concurrency *Concurrency `json:"concurrency"`
	Schedule    *Schedule    `json:"schedule"`
}

type LLM struct {
	BaseUrl string `json:"base_url"`
	ApiKey  string `json:"api_key"`
	Model   string `json:"model"`
}

type Search struct {
	Provider string   `json:"provider"`
	Tavily   *Tavily  `json:"tavily"`
	Searxng  *SearXNG `json:"searxng"`
}

type Tavily struct {
	ApiKey string `json:"api_key"`
}

type SearXNG struct {
	BaseUrl string `json:"base_url"`
	Timeout int32  `json:"timeout"`
}

type Research struct {
	MaxRetries       int32 `json:"max_retries"`
	BrainstormCount  int32 `json:"brainstorm_count"`
	RefinedCount     int32 `json:"refined_count"`
	ResultsPerQuery  int32 `json:"results_per_query"`
	MinContentLength int32 `json:"min_content_length"`
}

type Log struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

type Concurrency struct {
	Qps int32 `json:"qps"`
	Rpm int32 `json:"rpm"`
}

// Schedule 定时研究任务：按 cron 表达式轮流研究 topics 中的主题
type Schedule struct {
	Cron   string   `json:"cron"`
	Topics []string `json:"topics"`
}

// ResearchConfig 把 Agent 配置转换为研究流水线使用的配置结构，并补齐默认值
func (a *Agent) ResearchConfig() *config.Config {
	cfg := &config.Config{}
	if a == nil {
		return cfg
	}
	if a.Llm != nil {
		cfg.LLM = config.LLMConfig{BaseURL: a.Llm.BaseUrl, APIKey: a.Llm.ApiKey, Model: a.Llm.Model}
	}
	if a.Search != nil {
		cfg.Search.Provider = a.Search.Provider
		if a.Search.Tavily != nil {
			cfg.Search.Tavily.APIKey = a.Search.Tavily.ApiKey
		}
		if a.Search.Searxng != nil {
			cfg.Search.SearXNG.BaseURL = a.Search.Searxng.BaseUrl
			cfg.Search.SearXNG.Timeout = int(a.Search.Searxng.Timeout)
		}
	}
	if a.Research != nil {
		cfg.Research = config.ResearchConfig{
			MaxRetries:       int(a.Research.MaxRetries),
			BrainstormCount:  int(a.Research.BrainstormCount),
			RefinedCount:     int(a.Research.RefinedCount),
			ResultsPerQuery:  int(a.Research.ResultsPerQuery),
			MinContentLength: int(a.Research.MinContentLength),
		}
	}
	if a.Log != nil {
		cfg.Log = config.LogConfig{Level: a.Log.Level, File: a.Log.File}
	}
	if a.Concurrency != nil {
		cfg.Concurrency = config.ConcurrencyConfig{QPS: int(a.Concurrency.Qps), RPM: int(a.Concurrency.Rpm)}
	}
	cfg.ApplyDefaults()
	return cfg
}
