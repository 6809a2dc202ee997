package config

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 项目配置结构体
type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	Search      SearchConfig      `yaml:"search"`
	Research    ResearchConfig    `yaml:"research"`
	Log         LogConfig         `yaml:"log"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
}

// LLMConfig LLM 相关配置
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// SearchConfig 搜索相关配置
type SearchConfig struct {
	Provider string        `yaml:"provider"`
	Tavily   TavilyConfig  `yaml:"tavily"`
	SearXNG  SearXNGConfig `yaml:"searxng"`
}

// TavilyConfig Tavily 配置
type TavilyConfig struct {
	APIKey string `yaml:"api_key"`
}

// SearXNGConfig SearXNG 配置
type SearXNGConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout"`
}

// ResearchConfig 研究流程参数
type ResearchConfig struct {
	MaxRetries       int `yaml:"max_retries"`       // 评审不通过时的最大重写次数
	BrainstormCount  int `yaml:"brainstorm_count"`  // 头脑风暴候选查询数量
	RefinedCount     int `yaml:"refined_count"`     // 反思后保留的查询数量
	ResultsPerQuery  int `yaml:"results_per_query"` // 每条查询的搜索结果条数
	MinContentLength int `yaml:"min_content_length"`
}

// LogConfig 日志相关配置
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ConcurrencyConfig LLM 调用限流配置
type ConcurrencyConfig struct {
	QPS int `yaml:"qps"`
	RPM int `yaml:"rpm"`
}

// LoadConfig 从指定路径加载配置
// 优先加载 .env，环境变量中的密钥覆盖配置文件
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("TAVILY_API_KEY"); v != "" {
		cfg.Search.Tavily.APIKey = v
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults 为未设置的流程参数填充默认值
func (c *Config) ApplyDefaults() {
	if c.Research.MaxRetries == 0 {
		c.Research.MaxRetries = 2
	}
	if c.Research.BrainstormCount == 0 {
		c.Research.BrainstormCount = 10
	}
	if c.Research.RefinedCount == 0 {
		c.Research.RefinedCount = 5
	}
	if c.Research.ResultsPerQuery == 0 {
		c.Research.ResultsPerQuery = 5
	}
	if c.Research.MinContentLength == 0 {
		c.Research.MinContentLength = 500
	}
	if c.Concurrency.QPS == 0 {
		c.Concurrency.QPS = 1
	}
	if c.Concurrency.RPM == 0 {
		c.Concurrency.RPM = 30
	}
}
