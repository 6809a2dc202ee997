package factory

import (
	"testing"

	"github.com/iWorld-y/deep_research/app/research/pkg/config"
)

func TestNewSearcherTavily(t *testing.T) {
	cfg := &config.Config{}
	cfg.Search.Provider = "tavily"
	cfg.Search.Tavily.APIKey = "key"

	if _, err := NewSearcher(cfg); err != nil {
		t.Errorf("NewSearcher: %v", err)
	}
}

func TestNewSearcherTavilyMissingKey(t *testing.T) {
	cfg := &config.Config{}
	cfg.Search.Provider = "tavily"

	if _, err := NewSearcher(cfg); err == nil {
		t.Error("expected error for missing tavily key")
	}
}

func TestNewSearcherSearXNG(t *testing.T) {
	cfg := &config.Config{}
	cfg.Search.Provider = "searxng"
	cfg.Search.SearXNG.BaseURL = "http://localhost:8080"

	if _, err := NewSearcher(cfg); err != nil {
		t.Errorf("NewSearcher: %v", err)
	}
}

func TestNewSearcherDefaultFallback(t *testing.T) {
	// 未指定 provider 但有 tavily key 时回退到 tavily
	cfg := &config.Config{}
	cfg.Search.Tavily.APIKey = "key"

	if _, err := NewSearcher(cfg); err != nil {
		t.Errorf("NewSearcher: %v", err)
	}

	// 什么都没配则报错
	if _, err := NewSearcher(&config.Config{}); err == nil {
		t.Error("expected error when nothing configured")
	}
}

func TestNewSearcherUnknownProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.Search.Provider = "bing"

	if _, err := NewSearcher(cfg); err == nil {
		t.Error("expected error for unknown provider")
	}
}
