package searxng

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iWorld-y/deep_research/app/research/pkg/search"
)

func TestSearch(t *testing.T) {
	var gotQuery, gotFormat, gotCategories string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotFormat = r.URL.Query().Get("format")
		gotCategories = r.URL.Query().Get("categories")
		_ = json.NewEncoder(w).Encode(searchResponse{
			Results: []searchResult{
				{Title: "一", URL: "https://a.example.com", Content: "摘要一"},
				{Title: "二", URL: "https://b.example.com", Content: "摘要二"},
				{Title: "三", URL: "https://c.example.com", Content: "摘要三"},
			},
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, 5)
	resp, err := c.Search(context.Background(), &search.Request{Query: "向量数据库", MaxResults: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotQuery != "向量数据库" || gotFormat != "json" {
		t.Errorf("query = %q, format = %q", gotQuery, gotFormat)
	}
	if gotCategories != "general" {
		t.Errorf("categories = %q, want general", gotCategories)
	}
	// MaxResults 截断
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.Results))
	}
	if resp.Results[0].URL != "https://a.example.com" {
		t.Errorf("results order = %+v", resp.Results)
	}
}

func TestSearchNewsCategory(t *testing.T) {
	var gotCategories string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCategories = r.URL.Query().Get("categories")
		_ = json.NewEncoder(w).Encode(searchResponse{})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, 5)
	if _, err := c.Search(context.Background(), &search.Request{Query: "x", Category: "news"}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotCategories != "news" {
		t.Errorf("categories = %q, want news", gotCategories)
	}
}

func TestSearchAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, 5)
	if _, err := c.Search(context.Background(), &search.Request{Query: "x"}); err == nil {
		t.Error("expected error on non-200 status")
	}
}
