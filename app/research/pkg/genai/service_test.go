package genai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/iWorld-y/deep_research/app/research/pkg/config"
	dm "github.com/iWorld-y/deep_research/app/research/pkg/model"
	"github.com/iWorld-y/deep_research/app/research/pkg/search"
)

// fakeSearcher 按查询返回预置结果
type fakeSearcher struct {
	results map[string][]search.Result
	errOn   string
	calls   []string
}

func (f *fakeSearcher) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	f.calls = append(f.calls, req.Query)
	if req.Query == f.errOn {
		return nil, errors.New("provider unavailable")
	}
	return &search.Response{Results: f.results[req.Query]}, nil
}

func testService(searcher search.Searcher) *Service {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	// 摘要长度阈值设为 1，测试中不触发正文抓取
	cfg.Research.MinContentLength = 1
	return &Service{
		cfg:      cfg,
		searcher: searcher,
		limiter:  rate.NewLimiter(rate.Inf, 1),
	}
}

func TestSearchGathersMaterial(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string][]search.Result{
			"查询一": {
				{Title: "甲", URL: "https://a.example.com", Content: "正文甲"},
				{Title: "乙", URL: "https://b.example.com", Content: "正文乙"},
			},
			"查询二": {
				{Title: "丙", URL: "https://c.example.com", Content: "正文丙"},
			},
		},
	}
	s := testService(searcher)

	material, sources, err := s.Search(context.Background(), []dm.SearchQuery{
		{Query: "查询一"}, {Query: "查询二"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(material) != 3 || len(sources) != 3 {
		t.Fatalf("material = %d, sources = %d, want 3/3", len(material), len(sources))
	}
	// 查询按给定顺序串行执行
	if searcher.calls[0] != "查询一" || searcher.calls[1] != "查询二" {
		t.Errorf("calls = %v", searcher.calls)
	}
	if material[0].Content != "正文甲" {
		t.Errorf("material[0] = %+v", material[0])
	}
}

func TestSearchSkipsFailedQuery(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string][]search.Result{
			"好查询": {{Title: "甲", URL: "https://a.example.com", Content: "正文"}},
		},
		errOn: "坏查询",
	}
	s := testService(searcher)

	// 单条查询失败不中断整体检索
	material, _, err := s.Search(context.Background(), []dm.SearchQuery{
		{Query: "坏查询"}, {Query: "好查询"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(material) != 1 {
		t.Errorf("material = %d, want 1", len(material))
	}
}

func TestSearchNoResults(t *testing.T) {
	s := testService(&fakeSearcher{})
	_, _, err := s.Search(context.Background(), []dm.SearchQuery{{Query: "任意"}})
	if !errors.Is(err, ErrNoContent) {
		t.Errorf("err = %v, want ErrNoContent", err)
	}
}

func TestSearchHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := testService(&fakeSearcher{})
	_, _, err := s.Search(ctx, []dm.SearchQuery{{Query: "任意"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSearchTruncatesLongContent(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string][]search.Result{
			"查询": {{Title: "甲", URL: "https://a.example.com", Content: strings.Repeat("x", 8000)}},
		},
	}
	s := testService(searcher)

	material, _, err := s.Search(context.Background(), []dm.SearchQuery{{Query: "查询"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(material[0].Content) != 5000 {
		t.Errorf("content length = %d, want 5000", len(material[0].Content))
	}
}

func TestSearchTruncationKeepsRuneBoundary(t *testing.T) {
	// 中文正文超长时，截断不得切出半个字符
	searcher := &fakeSearcher{
		results: map[string][]search.Result{
			"查询": {{Title: "甲", URL: "https://a.example.com", Content: strings.Repeat("汉", 2000)}},
		},
	}
	s := testService(searcher)

	material, _, err := s.Search(context.Background(), []dm.SearchQuery{{Query: "查询"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	content := material[0].Content
	if len(content) > 5000 {
		t.Errorf("content length = %d, want <= 5000", len(content))
	}
	if !utf8.ValidString(content) {
		t.Error("truncated content is not valid UTF-8")
	}
}

func TestTruncateContent(t *testing.T) {
	if got := truncateContent("短文", 5000); got != "短文" {
		t.Errorf("short input changed: %q", got)
	}
	got := truncateContent(strings.Repeat("汉", 10), 8)
	// 每个汉字 3 字节，8 字节上限回退到 6 字节
	if got != strings.Repeat("汉", 2) {
		t.Errorf("got %q (%d bytes)", got, len(got))
	}
}

func TestIsRateLimited(t *testing.T) {
	if !isRateLimited(errors.New("status 429: rate limit")) {
		t.Error("429 not recognized")
	}
	if !isRateLimited(errors.New("Too Many Requests")) {
		t.Error("too many requests not recognized")
	}
	if isRateLimited(errors.New("connection refused")) {
		t.Error("generic error misclassified as rate limit")
	}
}

func TestStripFences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"```json\n[1,2]\n```", "[1,2]"},
		{"```\n{\"a\":1}\n```", "{\"a\":1}"},
		{"  [1,2]  ", "[1,2]"},
		{"正文", "正文"},
	}
	for _, c := range cases {
		if got := stripFences(c.in); got != c.want {
			t.Errorf("stripFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
