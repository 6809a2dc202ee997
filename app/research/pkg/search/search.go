package search

import "context"

// Searcher 定义通用的网页搜索接口，为报告编写提供外部检索依据
type Searcher interface {
	Search(ctx context.Context, req *Request) (*Response, error)
}

// Request 通用搜索请求
type Request struct {
	Query      string
	MaxResults int
	Category   string // "general" 或 "news"，缺省 general
}

// Response 通用搜索响应
type Response struct {
	Results []Result
}

// Result 单条搜索结果
type Result struct {
	Title   string
	URL     string
	Content string // 摘要或正文片段
	Score   float64
}
