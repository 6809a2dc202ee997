package export

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/yuin/goldmark"

	"github.com/iWorld-y/deep_research/app/research/pkg/model"
)

const htmlTpl = `
<!DOCTYPE html>
<html lang="zh-CN">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>深度研究 | {{.Topic}}</title>
    <style>
        :root {
            --primary-color: #2563eb;
            --bg-color: #f8fafc;
            --card-bg: #ffffff;
            --text-main: #1e293b;
            --text-secondary: #64748b;
            --border-color: #e2e8f0;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
            background-color: var(--bg-color);
            color: var(--text-main);
            line-height: 1.6;
            margin: 0;
            padding: 20px;
        }
        .container { max-width: 900px; margin: 0 auto; }
        header { text-align: center; margin-bottom: 40px; padding: 20px 0; }
        h1 { font-size: 2.2rem; margin: 0 0 10px 0; }
        .meta-info { color: var(--text-secondary); }
        .report-body {
            background: var(--card-bg);
            padding: 24px;
            border-radius: 12px;
            margin-bottom: 40px;
            box-shadow: 0 4px 6px -1px rgba(0,0,0,0.1);
            border: 1px solid var(--border-color);
        }
        .report-body img { max-width: 100%; }
        .report-body pre { overflow-x: auto; background: #f1f5f9; padding: 12px; border-radius: 8px; }
        .sources {
            background: var(--card-bg);
            padding: 24px;
            border-radius: 12px;
            border: 1px solid var(--border-color);
        }
        .sources h2 { margin-top: 0; border-bottom: 2px solid var(--primary-color); padding-bottom: 10px; display: inline-block; }
        .sources li { margin-bottom: 8px; }
        .sources a { color: var(--primary-color); text-decoration: none; }
        .sources a:hover { text-decoration: underline; }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>{{.Topic}}</h1>
            <p class="meta-info">第 {{.Version}} 版{{if .Score}} · 评审 {{.Score}}/5{{end}}</p>
        </header>
        <div class="report-body">{{.Body}}</div>
        {{if .Sources}}
        <div class="sources">
            <h2>引用来源</h2>
            <ol>
            {{range .Sources}}
                <li><a href="{{.URL}}" target="_blank" rel="noopener">{{if .Title}}{{.Title}}{{else}}{{.URL}}{{end}}</a></li>
            {{end}}
            </ol>
        </div>
        {{end}}
    </div>
</body>
</html>`

type pageData struct {
	Topic   string
	Version int
	Score   int
	Body    template.HTML
	Sources []model.Source
}

// RenderHTML 把报告渲染为独立的 HTML 页面
func RenderHTML(report *model.Report) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("report is nil")
	}

	var body bytes.Buffer
	if err := goldmark.Convert([]byte(report.Markdown), &body); err != nil {
		return nil, fmt.Errorf("markdown 渲染失败: %w", err)
	}

	t, err := template.New("report").Parse(htmlTpl)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	err = t.Execute(&out, pageData{
		Topic:   report.Topic,
		Version: report.Version,
		Score:   report.Score,
		Body:    template.HTML(body.String()),
		Sources: report.Sources,
	})
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// WriteFiles 把报告写入目录：report.md 与 index.html
func WriteFiles(report *model.Report, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	md := report.Markdown
	if len(report.Sources) > 0 {
		var sb bytes.Buffer
		sb.WriteString(md)
		sb.WriteString("\n\n## 引用来源\n\n")
		for i, s := range report.Sources {
			title := s.Title
			if title == "" {
				title = s.URL
			}
			fmt.Fprintf(&sb, "%d. [%s](%s)\n", i+1, title, s.URL)
		}
		md = sb.String()
	}
	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte(md), 0o644); err != nil {
		return err
	}

	html, err := RenderHTML(report)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "index.html"), html, 0o644)
}
