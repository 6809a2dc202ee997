package server

import (
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/deep_research/app/console/internal/conf"
	"github.com/iWorld-y/deep_research/app/console/internal/service"
)

// NewHTTPServer 创建研究控制台 HTTP 服务
func NewHTTPServer(c *conf.Server, s *service.ConsoleService, logger log.Logger) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
	}
	if c != nil && c.Http != nil {
		if c.Http.Addr != "" {
			opts = append(opts, http.Address(c.Http.Addr))
		}
		if c.Http.Timeout != "" {
			if d, err := time.ParseDuration(c.Http.Timeout); err == nil {
				opts = append(opts, http.Timeout(d))
			}
		}
	}

	srv := http.NewServer(opts...)

	srv.HandleFunc("/api/research/start", s.Start)
	srv.HandleFunc("/api/research/stop", s.Stop)
	srv.HandleFunc("/api/research/followup", s.FollowUp)
	srv.HandleFunc("/api/research/state", s.State)
	srv.HandleFunc("/api/research/logs", s.Logs)
	srv.HandleFunc("/api/research/events", s.Events)

	return srv
}
