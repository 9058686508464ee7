package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultReadHeaderTimeout = 10 * time.Second

// Exporter 通过HTTP暴露 /metrics
type Exporter struct {
	registry *prometheus.Registry
	server   *http.Server
}

// NewExporter 创建导出器并注册全部指标
func NewExporter(addr string) *Exporter {
	reg := prometheus.NewRegistry()
	for _, c := range allMetrics {
		reg.MustRegister(c)
	}
	reg.MustRegister(collectors.NewGoCollector())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &Exporter{
		registry: reg,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: defaultReadHeaderTimeout,
		},
	}
}

// Handler 返回指标HTTP处理器
func (e *Exporter) Handler() http.Handler {
	return e.server.Handler
}

// Start 阻塞运行，直到 Shutdown
func (e *Exporter) Start() error {
	if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "指标服务启动失败")
	}
	return nil
}

// Shutdown 优雅关闭
func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.server.Shutdown(ctx)
}
