// Package metrics 提供Prometheus监控指标
package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 排班服务的指标集合
type Metrics struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	solveTotal     *prometheus.CounterVec
	solveDuration  *prometheus.HistogramVec
	solutionScore  *prometheus.GaugeVec
	coverageRate   *prometheus.GaugeVec
	fairnessGini   *prometheus.GaugeVec
	hardViolations *prometheus.GaugeVec
	frontierSize   *prometheus.GaugeVec

	reg prometheus.Registerer
}

// New 在默认注册表上注册排班指标
func New() (*Metrics, error) {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry 在指定注册表上注册指标，nil 时使用默认注册表
// 重复注册复用已存在的采集器，进程内可安全多次调用
func NewWithRegistry(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{reg: reg}
	var err error

	m.httpRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rotaplan_http_requests_total",
		Help: "HTTP请求总数",
	}, []string{"method", "path", "status"}))
	if err != nil {
		return nil, err
	}

	m.httpDuration, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rotaplan_http_request_duration_seconds",
		Help:    "HTTP请求延迟",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	}, []string{"method", "path"}))
	if err != nil {
		return nil, err
	}

	m.solveTotal, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rotaplan_solve_total",
		Help: "求解次数",
	}, []string{"algorithm", "status"}))
	if err != nil {
		return nil, err
	}

	m.solveDuration, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rotaplan_solve_duration_seconds",
		Help:    "求解耗时",
		Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
	}, []string{"algorithm"}))
	if err != nil {
		return nil, err
	}

	m.solutionScore, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rotaplan_solution_score",
		Help: "最近一次求解的约束满足得分",
	}, []string{"org_id"}))
	if err != nil {
		return nil, err
	}

	m.coverageRate, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rotaplan_coverage_rate",
		Help: "最近一次求解的必须覆盖时段填充率",
	}, []string{"org_id"}))
	if err != nil {
		return nil, err
	}

	m.fairnessGini, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rotaplan_fairness_gini",
		Help: "公平性基尼系数",
	}, []string{"org_id", "metric_type"}))
	if err != nil {
		return nil, err
	}

	m.hardViolations, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rotaplan_hard_violations",
		Help: "复核发现的硬约束违反数",
	}, []string{"org_id"}))
	if err != nil {
		return nil, err
	}

	m.frontierSize, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rotaplan_frontier_size",
		Help: "最近一次多目标求解的前沿规模",
	}, []string{"org_id"}))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordRequest 记录HTTP请求指标
func (m *Metrics) RecordRequest(method, path string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSolve 记录一次求解的算法、终态与耗时
func (m *Metrics) RecordSolve(algorithm, status string, duration time.Duration) {
	m.solveTotal.WithLabelValues(algorithm, status).Inc()
	m.solveDuration.WithLabelValues(algorithm).Observe(duration.Seconds())
}

// SetSolutionScore 设置解决方案质量分数
func (m *Metrics) SetSolutionScore(orgID string, score float64) {
	m.solutionScore.WithLabelValues(orgID).Set(score)
}

// SetCoverageRate 设置覆盖率
func (m *Metrics) SetCoverageRate(orgID string, rate float64) {
	m.coverageRate.WithLabelValues(orgID).Set(rate)
}

// SetFairnessGini 设置公平性基尼系数
func (m *Metrics) SetFairnessGini(orgID, metricType string, gini float64) {
	m.fairnessGini.WithLabelValues(orgID, metricType).Set(gini)
}

// SetHardViolations 设置复核发现的硬约束违反数
func (m *Metrics) SetHardViolations(orgID string, count int) {
	m.hardViolations.WithLabelValues(orgID).Set(float64(count))
}

// SetFrontierSize 设置前沿规模
func (m *Metrics) SetFrontierSize(orgID string, size int) {
	m.frontierSize.WithLabelValues(orgID).Set(float64(size))
}

// RegisterDBStats 注册数据库连接池指标，stats 在每次抓取时调用
func (m *Metrics) RegisterDBStats(stats func() sql.DBStats) error {
	states := []struct {
		name string
		read func(sql.DBStats) float64
	}{
		{"open", func(s sql.DBStats) float64 { return float64(s.OpenConnections) }},
		{"idle", func(s sql.DBStats) float64 { return float64(s.Idle) }},
		{"in_use", func(s sql.DBStats) float64 { return float64(s.InUse) }},
	}

	for _, st := range states {
		read := st.read
		g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "rotaplan_db_connections",
			Help:        "数据库连接数",
			ConstLabels: prometheus.Labels{"state": st.name},
		}, func() float64 { return read(stats()) })

		if err := m.reg.Register(g); err != nil {
			// 函数型采集器无法复用，重复注册直接跳过
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	return nil
}

// Handler 返回Prometheus指标HTTP处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec), nil
		}
		return nil, err
	}
	return c, nil
}

func registerHistogramVec(reg prometheus.Registerer, h *prometheus.HistogramVec) (*prometheus.HistogramVec, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.HistogramVec), nil
		}
		return nil, err
	}
	return h, nil
}

func registerGaugeVec(reg prometheus.Registerer, g *prometheus.GaugeVec) (*prometheus.GaugeVec, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.GaugeVec), nil
		}
		return nil, err
	}
	return g, nil
}
