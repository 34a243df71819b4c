// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordLogin(success bool)
	RecordSessionValidation(success bool)
	RecordGraphStatus(statusCode int)
	RecordGraphLatency(duration time.Duration)
	RecordMerge(success bool)
	RecordRecordsMerged(count int)
	RecordCSVExport()
	RecordPublish(contactCount int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	login         *prometheus.CounterVec
	validation    *prometheus.CounterVec
	graphStatus   *prometheus.CounterVec
	graphLatency  prometheus.Histogram
	merges        *prometheus.CounterVec
	recordsMerged prometheus.Counter
	csvExports    prometheus.Counter
	publishes     prometheus.Counter
	contactsSent  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		login: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contactdesk_login_total",
			Help: "ログイン試行の結果別合計数",
		}, []string{"result"}),
		validation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contactdesk_session_validation_total",
			Help: "セッション生存確認の結果別合計数",
		}, []string{"result"}),
		graphStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contactdesk_graph_status_total",
			Help: "Graph API呼び出しのHTTPステータスコード別合計数",
		}, []string{"status_code"}),
		graphLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "contactdesk_graph_latency_seconds",
			Help:    "Graph API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contactdesk_merge_total",
			Help: "名簿マージ実行の結果別合計数",
		}, []string{"result"}),
		recordsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contactdesk_records_merged_total",
			Help: "生成された統合レコードの合計数",
		}),
		csvExports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contactdesk_csv_export_total",
			Help: "CSVエクスポートの合計数",
		}),
		publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contactdesk_publish_total",
			Help: "Outlookカテゴリ公開の合計数",
		}),
		contactsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contactdesk_publish_contacts_total",
			Help: "公開時に作成された連絡先の合計数",
		}),
	}

	reg.MustRegister(
		c.login,
		c.validation,
		c.graphStatus,
		c.graphLatency,
		c.merges,
		c.recordsMerged,
		c.csvExports,
		c.publishes,
		c.contactsSent,
	)

	return c
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(success bool) {
	c.login.WithLabelValues(resultLabel(success)).Inc()
}

// RecordSessionValidation はセッション生存確認の結果を記録する。
func (c *Collector) RecordSessionValidation(success bool) {
	c.validation.WithLabelValues(resultLabel(success)).Inc()
}

// RecordGraphStatus はGraph API呼び出しのHTTPステータスコードを記録する。
func (c *Collector) RecordGraphStatus(statusCode int) {
	c.graphStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordGraphLatency はGraph API呼び出しのレイテンシを記録する。
func (c *Collector) RecordGraphLatency(duration time.Duration) {
	c.graphLatency.Observe(duration.Seconds())
}

// RecordMerge は名簿マージ実行の結果を記録する。
func (c *Collector) RecordMerge(success bool) {
	c.merges.WithLabelValues(resultLabel(success)).Inc()
}

// RecordRecordsMerged は生成された統合レコード数を記録する。
func (c *Collector) RecordRecordsMerged(count int) {
	c.recordsMerged.Add(float64(count))
}

// RecordCSVExport はCSVエクスポートを記録する。
func (c *Collector) RecordCSVExport() {
	c.csvExports.Inc()
}

// RecordPublish はOutlookカテゴリ公開と作成された連絡先数を記録する。
func (c *Collector) RecordPublish(contactCount int) {
	c.publishes.Inc()
	c.contactsSent.Add(float64(contactCount))
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// アプリケーションルーターとは別ポートでの公開を想定している。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}
