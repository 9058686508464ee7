// Package metrics 会话客户端的Prometheus指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lingzhi_client"

var (
	// envelopesSentTotal 已写入连接的消息数
	envelopesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_sent_total",
			Help:      "Total number of envelopes written to the connection",
		},
		[]string{"mime_type"},
	)

	// envelopesDroppedTotal 未连接时被丢弃的消息数
	envelopesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_dropped_total",
			Help:      "Total number of envelopes dropped because the connection was not open",
		},
	)

	envelopesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_received_total",
			Help:      "Total number of envelopes received from the agent",
		},
		[]string{"kind"}, // kind: audio, text, turn_complete, interrupted, other
	)

	decodeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total number of inbound messages that could not be decoded",
		},
	)

	audioFlushesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_flushes_total",
			Help:      "Total number of aggregated audio flushes",
		},
	)

	audioBytesFlushedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_flushed_total",
			Help:      "Total PCM bytes handed to the connection by the aggregator",
		},
	)

	// captureFramesDroppedTotal 事件循环繁忙时丢弃的麦克风帧
	captureFramesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_frames_dropped_total",
			Help:      "Total number of microphone frames dropped because the event loop was busy",
		},
	)

	reconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_scheduled_total",
			Help:      "Total number of reconnect attempts scheduled after unexpected closure",
		},
	)

	// connectionState 当前连接状态，取值同 model.ConnectionState
	connectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current connection state (0 disconnected, 1 connecting, 2 connected, 3 closing by user)",
		},
	)

	audioMode = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audio_mode",
			Help:      "1 when the session is in audio mode, 0 for text-only",
		},
	)

	// allMetrics 用于统一注册
	allMetrics = []prometheus.Collector{
		envelopesSentTotal,
		envelopesDroppedTotal,
		envelopesReceivedTotal,
		decodeErrorsTotal,
		audioFlushesTotal,
		audioBytesFlushedTotal,
		captureFramesDroppedTotal,
		reconnectsTotal,
		connectionState,
		audioMode,
	}
)

// RecordSent 记录一条已发送的消息
func RecordSent(mimeType string) {
	envelopesSentTotal.WithLabelValues(mimeType).Inc()
}

// RecordDropped 记录一条因未连接而丢弃的消息
func RecordDropped() {
	envelopesDroppedTotal.Inc()
}

// RecordReceived 记录一条收到的消息
func RecordReceived(kind string) {
	envelopesReceivedTotal.WithLabelValues(kind).Inc()
}

// RecordDecodeError 记录一次解析失败
func RecordDecodeError() {
	decodeErrorsTotal.Inc()
}

// RecordFlush 记录一次音频聚合发送
func RecordFlush(bytes int) {
	audioFlushesTotal.Inc()
	audioBytesFlushedTotal.Add(float64(bytes))
}

// RecordCaptureDropped 记录一帧未能投递到事件循环的采集音频
func RecordCaptureDropped() {
	captureFramesDroppedTotal.Inc()
}

// RecordReconnectScheduled 记录一次重连调度
func RecordReconnectScheduled() {
	reconnectsTotal.Inc()
}

// SetConnectionState 更新连接状态
func SetConnectionState(state int) {
	connectionState.Set(float64(state))
}

// SetAudioMode 更新语音模式
func SetAudioMode(enabled bool) {
	if enabled {
		audioMode.Set(1)
		return
	}
	audioMode.Set(0)
}
