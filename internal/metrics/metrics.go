package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ordertrack"

// Metrics 客户端/服务端共用的指标集合。nil 接收者上的方法均为空操作。
type Metrics struct {
	registry *prometheus.Registry

	Connects     prometheus.Counter
	Reconnects   prometheus.Counter
	Closes       *prometheus.CounterVec
	Messages     *prometheus.CounterVec
	Dropped      prometheus.Counter
	DecodeErrors prometheus.Counter
	Connected    prometheus.Gauge
	GroupPeers   *prometheus.GaugeVec
}

// New 创建并注册全部指标
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Successful websocket opens.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after an unexpected close.",
		}),
		Closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "closes_total",
			Help:      "Websocket close events by initiator.",
		}, []string{"initiator"}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Websocket messages by direction.",
		}, []string{"direction"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_sends_total",
			Help:      "Outbound messages dropped because the socket was not open.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_fallbacks_total",
			Help:      "Inbound messages logged as raw text because decoding failed.",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the websocket is open.",
		}),
		GroupPeers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "group_peers",
			Help:      "Sockets currently subscribed to an order group.",
		}, []string{"group"}),
	}
	reg.MustRegister(m.Connects, m.Reconnects, m.Closes, m.Messages,
		m.Dropped, m.DecodeErrors, m.Connected, m.GroupPeers)
	return m
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveConnect() {
	if m == nil {
		return
	}
	m.Connects.Inc()
	m.Connected.Set(1)
}

func (m *Metrics) ObserveClose(manual bool) {
	if m == nil {
		return
	}
	initiator := "remote"
	if manual {
		initiator = "manual"
	}
	m.Closes.WithLabelValues(initiator).Inc()
	m.Connected.Set(0)
}

func (m *Metrics) ObserveReconnect() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

func (m *Metrics) ObserveMessage(direction string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(direction).Inc()
}

func (m *Metrics) ObserveDropped() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}

func (m *Metrics) ObserveDecodeFallback() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

func (m *Metrics) SetGroupPeers(group string, n int) {
	if m == nil {
		return
	}
	if n == 0 {
		m.GroupPeers.DeleteLabelValues(group)
		return
	}
	m.GroupPeers.WithLabelValues(group).Set(float64(n))
}
