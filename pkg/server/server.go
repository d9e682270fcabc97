package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/BetaCatPro/ordertrack-ws/internal/conn"
	"github.com/BetaCatPro/ordertrack-ws/internal/errors"
	"github.com/BetaCatPro/ordertrack-ws/internal/metrics"
	"github.com/BetaCatPro/ordertrack-ws/internal/protocol"
	"github.com/BetaCatPro/ordertrack-ws/internal/utils"
	"github.com/BetaCatPro/ordertrack-ws/pkg/types"
)

// maxUpdateBytes 推送接口的请求体上限
const maxUpdateBytes = 1 << 20

// TestGreeting /ws/test/ 连接建立后发送的消息
var TestGreeting = map[string]string{"message": "WebSocket connected successfully!"}

// Server 本地订单跟踪服务器，用于在没有后端的情况下验证客户端
type Server struct {
	addr        string
	groups      *conn.GroupManager
	errorCenter *errors.ErrorCenter
	metrics     *metrics.Metrics
	protocol    protocol.MessageProtocol
	upgrader    websocket.Upgrader
	server      *http.Server
	logger      zerolog.Logger
}

// NewServer 创建新的订单跟踪服务器。m 可以为 nil。
func NewServer(addr string, m *metrics.Metrics) *Server {
	logger := log.Logger.With().Str("component", "server").Logger()
	errorCenter := errors.NewErrorCenter()
	errorCenter.AddErrorCallback(func(err error) {
		logger.Error().Err(err).Msg("websocket error")
	})

	s := &Server{
		addr:        addr,
		groups:      conn.NewGroupManager(errorCenter, m),
		errorCenter: errorCenter,
		metrics:     m,
		protocol:    protocol.JSONProtocol{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler 路由：
//
//	GET  /ws/orders/{orderID}/        订单跟踪
//	GET  /ws/test/                    回显测试
//	POST /orders/{orderID}/updates    向订单组推送消息
//	GET  /metrics
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(`/ws/orders/{orderID:\w+}/`, s.handleOrderSocket)
	r.HandleFunc("/ws/test/", s.handleTestSocket)
	r.HandleFunc(`/orders/{orderID:\w+}/updates`, s.handlePushUpdate).Methods(http.MethodPost)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	return r
}

// Start 启动服务器（阻塞）
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.addr).Msg("starting order tracking server")
	return s.server.ListenAndServe()
}

// Serve 在给定监听器上启动服务器（阻塞）
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info().Str("addr", l.Addr().String()).Msg("starting order tracking server")
	return s.server.Serve(l)
}

// Stop 关闭所有连接并停止服务器
func (s *Server) Stop(ctx context.Context) error {
	if groups := s.groups.Groups(); len(groups) > 0 {
		s.logger.Info().Strs("groups", groups).Msg("closing order groups")
	}
	s.CloseAll()
	return s.server.Shutdown(ctx)
}

// CloseAll 断开所有订单连接（不发送关闭帧），客户端会看到 1006
func (s *Server) CloseAll() {
	s.groups.CloseAll()
}

// PushUpdate 向订单组推送一条已编码的消息，返回送达的连接数
func (s *Server) PushUpdate(orderID string, payload []byte) int {
	return s.groups.Broadcast(utils.GroupName(orderID), websocket.TextMessage, payload)
}

// GetClientCount 订单组内的连接数
func (s *Server) GetClientCount(orderID string) int {
	return s.groups.Count(utils.GroupName(orderID))
}

// handleOrderSocket 加入订单组，直到连接断开
func (s *Server) handleOrderSocket(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["orderID"]

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("upgrade failed")
		return
	}

	tr := conn.NewTransport(wsConn, types.DefaultWriteTimeout)
	peerID := utils.GeneratePeerID()
	group := utils.GroupName(orderID)
	logger := s.logger.With().Str("peer", peerID).Str("group", group).Logger()

	s.groups.AddConnection(group, peerID, tr)
	logger.Info().Msg("client joined")

	defer func() {
		s.groups.RemoveConnection(group, peerID)
		_ = tr.Close()
	}()

	for {
		_, data, err := tr.ReadMessage()
		if err != nil {
			s.logDisconnect(logger, err)
			return
		}
		s.metrics.ObserveMessage("in")

		if v, err := s.protocol.Decode(data); err == nil {
			logger.Info().Interface("data", v.AsInterface()).Msg("received from client")
		} else {
			logger.Info().Str("raw", string(data)).Msg("received from client")
		}
	}
}

// handleTestSocket 发送欢迎消息，并把收到的每条消息以 {"echo": ...} 回显
func (s *Server) handleTestSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("upgrade failed")
		return
	}

	tr := conn.NewTransport(wsConn, types.DefaultWriteTimeout)
	defer tr.Close()
	logger := s.logger.With().Str("peer", utils.GeneratePeerID()).Logger()

	if err := s.writeJSON(tr, TestGreeting); err != nil {
		s.errorCenter.ReportError(fmt.Errorf("send greeting: %w", err))
		return
	}

	for {
		_, data, err := tr.ReadMessage()
		if err != nil {
			s.logDisconnect(logger, err)
			return
		}
		s.metrics.ObserveMessage("in")
		logger.Info().Str("raw", string(data)).Msg("received from frontend")

		if err := s.writeJSON(tr, map[string]string{"echo": string(data)}); err != nil {
			s.errorCenter.ReportError(fmt.Errorf("send echo: %w", err))
			return
		}
	}
}

// handlePushUpdate 将请求体（JSON）原样推送给订单组
func (s *Server) handlePushUpdate(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["orderID"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if _, err := s.protocol.Decode(body); err != nil {
		http.Error(w, "body must be JSON", http.StatusBadRequest)
		return
	}

	delivered := s.PushUpdate(orderID, body)
	s.logger.Info().Str("order_id", orderID).Int("delivered", delivered).Msg("order update pushed")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(PushResult{
		Group:     utils.GroupName(orderID),
		Delivered: delivered,
	})
}

// PushResult 推送接口的响应
type PushResult struct {
	Group     string `json:"group"`
	Delivered int    `json:"delivered"`
}

func (s *Server) writeJSON(tr conn.Transport, v any) error {
	payload, err := s.protocol.Encode(v)
	if err != nil {
		return err
	}
	if err := tr.WriteMessage(s.protocol.FrameType(), payload); err != nil {
		return err
	}
	s.metrics.ObserveMessage("out")
	return nil
}

func (s *Server) logDisconnect(logger zerolog.Logger, err error) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		s.errorCenter.ReportError(fmt.Errorf("read message: %w", err))
		return
	}
	logger.Info().Err(err).Msg("client disconnected")
}
