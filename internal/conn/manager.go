package conn

import (
	"fmt"
	"sort"
	"sync"

	"github.com/BetaCatPro/ordertrack-ws/internal/errors"
	"github.com/BetaCatPro/ordertrack-ws/internal/metrics"
)

// GroupManager 按订单组管理服务端连接
type GroupManager struct {
	groups      map[string]map[string]Transport
	mutex       sync.RWMutex
	errorCenter *errors.ErrorCenter
	metrics     *metrics.Metrics
}

// NewGroupManager 创建连接组管理器
func NewGroupManager(errorCenter *errors.ErrorCenter, m *metrics.Metrics) *GroupManager {
	if errorCenter == nil {
		errorCenter = errors.NewErrorCenter()
	}
	return &GroupManager{
		groups:      make(map[string]map[string]Transport),
		errorCenter: errorCenter,
		metrics:     m,
	}
}

// AddConnection 将连接加入组
func (gm *GroupManager) AddConnection(group, id string, tr Transport) {
	gm.mutex.Lock()
	defer gm.mutex.Unlock()

	peers, ok := gm.groups[group]
	if !ok {
		peers = make(map[string]Transport)
		gm.groups[group] = peers
	}
	peers[id] = tr
	gm.metrics.SetGroupPeers(group, len(peers))
}

// RemoveConnection 将连接移出组，组为空时删除
func (gm *GroupManager) RemoveConnection(group, id string) {
	gm.mutex.Lock()
	defer gm.mutex.Unlock()

	peers, ok := gm.groups[group]
	if !ok {
		return
	}
	delete(peers, id)
	gm.metrics.SetGroupPeers(group, len(peers))
	if len(peers) == 0 {
		delete(gm.groups, group)
	}
}

// Broadcast 向组内所有连接发送消息，返回成功送达的连接数
func (gm *GroupManager) Broadcast(group string, messageType int, payload []byte) int {
	gm.mutex.RLock()
	targets := make([]Transport, 0, len(gm.groups[group]))
	for _, tr := range gm.groups[group] {
		targets = append(targets, tr)
	}
	gm.mutex.RUnlock()

	delivered := 0
	for _, tr := range targets {
		if err := tr.WriteMessage(messageType, payload); err != nil {
			gm.errorCenter.ReportError(fmt.Errorf("broadcast to %s: %w", group, err))
			continue
		}
		delivered++
	}
	return delivered
}

// Count 组内连接数
func (gm *GroupManager) Count(group string) int {
	gm.mutex.RLock()
	defer gm.mutex.RUnlock()
	return len(gm.groups[group])
}

// Groups 当前所有组名（已排序）
func (gm *GroupManager) Groups() []string {
	gm.mutex.RLock()
	defer gm.mutex.RUnlock()

	names := make([]string, 0, len(gm.groups))
	for name := range gm.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloseAll 关闭所有连接
func (gm *GroupManager) CloseAll() {
	gm.mutex.Lock()
	defer gm.mutex.Unlock()

	for group, peers := range gm.groups {
		for _, tr := range peers {
			_ = tr.Close()
		}
		gm.metrics.SetGroupPeers(group, 0)
		delete(gm.groups, group)
	}
}
