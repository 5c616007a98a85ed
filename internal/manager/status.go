package manager

import (
	"time"

	"chatcore/pkg/types"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var cur *ModelInfo
	if m.cur != nil {
		c := *m.cur
		cur = &c
	}
	return Snapshot{State: m.state, CurrentModel: cur, Err: m.err}
}

// Status builds a detailed status response for /status. Context usage is
// as of the last finished turn.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	resp := types.StatusResponse{
		State:          string(m.state),
		LastError:      m.err,
		QueueLen:       len(m.queueCh),
		Inflight:       len(m.genCh),
		MaxQueueDepth:  cap(m.queueCh),
		Conversation:   m.conversation,
		UptimeSeconds:  int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix: now.Unix(),
		LoadsTotal:     m.loads,
	}
	if m.cur != nil {
		resp.Model = m.cur.ID
	}
	if m.eng != nil {
		resp.ContextUsed = m.view.used
		resp.ContextCapacity = m.view.capacity
		resp.TemplateActive = m.view.templateActive
		resp.BoundaryMarker = m.view.marker
	}
	return resp
}
