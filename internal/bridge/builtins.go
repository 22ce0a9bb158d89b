package bridge

import (
	"context"
	"encoding/json"
	"errors"
)

// Built-in message types answered by the dispatcher itself.
const (
	TypeHealthCheck = "HEALTH_CHECK"
	TypeGetTabInfo  = "GET_TAB_INFO"
	TypeProcessData = "PROCESS_DATA"
)

// ErrNoActiveTab is returned by a TabLocator that has no tab to report.
var ErrNoActiveTab = errors.New("no active tab")

// TabLocator resolves the active tab for a sender.
type TabLocator interface {
	ActiveTab(ctx context.Context, sender Sender) (*TabInfo, error)
}

// TabLocatorFunc adapts a function to TabLocator.
type TabLocatorFunc func(ctx context.Context, sender Sender) (*TabInfo, error)

// ActiveTab calls f.
func (f TabLocatorFunc) ActiveTab(ctx context.Context, sender Sender) (*TabInfo, error) {
	return f(ctx, sender)
}

// senderTabLocator reports the tab the sender itself is attached to.
type senderTabLocator struct{}

func (senderTabLocator) ActiveTab(_ context.Context, sender Sender) (*TabInfo, error) {
	if sender.Tab == nil {
		return nil, ErrNoActiveTab
	}
	tab := *sender.Tab
	return &tab, nil
}

// HealthStatus is the payload of a HEALTH_CHECK reply.
type HealthStatus struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// TabInfoResult is the payload of a GET_TAB_INFO reply.
type TabInfoResult struct {
	Tab *TabInfo `json:"tab"`
}

// ProcessResult is the payload of a PROCESS_DATA reply.
type ProcessResult struct {
	Processed bool            `json:"processed"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type builtinFunc func(ctx context.Context, sender Sender, env Envelope) Response

func (d *Dispatcher) defaultBuiltins() map[string]builtinFunc {
	return map[string]builtinFunc{
		TypeHealthCheck: d.handleHealthCheck,
		TypeGetTabInfo:  d.handleGetTabInfo,
		TypeProcessData: d.handleProcessData,
	}
}

func (d *Dispatcher) handleHealthCheck(_ context.Context, _ Sender, _ Envelope) Response {
	return OK(HealthStatus{Status: "healthy", Timestamp: d.now().UnixMilli()})
}

func (d *Dispatcher) handleGetTabInfo(ctx context.Context, sender Sender, _ Envelope) Response {
	tab, err := d.tabs.ActiveTab(ctx, sender)
	if err != nil {
		d.logger.Error("get_tab_info_failed", "error", err)
		return Fail("Failed to get tab info")
	}
	return OK(TabInfoResult{Tab: tab})
}

func (d *Dispatcher) handleProcessData(_ context.Context, _ Sender, env Envelope) Response {
	d.logger.Info("processing_data", "bytes", len(env.Data))
	if len(env.Data) > 0 && !json.Valid(env.Data) {
		return Fail("Failed to process data")
	}
	return OK(ProcessResult{
		Processed: true,
		Data:      env.Data,
		Timestamp: d.now().UnixMilli(),
	})
}
