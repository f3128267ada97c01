package core

import (
	"context"

	"pkt.systems/attackdeck/schema"
)

// Service is the transport-agnostic API for managing attack tabs.
type Service interface {
	OpenTab(ctx context.Context, req schema.OpenTabRequest) (schema.OpenTabResponse, error)
	CloseTab(ctx context.Context, req schema.CloseTabRequest) (schema.CloseTabResponse, error)
	CloseAllTabs(ctx context.Context, req schema.CloseAllTabsRequest) (schema.CloseAllTabsResponse, error)
	ListTabs(ctx context.Context, req schema.ListTabsRequest) (schema.ListTabsResponse, error)
	ActivateTab(ctx context.Context, req schema.ActivateTabRequest) (schema.ActivateTabResponse, error)
	SelectTool(ctx context.Context, req schema.SelectToolRequest) (schema.SelectToolResponse, error)
	SelectAttack(ctx context.Context, req schema.SelectAttackRequest) (schema.SelectAttackResponse, error)
	SelectCategory(ctx context.Context, req schema.SelectCategoryRequest) (schema.SelectCategoryResponse, error)
	SetParameters(ctx context.Context, req schema.SetParametersRequest) (schema.SetParametersResponse, error)
	SetCustomCommand(ctx context.Context, req schema.SetCustomCommandRequest) (schema.SetCustomCommandResponse, error)
	SetViewMode(ctx context.Context, req schema.SetViewModeRequest) (schema.SetViewModeResponse, error)
	Execute(ctx context.Context, req schema.ExecuteRequest) (schema.ExecuteResponse, error)
	Stop(ctx context.Context, req schema.StopRequest) (schema.StopResponse, error)
	GetBuffer(ctx context.Context, req schema.GetBufferRequest) (schema.GetBufferResponse, error)
	ExportTabs(ctx context.Context, req schema.ExportTabsRequest) (schema.ExportTabsResponse, error)
	ImportTabs(ctx context.Context, req schema.ImportTabsRequest) (schema.ImportTabsResponse, error)
	// Route delivers an inbound gateway message. It reports whether the
	// message matched an open tab.
	Route(ctx context.Context, msg schema.InboundMessage) bool
	// Close detaches from the gateway and disarms readiness watchdogs.
	Close()
}
