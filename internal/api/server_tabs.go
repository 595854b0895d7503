package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/tabwarden/internal/host"
	"github.com/dgnsrekt/tabwarden/internal/monitor"
)

func registerTabHandlers(api huma.API, svc Service) {
	type tabsOutput struct {
		Body struct {
			Tabs []host.Tab `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List open browser tabs", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*tabsOutput, error) {
			tabs, err := svc.ListTabs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &tabsOutput{}
			out.Body.Tabs = tabs
			return out, nil
		})

	type eventOutput struct {
		Body monitor.Session
	}
	sessionAfter := func(tabID string) (*eventOutput, error) {
		s, ok := svc.Session(tabID)
		if !ok {
			// Ignored URLs leave no session behind.
			return &eventOutput{Body: monitor.Session{TabID: tabID}}, nil
		}
		return &eventOutput{Body: s}, nil
	}

	huma.Register(api, huma.Operation{OperationID: "activate-tab", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/activate", Summary: "Report tab activation", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct {
			TabID string `path:"tab_id"`
			Body  struct {
				URL string `json:"url,omitempty" required:"false" doc:"Current URL; looked up from the browser when omitted"`
			} `required:"false"`
		}) (*eventOutput, error) {
			if err := svc.TabActivated(ctx, input.TabID, input.Body.URL); err != nil {
				return nil, mapErr(err)
			}
			return sessionAfter(input.TabID)
		})

	huma.Register(api, huma.Operation{OperationID: "navigate-tab", Method: http.MethodPost, Path: "/api/v1/tabs/{tab_id}/navigate", Summary: "Report tab URL update", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct {
			TabID string `path:"tab_id"`
			Body  struct {
				URL string `json:"url" required:"false"`
			}
		}) (*eventOutput, error) {
			if err := svc.TabURLUpdated(ctx, input.TabID, input.Body.URL); err != nil {
				return nil, mapErr(err)
			}
			return sessionAfter(input.TabID)
		})
}
