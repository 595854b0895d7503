package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/tabwarden/internal/monitor"
)

func registerSessionHandlers(api huma.API, svc Service) {
	type listOutput struct {
		Body struct {
			Sessions []monitor.Session `json:"sessions"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-sessions", Method: http.MethodGet, Path: "/api/v1/sessions", Summary: "List monitored tabs", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *struct{}) (*listOutput, error) {
			out := &listOutput{}
			out.Body.Sessions = svc.Sessions()
			return out, nil
		})

	type sessionOutput struct {
		Body monitor.Session
	}
	huma.Register(api, huma.Operation{OperationID: "get-session", Method: http.MethodGet, Path: "/api/v1/sessions/{tab_id}", Summary: "Get one monitored tab", Tags: []string{"Sessions"}},
		func(ctx context.Context, input *tabIDInput) (*sessionOutput, error) {
			s, ok := svc.Session(input.TabID)
			if !ok {
				return nil, huma.Error404NotFound("session not found")
			}
			return &sessionOutput{Body: s}, nil
		})
}
