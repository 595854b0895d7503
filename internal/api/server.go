package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/tabwarden/internal/host"
	"github.com/dgnsrekt/tabwarden/internal/monitor"
	"github.com/dgnsrekt/tabwarden/internal/relay"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	Sessions() []monitor.Session
	Session(tabID string) (monitor.Session, bool)
	TabActivated(ctx context.Context, tabID, url string) error
	TabURLUpdated(ctx context.Context, tabID, url string) error
	ListTabs(ctx context.Context) ([]host.Tab, error)
}

type tabIDInput struct {
	TabID string `path:"tab_id" doc:"Browser tab (CDP target) id"`
}

// NewServer builds the control API. A nil broker disables the event stream.
func NewServer(svc Service, broker *relay.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("tabwarden API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if broker != nil {
		router.Get("/api/v1/events", relay.SSEHandler(broker))
	}

	registerHealthHandlers(api)
	registerSessionHandlers(api, svc)
	registerTabHandlers(api, svc)

	return router
}

func registerHealthHandlers(api huma.API) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *host.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case host.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case host.CodeTabNotFound:
			return huma.Error404NotFound(coded.Message)
		case host.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return huma.Error504GatewayTimeout(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}
