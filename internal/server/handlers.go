package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"zeke-gateway/internal/models"
	"zeke-gateway/internal/tasks"
)

type healthResponse struct {
	Status     string `json:"status"`
	Service    string `json:"service"`
	GPUEnabled bool   `json:"gpu_enabled"`
}

// handleHealth reports the advertised service state. The gpu_enabled flag
// is static configuration, not a live hardware probe.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:     "healthy",
		Service:    s.cfg.Server.ServiceName,
		GPUEnabled: s.cfg.Server.GPUEnabled(),
	})
}

type modelList struct {
	Object string             `json:"object"`
	Data   []models.ModelInfo `json:"data"`
}

func (s *Server) handleModels(c echo.Context) error {
	data := s.router.Models()
	if data == nil {
		data = []models.ModelInfo{}
	}
	return c.JSON(http.StatusOK, modelList{Object: "list", Data: data})
}

func (s *Server) handleChatCompletions(c echo.Context) error {
	var req chatCompletionRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}

	resp, err := s.router.Chat(c.Request().Context(), req.toCanonical())
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCompletions(c echo.Context) error {
	var req completionRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}

	resp, err := s.router.Chat(c.Request().Context(), req.toCanonical())
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, resp.ToCompletion())
}

// handleTask builds the chat request for one task kind and wraps the
// outcome in the task envelope. Provider failures ride inside an error
// envelope with HTTP 200; only malformed request bodies fail the request.
func (s *Server) handleTask(kind tasks.Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req tasks.Request
		if err := decodeRequestBody(c, &req); err != nil {
			return err
		}

		chatReq, err := tasks.Build(kind, req, s.cfg.Server.DefaultModel)
		if err != nil {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: err.Error(),
				Code:    "invalid_request_error",
			}
		}

		resp, err := s.router.Chat(c.Request().Context(), chatReq)
		if err != nil {
			return c.JSON(http.StatusOK, tasks.WrapError(kind, err))
		}

		return c.JSON(http.StatusOK, tasks.Wrap(kind, resp))
	}
}
