// Package users forwards USERS_ messages to the remote users API.
package users

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"sidebridge/internal/bridge"
	"sidebridge/internal/services/apiclient"
)

const (
	Prefix = "USERS_"

	TypeGetAll  = "USERS_GET_ALL"
	TypeGetByID = "USERS_GET_BY_ID"
	TypeCreate  = "USERS_CREATE"
	TypeUpdate  = "USERS_UPDATE"
	TypeDelete  = "USERS_DELETE"
)

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type CreateUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// UpdateUserRequest carries the id for routing; only Name and Email are sent upstream.
type UpdateUserRequest struct {
	ID    string  `json:"id"`
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

type updateBody struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

type idRequest struct {
	ID string `json:"id"`
}

type Service struct {
	api    *apiclient.Client
	logger *slog.Logger
}

func NewService(api *apiclient.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, logger: logger}
}

// HandleMessage implements bridge.Handler.
func (s *Service) HandleMessage(ctx context.Context, msgType string, data json.RawMessage) (bridge.Response, error) {
	switch msgType {
	case TypeGetAll:
		s.logger.Info("fetching_users")
		raw, status, err := s.api.Do(ctx, http.MethodGet, "/users", nil)
		return s.api.Respond("users_fetch_failed", raw, status, err), nil

	case TypeGetByID:
		var req idRequest
		if err := apiclient.Decode(data, &req); err != nil {
			return bridge.Response{}, err
		}
		s.logger.Info("fetching_user", "id", req.ID)
		raw, status, err := s.api.Do(ctx, http.MethodGet, "/users/"+url.PathEscape(req.ID), nil)
		return s.api.Respond("user_fetch_failed", raw, status, err), nil

	case TypeCreate:
		var req CreateUserRequest
		if err := apiclient.Decode(data, &req); err != nil {
			return bridge.Response{}, err
		}
		s.logger.Info("creating_user", "email", req.Email)
		raw, status, err := s.api.Do(ctx, http.MethodPost, "/users", req)
		return s.api.Respond("user_create_failed", raw, status, err), nil

	case TypeUpdate:
		var req UpdateUserRequest
		if err := apiclient.Decode(data, &req); err != nil {
			return bridge.Response{}, err
		}
		s.logger.Info("updating_user", "id", req.ID)
		body := updateBody{Name: req.Name, Email: req.Email}
		raw, status, err := s.api.Do(ctx, http.MethodPut, "/users/"+url.PathEscape(req.ID), body)
		return s.api.Respond("user_update_failed", raw, status, err), nil

	case TypeDelete:
		var req idRequest
		if err := apiclient.Decode(data, &req); err != nil {
			return bridge.Response{}, err
		}
		s.logger.Info("deleting_user", "id", req.ID)
		_, status, err := s.api.Do(ctx, http.MethodDelete, "/users/"+url.PathEscape(req.ID), nil)
		return s.api.Respond("user_delete_failed", nil, status, err), nil

	default:
		return bridge.Failf("Unknown users operation: %s", msgType), nil
	}
}
