package users

import (
	"context"

	"sidebridge/internal/bridge"
)

// Client is the surface-side facade over USERS_ messages.
type Client struct {
	caller bridge.Caller
}

func NewClient(caller bridge.Caller) *Client {
	return &Client{caller: caller}
}

func (c *Client) List(ctx context.Context) ([]User, error) {
	var out []User
	err := c.call(ctx, TypeGetAll, nil, &out)
	return out, err
}

func (c *Client) Get(ctx context.Context, id string) (User, error) {
	var out User
	err := c.call(ctx, TypeGetByID, idRequest{ID: id}, &out)
	return out, err
}

func (c *Client) Create(ctx context.Context, req CreateUserRequest) (User, error) {
	var out User
	err := c.call(ctx, TypeCreate, req, &out)
	return out, err
}

func (c *Client) Update(ctx context.Context, req UpdateUserRequest) (User, error) {
	var out User
	err := c.call(ctx, TypeUpdate, req, &out)
	return out, err
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.call(ctx, TypeDelete, idRequest{ID: id}, nil)
}

func (c *Client) call(ctx context.Context, msgType string, payload, out any) error {
	resp := c.caller.Call(ctx, msgType, payload)
	if err := resp.Err(); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.DecodeData(out)
}
