package tasks

import (
	"context"

	"sidebridge/internal/bridge"
)

// Client is the surface-side facade over TASKS_ messages.
type Client struct {
	caller bridge.Caller
}

func NewClient(caller bridge.Caller) *Client {
	return &Client{caller: caller}
}

func (c *Client) List(ctx context.Context, q TaskQuery) ([]Task, error) {
	var tasks []Task
	err := c.call(ctx, TypeGetAll, q, &tasks)
	return tasks, err
}

func (c *Client) Get(ctx context.Context, id string) (Task, error) {
	var task Task
	err := c.call(ctx, TypeGetByID, IDRequest{ID: id}, &task)
	return task, err
}

func (c *Client) Create(ctx context.Context, req CreateTaskRequest) (Task, error) {
	var task Task
	err := c.call(ctx, TypeCreate, req, &task)
	return task, err
}

func (c *Client) Update(ctx context.Context, req UpdateTaskRequest) (Task, error) {
	var task Task
	err := c.call(ctx, TypeUpdate, req, &task)
	return task, err
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.call(ctx, TypeDelete, IDRequest{ID: id}, nil)
}

func (c *Client) Toggle(ctx context.Context, id string) (Task, error) {
	var task Task
	err := c.call(ctx, TypeToggle, IDRequest{ID: id}, &task)
	return task, err
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
