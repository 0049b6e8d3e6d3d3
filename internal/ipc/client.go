package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start requests a discovery cycle.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartResponse](c, "Start", StartRequest{})
}

// Stop requests a cooperative stop of the running cycle.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// ResetFailed requeues every failed task.
func (c *Client) ResetFailed() (*ResetFailedResponse, error) {
	return call[ResetFailedResponse](c, "ResetFailed", ResetFailedRequest{})
}

// Status retrieves the current snapshot.
func (c *Client) Status(includeTasks bool) (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{IncludeTasks: includeTasks})
}

// TaskList returns tasks optionally filtered by stage.
func (c *Client) TaskList(stages []string) (*TaskListResponse, error) {
	return call[TaskListResponse](c, "TaskList", TaskListRequest{Stages: stages})
}

// TaskShow returns one task.
func (c *Client) TaskShow(id string) (*TaskShowResponse, error) {
	return call[TaskShowResponse](c, "TaskShow", TaskShowRequest{ID: id})
}

// ClearFinished removes completed and skipped tasks.
func (c *Client) ClearFinished() (*ClearFinishedResponse, error) {
	return call[ClearFinishedResponse](c, "ClearFinished", ClearFinishedRequest{})
}

// DedupList returns the dedup index contents.
func (c *Client) DedupList() (*DedupListResponse, error) {
	return call[DedupListResponse](c, "DedupList", DedupListRequest{})
}

// DedupRecord marks an identifier as delivered.
func (c *Client) DedupRecord(id string) (*DedupRecordResponse, error) {
	return call[DedupRecordResponse](c, "DedupRecord", DedupRecordRequest{ID: id})
}

// DatabaseHealth retrieves task store diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	return call[DatabaseHealthResponse](c, "DatabaseHealth", DatabaseHealthRequest{})
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}

// Shutdown asks the daemon process to exit.
func (c *Client) Shutdown() (*ShutdownResponse, error) {
	return call[ShutdownResponse](c, "Shutdown", ShutdownRequest{})
}
