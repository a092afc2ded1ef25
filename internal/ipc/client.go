package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"wharf/internal/api"
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
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Status retrieves daemon runtime state.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon process to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Add enqueues a download by stable reference.
func (c *Client) Add(req api.AddRequest) (*AddResponse, error) {
	var resp AddResponse
	if err := c.call("Add", AddRequest{Add: req}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Search runs the hoster search pipeline.
func (c *Client) Search(req api.SearchRequest) (*SearchResponse, error) {
	var resp SearchResponse
	if err := c.call("Search", SearchRequest{Query: req}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Tasks returns tasks optionally filtered by status names.
func (c *Client) Tasks(statuses []string) (*TaskListResponse, error) {
	var resp TaskListResponse
	if err := c.call("Tasks", TaskListRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Queue returns unfinished tasks in scheduling order.
func (c *Client) Queue() (*TaskListResponse, error) {
	var resp TaskListResponse
	if err := c.call("Queue", QueueRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History returns finished tasks, newest first.
func (c *Client) History(limit int) (*TaskListResponse, error) {
	var resp TaskListResponse
	if err := c.call("History", HistoryRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Describe returns details for a single task.
func (c *Client) Describe(id int64) (*DescribeResponse, error) {
	var resp DescribeResponse
	if err := c.call("Describe", DescribeRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pause pauses the listed tasks.
func (c *Client) Pause(ids []int64) (*TaskActionResponse, error) {
	return c.taskAction("Pause", ids, false)
}

// Resume moves paused or failed tasks back into the scheduler.
func (c *Client) Resume(ids []int64) (*TaskActionResponse, error) {
	return c.taskAction("Resume", ids, false)
}

// Retry revives failed tasks.
func (c *Client) Retry(ids []int64) (*TaskActionResponse, error) {
	return c.taskAction("Retry", ids, false)
}

// Cancel stops tasks permanently.
func (c *Client) Cancel(ids []int64) (*TaskActionResponse, error) {
	return c.taskAction("Cancel", ids, false)
}

// Remove deletes tasks; deleteFiles also removes downloaded data.
func (c *Client) Remove(ids []int64, deleteFiles bool) (*TaskActionResponse, error) {
	return c.taskAction("Remove", ids, deleteFiles)
}

func (c *Client) taskAction(method string, ids []int64, deleteFiles bool) (*TaskActionResponse, error) {
	var resp TaskActionResponse
	req := TaskActionRequest{IDs: ids, DeleteFiles: deleteFiles}
	if err := c.call(method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PauseAll pauses every pausable task.
func (c *Client) PauseAll() (*CountResponse, error) {
	var resp CountResponse
	if err := c.call("PauseAll", AllTasksRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResumeAll resumes every paused or failed task.
func (c *Client) ResumeAll() (*CountResponse, error) {
	var resp CountResponse
	if err := c.call("ResumeAll", AllTasksRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearHistory removes finished tasks from the database.
func (c *Client) ClearHistory(completedOnly bool) (*CountResponse, error) {
	var resp CountResponse
	if err := c.call("ClearHistory", ClearHistoryRequest{CompletedOnly: completedOnly}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log events from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.call("LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
