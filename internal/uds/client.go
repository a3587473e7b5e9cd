package uds

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client performs one-shot command round trips against the session socket.
// Each call dials, sends a single framed request, and reads the response.
type Client struct {
	socketPath string
	timeout    time.Duration
}

func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    30 * time.Second,
	}
}

func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// CommandError is a rejection returned by the session daemon. Details carries
// the structured payload attached to some codes, e.g. the violation list of a
// VALIDATION_ERROR or the conflict report of CONFIRM_REQUIRED.
type CommandError struct {
	Code    string
	Message string
	Details json.RawMessage
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Call sends one command and decodes the success payload into out; pass a nil
// out when the caller has no use for the payload. A daemon rejection is
// returned as a *CommandError so callers can branch on the code.
func (c *Client) Call(command string, params, out any) error {
	req, err := NewRequest(command, params)
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return fmt.Errorf(
			"failed to connect to session at %s: %w\n"+
				"Is the session running? Start it with: shiftflow session",
			c.socketPath, err,
		)
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if err := WriteFrame(conn, req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	var resp Response
	if err := ReadFrame(conn, &resp); err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if !resp.Success {
		if resp.Error == nil {
			return fmt.Errorf("malformed response: failure without error detail")
		}
		return &CommandError{
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
			Details: resp.Error.Details,
		}
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("decode response payload: %w", err)
		}
	}
	return nil
}
