package taskwarrior

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os/exec"

	"github.com/pkg/errors"
)

type Client struct {
	// Binary is the task executable, "task" when empty.
	Binary string
}

func NewClient() *Client {
	return &Client{Binary: "task"}
}

func (c *Client) command(ctx context.Context, args ...string) *exec.Cmd {
	bin := c.Binary
	if bin == "" {
		bin = "task"
	}
	return exec.CommandContext(ctx, bin, append(args, "rc.hooks=0")...)
}

func (c *Client) GetTasks(ctx context.Context, filter []string) ([]Task, error) {
	args := append(append([]string{}, filter...), "export")
	output, err := c.command(ctx, args...).Output()
	if err != nil {
		return nil, commandError(err)
	}

	var tasks []Task
	if err := json.Unmarshal(output, &tasks); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal taskwarrior output")
	}
	return tasks, nil
}

// Import feeds tasks to "task import". Tasks whose UUID already exists are
// modified in place.
func (c *Client) Import(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := WriteTasks(&buf, tasks); err != nil {
		return err
	}
	cmd := c.command(ctx, "import", "-")
	cmd.Stdin = &buf
	if _, err := cmd.Output(); err != nil {
		return commandError(err)
	}
	return nil
}

func commandError(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return errors.Errorf("taskwarrior command failed: exit code %d, %s, stderr: %s",
			exitErr.ExitCode(), err, exitErr.Stderr)
	}
	return errors.Wrap(err, "taskwarrior command failed")
}

// WriteTasks encodes tasks as the JSON array "task import" reads.
func WriteTasks(w io.Writer, tasks []Task) error {
	if tasks == nil {
		tasks = []Task{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tasks); err != nil {
		return errors.Wrap(err, "failed to encode tasks")
	}
	return nil
}

// ParseTask parses a single task JSON from an io.Reader
func (c *Client) ParseTask(r io.Reader) (Task, error) {
	var task Task
	if err := json.NewDecoder(r).Decode(&task); err != nil {
		return Task{}, errors.Wrap(err, "failed to decode task json")
	}
	return task, nil
}

// ParseTasks parses a stream of task JSON objects, one after the other.
func (c *Client) ParseTasks(r io.Reader) ([]Task, error) {
	var tasks []Task
	decoder := json.NewDecoder(r)
	for {
		var task Task
		if err := decoder.Decode(&task); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrap(err, "failed to decode task json")
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}
