// Package jobsub submits merge jobs by running jobsub_submit.
package jobsub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/yungbote/samerge/internal/batch"
	"github.com/yungbote/samerge/internal/platform/ctxutil"
	"github.com/yungbote/samerge/internal/platform/logger"
)

const DefaultTimeout = 600 * time.Second

// waitDelay bounds how long Run waits for output pipes after the process
// group has been killed.
const waitDelay = 2 * time.Second

type Client struct {
	log     *logger.Logger
	binary  string
	timeout time.Duration
}

type Option func(*Client)

func WithBinary(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.binary = path
		}
	}
}

// WithTimeout bounds a single submission. The child is killed past it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func New(log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		log:     log.With("service", "Jobsub"),
		binary:  "jobsub_submit",
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Args(req batch.Request) []string {
	args := append([]string{}, req.Options...)
	if req.Archive != "" {
		args = append(args, "--tar-file-name", "dropbox://"+req.Archive)
	}
	args = append(args, req.Script)
	return append(args, req.ScriptArgs...)
}

func (c *Client) Submit(ctx context.Context, req batch.Request) (batch.Result, error) {
	ctx = ctxutil.Default(ctx)
	if req.Script == "" {
		return batch.Result{}, fmt.Errorf("jobsub: script required")
	}
	log := c.log
	if rd := ctxutil.GetRunData(ctx); rd != nil {
		log = log.With("run_id", rd.RunID)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := c.Args(req)
	cmd := exec.CommandContext(ctx, c.binary, args...)
	// jobsub_submit is a wrapper script; its children share stdout and must
	// die with it or Run blocks on the pipe.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return killGroup(cmd) }
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Warn("jobsub_submit timed out", "timeout", c.timeout)
		return batch.Result{Output: stdout.String()}, fmt.Errorf("jobsub_submit killed after %s: %w", c.timeout, context.DeadlineExceeded)
	}
	if err != nil {
		return batch.Result{Output: stdout.String()}, fmt.Errorf("jobsub_submit failed: %w; stderr=%s", err, strings.TrimSpace(stderr.String()))
	}

	jobID, clusterID, err := ParseJobID(stdout.String())
	if err != nil {
		return batch.Result{Output: stdout.String()}, err
	}
	log.Info("submitted batch job", "job_id", jobID, "elapsed", elapsed)
	return batch.Result{JobID: jobID, ClusterID: clusterID, Output: stdout.String()}, nil
}

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return cmd.Process.Kill()
	}
	return nil
}

// ParseJobID extracts the job id from jobsub_submit output. Both the legacy
// "JobsubJobId of first job: <id>" and jobsub_lite's "Use job id <id> to
// retrieve output" forms are understood. The cluster id drops the process
// number: 123.0@host becomes 123@host.
func ParseJobID(out string) (string, string, error) {
	var jobID string
	for _, line := range strings.Split(out, "\n") {
		words := strings.Fields(line)
		switch {
		case strings.Contains(line, "JobsubJobId") && len(words) > 0:
			jobID = words[len(words)-1]
		case strings.Contains(line, "Use job id") && len(words) > 3:
			jobID = words[3]
		}
	}
	if jobID == "" {
		return "", "", batch.ErrNoJobID
	}
	parts := strings.Split(jobID, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: malformed id %q", batch.ErrNoJobID, jobID)
	}
	cluster := strings.SplitN(parts[0], ".", 2)[0]
	return jobID, cluster + "@" + parts[1], nil
}
