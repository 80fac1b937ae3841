package vlc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultCommandTimeout = 2 * time.Second

var prompt = []byte("> ")

// rcClient speaks VLC's line-oriented "rc" remote control protocol over a
// unix socket. Every command is answered by zero or more output lines
// followed by a "> " prompt.
type rcClient struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// dialRC connects to the rc socket, retrying until VLC has created it or ctx
// is done, and consumes the greeting banner.
func dialRC(ctx context.Context, sock string) (*rcClient, error) {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "unix", sock)
		if err == nil {
			c := &rcClient{conn: conn, r: bufio.NewReader(conn)}
			if _, err := c.readReply(ctx); err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("rc greeting: %w", err)
			}
			return c, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rc socket %s not ready: %w", sock, errors.Join(ctx.Err(), err))
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// do sends one command and returns its output without the prompt.
func (c *rcClient) do(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(deadline(ctx)); err != nil {
		return "", err
	}
	if _, err := c.conn.Write([]byte(cmd + "\n")); err != nil {
		return "", fmt.Errorf("rc %q: %w", cmd, err)
	}
	out, err := c.readReply(ctx)
	if err != nil {
		return "", fmt.Errorf("rc %q: %w", cmd, err)
	}
	return out, nil
}

// intValue sends a command whose last output line is an integer.
func (c *rcClient) intValue(ctx context.Context, cmd string) (int, error) {
	out, err := c.do(ctx, cmd)
	if err != nil {
		return 0, err
	}
	line := lastLine(out)
	n, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("rc %q: unexpected reply %q", cmd, line)
	}
	return n, nil
}

func (c *rcClient) readReply(ctx context.Context) (string, error) {
	if err := c.conn.SetReadDeadline(deadline(ctx)); err != nil {
		return "", err
	}
	var buf []byte
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			return "", err
		}
		buf = append(buf, b)
		if atPrompt(buf) {
			return strings.TrimSpace(string(buf[:len(buf)-len(prompt)])), nil
		}
	}
}

func (c *rcClient) Close() error {
	return c.conn.Close()
}

// atPrompt reports whether buf ends with a prompt at the start of a line.
func atPrompt(buf []byte) bool {
	if !bytes.HasSuffix(buf, prompt) {
		return false
	}
	i := len(buf) - len(prompt)
	return i == 0 || buf[i-1] == '\n'
}

// lastLine returns the last non-empty line; asynchronous "status change"
// notices may precede the actual answer.
func lastLine(out string) string {
	lines := strings.Split(strings.ReplaceAll(out, "\r", ""), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

func deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(defaultCommandTimeout)
}
