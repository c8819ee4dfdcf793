package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/andrej220/configzz/internal/errs"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/sftp"
	"github.com/sony/gobreaker"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPort    = 22
	DefaultTimeout = 10 * time.Second

	maxLineSize = 1024 * 1024
)

// Target describes how to reach and authenticate against one host.
// Password wins over KeyPath when both are set.
type Target struct {
	Host           string
	Port           int
	User           string
	Password       string
	KeyPath        string
	Passphrase     string
	KnownHostsPath string
	Timeout        time.Duration
	ConnectRetries int
}

// Address returns host:port, defaulting the port to 22 unless Host already
// carries one.
func (t Target) Address() (string, error) {
	host := strings.TrimSpace(t.Host)
	if host == "" {
		return "", fmt.Errorf("ssh host is required")
	}
	if t.Port > 0 {
		return net.JoinHostPort(host, strconv.Itoa(t.Port)), nil
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}
	return net.JoinHostPort(host, strconv.Itoa(DefaultPort)), nil
}

func (t Target) authMethods() ([]ssh.AuthMethod, error) {
	if t.Password != "" {
		return []ssh.AuthMethod{ssh.Password(t.Password)}, nil
	}
	if t.KeyPath == "" {
		return nil, fmt.Errorf("ssh password or key is required")
	}
	signer, err := t.signer()
	if err != nil {
		return nil, err
	}
	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}

func (t Target) signer() (ssh.Signer, error) {
	key, err := os.ReadFile(t.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read private key: %w", err)
	}
	var signer ssh.Signer
	if t.Passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(t.Passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(key)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to parse private key: %w", err)
	}
	return signer, nil
}

func (t Target) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if strings.TrimSpace(t.KnownHostsPath) == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return knownhosts.New(t.KnownHostsPath)
}

func (t Target) clientConfig() (*ssh.ClientConfig, error) {
	if t.User == "" {
		return nil, fmt.Errorf("ssh user is required")
	}
	auth, err := t.authMethods()
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := t.hostKeyCallback()
	if err != nil {
		return nil, fmt.Errorf("known hosts: %w", err)
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ssh.ClientConfig{
		User:            t.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
		BannerCallback:  func(message string) error { return nil },
	}, nil
}

// SSHChannel is the Channel implementation over golang.org/x/crypto/ssh.
// Every Run opens a fresh session on the single client connection.
type SSHChannel struct {
	target      Target
	resilience  ResilienceConfig
	dialContext func(ctx context.Context, network, addr string) (net.Conn, error)

	client  *ssh.Client
	breaker *gobreaker.CircuitBreaker
}

var _ Channel = (*SSHChannel)(nil)

func NewSSHChannel(target Target) *SSHChannel {
	res := DefaultResilienceConfig(target.Host)
	d := &net.Dialer{}
	return &SSHChannel{
		target:      target,
		resilience:  res,
		dialContext: d.DialContext,
		breaker:     gobreaker.NewCircuitBreaker(res.CircuitBreakerSettings),
	}
}

// SSHDialer creates SSHChannels.
var SSHDialer Dialer = DialerFunc(func(target Target) Channel {
	return NewSSHChannel(target)
})

func (c *SSHChannel) Connect(ctx context.Context) error {
	if c.client != nil {
		return nil
	}
	address, err := c.target.Address()
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrRemoteExecution, err)
	}
	config, err := c.target.clientConfig()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errs.ErrRemoteExecution, address, err)
	}

	operation := func() error {
		client, err := c.dial(ctx, address, config)
		if err != nil {
			return err
		}
		c.client = client
		return nil
	}
	b := backoff.WithContext(c.resilience.dialBackOff(c.target.ConnectRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return fmt.Errorf("%w: failed to dial %s: %v", errs.ErrRemoteExecution, address, err)
	}
	return nil
}

func (c *SSHChannel) dial(ctx context.Context, address string, config *ssh.ClientConfig) (*ssh.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	conn, err := c.dialContext(dialCtx, "tcp", address)
	if err != nil {
		return nil, err
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(clientConn, chans, reqs), nil
}

func (c *SSHChannel) newSession() (*ssh.Session, error) {
	if c.client == nil {
		return nil, fmt.Errorf("%w: channel to %s is not connected", errs.ErrRemoteExecution, c.target.Host)
	}
	res, err := c.breaker.Execute(func() (any, error) {
		return c.client.NewSession()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: new session: %v", errs.ErrRemoteExecution, err)
	}
	return res.(*ssh.Session), nil
}

func (c *SSHChannel) Run(ctx context.Context, command string) ([]string, []string, error) {
	sess, err := c.newSession()
	if err != nil {
		return nil, nil, err
	}
	defer sess.Close()

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: stdout pipe: %v", errs.ErrRemoteExecution, err)
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: stderr pipe: %v", errs.ErrRemoteExecution, err)
	}

	// closing the session unblocks the scanners and Wait
	stop := context.AfterFunc(ctx, func() { sess.Close() })
	defer stop()

	if err := sess.Start(command); err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("%w: start command: %v", errs.ErrRemoteExecution, err)
	}

	var outLines, errLines []string
	var g errgroup.Group
	g.Go(func() (err error) {
		outLines, err = scanLines(stdout)
		return err
	})
	g.Go(func() (err error) {
		errLines, err = scanLines(stderr)
		return err
	})
	scanErr := g.Wait()
	waitErr := sess.Wait()

	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}
	if scanErr != nil {
		return nil, nil, fmt.Errorf("%w: read output: %v", errs.ErrRemoteExecution, scanErr)
	}
	var exitErr *ssh.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return nil, nil, fmt.Errorf("%w: %v", errs.ErrRemoteExecution, waitErr)
	}
	return outLines, errLines, nil
}

func scanLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		// the remote blocks on a full window unless the stream is read to EOF
		_, _ = io.Copy(io.Discard, r)
		return lines, err
	}
	return lines, nil
}

func (c *SSHChannel) CopyFile(ctx context.Context, localPath, remotePath string) error {
	if c.client == nil {
		return fmt.Errorf("%w: channel to %s is not connected", errs.ErrRemoteExecution, c.target.Host)
	}
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", errs.ErrInvalidTaskConfiguration, localPath, err)
	}
	defer src.Close()

	client, err := sftp.NewClient(c.client)
	if err != nil {
		return fmt.Errorf("%w: sftp: %v", errs.ErrRemoteExecution, err)
	}
	var closeOnce sync.Once
	closeClient := func() { closeOnce.Do(func() { client.Close() }) }
	defer closeClient()
	stop := context.AfterFunc(ctx, closeClient)
	defer stop()

	dst, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", errs.ErrRemoteExecution, remotePath, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: copy %s to %s: %v", errs.ErrRemoteExecution, localPath, remotePath, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", errs.ErrRemoteExecution, remotePath, err)
	}
	return nil
}

func (c *SSHChannel) Close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
