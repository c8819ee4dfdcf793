package executor

import (
	"context"
)

// Executor runs a single shell command on the connected host and returns
// its output as line slices. A command that runs and exits non-zero is not
// an error; err is reserved for transport failures.
type Executor interface {
	Run(ctx context.Context, command string) (stdoutLines, stderrLines []string, err error)
}

// Copier transfers a local file to a path on the connected host.
type Copier interface {
	CopyFile(ctx context.Context, localPath, remotePath string) error
}

// Channel is one host's command channel. It is opened once before the first
// task of a host and closed after the last one; it is never shared between hosts.
type Channel interface {
	Executor
	Copier
	Connect(ctx context.Context) error
	Close() error
}

// Dialer creates an unconnected Channel for a target.
type Dialer interface {
	NewChannel(target Target) Channel
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(target Target) Channel

func (f DialerFunc) NewChannel(target Target) Channel { return f(target) }
