package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/andrej220/configzz/internal/errs"
	"github.com/andrej220/configzz/internal/inventory"
	"github.com/andrej220/configzz/internal/lg"
	"github.com/andrej220/configzz/internal/task"
	"github.com/andrej220/configzz/pkg/config"
	"github.com/andrej220/configzz/pkg/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeChannel answers every command from respond and records what it ran.
type fakeChannel struct {
	target     executor.Target
	connectErr error
	respond    func(command string) ([]string, []string, error)
	connects   int
	closed     int
	commands   []string
}

func (c *fakeChannel) Connect(ctx context.Context) error {
	c.connects++
	return c.connectErr
}

func (c *fakeChannel) Run(ctx context.Context, command string) ([]string, []string, error) {
	c.commands = append(c.commands, command)
	if c.respond == nil {
		return nil, nil, nil
	}
	return c.respond(command)
}

func (c *fakeChannel) CopyFile(ctx context.Context, localPath, remotePath string) error {
	c.commands = append(c.commands, "copy "+localPath+" "+remotePath)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed++
	return nil
}

// fakeDialer hands out one fakeChannel per host, configured by setup.
type fakeDialer struct {
	setup    func(ch *fakeChannel)
	channels []*fakeChannel
}

func (d *fakeDialer) NewChannel(target executor.Target) executor.Channel {
	ch := &fakeChannel{target: target}
	if d.setup != nil {
		d.setup(ch)
	}
	d.channels = append(d.channels, ch)
	return ch
}

func (d *fakeDialer) channel(host string) *fakeChannel {
	for _, ch := range d.channels {
		if ch.target.Host == host {
			return ch
		}
	}
	return nil
}

func mustTasks(t *testing.T, doc string) []task.Task {
	t.Helper()
	tasks, err := task.ParseTasks([]byte(doc))
	require.NoError(t, err)
	return tasks
}

func host(name string) inventory.Host {
	return inventory.Host{
		Name: name,
		FQDN: name + ".example.com",
		SSH:  &config.Credentials{Username: "root", Password: "pw"},
	}
}

// missingPackages reports every package as not installed and every service as running.
func missingPackages(command string) ([]string, []string, error) {
	switch {
	case strings.HasPrefix(command, "dpkg-query"):
		return []string{"0"}, nil, nil
	case strings.HasSuffix(command, " status"):
		return []string{"Active: active (running)"}, nil, nil
	}
	return nil, nil, nil
}

const twoTasks = `
- package: {names: [nginx], state: present}
- service: {name: nginx, state: restarted}
`

func TestRunAppliesTasksInOrderPerHost(t *testing.T) {
	dialer := &fakeDialer{setup: func(ch *fakeChannel) { ch.respond = missingPackages }}
	r := New(dialer, nil, lg.Discard)

	summary, err := r.Run(context.Background(), []inventory.Host{host("web1"), host("web2")}, mustTasks(t, twoTasks))
	require.NoError(t, err)

	require.Len(t, dialer.channels, 2)
	for _, ch := range dialer.channels {
		assert.Equal(t, 1, ch.connects)
		assert.Equal(t, 1, ch.closed)
		assert.Equal(t, []string{
			"dpkg-query -W -f='${Status}' 'nginx' | grep -c 'ok installed'",
			"export DEBIAN_FRONTEND=noninteractive && apt-get update && apt-get -yq install 'nginx'",
			"service 'nginx' status",
			"service 'nginx' restart",
		}, ch.commands)
	}

	assert.NotEmpty(t, summary.RunID.String())
	assert.Equal(t, []HostSummary{
		{Host: "web1", Status: StatusDone, Changed: 2},
		{Host: "web2", Status: StatusDone, Changed: 2},
	}, summary.Hosts)
}

func TestRunSkipsHostWithoutSSHSettings(t *testing.T) {
	dialer := &fakeDialer{}
	bare := inventory.Host{Name: "web1", FQDN: "web1.example.com"}

	summary, err := New(dialer, nil, lg.Discard).Run(context.Background(), []inventory.Host{bare}, mustTasks(t, twoTasks))
	require.NoError(t, err)

	assert.Empty(t, dialer.channels)
	require.Len(t, summary.Hosts, 1)
	assert.Equal(t, StatusSkipped, summary.Hosts[0].Status)
	assert.ErrorIs(t, summary.Hosts[0].Err, inventory.ErrNoCredentials)
}

func TestRunSkipsHostWithoutSecret(t *testing.T) {
	dialer := &fakeDialer{}
	noSecret := inventory.Host{Name: "web1", FQDN: "web1", SSH: &config.Credentials{Username: "root"}}

	summary, err := New(dialer, nil, lg.Discard).Run(context.Background(), []inventory.Host{noSecret, host("web2")}, nil)
	require.NoError(t, err)

	require.Len(t, dialer.channels, 1)
	assert.Equal(t, "web2.example.com", dialer.channels[0].target.Host)
	assert.Equal(t, StatusSkipped, summary.Hosts[0].Status)
	assert.Equal(t, StatusDone, summary.Hosts[1].Status)
}

func TestRunUsesDefaultCredentials(t *testing.T) {
	dialer := &fakeDialer{}
	defaults := &config.Credentials{Username: "deploy", Key: "/keys/id", Port: 2222}
	bare := inventory.Host{Name: "web1", FQDN: "web1.example.com"}

	_, err := New(dialer, defaults, lg.Discard).Run(context.Background(), []inventory.Host{bare}, nil)
	require.NoError(t, err)

	require.Len(t, dialer.channels, 1)
	assert.Equal(t, executor.Target{Host: "web1.example.com", Port: 2222, User: "deploy", KeyPath: "/keys/id"}, dialer.channels[0].target)
}

func TestRunUnreachableHostIsSkipped(t *testing.T) {
	dialer := &fakeDialer{setup: func(ch *fakeChannel) {
		if ch.target.Host == "web1.example.com" {
			ch.connectErr = fmt.Errorf("%w: dial tcp: connection refused", errs.ErrRemoteExecution)
		}
	}}

	summary, err := New(dialer, nil, lg.Discard).Run(context.Background(), []inventory.Host{host("web1"), host("web2")}, mustTasks(t, twoTasks))
	require.NoError(t, err)

	assert.Empty(t, dialer.channel("web1.example.com").commands)
	assert.NotEmpty(t, dialer.channel("web2.example.com").commands)
	assert.Equal(t, StatusUnreachable, summary.Hosts[0].Status)
	assert.Equal(t, StatusDone, summary.Hosts[1].Status)
}

func TestRunInvalidTaskAbortsHostOnly(t *testing.T) {
	dialer := &fakeDialer{setup: func(ch *fakeChannel) { ch.respond = missingPackages }}
	tasks := mustTasks(t, `
- service: {name: nginx, state: reloaded}
- package: {names: [nginx], state: present}
`)

	summary, err := New(dialer, nil, lg.Discard).Run(context.Background(), []inventory.Host{host("web1"), host("web2")}, tasks)
	require.NoError(t, err)

	require.Len(t, dialer.channels, 2)
	for i, ch := range dialer.channels {
		assert.Empty(t, ch.commands)
		assert.Equal(t, 1, ch.closed)
		assert.Equal(t, StatusAborted, summary.Hosts[i].Status)
		assert.ErrorIs(t, summary.Hosts[i].Err, errs.ErrInvalidTaskConfiguration)
	}
}

func TestRunRemoteErrorAbortsHostOnly(t *testing.T) {
	dialer := &fakeDialer{setup: func(ch *fakeChannel) {
		if ch.target.Host == "web1.example.com" {
			ch.respond = func(string) ([]string, []string, error) {
				return nil, nil, fmt.Errorf("%w: session closed", errs.ErrRemoteExecution)
			}
			return
		}
		ch.respond = missingPackages
	}}

	summary, err := New(dialer, nil, lg.Discard).Run(context.Background(), []inventory.Host{host("web1"), host("web2")}, mustTasks(t, twoTasks))
	require.NoError(t, err)

	assert.Len(t, dialer.channel("web1.example.com").commands, 1)
	assert.Len(t, dialer.channel("web2.example.com").commands, 4)
	assert.Equal(t, StatusAborted, summary.Hosts[0].Status)
	assert.Equal(t, StatusDone, summary.Hosts[1].Status)
}

func TestRunSoftFailuresAreCounted(t *testing.T) {
	dialer := &fakeDialer{setup: func(ch *fakeChannel) {
		ch.respond = func(command string) ([]string, []string, error) {
			if strings.Contains(command, "apt-get") {
				return nil, []string{"E: Unable to locate package nginx"}, nil
			}
			return missingPackages(command)
		}
	}}

	summary, err := New(dialer, nil, lg.Discard).Run(context.Background(), []inventory.Host{host("web1")}, mustTasks(t, twoTasks))
	require.NoError(t, err)
	assert.Equal(t, HostSummary{Host: "web1", Status: StatusDone, Changed: 1, Failed: 1}, summary.Hosts[0])
}

func TestRunUnclassifiedErrorStopsRun(t *testing.T) {
	boom := errors.New("boom")
	dialer := &fakeDialer{setup: func(ch *fakeChannel) {
		ch.respond = func(string) ([]string, []string, error) { return nil, nil, boom }
	}}

	summary, err := New(dialer, nil, lg.Discard).Run(context.Background(), []inventory.Host{host("web1"), host("web2")}, mustTasks(t, twoTasks))
	assert.ErrorIs(t, err, boom)
	require.Len(t, dialer.channels, 1)
	assert.Equal(t, 1, dialer.channels[0].closed)
	require.Len(t, summary.Hosts, 1)
	assert.Equal(t, StatusAborted, summary.Hosts[0].Status)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dialer := &fakeDialer{}

	_, err := New(dialer, nil, lg.Discard).Run(ctx, []inventory.Host{host("web1")}, mustTasks(t, twoTasks))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dialer.channels)
}

func TestRunLogsRecapWithRunID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	dialer := &fakeDialer{setup: func(ch *fakeChannel) { ch.respond = missingPackages }}

	summary, err := New(dialer, nil, lg.Wrap(zap.New(core))).Run(context.Background(), []inventory.Host{host("web1")}, mustTasks(t, twoTasks))
	require.NoError(t, err)

	recaps := logs.FilterMessage("recap").All()
	require.Len(t, recaps, 1)
	fields := recaps[0].ContextMap()
	assert.Equal(t, summary.RunID.String(), fields["run_id"])
	assert.Equal(t, "web1", fields["host"])
	assert.Equal(t, "done", fields["status"])
	assert.EqualValues(t, 2, fields["changed"])

	for _, entry := range logs.FilterMessage("task step").All() {
		assert.Equal(t, "web1", entry.ContextMap()["host"])
		assert.Contains(t, entry.ContextMap(), "task")
	}

	finished := logs.FilterMessage("task finished").All()
	require.Len(t, finished, 2)
	assert.EqualValues(t, 2, finished[0].ContextMap()["line"])
	assert.EqualValues(t, 3, finished[1].ContextMap()["line"])
	assert.Equal(t, "changed", finished[0].ContextMap()["result"])

	connected := logs.FilterMessage("connected").All()
	require.Len(t, connected, 1)
	assert.Equal(t, false, connected[0].ContextMap()["host_key_checked"])
	assert.Len(t, logs.FilterMessage("host finished").All(), 1)
}

func TestRunLogsTaskConfigAtDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	dialer := &fakeDialer{setup: func(ch *fakeChannel) { ch.respond = missingPackages }}

	_, err := New(dialer, nil, lg.Wrap(zap.New(core))).Run(context.Background(), []inventory.Host{host("web1")}, mustTasks(t, twoTasks))
	require.NoError(t, err)

	configs := logs.FilterMessage("task config").All()
	require.Len(t, configs, 2)
	assert.Equal(t, "package", configs[0].ContextMap()["kind"])
	assert.NotNil(t, configs[0].ContextMap()["config"])
}
