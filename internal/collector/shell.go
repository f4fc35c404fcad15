package collector

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/unifi-insight/reporter/internal/model"
)

// defaultLogPaths lists device log files by controller flavor. The
// first path that yields output wins; the rest are backup locations
// across firmware generations.
var defaultLogPaths = []string{
	"/var/log/messages",
	"/var/log/syslog",
	"/var/log/unifi-core.log",
}

// maxLogBytes caps how much of a log file one command may return.
const maxLogBytes = 2 * 1024 * 1024

// ShellConfig carries the SSH settings. Username/Password default to
// the controller API credentials when shell-specific ones are absent.
type ShellConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
	LogPaths []string
}

// commandRunner abstracts the remote execution so the parsing and
// timeout behavior is testable without a live device.
type commandRunner interface {
	Run(ctx context.Context, cmd string) ([]byte, error)
	Close() error
}

// ShellCollector reads device log files over SSH and feeds them to the
// syslog parser. Every remote command is bounded by a wall-clock
// timeout covering both stdout and stderr so a filled buffer cannot
// deadlock the run.
type ShellCollector struct {
	cfg    ShellConfig
	logger *zap.Logger

	// dial is swapped out in tests.
	dial func(ctx context.Context) (commandRunner, error)
}

// NewShellCollector builds a collector that dials on demand.
func NewShellCollector(cfg ShellConfig, logger *zap.Logger) *ShellCollector {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.LogPaths) == 0 {
		cfg.LogPaths = defaultLogPaths
	}
	c := &ShellCollector{
		cfg:    cfg,
		logger: logger.Named("collector.shell"),
	}
	c.dial = c.sshDial
	return c
}

func (s *ShellCollector) Name() string { return model.SourceShell.String() }

// Collect opens one SSH connection, reads each configured log path
// with a size cap, and returns the parsed lines inside the window.
func (s *ShellCollector) Collect(ctx context.Context, window model.Window) ([]model.LogEntry, error) {
	runner, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("shell collector: dial: %w", err)
	}
	defer runner.Close()

	var entries []model.LogEntry
	readAny := false
	for _, path := range s.cfg.LogPaths {
		cmdCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		out, err := runner.Run(cmdCtx, fmt.Sprintf("tail -c %d %s 2>/dev/null", maxLogBytes, path))
		cancel()
		if err != nil {
			s.logger.Debug("log path unreadable", zap.String("path", path), zap.Error(err))
			continue
		}
		if len(bytes.TrimSpace(out)) == 0 {
			continue
		}
		readAny = true
		entries = append(entries, s.parse(out, window)...)
	}

	if !readAny {
		return nil, fmt.Errorf("shell collector: no readable log files on %s", s.cfg.Host)
	}
	s.logger.Debug("shell collection complete", zap.Int("entries", len(entries)))
	return entries, nil
}

// parse scans the command output line by line. The window's end is the
// parser's reference clock: the run's wall clock has already moved past
// it by collection time, so stamping unparseable lines with the wall
// clock would put them outside the window and lose them.
func (s *ShellCollector) parse(out []byte, window model.Window) []model.LogEntry {
	var entries []model.LogEntry
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 256*1024)
	for scanner.Scan() {
		entry, ok := ParseSyslogLine(scanner.Text(), window.End)
		if !ok {
			continue
		}
		if window.Contains(entry.Timestamp) {
			entries = append(entries, entry)
		}
	}
	return entries
}

// sshDial opens the real SSH connection.
func (s *ShellCollector) sshDial(ctx context.Context) (commandRunner, error) {
	cfg := &ssh.ClientConfig{
		User: s.cfg.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(s.cfg.Password),
			ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = s.cfg.Password
				}
				return answers, nil
			}),
		},
		// Device keys rotate on factory reset and are not centrally
		// registered; the transport still encrypts.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
		Timeout:         s.cfg.Timeout,
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	d := net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	sc, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &sshRunner{client: ssh.NewClient(sc, chans, reqs)}, nil
}

type sshRunner struct {
	client *ssh.Client
}

// Run executes one command with the context as the wall-clock bound.
// Output collection happens on a goroutine so a stalled channel cannot
// block past the deadline.
func (r *sshRunner) Run(ctx context.Context, cmd string) ([]byte, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		session.Close()
		return nil, fmt.Errorf("ssh command timed out: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				return nil, fmt.Errorf("ssh command failed: %s: %w", msg, err)
			}
			return nil, fmt.Errorf("ssh command failed: %w", err)
		}
		return stdout.Bytes(), nil
	}
}

func (r *sshRunner) Close() error { return r.client.Close() }
