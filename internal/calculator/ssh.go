package calculator

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/casegrid-labs/casegrid/internal/fsutil"
	"github.com/casegrid-labs/casegrid/pkg/core"
	"github.com/pkg/sftp"
	"github.com/sethvargo/go-retry"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// remoteRoot is the directory under the remote home where per-case work
// directories are created.
const remoteRoot = ".casegrid"

// sshCalculator executes a case's command on a remote host: compiled
// inputs go up over SFTP, the command runs remotely, outputs come back
// into the case directory. The SSH client is established lazily and
// reused across cases; keepalive requests hold the session open between
// them.
type sshCalculator struct {
	user      string
	host      string // host:port
	cmdline   string
	keepalive time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	client *ssh.Client
	stop   chan struct{}
}

// newSSH parses "user@host/command..." (port optional as user@host:port/...).
func newSSH(body string, opts Options) (Calculator, error) {
	at := strings.IndexByte(body, '@')
	if at <= 0 {
		return nil, fmt.Errorf("malformed calculator URI: ssh:// requires user@host/command")
	}
	user := body[:at]

	rest := body[at+1:]
	slash := strings.IndexByte(rest, '/')
	if slash <= 0 || slash == len(rest)-1 {
		return nil, fmt.Errorf("malformed calculator URI: ssh:// requires user@host/command")
	}

	host := rest[:slash]
	if !strings.Contains(host, ":") {
		host += ":22"
	}

	return &sshCalculator{
		user:      user,
		host:      host,
		cmdline:   rest[slash+1:],
		keepalive: opts.Keepalive,
		logger:    opts.logger(),
	}, nil
}

func (s *sshCalculator) URI() string {
	host := strings.TrimSuffix(s.host, ":22")
	return fmt.Sprintf("%s://%s@%s/%s", SchemeSSH, s.user, host, s.cmdline)
}

func (s *sshCalculator) Run(ctx context.Context, cs *core.Case) (string, error) {
	remoteDir := path.Join(remoteRoot, cs.Label)
	// The remote command runs inside the case work dir, so the compiled
	// input is addressed relative to it.
	command := fmt.Sprintf("cd %s && %s %s", shellQuote(remoteDir), s.cmdline, core.InputDirName)

	fail := func(err error) (string, error) {
		return command, &core.CalculatorError{URI: s.URI(), Label: cs.Label, Command: command, Err: err}
	}

	client, err := s.ensureClient(ctx)
	if err != nil {
		return fail(err)
	}

	sftpc, err := sftp.NewClient(client)
	if err != nil {
		return fail(fmt.Errorf("sftp session: %w", err))
	}
	defer sftpc.Close()

	if err := s.upload(sftpc, cs, remoteDir); err != nil {
		return fail(err)
	}

	if err := s.execute(ctx, client, cs, command); err != nil {
		return command, &core.CalculatorError{URI: s.URI(), Label: cs.Label, Command: command, Err: err}
	}

	if err := s.download(sftpc, cs, remoteDir); err != nil {
		return fail(err)
	}

	// Best effort remote cleanup; a leftover work dir is harmless.
	_ = sftpc.RemoveAll(remoteDir)

	return command, nil
}

// ensureClient dials the host on first use, with bounded exponential
// backoff, and starts the keepalive loop.
func (s *sshCalculator) ensureClient(ctx context.Context) (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	cfg := &ssh.ClientConfig{
		User:            s.user,
		Auth:            s.authMethods(),
		HostKeyCallback: s.hostKeyCallback(),
		Timeout:         30 * time.Second,
	}

	var client *ssh.Client
	backoff := retry.WithMaxRetries(3, retry.NewExponential(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := ssh.Dial("tcp", s.host, cfg)
		if err != nil {
			s.logger.Debug("ssh dial failed, will retry", "host", s.host, "error", err)
			return retry.RetryableError(err)
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.host, err)
	}

	s.client = client
	s.stop = make(chan struct{})
	if s.keepalive > 0 {
		go s.keepaliveLoop(client, s.stop)
	}

	s.logger.Debug("ssh session established", "host", s.host, "user", s.user)
	return client, nil
}

// authMethods collects the usual client credentials: a running agent if
// available, then the default private key files.
func (s *sshCalculator) authMethods() []ssh.AuthMethod {
	var methods []ssh.AuthMethod

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return methods
	}
	for _, name := range []string{"id_ed25519", "id_rsa"} {
		key, err := os.ReadFile(filepath.Join(home, ".ssh", name)) //nolint:gosec // G304: default key locations
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			s.logger.Debug("skipping unreadable private key", "key", name, "error", err)
			continue
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	return methods
}

// hostKeyCallback verifies against known_hosts when present. Without the
// file, verification is skipped, matching the documented behavior of
// batch compute clusters with ephemeral hosts.
func (s *sshCalculator) hostKeyCallback() ssh.HostKeyCallback {
	home, err := os.UserHomeDir()
	if err == nil {
		if cb, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts")); err == nil {
			return cb
		}
	}
	return ssh.InsecureIgnoreHostKey() //nolint:gosec // G106: no known_hosts available
}

// keepaliveLoop pings the server until the calculator is closed.
func (s *sshCalculator) keepaliveLoop(client *ssh.Client, stop chan struct{}) {
	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				s.logger.Debug("ssh keepalive failed", "host", s.host, "error", err)
				return
			}
		}
	}
}

// upload transfers the case's compiled input tree to the remote work dir.
func (s *sshCalculator) upload(sftpc *sftp.Client, cs *core.Case, remoteDir string) error {
	files, err := fsutil.ListFiles(cs.InputPath)
	if err != nil {
		return err
	}

	info, err := os.Stat(cs.InputPath)
	if err != nil {
		return err
	}

	for _, rel := range files {
		local := filepath.Join(cs.InputPath, rel)
		if !info.IsDir() {
			local = cs.InputPath
		}

		remote := path.Join(remoteDir, core.InputDirName, filepath.ToSlash(rel))
		if err := sftpc.MkdirAll(path.Dir(remote)); err != nil {
			return fmt.Errorf("mkdir %s: %w", path.Dir(remote), err)
		}

		src, err := os.Open(local) //nolint:gosec // G304: local comes from walking the input tree
		if err != nil {
			return err
		}
		dst, err := sftpc.Create(remote)
		if err != nil {
			src.Close()
			return fmt.Errorf("create %s: %w", remote, err)
		}
		_, err = dst.ReadFrom(src)
		src.Close()
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("upload %s: %w", remote, err)
		}
	}
	return nil
}

// execute runs the remote command with stdout/stderr captured into the
// case's log artifacts. Cancellation closes the session; the remote
// process is not hard-killed beyond that.
func (s *sshCalculator) execute(ctx context.Context, client *ssh.Client, cs *core.Case, command string) error {
	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	stdout, err := os.Create(filepath.Join(cs.Dir, StdoutFile))
	if err != nil {
		return err
	}
	defer stdout.Close()

	stderr, err := os.Create(filepath.Join(cs.Dir, StderrFile))
	if err != nil {
		return err
	}
	defer stderr.Close()

	session.Stdout = stdout
	session.Stderr = stderr

	s.logger.Debug("running ssh calculator", "label", cs.Label, "host", s.host, "command", command)

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = session.Close()
		<-done
		return ctx.Err()
	}
}

// download retrieves everything the remote run produced, except the
// uploaded input tree, into the case directory.
func (s *sshCalculator) download(sftpc *sftp.Client, cs *core.Case, remoteDir string) error {
	walker := sftpc.Walk(remoteDir)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			return err
		}
		if walker.Stat().IsDir() {
			continue
		}

		rel, err := filepath.Rel(remoteDir, walker.Path())
		if err != nil {
			return err
		}
		if strings.HasPrefix(rel, core.InputDirName+string(filepath.Separator)) || rel == core.InputDirName {
			continue
		}

		src, err := sftpc.Open(walker.Path())
		if err != nil {
			return fmt.Errorf("open %s: %w", walker.Path(), err)
		}

		local := filepath.Join(cs.Dir, rel)
		if err := os.MkdirAll(filepath.Dir(local), 0o750); err != nil {
			src.Close()
			return err
		}
		dst, err := os.Create(local) //nolint:gosec // G304: local stays under the case directory
		if err != nil {
			src.Close()
			return err
		}
		_, err = src.WriteTo(dst)
		src.Close()
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("download %s: %w", walker.Path(), err)
		}
	}
	return nil
}

// Close stops the keepalive loop and tears down the client.
func (s *sshCalculator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	close(s.stop)
	err := s.client.Close()
	s.client = nil
	return err
}
