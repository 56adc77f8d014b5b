package zmodem

import (
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"
)

// SSHSession wraps an SSH session for ZMODEM transfers: it wires the
// remote command's stdin/stdout pipes into a Session and starts the
// matching lrzsz command on the far end.
type SSHSession struct {
	*Session
	remote *ssh.Session
	stdin  io.WriteCloser
	stdout io.Reader
}

// NewSSHSession prepares a ZMODEM session over an established SSH
// session. The SSH session must not have been started yet.
func NewSSHSession(remote *ssh.Session, opts ...SessionOption) (*SSHSession, error) {
	stdin, err := remote.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := remote.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}

	transport := struct {
		io.Reader
		io.Writer
	}{stdout, stdin}

	return &SSHSession{
		Session: NewSession(transport, opts...),
		remote:  remote,
		stdin:   stdin,
		stdout:  stdout,
	}, nil
}

// Start launches the given remote command (typically "rz" before Send
// or "sz <files>" before Receive).
func (s *SSHSession) Start(command string) error {
	return s.remote.Start(command)
}

// Close shuts the stdin pipe and the SSH session. Closing stdin is what
// unblocks the transport reader when a transfer ends.
func (s *SSHSession) Close() error {
	s.stdin.Close()
	return s.remote.Close()
}

// DialPassword opens an SSH client connection with password
// authentication. Host key checking is skipped: the tool trusts the
// operator's choice of endpoint, matching lrzsz usage over already
// established trust.
func DialPassword(addr, user, password string) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	return client, nil
}

// RequestPty asks for a modest terminal on the remote session, which
// some rz/sz builds require before they will start.
func RequestPty(remote *ssh.Session) error {
	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 115200,
		ssh.TTY_OP_OSPEED: 115200,
	}
	return remote.RequestPty("xterm", 24, 80, modes)
}
