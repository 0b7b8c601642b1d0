package pluto

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// SysfsConfig describes the parameters required to configure a sysfs
// attribute over SSH, used as a fallback when the IIOD attribute write
// path is unavailable on older Pluto firmware.
type SysfsConfig struct {
	Host      string
	User      string
	Password  string
	KeyPath   string
	Port      int
	SysfsRoot string
}

// SysfsWriter establishes an SSH session to the radio and writes sysfs
// attributes that correspond to IIO device/channel attributes. Grounded on
// internal/sdr.SSHAttributeWriter, kept nearly verbatim: the
// sysfs path derivation and shell-quoting rules are hardware facts, not
// domain logic that needed rewriting for this spec.
type SysfsWriter struct {
	mu     sync.Mutex
	cfg    SysfsConfig
	client *ssh.Client
}

// NewSysfsWriter validates configuration and prepares a writer instance.
func NewSysfsWriter(cfg SysfsConfig) (*SysfsWriter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ssh host is required for sysfs fallback")
	}
	if cfg.User == "" {
		cfg.User = "root"
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.SysfsRoot == "" {
		cfg.SysfsRoot = "/sys/bus/iio/devices"
	}
	return &SysfsWriter{cfg: cfg}, nil
}

// WriteAttribute writes value to the sysfs path derived from the IIO
// attribute triple (device/channel/attr).
func (w *SysfsWriter) WriteAttribute(ctx context.Context, device, channel, attr, value string) error {
	client, err := w.dial(ctx)
	if err != nil {
		return err
	}

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("create ssh session: %w", err)
	}
	defer session.Close()

	target := w.attributePath(device, channel, attr)
	cmd := fmt.Sprintf("printf %s > %s", shellQuote(value), target)
	if err := session.Run(cmd); err != nil {
		return fmt.Errorf("write sysfs attribute via ssh: %w", err)
	}
	return nil
}

func (w *SysfsWriter) dial(ctx context.Context) (*ssh.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client != nil {
		return w.client, nil
	}

	var auth []ssh.AuthMethod
	if w.cfg.Password != "" {
		auth = append(auth, ssh.Password(w.cfg.Password))
	}
	if w.cfg.KeyPath != "" {
		key, err := os.ReadFile(w.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no ssh password or key configured")
	}

	config := &ssh.ClientConfig{
		User:            w.cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", w.cfg.Host, w.cfg.Port)
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial ssh: %w", err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		return nil, fmt.Errorf("create ssh client: %w", err)
	}

	w.client = ssh.NewClient(clientConn, chans, reqs)
	return w.client, nil
}

func (w *SysfsWriter) attributePath(device, channel, attr string) string {
	base := filepath.Join(w.cfg.SysfsRoot, device)
	if channel == "" {
		return filepath.Join(base, attr)
	}
	prefix := "in"
	if strings.HasPrefix(strings.ToLower(channel), "altvoltage") || strings.HasPrefix(strings.ToLower(channel), "out_") {
		prefix = "out"
	}
	filename := fmt.Sprintf("%s_%s_%s", prefix, channel, attr)
	return filepath.Join(base, filename)
}

func shellQuote(value string) string {
	escaped := strings.ReplaceAll(value, "'", "'\\''")
	return fmt.Sprintf("'%s'", escaped)
}
