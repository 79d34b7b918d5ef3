// Package ssh executes scripts and commands on remote hosts. Connections are
// pooled per (host, username, port) so repeated executions against the same
// target reuse one handshake for shell detection, file transfer, execution
// and cleanup.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	xssh "golang.org/x/crypto/ssh"

	"github.com/croniumhq/cronium-engine/internal/domain/model"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultIdleTimeout    = 5 * time.Minute
	defaultEvictInterval  = 30 * time.Second
	defaultDialAttempts   = 3
	dialBackoffInitial    = 2 * time.Second
	dialBackoffMax        = 10 * time.Second
)

// PoolOptions configures a ConnectionPool.
type PoolOptions struct {
	Logger         *slog.Logger  // Optional: structured logger
	ConnectTimeout time.Duration // Optional: per-dial timeout, defaults to 10s
	IdleTimeout    time.Duration // Optional: idle eviction age, defaults to 5m
	EvictInterval  time.Duration // Optional: eviction sweep interval, defaults to 30s
	DialAttempts   int           // Optional: dial retries per Get, defaults to 3
}

type poolEntry struct {
	client   *xssh.Client
	lastUsed time.Time
	inUse    bool
	healthy  bool
}

// ConnectionPool shares SSH connections across executions. Entries are keyed
// by target (user@host:port) and evicted after sitting idle past the
// configured age. Detected login shells are cached per key alongside the
// connections.
type ConnectionPool struct {
	logger         *slog.Logger
	connectTimeout time.Duration
	idleTimeout    time.Duration
	dialAttempts   int

	mu      sync.Mutex
	entries map[string]*poolEntry
	shells  map[string]string

	done      chan struct{}
	closeOnce sync.Once
}

// NewConnectionPool constructs a pool and starts its idle eviction loop.
// Call Dispose to stop the loop and close all connections.
func NewConnectionPool(opts PoolOptions) *ConnectionPool {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	idleTimeout := opts.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	evictInterval := opts.EvictInterval
	if evictInterval <= 0 {
		evictInterval = defaultEvictInterval
	}
	dialAttempts := opts.DialAttempts
	if dialAttempts <= 0 {
		dialAttempts = defaultDialAttempts
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "ssh_pool")
	}

	p := &ConnectionPool{
		logger:         logger,
		connectTimeout: connectTimeout,
		idleTimeout:    idleTimeout,
		dialAttempts:   dialAttempts,
		entries:        make(map[string]*poolEntry),
		shells:         make(map[string]string),
		done:           make(chan struct{}),
	}
	go p.evictLoop(evictInterval)
	return p
}

// Get returns a connection for the target, reusing a healthy idle entry or
// dialing a new one. The caller must release it with Put or drop it with
// Discard.
func (p *ConnectionPool) Get(ctx context.Context, target model.SSHTarget) (*xssh.Client, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	key := target.Key()

	p.mu.Lock()
	if entry, ok := p.entries[key]; ok && entry.healthy && !entry.inUse {
		entry.inUse = true
		entry.lastUsed = time.Now()
		client := entry.client
		p.mu.Unlock()

		// A pooled connection may have died since its last use; probe with a
		// throwaway session before handing it out.
		if sessionProbe(client) {
			return client, nil
		}
		p.remove(key, client)
		if p.logger != nil {
			p.logger.DebugContext(ctx, "pooled connection stale, redialing", "target", key)
		}
	} else {
		p.mu.Unlock()
	}

	client, err := p.dial(ctx, target)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.entries[key]; ok {
		// Another execution holds or pooled a connection under this key. An
		// in-use client must stay alive until its holder calls Put, which
		// closes untracked clients; only an idle one is safe to close here.
		if !old.inUse {
			_ = old.client.Close()
		}
	}
	p.entries[key] = &poolEntry{
		client:   client,
		lastUsed: time.Now(),
		inUse:    true,
		healthy:  true,
	}
	return client, nil
}

// Put releases a connection back to the pool for reuse.
func (p *ConnectionPool) Put(target model.SSHTarget, client *xssh.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[target.Key()]
	if !ok || entry.client != client {
		_ = client.Close()
		return
	}
	entry.inUse = false
	entry.lastUsed = time.Now()
}

// Discard closes a connection that misbehaved and removes it from the pool.
func (p *ConnectionPool) Discard(target model.SSHTarget, client *xssh.Client) {
	p.remove(target.Key(), client)
}

func (p *ConnectionPool) remove(key string, client *xssh.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.entries[key]; ok && entry.client == client {
		delete(p.entries, key)
	}
	_ = client.Close()
}

// Shell returns the login shell for the target, probing `echo $SHELL` once
// per pool key and caching the answer.
func (p *ConnectionPool) Shell(ctx context.Context, target model.SSHTarget, client *xssh.Client) (string, error) {
	key := target.Key()

	p.mu.Lock()
	if shell, ok := p.shells[key]; ok {
		p.mu.Unlock()
		return shell, nil
	}
	p.mu.Unlock()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open shell detection session: %w", err)
	}
	defer session.Close()

	out, err := session.Output("echo $SHELL")
	if err != nil {
		return "", fmt.Errorf("detect shell: %w", err)
	}
	shell := strings.TrimSpace(string(out))
	if shell == "" {
		shell = "/bin/sh"
	}

	p.mu.Lock()
	p.shells[key] = shell
	p.mu.Unlock()

	if p.logger != nil {
		p.logger.DebugContext(ctx, "detected remote shell", "target", key, "shell", shell)
	}
	return shell, nil
}

// Dispose stops the eviction loop and closes every pooled connection.
func (p *ConnectionPool) Dispose() {
	p.closeOnce.Do(func() {
		close(p.done)
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	for key, entry := range p.entries {
		_ = entry.client.Close()
		delete(p.entries, key)
	}
	p.shells = make(map[string]string)
}

func (p *ConnectionPool) evictLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.evictIdle()
		}
	}
}

func (p *ConnectionPool) evictIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for key, entry := range p.entries {
		if entry.inUse || now.Sub(entry.lastUsed) <= p.idleTimeout {
			continue
		}
		_ = entry.client.Close()
		delete(p.entries, key)
		if p.logger != nil {
			p.logger.Debug("closed idle ssh connection", "target", key)
		}
	}
}

func (p *ConnectionPool) dial(ctx context.Context, target model.SSHTarget) (*xssh.Client, error) {
	authMethods, err := buildAuthMethods(target)
	if err != nil {
		return nil, err
	}

	config := &xssh.ClientConfig{
		User:            target.Username,
		Auth:            authMethods,
		HostKeyCallback: xssh.InsecureIgnoreHostKey(), // #nosec G106 -- targets are user-registered hosts
		Timeout:         p.connectTimeout,
	}
	addr := fmt.Sprintf("%s:%d", target.Host, target.Port)

	var lastErr error
	backoff := dialBackoffInitial
	for attempt := 1; attempt <= p.dialAttempts; attempt++ {
		client, err := dialWithContext(ctx, addr, config)
		if err == nil {
			return client, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if p.logger != nil {
			p.logger.WarnContext(ctx, "ssh dial failed",
				"target", target.Key(),
				"attempt", attempt,
				"error", err,
			)
		}
		if attempt == p.dialAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, dialBackoffMax)
	}
	return nil, fmt.Errorf("ssh connect to %s: %w", addr, lastErr)
}

// dialWithContext runs the blocking dial in a goroutine so the caller can
// bail on context cancellation. The abandoned connection, if any, is closed.
func dialWithContext(ctx context.Context, addr string, config *xssh.ClientConfig) (*xssh.Client, error) {
	type dialResult struct {
		client *xssh.Client
		err    error
	}

	resCh := make(chan dialResult, 1)
	go func() {
		client, err := xssh.Dial("tcp", addr, config)
		resCh <- dialResult{client, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if res := <-resCh; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, ctx.Err()
	case res := <-resCh:
		return res.client, res.err
	}
}

// buildAuthMethods assembles auth methods from the target credentials:
// password when present, public key when a private key parses. A key that
// fails to parse is fatal unless password auth can stand in.
func buildAuthMethods(target model.SSHTarget) ([]xssh.AuthMethod, error) {
	var methods []xssh.AuthMethod

	if target.Password != "" {
		methods = append(methods, xssh.Password(target.Password))
	}

	if target.PrivateKey != "" {
		signer, err := parsePrivateKey(target)
		switch {
		case err == nil:
			methods = append(methods, xssh.PublicKeys(signer))
		case target.Password == "":
			return nil, fmt.Errorf("parse private key: %w", err)
		}
	}

	if len(methods) == 0 {
		return nil, errors.New("no authentication method available: neither password nor private key provided")
	}
	return methods, nil
}

func parsePrivateKey(target model.SSHTarget) (xssh.Signer, error) {
	signer, err := xssh.ParsePrivateKey([]byte(target.PrivateKey))
	if err == nil {
		return signer, nil
	}
	if target.Passphrase != "" {
		return xssh.ParsePrivateKeyWithPassphrase([]byte(target.PrivateKey), []byte(target.Passphrase))
	}
	return nil, err
}

func sessionProbe(client *xssh.Client) bool {
	session, err := client.NewSession()
	if err != nil {
		return false
	}
	_ = session.Close()
	return true
}
