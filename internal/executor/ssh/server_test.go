package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xssh "golang.org/x/crypto/ssh"

	"github.com/croniumhq/cronium-engine/internal/core"
	"github.com/croniumhq/cronium-engine/internal/domain/model"
)

// sshTestServer is an in-process SSH server speaking the executor's remote
// command protocol against an in-memory filesystem: shell detection, mktemp,
// cat-based file transfer, script execution and rm -rf cleanup.
type sshTestServer struct {
	port int

	mu       sync.Mutex
	files    map[string][]byte
	dirs     map[string]bool
	removed  []string
	commands []string
	seq      int
	scriptFn func(dir string) int
}

func startTestSSHServer(t *testing.T) *sshTestServer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := xssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	config := &xssh.ServerConfig{
		PasswordCallback: func(meta xssh.ConnMetadata, pass []byte) (*xssh.Permissions, error) {
			if meta.User() == "deploy" && string(pass) == "secret" {
				return nil, nil
			}
			return nil, errors.New("access denied")
		},
	}
	config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	s := &sshTestServer{
		port:  ln.Addr().(*net.TCPAddr).Port,
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
	}
	go s.serve(ln, config)
	return s
}

func (s *sshTestServer) target() model.SSHTarget {
	return model.SSHTarget{
		Host:     "127.0.0.1",
		Port:     s.port,
		Username: "deploy",
		Password: "secret",
	}
}

// onScript installs the handler invoked for the "cd <dir> && ..." run
// command; its return value is the script's exit status.
func (s *sshTestServer) onScript(fn func(dir string) int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scriptFn = fn
}

func (s *sshTestServer) writeFile(path string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = content
}

func (s *sshTestServer) fileExists(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[path]
	return ok
}

func (s *sshTestServer) removedDirs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.removed...)
}

func (s *sshTestServer) liveDirs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var dirs []string
	for dir := range s.dirs {
		dirs = append(dirs, dir)
	}
	return dirs
}

func (s *sshTestServer) serve(ln net.Listener, config *xssh.ServerConfig) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func() {
			sc, chans, reqs, err := xssh.NewServerConn(conn, config)
			if err != nil {
				return
			}
			defer sc.Close()
			go xssh.DiscardRequests(reqs)
			for newCh := range chans {
				if newCh.ChannelType() != "session" {
					_ = newCh.Reject(xssh.UnknownChannelType, "unsupported channel type")
					continue
				}
				ch, chReqs, err := newCh.Accept()
				if err != nil {
					continue
				}
				go s.handleSession(ch, chReqs)
			}
		}()
	}
}

func (s *sshTestServer) handleSession(ch xssh.Channel, reqs <-chan *xssh.Request) {
	defer ch.Close()
	for req := range reqs {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			_ = xssh.Unmarshal(req.Payload, &payload)
			_ = req.Reply(true, nil)
			status := s.exec(payload.Command, ch)
			_, _ = ch.SendRequest("exit-status", false,
				xssh.Marshal(struct{ Status uint32 }{uint32(status)}))
			return
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func (s *sshTestServer) exec(command string, ch xssh.Channel) int {
	s.mu.Lock()
	s.commands = append(s.commands, command)
	s.mu.Unlock()

	switch {
	case command == "echo $SHELL":
		_, _ = fmt.Fprintln(ch, "/bin/bash")
		return 0

	case strings.HasPrefix(command, "mktemp -d"):
		s.mu.Lock()
		s.seq++
		dir := fmt.Sprintf("/tmp/cronium.%06d", s.seq)
		s.dirs[dir] = true
		s.mu.Unlock()
		_, _ = fmt.Fprintln(ch, dir)
		return 0

	case strings.HasPrefix(command, "cat > "):
		path := unquoteArg(strings.TrimPrefix(command, "cat > "))
		content, err := io.ReadAll(ch)
		if err != nil {
			return 1
		}
		s.writeFile(path, content)
		return 0

	case strings.HasPrefix(command, "cat "):
		path := unquoteArg(strings.TrimPrefix(command, "cat "))
		s.mu.Lock()
		content, ok := s.files[path]
		s.mu.Unlock()
		if !ok {
			_, _ = fmt.Fprintf(ch.Stderr(), "cat: %s: No such file or directory\n", path)
			return 1
		}
		_, _ = ch.Write(content)
		return 0

	case strings.HasPrefix(command, "rm -rf "):
		dir := unquoteArg(strings.TrimPrefix(command, "rm -rf "))
		s.mu.Lock()
		delete(s.dirs, dir)
		s.removed = append(s.removed, dir)
		for path := range s.files {
			if strings.HasPrefix(path, dir+"/") {
				delete(s.files, path)
			}
		}
		s.mu.Unlock()
		return 0

	case strings.HasPrefix(command, "cd "):
		dir := unquoteArg(strings.TrimPrefix(command, "cd "))
		s.mu.Lock()
		fn := s.scriptFn
		s.mu.Unlock()
		if fn == nil {
			return 0
		}
		return fn(dir)

	default:
		_, _ = fmt.Fprintf(ch.Stderr(), "unsupported command: %s\n", command)
		return 127
	}
}

// unquoteArg extracts the first single-quoted token of a command tail.
func unquoteArg(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "'") {
		return s
	}
	s = s[1:]
	if i := strings.Index(s, "'"); i >= 0 {
		return s[:i]
	}
	return s
}

func TestPoolGetKeepsInUseClientAlive(t *testing.T) {
	srv := startTestSSHServer(t)
	pool := NewConnectionPool(PoolOptions{})
	defer pool.Dispose()

	ctx := context.Background()
	target := srv.target()

	first, err := pool.Get(ctx, target)
	require.NoError(t, err)

	// A second execution against the same target while the first holds its
	// connection dials fresh instead of stealing.
	second, err := pool.Get(ctx, target)
	require.NoError(t, err)
	require.NotSame(t, first, second)

	// The first caller's transport must survive the second dial.
	session, err := first.NewSession()
	require.NoError(t, err)
	require.NoError(t, session.Close())

	pool.Put(target, second)
	pool.Put(target, first) // untracked by now; Put closes it

	// The pooled entry is the second client, handed out on the next Get.
	third, err := pool.Get(ctx, target)
	require.NoError(t, err)
	assert.Same(t, second, third)
	pool.Put(target, third)
}

func TestExecuteScriptRemovesWorkDirOnFailure(t *testing.T) {
	srv := startTestSSHServer(t)
	srv.onScript(func(string) int { return 2 })

	pool := NewConnectionPool(PoolOptions{})
	defer pool.Dispose()
	e, err := NewExecutor(ExecutorOptions{Pool: pool})
	require.NoError(t, err)

	result := e.ExecuteScript(context.Background(), core.ExecuteScriptRequest{
		UserID:   "u1",
		Target:   srv.target(),
		Language: model.ScriptLanguageBash,
		Content:  "exit 2",
	})

	require.NotNil(t, result)
	assert.False(t, result.Success())
	assert.Equal(t, 2, result.ExitCode)

	// The working directory and everything staged into it is gone even
	// though the script failed.
	removed := srv.removedDirs()
	require.Len(t, removed, 1)
	assert.Empty(t, srv.liveDirs())
	assert.False(t, srv.fileExists(removed[0]+"/"+scriptFileName(model.ScriptLanguageBash)))
	assert.False(t, srv.fileExists(removed[0]+"/"+variablesFileName))
}

func TestExecuteScriptCollectsProtocolFiles(t *testing.T) {
	srv := startTestSSHServer(t)
	srv.onScript(func(dir string) int {
		srv.writeFile(dir+"/"+outputFileName, []byte(`{"rows": 3}`))
		srv.writeFile(dir+"/"+conditionFileName, []byte(`{"condition": true}`))
		srv.writeFile(dir+"/"+variablesFileName,
			[]byte(`{"color": "blue", "`+variablesUpdatedKey+`": "2026-01-02T00:00:00"}`))
		return 0
	})

	store := &stubVariableStore{vars: map[string]json.RawMessage{"color": json.RawMessage(`"red"`)}}
	pool := NewConnectionPool(PoolOptions{})
	defer pool.Dispose()
	e, err := NewExecutor(ExecutorOptions{Pool: pool, Variables: store})
	require.NoError(t, err)

	result := e.ExecuteScript(context.Background(), core.ExecuteScriptRequest{
		UserID:   "u1",
		Target:   srv.target(),
		Language: model.ScriptLanguageBash,
		Content:  "echo run",
	})

	require.NotNil(t, result)
	require.True(t, result.Success())
	assert.JSONEq(t, `{"rows": 3}`, string(result.ScriptOutput))
	require.NotNil(t, result.Condition)
	assert.True(t, *result.Condition)

	// Changed and stamped keys flow back into the store.
	assert.JSONEq(t, `"blue"`, string(store.sets["color"]))
	assert.JSONEq(t, `"2026-01-02T00:00:00"`, string(store.sets[variablesUpdatedKey]))
	assert.Empty(t, store.deletes)

	assert.Empty(t, srv.liveDirs())
}
