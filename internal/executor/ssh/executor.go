package ssh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	xssh "golang.org/x/crypto/ssh"

	"github.com/croniumhq/cronium-engine/internal/core"
	"github.com/croniumhq/cronium-engine/internal/data"
	"github.com/croniumhq/cronium-engine/internal/domain/model"
)

// ExecutorOptions groups dependencies for Executor.
type ExecutorOptions struct {
	Pool      *ConnectionPool    // Required: shared connection pool
	Variables core.VariableStore // Optional: variable persistence after execution
	Logger    *slog.Logger       // Optional: structured logger
}

// Executor runs scripts and commands on remote hosts over SSH. Failures at
// any level — connect, auth, transfer, execution — are reported inside the
// ExecutionResult, never as an error from the boundary, so callers interpret
// a failed remote run without exception handling.
type Executor struct {
	pool      *ConnectionPool
	variables core.VariableStore
	logger    *slog.Logger
}

// NewExecutor constructs an Executor.
func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	if opts.Pool == nil {
		return nil, errors.New("ConnectionPool is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "ssh_executor")
	}

	return &Executor{
		pool:      opts.Pool,
		variables: opts.Variables,
		logger:    logger,
	}, nil
}

var _ core.ScriptExecutor = (*Executor)(nil)

// ExecuteScript materializes the script with its helper shim in a fresh
// remote working directory, runs it, and reads back output, condition and
// variable changes. The working directory is removed on every exit path.
func (e *Executor) ExecuteScript(ctx context.Context, req core.ExecuteScriptRequest) *model.ExecutionResult {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	script, err := buildScript(req.Language, req.Content)
	if err != nil {
		return transportFailure("prepare script", err)
	}

	client, err := e.pool.Get(ctx, req.Target)
	if err != nil {
		return transportFailure("connect", err)
	}
	healthy := true
	defer func() {
		if healthy {
			e.pool.Put(req.Target, client)
		} else {
			e.pool.Discard(req.Target, client)
		}
	}()

	shell := "/bin/sh"
	if req.Language == model.ScriptLanguageBash {
		shell, err = e.pool.Shell(ctx, req.Target, client)
		if err != nil {
			healthy = false
			return transportFailure("detect shell", err)
		}
	}

	workDir, err := e.createWorkDir(client)
	if err != nil {
		healthy = false
		return transportFailure("create working directory", err)
	}
	defer e.removeWorkDir(ctx, client, req.Target, workDir)

	seed, err := e.seedVariables(ctx, req)
	if err != nil {
		return transportFailure("load variables", err)
	}

	if err := e.stageFiles(client, workDir, req, script, seed); err != nil {
		healthy = false
		return transportFailure("stage files", err)
	}

	command := fmt.Sprintf("cd %s && %s %s",
		shellQuote(workDir),
		interpreterCommand(req.Language, shell),
		shellQuote(scriptFileName(req.Language)),
	)
	stdout, stderr, exitCode, runErr := runCommand(ctx, client, command)

	result := &model.ExecutionResult{
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
	}
	switch {
	case errors.Is(runErr, context.DeadlineExceeded):
		result.ExitCode = nonZeroExit(exitCode)
		result.Error = "execution timed out"
	case errors.Is(runErr, context.Canceled):
		result.ExitCode = nonZeroExit(exitCode)
		result.Error = "execution cancelled"
	case runErr != nil:
		healthy = false
		return transportFailure("run script", runErr)
	}

	// The protocol files are read back even after a non-zero exit: a script
	// may set output or condition before failing.
	e.collectProtocolFiles(ctx, client, workDir, req, seed, result)
	return result
}

// ExecuteCommand runs a plain command on the target with the same error
// discipline as ExecuteScript.
func (e *Executor) ExecuteCommand(ctx context.Context, target model.SSHTarget, command string) *model.ExecutionResult {
	client, err := e.pool.Get(ctx, target)
	if err != nil {
		return transportFailure("connect", err)
	}
	healthy := true
	defer func() {
		if healthy {
			e.pool.Put(target, client)
		} else {
			e.pool.Discard(target, client)
		}
	}()

	stdout, stderr, exitCode, runErr := runCommand(ctx, client, command)
	result := &model.ExecutionResult{
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
	}
	switch {
	case errors.Is(runErr, context.DeadlineExceeded):
		result.ExitCode = nonZeroExit(exitCode)
		result.Error = "execution timed out"
	case errors.Is(runErr, context.Canceled):
		result.ExitCode = nonZeroExit(exitCode)
		result.Error = "execution cancelled"
	case runErr != nil:
		healthy = false
		return transportFailure("run command", runErr)
	}
	return result
}

func (e *Executor) createWorkDir(client *xssh.Client) (string, error) {
	out, _, exitCode, err := runCommand(context.Background(), client, "mktemp -d /tmp/cronium.XXXXXX")
	if err != nil {
		return "", err
	}
	dir := strings.TrimSpace(out)
	if exitCode != 0 || dir == "" {
		return "", fmt.Errorf("mktemp exited with code %d", exitCode)
	}
	return dir, nil
}

// removeWorkDir is best effort on its own session so cleanup survives the
// execution session dying.
func (e *Executor) removeWorkDir(ctx context.Context, client *xssh.Client, target model.SSHTarget, workDir string) {
	_, _, _, err := runCommand(context.Background(), client, "rm -rf "+shellQuote(workDir))
	if err != nil && e.logger != nil {
		e.logger.WarnContext(ctx, "failed to remove remote working directory",
			"target", target.Key(),
			"work_dir", workDir,
			"error", err,
		)
	}
}

// seedVariables snapshots the variables the script starts from: the caller
// map when supplied, otherwise the user's stored variables.
func (e *Executor) seedVariables(ctx context.Context, req core.ExecuteScriptRequest) (map[string]json.RawMessage, error) {
	if req.Variables != nil {
		return req.Variables, nil
	}
	if e.variables == nil || req.UserID == "" {
		return map[string]json.RawMessage{}, nil
	}
	vars, err := e.variables.GetUserVariables(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if vars == nil {
		vars = map[string]json.RawMessage{}
	}
	return vars, nil
}

func (e *Executor) stageFiles(client *xssh.Client, workDir string, req core.ExecuteScriptRequest, script string, seed map[string]json.RawMessage) error {
	if len(req.Input) > 0 {
		if err := writeRemoteFile(client, workDir+"/"+inputFileName, req.Input); err != nil {
			return fmt.Errorf("write %s: %w", inputFileName, err)
		}
	}

	seedJSON, err := marshalVariables(seed)
	if err != nil {
		return fmt.Errorf("encode variables: %w", err)
	}
	if err := writeRemoteFile(client, workDir+"/"+variablesFileName, seedJSON); err != nil {
		return fmt.Errorf("write %s: %w", variablesFileName, err)
	}

	if err := writeRemoteFile(client, workDir+"/"+scriptFileName(req.Language), []byte(script)); err != nil {
		return fmt.Errorf("write script: %w", err)
	}
	return nil
}

// collectProtocolFiles reads output.json, condition.json and variables.json
// back from the working directory. Read failures degrade to missing data;
// the execution outcome stands either way.
func (e *Executor) collectProtocolFiles(ctx context.Context, client *xssh.Client, workDir string, req core.ExecuteScriptRequest, seed map[string]json.RawMessage, result *model.ExecutionResult) {
	if raw, ok := readRemoteFile(client, workDir+"/"+outputFileName); ok && json.Valid(raw) {
		result.ScriptOutput = json.RawMessage(raw)
	}

	if raw, ok := readRemoteFile(client, workDir+"/"+conditionFileName); ok {
		if cond, ok := parseCondition(raw); ok {
			result.Condition = &cond
		}
	}

	raw, ok := readRemoteFile(client, workDir+"/"+variablesFileName)
	if !ok {
		return
	}
	final := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &final); err != nil {
		if e.logger != nil {
			e.logger.WarnContext(ctx, "variables file unreadable, skipping persistence",
				"target", req.Target.Key(),
				"error", err,
			)
		}
		return
	}
	e.persistVariableChanges(ctx, req.UserID, seed, final)
}

// persistVariableChanges diffs the post-execution variable map against the
// seed and writes only changed, added and removed keys through the store.
// Persistence failures are logged, never surfaced as execution failures.
func (e *Executor) persistVariableChanges(ctx context.Context, userID string, seed, final map[string]json.RawMessage) {
	if e.variables == nil || userID == "" {
		return
	}

	changed, removed := diffVariables(seed, final)
	for key, value := range changed {
		if err := e.variables.SetUserVariable(ctx, userID, key, value); err != nil {
			e.logVariablePersistError(ctx, userID, key, err)
		}
	}
	for _, key := range removed {
		err := e.variables.DeleteUserVariableByKey(ctx, userID, key)
		if err != nil && !errors.Is(err, data.ErrVariableNotFound) {
			e.logVariablePersistError(ctx, userID, key, err)
		}
	}
}

func (e *Executor) logVariablePersistError(ctx context.Context, userID, key string, err error) {
	if e.logger == nil {
		return
	}
	e.logger.ErrorContext(ctx, "failed to persist variable change",
		"user_id", userID,
		"key", key,
		"error", err,
	)
}

// diffVariables returns the keys whose values changed or were added, and the
// keys removed, between the seed and final snapshots. The shim's __updated__
// timestamp diffs like any other key, so a later execution seeds from the
// stored stamp of the previous one.
func diffVariables(seed, final map[string]json.RawMessage) (changed map[string]json.RawMessage, removed []string) {
	changed = make(map[string]json.RawMessage)
	for key, value := range final {
		if prev, ok := seed[key]; !ok || !jsonEqual(prev, value) {
			changed[key] = value
		}
	}
	for key := range seed {
		if _, ok := final[key]; !ok {
			removed = append(removed, key)
		}
	}
	return changed, removed
}

// jsonEqual compares two raw values structurally so formatting differences
// introduced by the shims do not register as changes.
func jsonEqual(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return bytes.Equal(a, b)
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return bytes.Equal(a, b)
	}
	an, errA := json.Marshal(av)
	bn, errB := json.Marshal(bv)
	if errA != nil || errB != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(an, bn)
}

func marshalVariables(vars map[string]json.RawMessage) ([]byte, error) {
	if vars == nil {
		vars = map[string]json.RawMessage{}
	}
	return json.Marshal(vars)
}

// parseCondition accepts the shim's {"condition": bool} envelope and, for
// leniency, a bare JSON boolean.
func parseCondition(raw []byte) (bool, bool) {
	var envelope struct {
		Condition *bool `json:"condition"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Condition != nil {
		return *envelope.Condition, true
	}
	var bare bool
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, true
	}
	return false, false
}

// transportFailure reports an SSH-level failure as a result: the message
// lands in stderr with empty stdout, per the execution boundary contract.
func transportFailure(stage string, err error) *model.ExecutionResult {
	msg := fmt.Sprintf("%s: %v", stage, err)
	return &model.ExecutionResult{
		ExitCode: 1,
		Error:    msg,
		Stderr:   msg,
	}
}

func nonZeroExit(code int) int {
	if code != 0 {
		return code
	}
	return 1
}

// runCommand executes one command on its own session, capturing stdout and
// stderr. A non-nil error means the session or transport failed (or the
// context expired); a plain non-zero exit is reported through the code.
func runCommand(ctx context.Context, client *xssh.Client, command string) (stdout, stderr string, exitCode int, err error) {
	session, err := client.NewSession()
	if err != nil {
		return "", "", 0, fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	var outBuf, errBuf bytes.Buffer
	session.Stdout = &outBuf
	session.Stderr = &errBuf

	if err := session.Start(command); err != nil {
		return "", "", 0, fmt.Errorf("start command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		_ = session.Signal(xssh.SIGKILL)
		_ = session.Close()
		<-done
		return outBuf.String(), errBuf.String(), 0, ctx.Err()
	case waitErr := <-done:
		stdout = outBuf.String()
		stderr = errBuf.String()
		if waitErr == nil {
			return stdout, stderr, 0, nil
		}
		var exitErr *xssh.ExitError
		if errors.As(waitErr, &exitErr) {
			return stdout, stderr, exitErr.ExitStatus(), nil
		}
		return stdout, stderr, 0, fmt.Errorf("wait for command: %w", waitErr)
	}
}

// writeRemoteFile streams content to the remote path through cat. One
// session per file keeps failures isolated.
func writeRemoteFile(client *xssh.Client, path string, content []byte) error {
	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	session.Stdin = bytes.NewReader(content)
	if err := session.Run("cat > " + shellQuote(path)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// readRemoteFile returns the file content and whether the file existed. Any
// failure reads as absent.
func readRemoteFile(client *xssh.Client, path string) ([]byte, bool) {
	session, err := client.NewSession()
	if err != nil {
		return nil, false
	}
	defer session.Close()

	out, err := session.Output("cat " + shellQuote(path))
	if err != nil {
		return nil, false
	}
	return out, true
}

// shellQuote single-quotes s for safe interpolation into a remote command.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
