package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ScriptLanguage identifies the interpreter a script payload targets.
type ScriptLanguage string

const (
	// ScriptLanguageBash runs the script through the detected login shell.
	ScriptLanguageBash ScriptLanguage = "BASH"
	// ScriptLanguagePython runs the script through python3.
	ScriptLanguagePython ScriptLanguage = "PYTHON"
	// ScriptLanguageNode runs the script through node.
	ScriptLanguageNode ScriptLanguage = "NODE"
)

// Valid returns true if the ScriptLanguage is one of the supported interpreters.
func (l ScriptLanguage) Valid() bool {
	return l == ScriptLanguageBash || l == ScriptLanguagePython || l == ScriptLanguageNode
}

// SSHTarget identifies a remote server reachable over SSH.
type SSHTarget struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"privateKey,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
}

// Key returns the pool key for this target. Connections are shared per
// (host, username, port).
func (t SSHTarget) Key() string {
	return fmt.Sprintf("%s@%s:%d", t.Username, t.Host, t.Port)
}

// Validate validates the SSHTarget fields.
func (t *SSHTarget) Validate() error {
	if strings.TrimSpace(t.Host) == "" {
		return errors.New("target host is required")
	}
	if strings.TrimSpace(t.Username) == "" {
		return errors.New("target username is required")
	}
	if t.Port <= 0 || t.Port > 65535 {
		return errors.New("target port must be between 1 and 65535")
	}
	if t.Password == "" && t.PrivateKey == "" {
		return errors.New("target requires a password or private key")
	}
	return nil
}

// ScriptPayload describes a script execution.
type ScriptPayload struct {
	Language ScriptLanguage  `json:"type"`
	Content  string          `json:"content"`
	Input    json.RawMessage `json:"input,omitempty"`
}

// HTTPRequestPayload describes an HTTP call.
type HTTPRequestPayload struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// ToolActionPayload describes a tool-plugin action dispatched to a registered handler.
type ToolActionPayload struct {
	Tool   string          `json:"tool"`
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// RetryPolicy bounds automatic retries for a job.
type RetryPolicy struct {
	MaxAttempts  int `json:"maxAttempts,omitempty"`
	DelaySeconds int `json:"delaySeconds,omitempty"`
}

// JobPayload is the tagged union carried by a job. Exactly one variant must
// be set, matching the job type; the queue stores it opaquely and only the
// runtime interprets it.
type JobPayload struct {
	Script     *ScriptPayload      `json:"script,omitempty"`
	HTTP       *HTTPRequestPayload `json:"http,omitempty"`
	ToolAction *ToolActionPayload  `json:"toolAction,omitempty"`

	Target         *SSHTarget  `json:"target,omitempty"`
	TimeoutSeconds int         `json:"timeout,omitempty"`
	Retry          RetryPolicy `json:"retry,omitempty"`
}

// ParseJobPayload decodes a raw payload blob.
func ParseJobPayload(raw json.RawMessage) (*JobPayload, error) {
	var p JobPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse job payload: %w", err)
	}
	return &p, nil
}

// ValidateFor checks that exactly the variant matching jobType is present
// and well formed.
func (p *JobPayload) ValidateFor(jobType JobType) error {
	switch jobType {
	case JobTypeScript:
		if p.Script == nil {
			return errors.New("script payload is required for script jobs")
		}
		if p.HTTP != nil || p.ToolAction != nil {
			return errors.New("script jobs must carry only a script payload")
		}
		if !p.Script.Language.Valid() {
			return fmt.Errorf("invalid script language: %s", p.Script.Language)
		}
		if strings.TrimSpace(p.Script.Content) == "" {
			return errors.New("script content is required")
		}
		if p.Target != nil {
			return p.Target.Validate()
		}
		return nil
	case JobTypeHTTPRequest:
		if p.HTTP == nil {
			return errors.New("http payload is required for http_request jobs")
		}
		if p.Script != nil || p.ToolAction != nil {
			return errors.New("http_request jobs must carry only an http payload")
		}
		if _, err := url.ParseRequestURI(p.HTTP.URL); err != nil {
			return fmt.Errorf("invalid request url: %w", err)
		}
		return nil
	case JobTypeToolAction:
		if p.ToolAction == nil {
			return errors.New("toolAction payload is required for tool_action jobs")
		}
		if p.Script != nil || p.HTTP != nil {
			return errors.New("tool_action jobs must carry only a toolAction payload")
		}
		if strings.TrimSpace(p.ToolAction.Tool) == "" || strings.TrimSpace(p.ToolAction.Action) == "" {
			return errors.New("tool and action are required")
		}
		return nil
	}
	return fmt.Errorf("invalid job type: %s", jobType)
}

// Timeout returns the execution timeout, falling back to def when the
// payload does not set one.
func (p *JobPayload) Timeout(def time.Duration) time.Duration {
	if p.TimeoutSeconds > 0 {
		return time.Duration(p.TimeoutSeconds) * time.Second
	}
	return def
}

// TargetResult is the per-target outcome for multi-target executions.
type TargetResult struct {
	Target string `json:"target"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ExecutionResult is the outcome a runtime reports when a job terminates.
type ExecutionResult struct {
	ExitCode     int             `json:"exitCode"`
	Error        string          `json:"error,omitempty"`
	Stdout       string          `json:"stdout,omitempty"`
	Stderr       string          `json:"stderr,omitempty"`
	ScriptOutput json.RawMessage `json:"scriptOutput,omitempty"`
	Condition    *bool           `json:"condition,omitempty"`
	Targets      []TargetResult  `json:"targets,omitempty"`
}

// Success reports whether the result counts as a successful completion: a
// zero exit code and no error text.
func (r *ExecutionResult) Success() bool {
	if r == nil {
		return false
	}
	return r.ExitCode == 0 && r.Error == ""
}

// ParseExecutionResult decodes a stored result blob. Nil is returned for an
// empty blob.
func ParseExecutionResult(raw json.RawMessage) (*ExecutionResult, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var r ExecutionResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("parse execution result: %w", err)
	}
	return &r, nil
}
