package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/croniumhq/cronium-engine/internal/core"
	"github.com/croniumhq/cronium-engine/internal/domain/model"
)

const defaultExecutionTimeout = time.Hour

// handleScriptJob runs a script payload against its SSH target. Execution
// failures come back inside the result; only payload problems are errors.
func (r *Runner) handleScriptJob(ctx context.Context, job *model.Job) (*model.ExecutionResult, error) {
	if r.executor == nil {
		return nil, errors.New("script executor not configured")
	}

	payload, err := model.ParseJobPayload(job.Payload)
	if err != nil {
		return nil, err
	}
	if payload.Script == nil {
		return nil, errors.New("script payload is required")
	}
	if payload.Target == nil {
		return nil, errors.New("script jobs require an ssh target")
	}

	result := r.executor.ExecuteScript(ctx, core.ExecuteScriptRequest{
		UserID:   job.UserID,
		Target:   *payload.Target,
		Language: payload.Script.Language,
		Content:  payload.Script.Content,
		Input:    payload.Script.Input,
		Timeout:  payload.Timeout(defaultExecutionTimeout),
	})
	return result, nil
}

// handleHTTPRequestJob performs the HTTP call described by the payload. A
// 2xx response completes the job; anything else fails it with the status
// and a truncated body for inspection.
func (r *Runner) handleHTTPRequestJob(ctx context.Context, job *model.Job) (*model.ExecutionResult, error) {
	payload, err := model.ParseJobPayload(job.Payload)
	if err != nil {
		return nil, err
	}
	if payload.HTTP == nil {
		return nil, errors.New("http payload is required")
	}

	reqCtx := ctx
	if timeout := payload.Timeout(0); timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	method := payload.HTTP.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(reqCtx, method, payload.HTTP.URL, bytesReader(payload.HTTP.Body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range payload.HTTP.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return &model.ExecutionResult{
			ExitCode: 1,
			Error:    fmt.Sprintf("send request: %v", err),
		}, nil
	}

	body, truncated, readErr := readResponseBody(resp.Body)
	if closeErr := resp.Body.Close(); closeErr != nil && readErr == nil {
		readErr = closeErr
	}
	if readErr != nil {
		return &model.ExecutionResult{
			ExitCode: 1,
			Error:    fmt.Sprintf("read response body: %v", readErr),
		}, nil
	}

	result := &model.ExecutionResult{Stdout: body}
	if truncated {
		result.Stderr = "response body truncated"
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.ExitCode = 1
		result.Error = fmt.Sprintf("unexpected status: %d", resp.StatusCode)
	}

	if output, err := json.Marshal(map[string]any{
		"statusCode": resp.StatusCode,
		"headers":    flattenResponseHeaders(resp.Header),
	}); err == nil {
		result.ScriptOutput = output
	}

	return result, nil
}

// handleToolActionJob dispatches a tool action to its registered handler.
func (r *Runner) handleToolActionJob(ctx context.Context, job *model.Job) (*model.ExecutionResult, error) {
	payload, err := model.ParseJobPayload(job.Payload)
	if err != nil {
		return nil, err
	}
	if payload.ToolAction == nil {
		return nil, errors.New("toolAction payload is required")
	}

	handler, ok := r.toolHandlers[payload.ToolAction.Tool]
	if !ok {
		return nil, fmt.Errorf("no handler registered for tool %s", payload.ToolAction.Tool)
	}

	return handler(ctx, payload.ToolAction.Action, payload.ToolAction.Params)
}

// bytesReader returns an io.Reader for b, or nil if b is empty.
func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return nil
	}
	return bytes.NewReader(b)
}

func flattenResponseHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, values := range h {
		out[k] = strings.Join(values, ", ")
	}
	return out
}

func readResponseBody(body io.Reader) (string, bool, error) {
	if body == nil {
		return "", false, nil
	}
	limited := io.LimitReader(body, maxResponseBodyBytes+1)
	data, readErr := io.ReadAll(limited)
	truncated := len(data) > maxResponseBodyBytes
	if truncated {
		data = data[:maxResponseBodyBytes]
		if _, drainErr := io.Copy(io.Discard, body); drainErr != nil && readErr == nil {
			readErr = drainErr
		}
	}
	return string(data), truncated, readErr
}
