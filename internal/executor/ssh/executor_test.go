package ssh

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croniumhq/cronium-engine/internal/core"
)

func TestDiffVariables(t *testing.T) {
	raw := func(s string) json.RawMessage { return json.RawMessage(s) }

	tests := []struct {
		name        string
		seed        map[string]json.RawMessage
		final       map[string]json.RawMessage
		wantChanged map[string]string
		wantRemoved []string
	}{
		{
			name:        "no changes",
			seed:        map[string]json.RawMessage{"a": raw(`1`)},
			final:       map[string]json.RawMessage{"a": raw(`1`)},
			wantChanged: map[string]string{},
		},
		{
			name:        "added key",
			seed:        map[string]json.RawMessage{},
			final:       map[string]json.RawMessage{"a": raw(`"x"`)},
			wantChanged: map[string]string{"a": `"x"`},
		},
		{
			name:        "changed value",
			seed:        map[string]json.RawMessage{"a": raw(`1`)},
			final:       map[string]json.RawMessage{"a": raw(`2`)},
			wantChanged: map[string]string{"a": `2`},
		},
		{
			name:        "removed key",
			seed:        map[string]json.RawMessage{"a": raw(`1`), "b": raw(`2`)},
			final:       map[string]json.RawMessage{"a": raw(`1`)},
			wantChanged: map[string]string{},
			wantRemoved: []string{"b"},
		},
		{
			name:        "formatting differences are not changes",
			seed:        map[string]json.RawMessage{"a": raw(`{"x":1}`)},
			final:       map[string]json.RawMessage{"a": raw(`{ "x": 1 }`)},
			wantChanged: map[string]string{},
		},
		{
			name: "timestamp stamp diffs like any key",
			seed: map[string]json.RawMessage{"a": raw(`1`)},
			final: map[string]json.RawMessage{
				"a":                 raw(`1`),
				variablesUpdatedKey: raw(`"2026-01-01T00:00:00"`),
			},
			wantChanged: map[string]string{variablesUpdatedKey: `"2026-01-01T00:00:00"`},
		},
		{
			name: "unchanged timestamp stamp is no change",
			seed: map[string]json.RawMessage{
				"a":                 raw(`1`),
				variablesUpdatedKey: raw(`"2026-01-01T00:00:00"`),
			},
			final: map[string]json.RawMessage{
				"a":                 raw(`1`),
				variablesUpdatedKey: raw(`"2026-01-01T00:00:00"`),
			},
			wantChanged: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed, removed := diffVariables(tt.seed, tt.final)

			assert.Len(t, changed, len(tt.wantChanged))
			for key, want := range tt.wantChanged {
				assert.JSONEq(t, want, string(changed[key]))
			}
			assert.ElementsMatch(t, tt.wantRemoved, removed)
		})
	}
}

func TestParseCondition(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   bool
		wantOK bool
	}{
		{name: "envelope true", raw: `{"condition": true}`, want: true, wantOK: true},
		{name: "envelope false", raw: `{"condition": false}`, want: false, wantOK: true},
		{name: "bare boolean", raw: `true`, want: true, wantOK: true},
		{name: "empty envelope", raw: `{}`, wantOK: false},
		{name: "garbage", raw: `nope`, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseCondition([]byte(tt.raw))
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'/tmp/cronium.abc'`, shellQuote("/tmp/cronium.abc"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}

func TestTransportFailureNeverSucceeds(t *testing.T) {
	result := transportFailure("connect", assert.AnError)

	assert.False(t, result.Success())
	assert.Empty(t, result.Stdout)
	assert.Contains(t, result.Stderr, "connect")
}

type stubVariableStore struct {
	vars    map[string]json.RawMessage
	getErr  error
	sets    map[string]json.RawMessage
	deletes []string
}

func (s *stubVariableStore) GetUserVariables(_ context.Context, _ string) (map[string]json.RawMessage, error) {
	return s.vars, s.getErr
}

func (s *stubVariableStore) SetUserVariable(_ context.Context, _, key string, value json.RawMessage) error {
	if s.sets == nil {
		s.sets = make(map[string]json.RawMessage)
	}
	s.sets[key] = value
	return nil
}

func (s *stubVariableStore) DeleteUserVariableByKey(_ context.Context, _, key string) error {
	s.deletes = append(s.deletes, key)
	return nil
}

func TestSeedVariables(t *testing.T) {
	ctx := context.Background()

	t.Run("caller map wins over store", func(t *testing.T) {
		store := &stubVariableStore{vars: map[string]json.RawMessage{"stored": json.RawMessage(`1`)}}
		e := &Executor{variables: store}

		seed, err := e.seedVariables(ctx, core.ExecuteScriptRequest{
			UserID:    "u1",
			Variables: map[string]json.RawMessage{"caller": json.RawMessage(`2`)},
		})

		require.NoError(t, err)
		assert.Contains(t, seed, "caller")
		assert.NotContains(t, seed, "stored")
	})

	t.Run("falls back to store", func(t *testing.T) {
		store := &stubVariableStore{vars: map[string]json.RawMessage{"stored": json.RawMessage(`1`)}}
		e := &Executor{variables: store}

		seed, err := e.seedVariables(ctx, core.ExecuteScriptRequest{UserID: "u1"})

		require.NoError(t, err)
		assert.Contains(t, seed, "stored")
	})

	t.Run("empty without store", func(t *testing.T) {
		e := &Executor{}

		seed, err := e.seedVariables(ctx, core.ExecuteScriptRequest{UserID: "u1"})

		require.NoError(t, err)
		assert.Empty(t, seed)
	})
}

func TestPersistVariableChanges(t *testing.T) {
	ctx := context.Background()
	store := &stubVariableStore{}
	e := &Executor{variables: store}

	seed := map[string]json.RawMessage{
		"keep":   json.RawMessage(`1`),
		"change": json.RawMessage(`"old"`),
		"drop":   json.RawMessage(`true`),
	}
	final := map[string]json.RawMessage{
		"keep":              json.RawMessage(`1`),
		"change":            json.RawMessage(`"new"`),
		"add":               json.RawMessage(`[1,2]`),
		variablesUpdatedKey: json.RawMessage(`"2026-01-01T00:00:00"`),
	}

	e.persistVariableChanges(ctx, "u1", seed, final)

	// The shim's __updated__ stamp persists alongside the user keys, so the
	// next execution seeds from the last write time.
	require.Len(t, store.sets, 3)
	assert.JSONEq(t, `"new"`, string(store.sets["change"]))
	assert.JSONEq(t, `[1,2]`, string(store.sets["add"]))
	assert.JSONEq(t, `"2026-01-01T00:00:00"`, string(store.sets[variablesUpdatedKey]))
	assert.Equal(t, []string{"drop"}, store.deletes)
}

func TestNewExecutorRequiresPool(t *testing.T) {
	_, err := NewExecutor(ExecutorOptions{})
	require.Error(t, err)
}
