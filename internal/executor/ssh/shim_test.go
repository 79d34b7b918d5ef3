package ssh

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croniumhq/cronium-engine/internal/domain/model"
)

func TestBuildScriptPrependsShim(t *testing.T) {
	tests := []struct {
		name     string
		language model.ScriptLanguage
		content  string
		symbols  []string
	}{
		{
			name:     "bash",
			language: model.ScriptLanguageBash,
			content:  `cronium.output '{"ok": true}'`,
			symbols:  []string{"cronium.input()", "cronium.setVariable()", "cronium.setCondition()"},
		},
		{
			name:     "python",
			language: model.ScriptLanguagePython,
			content:  `cronium.output({"ok": True})`,
			symbols:  []string{"class _Cronium", "def setVariable", "cronium = _Cronium()"},
		},
		{
			name:     "node",
			language: model.ScriptLanguageNode,
			content:  `cronium.output({ok: true});`,
			symbols:  []string{"globalThis.cronium", "setVariable(key, value)", "setCondition(condition)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script, err := buildScript(tt.language, tt.content)
			require.NoError(t, err)

			for _, symbol := range tt.symbols {
				assert.Contains(t, script, symbol)
			}

			// Shim first, user content after, so helper symbols are in scope.
			assert.Less(t,
				strings.Index(script, tt.symbols[0]),
				strings.Index(script, tt.content),
			)
		})
	}
}

func TestBuildScriptRejectsUnknownLanguage(t *testing.T) {
	_, err := buildScript(model.ScriptLanguage("RUBY"), "puts 1")
	require.Error(t, err)
}

func TestShimsReferenceProtocolFiles(t *testing.T) {
	for _, shim := range []string{bashShim, pythonShim, nodeShim} {
		assert.Contains(t, shim, outputFileName)
		assert.Contains(t, shim, conditionFileName)
		assert.Contains(t, shim, variablesFileName)
		assert.Contains(t, shim, variablesUpdatedKey)
	}
}

func TestScriptFileName(t *testing.T) {
	assert.Equal(t, "script.sh", scriptFileName(model.ScriptLanguageBash))
	assert.Equal(t, "script.py", scriptFileName(model.ScriptLanguagePython))
	assert.Equal(t, "script.js", scriptFileName(model.ScriptLanguageNode))
}

func TestInterpreterCommand(t *testing.T) {
	assert.Equal(t, "/bin/bash", interpreterCommand(model.ScriptLanguageBash, "/bin/bash"))
	assert.Equal(t, "/bin/sh", interpreterCommand(model.ScriptLanguageBash, ""))
	assert.Equal(t, "python3", interpreterCommand(model.ScriptLanguagePython, "/bin/zsh"))
	assert.Equal(t, "node", interpreterCommand(model.ScriptLanguageNode, "/bin/zsh"))
}
