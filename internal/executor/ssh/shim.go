package ssh

import (
	"fmt"

	"github.com/croniumhq/cronium-engine/internal/domain/model"
)

// Well-known files in the per-execution working directory. The helper shim
// and the executor agree on these names; scripts never see absolute paths
// because every command runs with the working directory as cwd.
const (
	inputFileName     = "input.json"
	outputFileName    = "output.json"
	conditionFileName = "condition.json"
	variablesFileName = "variables.json"
)

// variablesUpdatedKey is the timestamp the shims stamp on every setVariable
// call. It persists through the store like any other variable, so the next
// execution can see when the user's variables last changed.
const variablesUpdatedKey = "__updated__"

// buildScript prepends the language shim to the user script so the helper
// symbols are in scope without the script managing imports. The shim is
// generated fresh per execution.
func buildScript(language model.ScriptLanguage, content string) (string, error) {
	switch language {
	case model.ScriptLanguageBash:
		return bashShim + "\n" + content + "\n", nil
	case model.ScriptLanguagePython:
		return pythonShim + "\n" + content + "\n", nil
	case model.ScriptLanguageNode:
		return nodeShim + "\n" + content + "\n", nil
	}
	return "", fmt.Errorf("unsupported script language: %s", language)
}

// scriptFileName returns the working-directory file the assembled script is
// written to.
func scriptFileName(language model.ScriptLanguage) string {
	switch language {
	case model.ScriptLanguagePython:
		return "script.py"
	case model.ScriptLanguageNode:
		return "script.js"
	default:
		return "script.sh"
	}
}

// interpreterCommand returns the interpreter invocation for the script file.
// Bash scripts run under the target's detected login shell.
func interpreterCommand(language model.ScriptLanguage, shell string) string {
	switch language {
	case model.ScriptLanguagePython:
		return "python3"
	case model.ScriptLanguageNode:
		return "node"
	default:
		if shell == "" {
			return "/bin/sh"
		}
		return shell
	}
}

// The bash shim delegates JSON handling for variables to python3 on the
// target; input/output/condition are plain file reads and writes.
const bashShim = `# cronium helper functions
cronium.input() {
  cat -- ` + inputFileName + ` 2>/dev/null || printf '{}'
}
cronium.output() {
  printf '%s\n' "$1" > ` + outputFileName + `
}
cronium.setCondition() {
  case "$1" in
    true|True|1|yes) printf '{"condition": true}\n' > ` + conditionFileName + ` ;;
    *) printf '{"condition": false}\n' > ` + conditionFileName + ` ;;
  esac
}
cronium.getVariable() {
  python3 - "$1" <<'CRONIUM_PY'
import json, sys
try:
    with open("` + variablesFileName + `") as f:
        data = json.load(f)
except (FileNotFoundError, json.JSONDecodeError):
    data = {}
value = data.get(sys.argv[1])
if value is not None:
    print(json.dumps(value) if not isinstance(value, str) else value)
CRONIUM_PY
}
cronium.setVariable() {
  python3 - "$1" "$2" <<'CRONIUM_PY'
import datetime, json, sys
try:
    with open("` + variablesFileName + `") as f:
        data = json.load(f)
except (FileNotFoundError, json.JSONDecodeError):
    data = {}
try:
    value = json.loads(sys.argv[2])
except json.JSONDecodeError:
    value = sys.argv[2]
data[sys.argv[1]] = value
data["` + variablesUpdatedKey + `"] = datetime.datetime.now().isoformat()
with open("` + variablesFileName + `", "w") as f:
    json.dump(data, f, indent=2)
CRONIUM_PY
}
`

const pythonShim = `# cronium helper library
import datetime as _cronium_datetime
import json as _cronium_json
import sys as _cronium_sys


class _Cronium:
    def __init__(self):
        try:
            with open("` + inputFileName + `") as f:
                self._input_data = _cronium_json.load(f)
        except (FileNotFoundError, _cronium_json.JSONDecodeError):
            self._input_data = {}
        self._condition = None

    def input(self):
        return self._input_data

    def output(self, data):
        try:
            with open("` + outputFileName + `", "w") as f:
                _cronium_json.dump(data, f, indent=2)
        except Exception as e:
            print(f"Error writing output: {e}", file=_cronium_sys.stderr)

    def setCondition(self, condition):
        self._condition = bool(condition)
        try:
            with open("` + conditionFileName + `", "w") as f:
                _cronium_json.dump({"condition": self._condition}, f, indent=2)
        except Exception as e:
            print(f"Error writing condition: {e}", file=_cronium_sys.stderr)
        return self._condition

    def getCondition(self):
        return self._condition

    def getVariable(self, key):
        try:
            with open("` + variablesFileName + `") as f:
                data = _cronium_json.load(f)
            return data.get(key)
        except (FileNotFoundError, _cronium_json.JSONDecodeError):
            return None

    def setVariable(self, key, value):
        try:
            try:
                with open("` + variablesFileName + `") as f:
                    data = _cronium_json.load(f)
            except (FileNotFoundError, _cronium_json.JSONDecodeError):
                data = {}
            data[key] = value
            data["` + variablesUpdatedKey + `"] = _cronium_datetime.datetime.now().isoformat()
            with open("` + variablesFileName + `", "w") as f:
                _cronium_json.dump(data, f, indent=2)
            return True
        except Exception as e:
            print(f"Error setting variable {key}: {e}", file=_cronium_sys.stderr)
            return False


cronium = _Cronium()
output = cronium.output
setCondition = cronium.setCondition
getCondition = cronium.getCondition
getVariable = cronium.getVariable
setVariable = cronium.setVariable
`

const nodeShim = `// cronium helper library
const _croniumFs = require('fs');
const cronium = {
  _condition: null,
  input() {
    try {
      return JSON.parse(_croniumFs.readFileSync('` + inputFileName + `', 'utf8'));
    } catch {
      return {};
    }
  },
  output(data) {
    try {
      _croniumFs.writeFileSync('` + outputFileName + `', JSON.stringify(data, null, 2));
    } catch (e) {
      process.stderr.write('Error writing output: ' + e + '\n');
    }
  },
  setCondition(condition) {
    this._condition = Boolean(condition);
    try {
      _croniumFs.writeFileSync('` + conditionFileName + `', JSON.stringify({ condition: this._condition }));
    } catch (e) {
      process.stderr.write('Error writing condition: ' + e + '\n');
    }
    return this._condition;
  },
  getCondition() {
    return this._condition;
  },
  getVariable(key) {
    try {
      const data = JSON.parse(_croniumFs.readFileSync('` + variablesFileName + `', 'utf8'));
      return key in data ? data[key] : null;
    } catch {
      return null;
    }
  },
  setVariable(key, value) {
    let data = {};
    try {
      data = JSON.parse(_croniumFs.readFileSync('` + variablesFileName + `', 'utf8'));
    } catch {}
    data[key] = value;
    data['` + variablesUpdatedKey + `'] = new Date().toISOString();
    try {
      _croniumFs.writeFileSync('` + variablesFileName + `', JSON.stringify(data, null, 2));
    } catch (e) {
      process.stderr.write('Error setting variable ' + key + ': ' + e + '\n');
      return false;
    }
    return true;
  },
};
globalThis.cronium = cronium;
`
