package emulator

import (
	"strings"

	"github.com/warehouselabs/replica-gateway/warehouse"
)

// parsedOptions is a DatasetOptions plus the replica named by a
// default_replica assignment, which only appears in ALTER statements.
type parsedOptions struct {
	warehouse.DatasetOptions
	primaryReplica string
}

// parseOptionAssignments decodes the body of an OPTIONS(...) clause. It
// returns the decoded options along with the assignment names in statement
// order so callers know which options were actually assigned.
func parseOptionAssignments(expr string) (parsedOptions, []string, error) {
	var opts parsedOptions
	if strings.TrimSpace(expr) == "" {
		return opts, nil, nil
	}

	var names []string
	var optionRows []warehouse.Row
	for _, assign := range splitAssignments(expr) {
		name, value, ok := strings.Cut(assign, "=")
		if !ok {
			return opts, nil, warehouse.NewStatementError(warehouse.CodeInvalidArgument,
				"malformed option assignment: "+assign, nil)
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		names = append(names, name)

		if name == warehouse.OptionDefaultReplica {
			if len(value) < 2 || value[0] != '`' || value[len(value)-1] != '`' {
				return opts, nil, warehouse.NewStatementError(warehouse.CodeInvalidArgument,
					"default_replica requires a quoted location: "+value, nil)
			}
			opts.primaryReplica = value[1 : len(value)-1]
			continue
		}

		optionRows = append(optionRows, warehouse.Row{
			"option_name":  name,
			"option_value": value,
		})
	}

	parsed, err := warehouse.ParseDatasetOptionRows(optionRows)
	if err != nil {
		return opts, nil, warehouse.NewStatementError(warehouse.CodeInvalidArgument,
			err.Error(), err)
	}
	opts.DatasetOptions = parsed

	return opts, names, nil
}

// splitAssignments splits an OPTIONS body on top-level commas, leaving
// commas inside string literals, backtick identifiers, and bracketed
// expressions alone.
func splitAssignments(s string) []string {
	var parts []string
	depth := 0
	inDouble := false
	inSingle := false
	inBacktick := false
	start := 0

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if inDouble {
			if ch == '\\' {
				i++
			} else if ch == '"' {
				inDouble = false
			}
			continue
		}
		if inSingle {
			if ch == '\\' {
				i++
			} else if ch == '\'' {
				inSingle = false
			}
			continue
		}
		if inBacktick {
			if ch == '`' {
				inBacktick = false
			}
			continue
		}

		switch ch {
		case '"':
			inDouble = true
		case '\'':
			inSingle = true
		case '`':
			inBacktick = true
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}

	parts = append(parts, strings.TrimSpace(s[start:]))
	return parts
}
