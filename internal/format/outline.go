package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// WriteOutline writes a human readable, indented rendering. Nodes (objects
// with id, label and level) print as one line each; nested section/title views
// indent their children under the parent node. Anything else prints as
// "key: value" lines.
func WriteOutline(w io.Writer, v any) error {
	// Go through JSON so struct tags decide the field names.
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var x any
	if err := json.Unmarshal(b, &x); err != nil {
		return err
	}
	if m, ok := x.(map[string]any); ok && len(m) == 1 {
		if d, ok := m["data"]; ok {
			x = d
		}
	}

	var buf bytes.Buffer
	enc := outlineEncoder{indent: 2}
	enc.writeAny(&buf, x, 0)
	_, err = w.Write(buf.Bytes())
	return err
}

type outlineEncoder struct {
	indent int
}

func (e outlineEncoder) pad(level int) string {
	return strings.Repeat(" ", level*e.indent)
}

func (e outlineEncoder) writeAny(buf *bytes.Buffer, v any, level int) {
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			buf.WriteString(e.pad(level) + "(none)\n")
			return
		}
		for _, it := range t {
			if isComposite(it) {
				e.writeAny(buf, it, level)
				continue
			}
			buf.WriteString(e.pad(level) + "- " + scalar(it) + "\n")
		}
	case map[string]any:
		if line, ok := nodeLine(t); ok {
			buf.WriteString(e.pad(level) + line + "\n")
			return
		}
		if n, ok := t["node"].(map[string]any); ok {
			if line, ok := nodeLine(n); ok {
				buf.WriteString(e.pad(level) + line + "\n")
				for _, k := range sortedKeys(t) {
					if k == "node" {
						continue
					}
					if kids, ok := t[k].([]any); ok {
						for _, kid := range kids {
							e.writeAny(buf, kid, level+1)
						}
					}
				}
				return
			}
		}
		for _, k := range sortedKeys(t) {
			val := t[k]
			if isComposite(val) {
				buf.WriteString(e.pad(level) + k + ":\n")
				e.writeAny(buf, val, level+1)
				continue
			}
			buf.WriteString(e.pad(level) + k + ": " + scalar(val) + "\n")
		}
	default:
		buf.WriteString(e.pad(level) + scalar(v) + "\n")
	}
}

func nodeLine(m map[string]any) (string, bool) {
	id, okID := m["id"].(string)
	label, okLabel := m["label"].(string)
	level, okLevel := m["level"].(string)
	if !okID || !okLabel || !okLevel {
		return "", false
	}
	line := fmt.Sprintf("%s  (%s %s", label, level, id)
	if idx, ok := m["index"].(float64); ok {
		line += " #" + strconv.FormatInt(int64(idx), 10)
	}
	return line + ")", true
}

func isComposite(v any) bool {
	switch v.(type) {
	case []any, map[string]any:
		return true
	}
	return false
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		// JSON numbers become float64 in interface{}.
		if float64(int64(t)) == t {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
