package metadata

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"emlink/internal/model"
	"emlink/internal/sig"
)

// decodeTable reads one function table. Two shapes are accepted: a JSON array
// whose null or "0" entries are empty slots, and the legacy backend string
//
//	var FUNCTION_TABLE_vi = [b0,_f,0,_g];
//
// in which 0 and the backend's own bN trap placeholders are empty slots.
func decodeTable(s sig.Signature, raw json.RawMessage, f form) ([]model.Slot, error) {
	var entries []*string
	if err := json.Unmarshal(raw, &entries); err == nil {
		slots := make([]model.Slot, len(entries))
		for i, e := range entries {
			if e == nil || *e == "0" || *e == "" {
				continue
			}
			slots[i] = model.SymbolSlot(f.name(*e))
		}
		return slots, nil
	}
	var literal string
	if err := json.Unmarshal(raw, &literal); err != nil {
		return nil, badValue("tables", raw, fmt.Errorf("table %s: expected an array or a table literal", s))
	}
	slots, err := ParseTableLiteral(s, literal)
	if err != nil {
		return nil, badValue("tables", []byte(literal), err)
	}
	return slots, nil
}

var trapPlaceholder = regexp.MustCompile(`^b\d+$`)

// ParseTableLiteral parses the legacy `var FUNCTION_TABLE_<sig> = [...];`
// form.
func ParseTableLiteral(s sig.Signature, literal string) ([]model.Slot, error) {
	open := strings.IndexByte(literal, '[')
	closing := strings.LastIndexByte(literal, ']')
	if open < 0 || closing < open {
		return nil, fmt.Errorf("table %s: missing [ ... ]", s)
	}
	if head := strings.TrimSpace(literal[:open]); head != "" {
		want := "FUNCTION_TABLE_" + string(s)
		if !strings.Contains(head, want) {
			return nil, fmt.Errorf("table literal names %q, want %s", head, want)
		}
	}
	body := strings.TrimSpace(literal[open+1 : closing])
	if body == "" {
		return []model.Slot{}, nil
	}
	parts := strings.Split(body, ",")
	slots := make([]model.Slot, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
			return nil, fmt.Errorf("table %s: empty entry at index %d", s, i)
		case p == "0" || trapPlaceholder.MatchString(p):
		default:
			slots[i] = model.SymbolSlot(p)
		}
	}
	return slots, nil
}
