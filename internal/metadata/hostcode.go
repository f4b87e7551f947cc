package metadata

import (
	"fmt"
	"strings"

	"emlink/internal/model"
)

// emJsSeparator splits the C parameter list from the body in EM_JS records.
const emJsSeparator = "<::>"

// ParseEmJs reads an EM_JS record of the form "(int x, char* y)<::>{ body }".
// Parameter names are the last word of each C declaration with pointer stars
// removed; "(void)" means no parameters.
func ParseEmJs(raw string) (model.EmJsFunc, error) {
	args, body, ok := strings.Cut(raw, emJsSeparator)
	if !ok {
		return model.EmJsFunc{}, fmt.Errorf("missing %q separator", emJsSeparator)
	}
	args = strings.TrimSpace(args)
	if len(args) < 2 || args[0] != '(' || args[len(args)-1] != ')' {
		return model.EmJsFunc{}, fmt.Errorf("parameter list %q is not parenthesized", args)
	}
	args = strings.TrimSpace(args[1 : len(args)-1])
	fn := model.EmJsFunc{Params: []string{}, Body: strings.TrimSpace(body)}
	if args == "" || args == "void" {
		return fn, nil
	}
	for _, decl := range strings.Split(args, ",") {
		words := strings.Fields(strings.ReplaceAll(decl, "*", " "))
		if len(words) == 0 {
			return model.EmJsFunc{}, fmt.Errorf("empty parameter in %q", args)
		}
		fn.Params = append(fn.Params, words[len(words)-1])
	}
	return fn, nil
}

// TrimAsmConstBody strips the wrapping the backend leaves around inline host
// code: surrounding whitespace, one level of quotes (unescaping \"), braces
// and parentheses, repeated until nothing changes.
func TrimAsmConstBody(body string) string {
	body = strings.TrimSpace(body)
	for {
		orig := body
		if len(body) > 1 && body[0] == '"' && body[len(body)-1] == '"' {
			body = strings.TrimSpace(strings.ReplaceAll(body[1:len(body)-1], `\"`, `"`))
		}
		if len(body) > 1 && body[0] == '{' && body[len(body)-1] == '}' {
			body = strings.TrimSpace(body[1 : len(body)-1])
		}
		if len(body) > 1 && body[0] == '(' && body[len(body)-1] == ')' {
			body = strings.TrimSpace(body[1 : len(body)-1])
		}
		if body == orig {
			return body
		}
	}
}
