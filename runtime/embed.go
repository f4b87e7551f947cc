// Package runtimeembed provides the embedded JavaScript runtime templates and
// the list of functions the runtime supplies to linked modules.
package runtimeembed

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"strings"
)

//go:embed templates/*.js templates/library.txt
var templatesFS embed.FS

// TemplatesFS exposes the embedded templates.
func TemplatesFS() fs.FS {
	return templatesFS
}

// TextTemplate is the asm.js runtime.
func TextTemplate() []byte {
	return mustRead("templates/asmjs.js")
}

// BinaryTemplate is the glue for WebAssembly binaries.
func BinaryTemplate() []byte {
	return mustRead("templates/wasm.js")
}

// LibrarySymbols lists the functions the runtime provides, without leading
// underscores.
func LibrarySymbols() []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(mustRead("templates/library.txt")))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func mustRead(name string) []byte {
	data, err := templatesFS.ReadFile(name)
	if err != nil {
		panic("runtimeembed: " + err.Error())
	}
	return data
}
