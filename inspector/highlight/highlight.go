// Package highlight applies ANSI terminal syntax highlighting to the
// two textual payloads the inspector TUI previews: SQL text (the
// EXECUTE/PREPARE request's SQL_TEXT field) and Lua source (the
// EVAL/CALL request's EXPR or FUNCTION_NAME field). Grounded verbatim
// on the teacher's highlight.SQL, generalized with a second lexer
// since IPROTO carries Lua, not just SQL.
package highlight

import (
	"bytes"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

var (
	formatter chroma.Formatter
	style     *chroma.Style
	sqlLexer  chroma.Lexer
	luaLexer  chroma.Lexer
)

func init() {
	formatter = formatters.Get("terminal256")
	style = styles.Get("monokai")
	sqlLexer = lexers.Get("sql")
	luaLexer = lexers.Get("lua")
}

// SQL returns s with ANSI SQL syntax highlighting applied. On error or
// empty input, s is returned unchanged.
func SQL(s string) string {
	return render(sqlLexer, s)
}

// Lua returns s with ANSI Lua syntax highlighting applied, used for
// EVAL's EXPR and CALL's FUNCTION_NAME fields. On error or empty
// input, s is returned unchanged.
func Lua(s string) string {
	return render(luaLexer, s)
}

func render(lexer chroma.Lexer, s string) string {
	if s == "" || lexer == nil {
		return s
	}

	iterator, err := lexer.Tokenise(nil, s)
	if err != nil {
		return s
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return s
	}

	return strings.TrimRight(buf.String(), "\n")
}
