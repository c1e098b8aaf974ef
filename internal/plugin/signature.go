// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

package plugin

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/samber/oops"
)

// maxSignatureParams bounds declared hook signatures to a sane size.
const maxSignatureParams = 16

// sigLexer defines the token types for hook signature declarations.
// The Arrow rule handles the two-character "->" operator that the
// default lexer would split into individual characters.
var sigLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Arrow", Pattern: `->`},
	{Name: "Ident", Pattern: `[a-zA-Z_]\w*`},
	{Name: "Punct", Pattern: `[(),]`},
	{Name: "whitespace", Pattern: `\s+`},
})

// Signature describes a hook's expected call shape.
//
// Grammar: name "(" [ param ("," param)* ] ")" [ "->" result ]
type Signature struct {
	Pos    lexer.Position `parser:"" json:"-"`
	Name   string         `parser:"@Ident" json:"name"`
	Params []string       `parser:"'(' (@Ident (',' @Ident)*)? ')'" json:"params,omitempty"`
	Result string         `parser:"(Arrow @Ident)?" json:"result,omitempty"`
}

// signatureParser is the singleton participle parser instance.
var signatureParser *participle.Parser[Signature]

func init() {
	var err error
	signatureParser, err = participle.Build[Signature](participle.Lexer(sigLexer))
	if err != nil {
		panic(fmt.Sprintf("failed to build signature parser: %v", err))
	}
}

// ParseSignature parses a hook signature declaration such as
// "on_deploy(environment, version) -> list".
func ParseSignature(text string) (*Signature, error) {
	sig, err := signatureParser.ParseString("", text)
	if err != nil {
		return nil, oops.Wrapf(err, "parsing hook signature")
	}
	if len(sig.Params) > maxSignatureParams {
		return nil, oops.Errorf("signature declares %d parameters, maximum is %d", len(sig.Params), maxSignatureParams)
	}
	return sig, nil
}

// Mismatches compares the named arguments of an emission against the
// declared parameters and returns human-readable discrepancies. The
// check is soft: callers log the result, they never reject on it.
func (s *Signature) Mismatches(args map[string]any) []string {
	var out []string
	if len(args) != len(s.Params) {
		out = append(out, fmt.Sprintf("expected %d arguments, got %d", len(s.Params), len(args)))
	}
	for _, p := range s.Params {
		if _, ok := args[p]; !ok {
			out = append(out, fmt.Sprintf("missing argument %q", p))
		}
	}
	return out
}

// String reconstructs the declaration form of the signature.
func (s *Signature) String() string {
	text := s.Name + "("
	for i, p := range s.Params {
		if i > 0 {
			text += ", "
		}
		text += p
	}
	text += ")"
	if s.Result != "" {
		text += " -> " + s.Result
	}
	return text
}
