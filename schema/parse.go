package schema

import (
	"regexp"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/domforge/domhost/errors"
)

// World text grammar, one statement per declaration:
//
//	world dom-node {
//	  record attr { name: string, value: string }
//	  variant node-kind { element(string), text(string), comment }
//	  import log: func(message: string)
//	  export create: func(kind: node-kind) -> u32
//	}
//
// Named types must be declared before the first signature that uses
// them. Record and variant bodies may span lines; // comments are
// ignored.

var (
	worldHeaderPattern = regexp.MustCompile(`^world\s+([a-zA-Z][a-zA-Z0-9-]*)\s*\{$`)
	funcPattern        = regexp.MustCompile(`^(import|export)\s+([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\((.*)\)\s*(?:->\s*(.+))?$`)
	typeDeclPattern    = regexp.MustCompile(`^(record|variant)\s+([a-zA-Z][a-zA-Z0-9-]*)\s*\{(.*)\}$`)
)

// ParseWorld parses world text into a World. It rejects duplicate
// function names within one direction, unknown type references, and
// malformed record or variant declarations.
func ParseWorld(data []byte) (*World, error) {
	stmts, name, err := splitStatements(string(data))
	if err != nil {
		return nil, err
	}

	w := &World{Name: name}
	named := make(map[string]ValueType)
	seen := map[string]map[string]bool{
		"import": make(map[string]bool),
		"export": make(map[string]bool),
	}

	for _, stmt := range stmts {
		if m := typeDeclPattern.FindStringSubmatch(stmt); m != nil {
			kind, typeName, body := m[1], m[2], m[3]
			if _, dup := named[typeName]; dup {
				return nil, errors.Schema("duplicate type declaration %q", typeName)
			}
			var t ValueType
			var perr error
			if kind == "record" {
				t, perr = parseRecordBody(typeName, body, named)
			} else {
				t, perr = parseVariantBody(typeName, body, named)
			}
			if perr != nil {
				return nil, perr
			}
			named[typeName] = t
			continue
		}

		if m := funcPattern.FindStringSubmatch(stmt); m != nil {
			direction, funcName, paramsStr, resultStr := m[1], m[2], m[3], strings.TrimSpace(m[4])
			if seen[direction][funcName] {
				return nil, errors.Schema("duplicate %s %q", direction, funcName)
			}
			seen[direction][funcName] = true

			sig, perr := parseSignature(funcName, paramsStr, resultStr, named)
			if perr != nil {
				return nil, perr
			}

			fn := Function{Name: funcName, Signature: sig}
			if direction == "import" {
				w.Imports = append(w.Imports, fn)
			} else {
				w.Exports = append(w.Exports, fn)
			}
			continue
		}

		return nil, errors.Schema("malformed statement %q", stmt)
	}

	return w, nil
}

// splitStatements strips comments, validates the world wrapper and
// joins brace-continued lines into single statements.
func splitStatements(text string) ([]string, string, error) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return nil, "", errors.Schema("empty world text")
	}

	header := worldHeaderPattern.FindStringSubmatch(lines[0])
	if header == nil {
		return nil, "", errors.Schema("expected `world <name> {`, got %q", lines[0])
	}
	if lines[len(lines)-1] != "}" {
		return nil, "", errors.Schema("world %q is not closed", header[1])
	}

	var stmts []string
	var pending strings.Builder
	depth := 0
	for _, line := range lines[1 : len(lines)-1] {
		if pending.Len() > 0 {
			pending.WriteByte(' ')
		}
		pending.WriteString(line)
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if depth < 0 {
			return nil, "", errors.Schema("unbalanced braces near %q", line)
		}
		if depth == 0 {
			stmts = append(stmts, strings.TrimSuffix(strings.TrimSpace(pending.String()), ";"))
			pending.Reset()
		}
	}
	if pending.Len() > 0 {
		return nil, "", errors.Schema("unterminated declaration %q", pending.String())
	}

	return stmts, header[1], nil
}

func parseSignature(funcName, paramsStr, resultStr string, named map[string]ValueType) (FunctionSignature, error) {
	var sig FunctionSignature

	for _, part := range splitTop(paramsStr) {
		pname, ptype, found := strings.Cut(part, ":")
		if !found {
			return sig, errors.Schema("func %q: parameter %q missing type", funcName, part)
		}
		pname = strings.TrimSpace(pname)
		t, err := parseType(strings.TrimSpace(ptype), named)
		if err != nil {
			return sig, errors.Schema("func %q parameter %q: %v", funcName, pname, err)
		}
		for _, p := range sig.Params {
			if p.Name == pname {
				return sig, errors.Schema("func %q: duplicate parameter %q", funcName, pname)
			}
		}
		sig.Params = append(sig.Params, Param{Name: pname, Type: t})
	}

	if resultStr != "" && resultStr != "()" {
		t, err := parseType(resultStr, named)
		if err != nil {
			return sig, errors.Schema("func %q result: %v", funcName, err)
		}
		sig.Result = &t
	}

	return sig, nil
}

func parseRecordBody(name, body string, named map[string]ValueType) (ValueType, error) {
	fields := splitTop(body)
	if len(fields) == 0 {
		return ValueType{}, errors.Schema("record %q has no fields", name)
	}
	rec := ValueType{Kind: KindRecord}
	for _, f := range fields {
		fname, ftype, found := strings.Cut(f, ":")
		if !found {
			return ValueType{}, errors.Schema("record %q: field %q missing type", name, f)
		}
		fname = strings.TrimSpace(fname)
		for _, existing := range rec.Fields {
			if existing.Name == fname {
				return ValueType{}, errors.Schema("record %q: duplicate field %q", name, fname)
			}
		}
		t, err := parseType(strings.TrimSpace(ftype), named)
		if err != nil {
			return ValueType{}, errors.Schema("record %q field %q: %v", name, fname, err)
		}
		rec.Fields = append(rec.Fields, Field{Name: fname, Type: t})
	}
	return rec, nil
}

func parseVariantBody(name, body string, named map[string]ValueType) (ValueType, error) {
	cases := splitTop(body)
	if len(cases) == 0 {
		return ValueType{}, errors.Schema("variant %q has no cases", name)
	}
	v := ValueType{Kind: KindVariant}
	for _, c := range cases {
		caseName := c
		var payload *ValueType
		if open := strings.Index(c, "("); open >= 0 {
			if !strings.HasSuffix(c, ")") {
				return ValueType{}, errors.Schema("variant %q: malformed case %q", name, c)
			}
			caseName = strings.TrimSpace(c[:open])
			t, err := parseType(strings.TrimSpace(c[open+1:len(c)-1]), named)
			if err != nil {
				return ValueType{}, errors.Schema("variant %q case %q: %v", name, caseName, err)
			}
			payload = &t
		}
		if caseName == "" {
			return ValueType{}, errors.Schema("variant %q: empty case name", name)
		}
		for _, existing := range v.Cases {
			if existing.Name == caseName {
				return ValueType{}, errors.Schema("variant %q: duplicate case %q", name, caseName)
			}
		}
		v.Cases = append(v.Cases, Case{Name: caseName, Type: payload})
	}
	return v, nil
}

// parseType parses one type expression. Compound constructors are
// handled here; leaf tokens resolve against declared names first, then
// against the WIT primitive grammar.
func parseType(s string, named map[string]ValueType) (ValueType, error) {
	s = strings.TrimSpace(s)

	if inner, ok := angleBody(s, "list"); ok {
		elem, err := parseType(inner, named)
		if err != nil {
			return ValueType{}, err
		}
		return List(elem), nil
	}
	if inner, ok := angleBody(s, "option"); ok {
		elem, err := parseType(inner, named)
		if err != nil {
			return ValueType{}, err
		}
		return Option(elem), nil
	}
	if inner, ok := angleBody(s, "handle"); ok {
		if inner == "" {
			return ValueType{}, errors.Schema("handle requires a resource id")
		}
		return Handle(inner), nil
	}
	if s == "result" {
		return Result(nil, nil), nil
	}
	if inner, ok := angleBody(s, "result"); ok {
		parts := splitTop(inner)
		switch len(parts) {
		case 1:
			ok, err := parseType(parts[0], named)
			if err != nil {
				return ValueType{}, err
			}
			return Result(&ok, nil), nil
		case 2:
			var okT, errT *ValueType
			if parts[0] != "_" {
				t, err := parseType(parts[0], named)
				if err != nil {
					return ValueType{}, err
				}
				okT = &t
			}
			if parts[1] != "_" {
				t, err := parseType(parts[1], named)
				if err != nil {
					return ValueType{}, err
				}
				errT = &t
			}
			return Result(okT, errT), nil
		default:
			return ValueType{}, errors.Schema("result takes at most two type arguments, got %q", s)
		}
	}

	if t, ok := named[s]; ok {
		return t, nil
	}

	parsed, err := wit.ParseType(s)
	if err != nil {
		return ValueType{}, errors.Schema("unknown type reference %q", s)
	}
	return fromWit(s, parsed)
}

// fromWit converts a parsed WIT primitive into the structural model.
func fromWit(token string, t wit.Type) (ValueType, error) {
	switch t.(type) {
	case wit.Bool:
		return Bool(), nil
	case wit.S8:
		return S8(), nil
	case wit.U8:
		return U8(), nil
	case wit.S16:
		return S16(), nil
	case wit.U16:
		return U16(), nil
	case wit.S32:
		return S32(), nil
	case wit.U32:
		return U32(), nil
	case wit.S64:
		return S64(), nil
	case wit.U64:
		return U64(), nil
	case wit.F32:
		return F32(), nil
	case wit.F64:
		return F64(), nil
	case wit.Char:
		return Char(), nil
	case wit.String:
		return String(), nil
	default:
		return ValueType{}, errors.Schema("unknown type reference %q", token)
	}
}

// angleBody returns the content of `prefix<...>` when s has that shape.
func angleBody(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix+"<") || !strings.HasSuffix(s, ">") {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix)+1 : len(s)-1]), true
}

// splitTop splits on commas outside any nesting of (), <> and {}.
func splitTop(s string) []string {
	var result []string
	var current strings.Builder
	depth := 0

	for _, ch := range s {
		switch ch {
		case '(', '<', '{':
			depth++
			current.WriteRune(ch)
		case ')', '>', '}':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				if str := strings.TrimSpace(current.String()); str != "" {
					result = append(result, str)
				}
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}

	if str := strings.TrimSpace(current.String()); str != "" {
		result = append(result, str)
	}

	return result
}
