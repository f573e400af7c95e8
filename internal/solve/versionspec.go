package solve

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// specOp enumerates the inequality operators a VersionSpec atom may
// carry.
type specOp int

const (
	opExact specOp = iota
	opFuzzy
	opGlob
	opGt
	opGte
	opLt
	opLte
	opNe
)

// specAtom is a single predicate over a Version: one of exact, fuzzy,
// glob, or inequality forms.
type specAtom struct {
	op      specOp
	version Version // unused when op == opGlob
	pattern *regexp.Regexp
	raw     string
}

func (a specAtom) match(v Version) bool {
	switch a.op {
	case opExact:
		return v.Equal(a.version)
	case opFuzzy:
		bumped := a.version.nextSegmentBump()
		return !v.LessThan(a.version) && v.LessThan(bumped)
	case opGlob:
		return a.pattern.MatchString(v.raw)
	case opGt:
		return v.GreaterThan(a.version)
	case opGte:
		return !v.LessThan(a.version)
	case opLt:
		return v.LessThan(a.version)
	case opLte:
		return !v.GreaterThan(a.version)
	case opNe:
		return !v.Equal(a.version)
	default:
		return false
	}
}

// specNode is a node in the VersionSpec boolean expression tree: an
// atom, an OR of sub-nodes, or an AND of sub-nodes.
type specNode struct {
	atom     *specAtom
	or, and  []specNode
}

func (n specNode) match(v Version) bool {
	if n.atom != nil {
		return n.atom.match(v)
	}
	if len(n.or) > 0 {
		for _, child := range n.or {
			if child.match(v) {
				return true
			}
		}
		return false
	}
	if len(n.and) > 0 {
		for _, child := range n.and {
			if !child.match(v) {
				return false
			}
		}
		return true
	}
	return true
}

func (n specNode) isExact() bool {
	if n.atom != nil {
		return n.atom.op == opExact
	}
	if len(n.or) == 1 {
		return n.or[0].isExact()
	}
	if len(n.and) == 1 {
		return n.and[0].isExact()
	}
	return false
}

// VersionSpec is a boolean expression over Version predicates, parsed
// from the grammar: expression := or_term ('|' or_term)*;
// or_term := and_term (',' and_term)*; and_term := '(' expression ')' | atom.
type VersionSpec struct {
	raw  string
	root specNode
}

func (vs VersionSpec) String() string { return vs.raw }

// Match reports whether v satisfies the spec.
func (vs VersionSpec) Match(v Version) bool { return vs.root.match(v) }

// IsExact reports whether the spec is a single "==X" atom.
func (vs VersionSpec) IsExact() bool { return vs.root.isExact() }

// ParseVersionSpec parses a version-spec string into a VersionSpec.
func ParseVersionSpec(s string) (VersionSpec, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed == "*" {
		// The empty/bare wildcard spec matches every version.
		return VersionSpec{raw: trimmed, root: specNode{atom: &specAtom{op: opGlob, pattern: regexp.MustCompile(`^.*$`)}}}, nil
	}
	p := &specParser{input: trimmed}
	node, err := p.parseExpression()
	if err != nil {
		return VersionSpec{}, err
	}
	if p.pos != len(p.input) {
		return VersionSpec{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("trailing characters in version spec %q", s))
	}
	return VersionSpec{raw: trimmed, root: node}, nil
}

type specParser struct {
	input string
	pos   int
}

func (p *specParser) parseExpression() (specNode, error) {
	first, err := p.parseOrTerm()
	if err != nil {
		return specNode{}, err
	}
	terms := []specNode{first}
	for p.peek() == '|' {
		p.pos++
		next, err := p.parseOrTerm()
		if err != nil {
			return specNode{}, err
		}
		terms = append(terms, next)
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return specNode{or: terms}, nil
}

func (p *specParser) parseOrTerm() (specNode, error) {
	first, err := p.parseAndTerm()
	if err != nil {
		return specNode{}, err
	}
	terms := []specNode{first}
	for p.peek() == ',' {
		p.pos++
		next, err := p.parseAndTerm()
		if err != nil {
			return specNode{}, err
		}
		terms = append(terms, next)
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return specNode{and: terms}, nil
}

func (p *specParser) parseAndTerm() (specNode, error) {
	if p.peek() == '(' {
		p.pos++
		node, err := p.parseExpression()
		if err != nil {
			return specNode{}, err
		}
		if p.peek() != ')' {
			return specNode{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("unbalanced parentheses in version spec %q", p.input))
		}
		p.pos++
		return node, nil
	}
	return p.parseAtom()
}

func (p *specParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

// atomStop are the characters that terminate a bare atom token.
const atomStop = "|,()"

func (p *specParser) readToken() string {
	start := p.pos
	for p.pos < len(p.input) && !strings.ContainsRune(atomStop, rune(p.input[p.pos])) {
		p.pos++
	}
	return strings.TrimSpace(p.input[start:p.pos])
}

func (p *specParser) parseAtom() (specNode, error) {
	token := p.readToken()
	if token == "" {
		return specNode{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("empty atom in version spec %q", p.input))
	}
	if strings.HasPrefix(token, "~=") {
		return parseCompatibleNode(token)
	}
	atom, err := parseSpecAtom(token)
	if err != nil {
		return specNode{}, err
	}
	return specNode{atom: &atom}, nil
}

// parseCompatibleNode expands "~=X.Y" into the AND node ">=X.Y,==X.*",
// the "==X.*" half being the fuzzy atom "X" (matches [X, X+1)).
func parseCompatibleNode(token string) (specNode, error) {
	value := strings.TrimSpace(strings.TrimPrefix(token, "~="))
	if value == "" {
		return specNode{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("empty version in compatible-release spec %q", token))
	}
	v, err := ParseVersion(value)
	if err != nil {
		return specNode{}, err
	}
	prefix := value
	if dot := strings.LastIndex(value, "."); dot > 0 {
		prefix = value[:dot]
	}
	pv, err := ParseVersion(prefix)
	if err != nil {
		return specNode{}, err
	}
	gte := specAtom{op: opGte, version: v, raw: token}
	fuzzy := specAtom{op: opFuzzy, version: pv, raw: token}
	return specNode{and: []specNode{{atom: &gte}, {atom: &fuzzy}}}, nil
}

var opPrefixes = []struct {
	token string
	op    specOp
}{
	{">=", opGte},
	{"<=", opLte},
	{"!=", opNe},
	{"==", opExact},
	{">", opGt},
	{"<", opLt},
	{"=", opFuzzy},
}

func parseSpecAtom(token string) (specAtom, error) {
	if token == "*" {
		return specAtom{op: opGlob, pattern: regexp.MustCompile(`^.*$`)}, nil
	}
	for _, candidate := range opPrefixes {
		if strings.HasPrefix(token, candidate.token) {
			value := strings.TrimSpace(token[len(candidate.token):])
			return buildInequalityAtom(candidate.op, value, token)
		}
	}
	if strings.Contains(token, "*") {
		return buildGlobAtom(token)
	}
	// Bare version string: fuzzy equality.
	v, err := ParseVersion(token)
	if err != nil {
		return specAtom{}, err
	}
	return specAtom{op: opFuzzy, version: v, raw: token}, nil
}

func buildInequalityAtom(op specOp, value, raw string) (specAtom, error) {
	if strings.Contains(value, "*") {
		return specAtom{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("wildcard not allowed with inequality operator: %q", raw))
	}
	v, err := ParseVersion(value)
	if err != nil {
		return specAtom{}, err
	}
	if op == opExact && strings.Contains(raw, "*") {
		return specAtom{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("wildcard not allowed with ==: %q", raw))
	}
	return specAtom{op: op, version: v, raw: raw}, nil
}

func buildGlobAtom(raw string) (specAtom, error) {
	pattern, err := globToRegexp(raw)
	if err != nil {
		return specAtom{}, err
	}
	return specAtom{op: opGlob, pattern: pattern, raw: raw}, nil
}

// globToRegexp translates a glob atom ("1.2.*", "*", "1.2*") into a
// regexp, escaping '.' and turning '*' into '[^.]*'.
func globToRegexp(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(glob); i++ {
		switch glob[i] {
		case '.':
			b.WriteString(`\.`)
		case '*':
			b.WriteString(`[^.]*`)
		default:
			b.WriteString(regexp.QuoteMeta(string(glob[i])))
		}
	}
	b.WriteString("$")
	compiled, err := regexp.Compile(b.String())
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid glob version spec %q", glob)).
			WithCause(err)
	}
	return compiled, nil
}

