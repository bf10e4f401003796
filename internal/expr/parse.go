package expr

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/weaverqa/weaver/internal/model"
)

// Program is a compiled expression ready for repeated evaluation.
type Program struct {
	src  string
	root node
}

// Source returns the original expression text.
func (p *Program) Source() string { return p.src }

type node interface{}

type orNode struct{ terms []node }
type andNode struct{ terms []node }
type notNode struct{ term node }

// testNode is an `<operand> is [not] <name>[(<arg>)]` predicate.
type testNode struct {
	operand node
	name    string
	negated bool
	// pattern is pre-compiled for `match` tests.
	pattern *regexp.Regexp
}

type cmpNode struct {
	lhs, rhs node
	negated  bool // != when true
}

type varNode struct{ path []string }
type strNode struct{ value string }
type intNode struct{ value int64 }
type boolNode struct{ value bool }

// testNames is the closed set of predicate names. Event-variant names
// map onto model.EventType tags.
var testNames = map[string]model.EventType{
	"erratum": model.EventErratum,
	"compose": model.EventCompose,
	"jira":    model.EventJira,
	"rog":     model.EventRoG,
}

var cache sync.Map // source string -> *Program

// Compile parses an expression into a Program. Programs are cached by
// source text, so repeated compilation of the same document field is
// free.
func Compile(src string) (*Program, error) {
	if cached, ok := cache.Load(src); ok {
		return cached.(*Program), nil
	}
	toks, err := lex(src)
	if err != nil {
		return nil, &Error{Source: src, Err: err}
	}
	p := &parser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, &Error{Source: src, Err: err}
	}
	if p.peek().kind != tokEOF {
		return nil, &Error{Source: src, Err: fmt.Errorf("unexpected %s", p.peek())}
	}
	prog := &Program{src: src, root: root}
	cache.Store(src, prog)
	return prog, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return token{}, fmt.Errorf("expected %s, got %s", what, t)
	}
	return t, nil
}

func (p *parser) parseOr() (node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []node{first}
	for p.peek().kind == tokIdent && p.peek().text == "or" {
		p.next()
		t, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &orNode{terms: terms}, nil
}

func (p *parser) parseAnd() (node, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	terms := []node{first}
	for p.peek().kind == tokIdent && p.peek().text == "and" {
		p.next()
		t, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &andNode{terms: terms}, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokIdent && p.peek().text == "not" {
		p.next()
		term, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{term: term}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, `")"`); err != nil {
			return nil, err
		}
		return p.parsePostfix(inner)
	}
	operand, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return p.parsePostfix(operand)
}

// parsePostfix handles `is ...` tests and comparisons following an
// operand.
func (p *parser) parsePostfix(operand node) (node, error) {
	switch t := p.peek(); {
	case t.kind == tokIdent && t.text == "is":
		p.next()
		return p.parseTest(operand)
	case t.kind == tokEq || t.kind == tokNeq:
		p.next()
		rhs, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &cmpNode{lhs: operand, rhs: rhs, negated: t.kind == tokNeq}, nil
	}
	return operand, nil
}

func (p *parser) parseTest(operand node) (node, error) {
	negated := false
	if p.peek().kind == tokIdent && p.peek().text == "not" {
		p.next()
		negated = true
	}
	name, err := p.expect(tokIdent, "a predicate name")
	if err != nil {
		return nil, err
	}
	tn := &testNode{operand: operand, name: name.text, negated: negated}
	switch name.text {
	case "match":
		if _, err := p.expect(tokLParen, `"(" after match`); err != nil {
			return nil, err
		}
		pat, err := p.expect(tokString, "a pattern string")
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile(pat.text)
		if err != nil {
			return nil, fmt.Errorf("invalid match pattern %q: %w", pat.text, err)
		}
		tn.pattern = re
		if _, err := p.expect(tokRParen, `")"`); err != nil {
			return nil, err
		}
	case "defined":
		// no argument
	default:
		if _, ok := testNames[name.text]; !ok {
			return nil, fmt.Errorf("unknown predicate %q", name.text)
		}
	}
	return tn, nil
}

func (p *parser) parseOperand() (node, error) {
	switch t := p.next(); t.kind {
	case tokString:
		return &strNode{value: t.text}, nil
	case tokInt:
		var v int64
		if _, err := fmt.Sscanf(t.text, "%d", &v); err != nil {
			return nil, fmt.Errorf("invalid integer %s", t)
		}
		return &intNode{value: v}, nil
	case tokIdent:
		switch t.text {
		case "true":
			return &boolNode{value: true}, nil
		case "false":
			return &boolNode{value: false}, nil
		}
		path := []string{t.text}
		for p.peek().kind == tokDot {
			p.next()
			seg, err := p.expect(tokIdent, "a field name")
			if err != nil {
				return nil, err
			}
			path = append(path, seg.text)
		}
		return &varNode{path: path}, nil
	default:
		return nil, fmt.Errorf("expected an operand, got %s", t)
	}
}
