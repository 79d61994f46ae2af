package services

import (
	"fmt"
	"strings"
)

// licenseExpr is a parsed SPDX license expression
type licenseExpr interface {
	satisfied(allowed func(id string) bool) bool
	collect(ids []string) []string
}

type licenseID string

func (l licenseID) satisfied(allowed func(string) bool) bool { return allowed(string(l)) }
func (l licenseID) collect(ids []string) []string            { return append(ids, string(l)) }

type licenseOr struct{ left, right licenseExpr }

func (o licenseOr) satisfied(allowed func(string) bool) bool {
	return o.left.satisfied(allowed) || o.right.satisfied(allowed)
}

func (o licenseOr) collect(ids []string) []string {
	return o.right.collect(o.left.collect(ids))
}

type licenseAnd struct{ left, right licenseExpr }

func (a licenseAnd) satisfied(allowed func(string) bool) bool {
	return a.left.satisfied(allowed) && a.right.satisfied(allowed)
}

func (a licenseAnd) collect(ids []string) []string {
	return a.right.collect(a.left.collect(ids))
}

// parseLicenseExpr parses expressions such as "MIT OR Apache-2.0",
// "(MIT AND BSD-3-Clause) OR Unlicense" and the legacy "MIT/Apache-2.0".
// "X WITH exception" is treated as X.
func parseLicenseExpr(expr string) (licenseExpr, error) {
	tokens := tokenizeLicense(expr)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty license expression")
	}
	p := &licenseParser{tokens: tokens}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("unexpected %q in license expression %q", p.tokens[p.pos], expr)
	}
	return e, nil
}

func tokenizeLicense(expr string) []string {
	expr = strings.ReplaceAll(expr, "/", " OR ")
	expr = strings.ReplaceAll(expr, "(", " ( ")
	expr = strings.ReplaceAll(expr, ")", " ) ")
	return strings.Fields(expr)
}

type licenseParser struct {
	tokens []string
	pos    int
}

func (p *licenseParser) peek() string {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return ""
}

func (p *licenseParser) next() string {
	tok := p.peek()
	p.pos++
	return tok
}

func (p *licenseParser) parseOr() (licenseExpr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for strings.EqualFold(p.peek(), "OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = licenseOr{left: left, right: right}
	}
	return left, nil
}

func (p *licenseParser) parseAnd() (licenseExpr, error) {
	left, err := p.parseWith()
	if err != nil {
		return nil, err
	}
	for strings.EqualFold(p.peek(), "AND") {
		p.next()
		right, err := p.parseWith()
		if err != nil {
			return nil, err
		}
		left = licenseAnd{left: left, right: right}
	}
	return left, nil
}

func (p *licenseParser) parseWith() (licenseExpr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(p.peek(), "WITH") {
		p.next()
		if exc := p.next(); exc == "" || exc == "(" || exc == ")" {
			return nil, fmt.Errorf("missing exception after WITH")
		}
	}
	return e, nil
}

func (p *licenseParser) parsePrimary() (licenseExpr, error) {
	tok := p.next()
	switch {
	case tok == "":
		return nil, fmt.Errorf("unexpected end of license expression")
	case tok == "(":
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.next() != ")" {
			return nil, fmt.Errorf("unbalanced parentheses in license expression")
		}
		return e, nil
	case tok == ")", isLicenseOperator(tok):
		return nil, fmt.Errorf("unexpected %q in license expression", tok)
	}
	return licenseID(tok), nil
}

func isLicenseOperator(tok string) bool {
	return strings.EqualFold(tok, "AND") || strings.EqualFold(tok, "OR") || strings.EqualFold(tok, "WITH")
}
