package guard

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/stepward/stepward/errtype"
)

// ClausePattern matches a single guard phrase. Step-definition patterns
// embed it (via Prefix) so a step's guard clause is captured together
// with the step match.
const ClausePattern = `(?:if \S+ .+ =>|it is not true that|after \d+ms|within \d+ms|during \d+ms|an? \S+ is thrown when)`

// Prefix optionally captures one or more space-joined guard phrases plus
// the space separating them from the step text. Capture group 1 holds the
// clause (empty when the step has no guards).
const Prefix = `(?:(` + ClausePattern + `(?: ` + ClausePattern + `)*) )?`

var (
	phraseStart = regexp.MustCompile(`^` + ClausePattern)
	prefixRe    = regexp.MustCompile(`^` + Prefix)
	afterRe     = regexp.MustCompile(`^after (\d+)ms`)
	withinRe    = regexp.MustCompile(`^within (\d+)ms`)
	duringRe    = regexp.MustCompile(`^during (\d+)ms`)
	thrownRe    = regexp.MustCompile(`^an? (\S+) is thrown when`)
)

// TypeResolver resolves the error-type names used by expect-error guards.
// *errtype.Registry implements it.
type TypeResolver interface {
	Resolve(name string) (reflect.Type, error)
}

// Parser builds guard chains. The zero value is not usable; construct
// with NewParser.
type Parser struct {
	types TypeResolver
}

// NewParser returns a parser resolving error-type names through types.
func NewParser(types TypeResolver) *Parser {
	return &Parser{types: types}
}

// Parse builds a guard chain using the process-default error-type
// registry.
func Parse(text string) (*Guard, error) {
	return NewParser(errtype.Default()).Parse(text)
}

// Parse scans text for guard phrases and links one node per phrase, in
// encounter order, ending in a passthrough node that runs the action.
// Text without any guard phrase (including empty text) yields a single
// passthrough node. The only errors are malformed numeric parameters and
// unresolvable error-type names, both *ParseError.
func (p *Parser) Parse(text string) (*Guard, error) {
	phrases := scanPhrases(text)
	if len(phrases) == 0 {
		return &Guard{kind: KindPassthrough}, nil
	}

	var head, tail *Guard
	for _, phrase := range phrases {
		node, err := p.node(phrase)
		if err != nil {
			return nil, err
		}
		if head == nil {
			head = node
		} else {
			tail.next = node
		}
		tail = node
	}
	tail.next = &Guard{kind: KindPassthrough}
	return head, nil
}

// scanPhrases finds every offset where a guard phrase starts and clips
// each phrase at the start of the next one. Clipping keeps a greedy
// "if ... =>" match from swallowing the phrase that follows it; phrase
// boundaries are starts of recognized phrases, nothing else.
func scanPhrases(text string) []string {
	type span struct{ start, end int }
	var spans []span
	for i := 0; i < len(text); i++ {
		loc := phraseStart.FindStringIndex(text[i:])
		if loc == nil {
			continue
		}
		spans = append(spans, span{start: i, end: i + loc[1]})
	}

	phrases := make([]string, 0, len(spans))
	for k, s := range spans {
		end := s.end
		if k+1 < len(spans) && spans[k+1].start < end {
			end = spans[k+1].start
		}
		phrases = append(phrases, strings.TrimRight(text[s.start:end], " "))
	}
	return phrases
}

func (p *Parser) node(phrase string) (*Guard, error) {
	switch {
	case strings.HasPrefix(phrase, "it is not true that"):
		return &Guard{kind: KindInvert}, nil
	case strings.HasPrefix(phrase, "after "):
		d, err := extractMillis(phrase, afterRe)
		if err != nil {
			return nil, err
		}
		return &Guard{kind: KindAsyncDelay, delay: d}, nil
	case strings.HasPrefix(phrase, "within "):
		d, err := extractMillis(phrase, withinRe)
		if err != nil {
			return nil, err
		}
		return &Guard{kind: KindWithinTimeout, delay: d}, nil
	case strings.HasPrefix(phrase, "during "):
		d, err := extractMillis(phrase, duringRe)
		if err != nil {
			return nil, err
		}
		return &Guard{kind: KindDuringDuration, delay: d}, nil
	case thrownRe.MatchString(phrase):
		name := thrownRe.FindStringSubmatch(phrase)[1]
		t, err := p.types.Resolve(name)
		if err != nil {
			return nil, &ParseError{Phrase: phrase, Err: err}
		}
		return &Guard{kind: KindExpectError, errName: name, errType: t}, nil
	default:
		cond := strings.TrimSuffix(strings.TrimPrefix(phrase, "if "), " =>")
		return &Guard{kind: KindConditionalSkip, condition: cond}, nil
	}
}

func extractMillis(phrase string, re *regexp.Regexp) (time.Duration, error) {
	m := re.FindStringSubmatch(phrase)
	if m == nil {
		return 0, &ParseError{Phrase: phrase, Err: errors.New("malformed timing phrase")}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, &ParseError{Phrase: phrase, Err: err}
	}
	return time.Duration(n) * time.Millisecond, nil
}

// Split separates a step's leading guard clause from its step text.
// Texts without a guard clause come back unchanged with an empty clause.
func Split(text string) (clause, rest string) {
	m := prefixRe.FindStringSubmatch(text)
	if m == nil || m[1] == "" {
		return "", text
	}
	return m[1], text[len(m[0]):]
}

// Describe renders a chain one node per line, outermost first, with each
// node's kind and parameters.
func Describe(g *Guard) []string {
	var lines []string
	for node := g; node != nil; node = node.next {
		switch node.kind {
		case KindConditionalSkip:
			lines = append(lines, fmt.Sprintf("%s %q", node.kind, node.condition))
		case KindAsyncDelay, KindWithinTimeout, KindDuringDuration:
			lines = append(lines, fmt.Sprintf("%s %s", node.kind, node.delay))
		case KindExpectError:
			lines = append(lines, fmt.Sprintf("%s %s", node.kind, node.errName))
		default:
			lines = append(lines, node.kind.String())
		}
	}
	return lines
}
