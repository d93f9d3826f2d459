// Package conditions evaluates rule conditions against an execution context.
package conditions

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/liamcoop/triggers/event"
	"github.com/liamcoop/triggers/rules"
)

// EvaluationError describes a condition that could not be evaluated.
type EvaluationError struct {
	Type    rules.ConditionType
	Match   rules.MatchType
	Message string
	Err     error
}

func (e *EvaluationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("evaluation error for %s condition with match '%s': %s: %v",
			e.Type, e.Match, e.Message, e.Err)
	}
	return fmt.Sprintf("evaluation error for %s condition with match '%s': %s",
		e.Type, e.Match, e.Message)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// subject is the resolved context value a condition compares against.
// When values is set, string matches succeed if any element matches.
type subject struct {
	text   string
	values []string
	number float64
	// numeric is false when the field has no numeric reading
	numeric bool
}

type resolver func(c *event.Context) subject

// matchFunc compares a resolved subject with the condition value.
type matchFunc func(e *Evaluator, s subject, value string) (bool, error)

// Evaluator evaluates ordered condition lists. It is safe for concurrent use.
type Evaluator struct {
	Logger *slog.Logger

	resolvers map[rules.ConditionType]resolver
	matchers  map[rules.MatchType]matchFunc
	regexes   *regexCache
	programs  *programCache
}

// NewEvaluator creates an evaluator with the full condition vocabulary registered.
func NewEvaluator(logger *slog.Logger) (*Evaluator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	programs, err := newProgramCache(256)
	if err != nil {
		return nil, err
	}
	regexes, err := newRegexCache(512)
	if err != nil {
		return nil, err
	}

	e := &Evaluator{
		Logger:    logger,
		resolvers: make(map[rules.ConditionType]resolver),
		matchers:  make(map[rules.MatchType]matchFunc),
		regexes:   regexes,
		programs:  programs,
	}

	e.resolvers[rules.ConditionMessageContent] = resolveContent
	e.resolvers[rules.ConditionPattern] = resolveContent
	e.resolvers[rules.ConditionAuthorID] = resolveAuthorID
	e.resolvers[rules.ConditionAuthorRole] = resolveAuthorRoles
	e.resolvers[rules.ConditionChannelID] = resolveChannelID
	e.resolvers[rules.ConditionHasAttachment] = resolveAttachments
	e.resolvers[rules.ConditionMentionsUser] = resolveMentions
	e.resolvers[rules.ConditionPresenceStatus] = resolvePresence
	e.resolvers[rules.ConditionVoiceChannel] = resolveVoice

	e.matchers[rules.MatchExactly] = stringMatcher(func(a, b string) bool { return a == b })
	e.matchers[rules.MatchContains] = stringMatcher(strings.Contains)
	e.matchers[rules.MatchStartsWith] = stringMatcher(strings.HasPrefix)
	e.matchers[rules.MatchEndsWith] = stringMatcher(strings.HasSuffix)
	e.matchers[rules.MatchRegex] = matchRegex
	e.matchers[rules.MatchGreaterThan] = numericMatcher(func(a, b float64) bool { return a > b })
	e.matchers[rules.MatchLessThan] = numericMatcher(func(a, b float64) bool { return a < b })

	return e, nil
}

// Evaluate reports whether conds hold for c under logic.
//
// Conditions are partitioned by group; a group holds when every condition in
// it holds. Groups are combined with AND unless logic is OR. An empty list is
// always true. A condition that errors counts as false and never stops the
// evaluation of the others.
func (e *Evaluator) Evaluate(conds []rules.Condition, c *event.Context, logic rules.ConditionLogic) bool {
	if len(conds) == 0 {
		return true
	}
	if c == nil {
		c = &event.Context{}
	}

	var order []string
	groups := make(map[string]bool)
	for _, cond := range conds {
		key := cond.Group()
		ok, err := e.Match(cond, c)
		if err != nil {
			e.Logger.Warn("condition evaluation failed",
				"tenant", c.TenantID, "type", cond.Type, "match", cond.Match, "group", key, "err", err)
			ok = false
		}
		prev, seen := groups[key]
		if !seen {
			order = append(order, key)
			prev = true
		}
		groups[key] = prev && ok
	}

	if logic == rules.LogicOr {
		for _, key := range order {
			if groups[key] {
				return true
			}
		}
		return false
	}
	for _, key := range order {
		if !groups[key] {
			return false
		}
	}
	return true
}

// Match evaluates a single condition, applying Negate to the raw result.
// Panics raised while matching are returned as errors.
func (e *Evaluator) Match(cond rules.Condition, c *event.Context) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			err = &EvaluationError{Type: cond.Type, Match: cond.Match, Message: fmt.Sprintf("panic: %v", r)}
		}
	}()

	raw, err := e.rawMatch(cond, c)
	if err != nil {
		return false, err
	}
	if cond.Negate {
		return !raw, nil
	}
	return raw, nil
}

func (e *Evaluator) rawMatch(cond rules.Condition, c *event.Context) (bool, error) {
	if cond.Type == rules.ConditionCustom {
		return e.evalCustom(cond, c)
	}

	resolve, ok := e.resolvers[cond.Type]
	if !ok {
		return false, &EvaluationError{Type: cond.Type, Match: cond.Match, Message: "unsupported condition type"}
	}

	match := cond.Match
	if match == "" {
		if cond.Type == rules.ConditionPattern {
			match = rules.MatchRegex
		} else {
			match = rules.MatchExactly
		}
	}
	fn, ok := e.matchers[match]
	if !ok {
		return false, &EvaluationError{Type: cond.Type, Match: match, Message: "unsupported match type"}
	}

	value := cond.Value
	if cond.Type == rules.ConditionMentionsUser {
		value = stripMention(value)
	}

	result, err := fn(e, resolve(c), value)
	if err != nil {
		return false, &EvaluationError{Type: cond.Type, Match: match, Message: "match failed", Err: err}
	}
	return result, nil
}

func stringMatcher(cmp func(field, value string) bool) matchFunc {
	return func(_ *Evaluator, s subject, value string) (bool, error) {
		if s.values != nil {
			for _, v := range s.values {
				if cmp(v, value) {
					return true, nil
				}
			}
			return false, nil
		}
		return cmp(s.text, value), nil
	}
}

func matchRegex(e *Evaluator, s subject, pattern string) (bool, error) {
	re, err := e.regexes.compile(pattern)
	if err != nil {
		return false, err
	}
	if s.values != nil {
		for _, v := range s.values {
			if re.MatchString(v) {
				return true, nil
			}
		}
		return false, nil
	}
	return re.MatchString(s.text), nil
}

func numericMatcher(cmp func(field, value float64) bool) matchFunc {
	return func(_ *Evaluator, s subject, value string) (bool, error) {
		field := s.number
		if !s.numeric {
			n, ok := parseNumber(s.text)
			if !ok {
				return false, nil
			}
			field = n
		}
		want, ok := parseNumber(value)
		if !ok {
			return false, nil
		}
		return cmp(field, want), nil
	}
}

// parseNumber reads the longest numeric prefix of s, ignoring surrounding
// whitespace, so "42 messages" reads as 42.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	seenDigit, seenDot := false, false
scan:
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
		case r == '.' && !seenDot:
			seenDot = true
		case (r == '-' || r == '+') && i == 0:
		default:
			break scan
		}
		end = i + 1
	}
	if !seenDigit {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	if err != nil || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

// stripMention turns "<@123>" or "<@!123>" into "123".
func stripMention(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "<@") && strings.HasSuffix(v, ">") {
		v = strings.TrimSuffix(strings.TrimPrefix(v, "<@"), ">")
		v = strings.TrimPrefix(v, "!")
	}
	return v
}

func resolveContent(c *event.Context) subject {
	return subject{text: c.Message.Content}
}

func resolveAuthorID(c *event.Context) subject {
	return subject{text: c.Author.ID}
}

func resolveAuthorRoles(c *event.Context) subject {
	roles := c.Author.Roles
	if roles == nil {
		roles = []string{}
	}
	return subject{values: roles, number: float64(len(roles)), numeric: true}
}

func resolveChannelID(c *event.Context) subject {
	return subject{text: c.Channel.ID}
}

func resolveAttachments(c *event.Context) subject {
	n := len(c.Attachments)
	return subject{text: strconv.FormatBool(n > 0), number: float64(n), numeric: true}
}

func resolveMentions(c *event.Context) subject {
	mentions := c.Mentions
	if mentions == nil {
		mentions = []string{}
	}
	return subject{values: mentions, number: float64(len(mentions)), numeric: true}
}

func resolvePresence(c *event.Context) subject {
	return subject{text: c.Presence}
}

func resolveVoice(c *event.Context) subject {
	values := []string{}
	if c.Voice.ID != "" {
		values = append(values, c.Voice.ID)
	}
	if c.Voice.Name != "" {
		values = append(values, c.Voice.Name)
	}
	inVoice := 0.0
	if c.Voice.ID != "" {
		inVoice = 1
	}
	return subject{values: values, number: inVoice, numeric: true}
}
