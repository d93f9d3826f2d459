package conditions

import (
	"fmt"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/liamcoop/triggers/rules"
)

// Patterns come from user-authored rules. Go's regexp package is RE2 based
// and runs in time linear in the input, so a pattern cannot backtrack
// catastrophically; only the pattern length is bounded here.

type compiledPattern struct {
	re  *regexp.Regexp
	err error
}

// regexCache keeps compiled patterns, including failed compilations, so an
// invalid pattern is not recompiled on every event.
type regexCache struct {
	data *lru.Cache[string, compiledPattern]
}

func newRegexCache(size int) (*regexCache, error) {
	data, err := lru.New[string, compiledPattern](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create regex cache: %w", err)
	}
	return &regexCache{data: data}, nil
}

func (c *regexCache) compile(pattern string) (*regexp.Regexp, error) {
	if cached, ok := c.data.Get(pattern); ok {
		return cached.re, cached.err
	}

	var entry compiledPattern
	if len(pattern) > rules.MaxPatternLength {
		entry.err = fmt.Errorf("regex pattern too long (max %d bytes): %d bytes", rules.MaxPatternLength, len(pattern))
	} else if re, err := regexp.Compile(pattern); err != nil {
		entry.err = fmt.Errorf("invalid regex pattern '%s': %w", pattern, err)
	} else {
		entry.re = re
	}

	c.data.Add(pattern, entry)
	return entry.re, entry.err
}

func (c *regexCache) len() int {
	return c.data.Len()
}
