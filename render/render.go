// Package render substitutes context placeholders into user-authored
// templates.
//
// Placeholders are written as {name}. Known placeholders are replaced by
// their value, or by the empty string when the context lacks it; unknown
// placeholders are left exactly as written. The substituted text is then
// HTML-escaped as a whole, for every destination, plain-text sends included.
package render

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/liamcoop/triggers/event"
)

var placeholder = regexp.MustCompile(`\{([A-Za-z][A-Za-z0-9_.]*)\}`)

// escaper covers & < > " ' with named entities for the first four.
var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

type valueFunc func(c *event.Context) string

var vocabulary = map[string]valueFunc{
	"user":         func(c *event.Context) string { return c.User.Name },
	"user.id":      func(c *event.Context) string { return c.User.ID },
	"user.name":    func(c *event.Context) string { return c.User.Name },
	"user.display": func(c *event.Context) string { return displayName(c.User) },
	"user.mention": func(c *event.Context) string { return mention("@", c.User.ID) },

	"author":         func(c *event.Context) string { return c.Author.Name },
	"author.id":      func(c *event.Context) string { return c.Author.ID },
	"author.name":    func(c *event.Context) string { return c.Author.Name },
	"author.display": func(c *event.Context) string { return displayName(c.Author) },
	"author.mention": func(c *event.Context) string { return mention("@", c.Author.ID) },
	"author.roles":   authorRoles,

	"guild.id":           func(c *event.Context) string { return c.Guild.ID },
	"guild.name":         func(c *event.Context) string { return c.Guild.Name },
	"guild.memberCount":  guildMemberCount,
	"server.name":        func(c *event.Context) string { return c.Guild.Name },
	"server.memberCount": guildMemberCount,

	"channel":         func(c *event.Context) string { return c.Channel.Name },
	"channel.id":      func(c *event.Context) string { return c.Channel.ID },
	"channel.name":    func(c *event.Context) string { return c.Channel.Name },
	"channel.topic":   func(c *event.Context) string { return c.Channel.Topic },
	"channel.mention": func(c *event.Context) string { return mention("#", c.Channel.ID) },

	"message.id":          func(c *event.Context) string { return c.Message.ID },
	"message.content":     func(c *event.Context) string { return c.Message.Content },
	"message.length":      func(c *event.Context) string { return strconv.Itoa(c.ContentLength()) },
	"message.wordCount":   func(c *event.Context) string { return strconv.Itoa(c.WordCount()) },
	"message.attachments": attachmentCount,
	"attachments.count":   attachmentCount,

	"voice.channel.id":   func(c *event.Context) string { return c.Voice.ID },
	"voice.channel.name": func(c *event.Context) string { return c.Voice.Name },

	"presence.status": func(c *event.Context) string { return c.Presence },

	"time":           func(c *event.Context) string { return formatTime(c, time.RFC3339) },
	"time.iso":       func(c *event.Context) string { return formatTime(c, "2006-01-02T15:04:05.000Z07:00") },
	"time.unix":      timeUnix,
	"time.formatted": func(c *event.Context) string { return formatTime(c, "Jan 2, 2006 15:04 MST") },
	"date":           func(c *event.Context) string { return formatTime(c, time.DateOnly) },
}

// Render substitutes placeholders in tmpl from c and escapes the result.
func Render(tmpl string, c *event.Context) string {
	return Escape(Substitute(tmpl, c))
}

// Substitute replaces placeholders without escaping.
func Substitute(tmpl string, c *event.Context) string {
	if tmpl == "" {
		return ""
	}
	if c == nil {
		c = &event.Context{}
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		fn, ok := vocabulary[m[1:len(m)-1]]
		if !ok {
			return m
		}
		return fn(c)
	})
}

// Escape HTML-escapes & < > " and '.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Placeholders lists every placeholder name Render understands, sorted.
func Placeholders() []string {
	names := make([]string, 0, len(vocabulary))
	for name := range vocabulary {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func mention(prefix, id string) string {
	if id == "" {
		return ""
	}
	return "<" + prefix + id + ">"
}

func displayName(u event.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Name
}

func authorRoles(c *event.Context) string {
	roles := make([]string, 0, len(c.Author.Roles))
	for _, id := range c.Author.Roles {
		if id != "" {
			roles = append(roles, "<@&"+id+">")
		}
	}
	return strings.Join(roles, ", ")
}

func guildMemberCount(c *event.Context) string {
	if c.Guild.ID == "" && c.Guild.MemberCount == 0 {
		return ""
	}
	return strconv.Itoa(c.Guild.MemberCount)
}

func attachmentCount(c *event.Context) string {
	return strconv.Itoa(len(c.Attachments))
}

func formatTime(c *event.Context, layout string) string {
	if c.Now.IsZero() {
		return ""
	}
	return c.Now.UTC().Format(layout)
}

func timeUnix(c *event.Context) string {
	if c.Now.IsZero() {
		return ""
	}
	return strconv.FormatInt(c.Now.Unix(), 10)
}
