package css

import (
	"fmt"
	"strings"
)

type treeWriter struct {
	strings.Builder
}

func (tw *treeWriter) line(depth int, format string, args ...any) {
	for range depth {
		tw.WriteString("  ")
	}
	fmt.Fprintf(tw, format, args...)
	tw.WriteByte('\n')
}

// Dump returns a readable tree of the stylesheet. Text is quoted so
// whitespace and control characters stay visible. It exists for debug reports
// only.
func (s *Stylesheet) Dump() string {
	if s == nil {
		return "<nil Stylesheet>"
	}
	decls := 0
	s.Walk(func([]*Rule, *Declaration) { decls++ })

	tw := &treeWriter{}
	tw.line(0, "Stylesheet items=%d rules=%d declarations=%d", len(s.Items), len(s.Rules()), decls)
	for _, w := range s.Warnings {
		tw.line(1, "Warning %q", w)
	}
	tw.items(1, s.Items)
	return tw.String()
}

func (tw *treeWriter) items(depth int, items []Item) {
	for _, item := range items {
		switch {
		case item.Decl != nil:
			d := item.Decl
			tw.line(depth, "Declaration %s value=%q terminated=%t", d.Property(), d.ValueText(), d.Semicolon != nil)
		case item.Rule != nil:
			r := item.Rule
			kind := "Rule"
			if r.IsAtRule() {
				kind = "@" + r.AtKeyword
			}
			tw.line(depth, "%s line=%d prelude=%q closed=%t", kind, r.Line, strings.TrimSpace(r.Prelude.String()), r.Close != nil)
			tw.items(depth+1, r.Items)
		default:
			if text := strings.TrimSpace(item.Other.String()); text != "" {
				tw.line(depth, "Other %q", text)
			}
		}
	}
}
