// Package markdown extracts agmd todos from Markdown checklists.
//
// A todo is a task list item whose first block carries an agmd link, either
// as an autolink or as an inline link:
//
//	- [ ] ship it <agmd:2025-03-01;start=02;due=04>
//	- [x] [call the bank](agmd:2025-03-03)
package markdown

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	"github.com/harrisonrobin/agmd/pkg/marker"
	"github.com/harrisonrobin/agmd/pkg/model"
)

// namespace seeds the name based todo IDs.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("agmd:todo"))

// Parser turns Markdown sources into todos. It is safe for concurrent use.
type Parser struct {
	loc    *time.Location
	logger *zap.Logger
}

// NewParser returns a parser resolving markers in loc. A nil loc means the
// local calendar and a nil logger discards output.
func NewParser(loc *time.Location, logger *zap.Logger) *Parser {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{loc: loc, logger: logger}
}

// ParseFile parses a Markdown file and returns its todos.
func (p *Parser) ParseFile(path string) ([]model.Todo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return p.Parse(file, path)
}

// ParseFiles parses several Markdown files in order.
func (p *Parser) ParseFiles(paths []string) ([]model.Todo, error) {
	var all []model.Todo
	for _, path := range paths {
		todos, err := p.ParseFile(path)
		if err != nil {
			return nil, err
		}
		all = append(all, todos...)
	}
	return all, nil
}

// Parse reads Markdown from r. source names the document in the returned
// todos and seeds their IDs.
func (p *Parser) Parse(r io.Reader, source string) ([]model.Todo, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", source)
	}
	p.logger.Debug("parsing file", zap.String("path", source))

	md := goldmark.New(goldmark.WithExtensions(extension.TaskList))
	doc := md.Parser().Parse(text.NewReader(src))

	var todos []model.Todo
	seen := make(map[string]int)
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		item, ok := n.(*ast.ListItem)
		if !ok {
			return ast.WalkContinue, nil
		}
		todo, ok := p.todo(item, src, source)
		if !ok {
			return ast.WalkContinue, nil
		}
		key := todo.Summary
		todo.ID = todoID(source, key, seen[key])
		seen[key]++
		todos = append(todos, todo)
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", source)
	}
	return todos, nil
}

func (p *Parser) todo(item *ast.ListItem, src []byte, source string) (model.Todo, bool) {
	block := item.FirstChild()
	if block == nil {
		return model.Todo{}, false
	}
	if block.Kind() != ast.KindTextBlock && block.Kind() != ast.KindParagraph {
		return model.Todo{}, false
	}
	box, ok := block.FirstChild().(*extast.TaskCheckBox)
	if !ok {
		return model.Todo{}, false
	}
	link, raw, ok := findMarker(block, src)
	if !ok {
		return model.Todo{}, false
	}

	var summary strings.Builder
	collectText(block, link, src, &summary)
	todo := model.Todo{
		Summary: strings.Join(strings.Fields(summary.String()), " "),
		Done:    box.IsChecked,
		Raw:     raw,
		Source:  model.Source{Path: source, Line: lineOf(block, src)},
	}

	attrs, err := marker.Parse(raw, box.IsChecked, p.loc)
	if err != nil {
		p.logger.Debug("malformed marker",
			zap.String("path", source), zap.Int("line", todo.Source.Line), zap.Error(err))
		return todo, true
	}
	todo.Attributes = &attrs
	return todo, true
}

// findMarker returns the first agmd link inside n and its body.
func findMarker(n ast.Node, src []byte) (ast.Node, string, bool) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		var dest string
		switch l := c.(type) {
		case *ast.AutoLink:
			dest = string(l.URL(src))
		case *ast.Link:
			dest = string(l.Destination)
		}
		if strings.HasPrefix(dest, marker.Scheme) {
			return c, strings.TrimPrefix(dest, marker.Scheme), true
		}
		if found, raw, ok := findMarker(c, src); ok {
			return found, raw, true
		}
	}
	return nil, "", false
}

func collectText(n, skip ast.Node, src []byte, b *strings.Builder) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if c == skip {
			b.WriteByte(' ')
			continue
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.AutoLink:
			b.Write(t.Label(src))
		default:
			collectText(c, skip, src, b)
		}
	}
}

func lineOf(block ast.Node, src []byte) int {
	lines := block.Lines()
	if lines.Len() == 0 {
		return 0
	}
	return bytes.Count(src[:lines.At(0).Start], []byte("\n")) + 1
}

// todoID is stable while the todo keeps its file and summary, whatever line
// it moves to. n tells apart todos sharing both.
func todoID(source, summary string, n int) string {
	name := source + "\x00" + summary + "\x00" + strconv.Itoa(n)
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

// State selects todos by checkbox and marker state.
type State string

const (
	StateAll       State = "all"
	StateDone      State = "done"
	StateUndone    State = "undone"
	StateMalformed State = "malformed"
)

// ParseState validates a state name.
func ParseState(s string) (State, error) {
	switch st := State(s); st {
	case StateAll, StateDone, StateUndone, StateMalformed:
		return st, nil
	case "":
		return StateAll, nil
	}
	return "", errors.Errorf("unknown state %q", s)
}

// Filter keeps the todos in the given state.
func Filter(todos []model.Todo, state State) []model.Todo {
	var filtered []model.Todo
	for _, todo := range todos {
		var keep bool
		switch state {
		case StateDone:
			keep = todo.Done
		case StateUndone:
			keep = !todo.Done
		case StateMalformed:
			keep = todo.Malformed()
		default:
			keep = true
		}
		if keep {
			filtered = append(filtered, todo)
		}
	}
	return filtered
}
