package hbs

import (
	"strings"

	"github.com/adnsv/go-xltmpl/xl"
)

// Scope is one frame of the context stack. Index/Key/First/
// Last are only meaningful while iterating inside an `#each`.
type Scope struct {
	Data   Value
	Parent *Scope
	Root   Value

	Index      float64
	Key        string
	First      bool
	Last       bool
	hasIndexed bool
}

func rootScope(data Value) *Scope {
	return &Scope{Data: data, Root: data}
}

func (s *Scope) child(data Value) *Scope {
	return &Scope{Data: data, Parent: s, Root: s.Root}
}

// RootScope builds a fresh top-level scope from decoded JSON data. Exported
// for the rewrite pass, which evaluates row-span `#each`/`#if` arguments
// against the same scope chain a cell's own per-cell
// mustaches see.
func RootScope(data Value) *Scope { return rootScope(data) }

// Child builds a nested scope with this scope as parent, as `#with`/`#each`
// do internally. Exported so the rewrite pass can bind its own
// @index/@key/@first/@last when materializing a row-span `#each` iteration.
func (s *Scope) Child(data Value) *Scope { return s.child(data) }

// HelperFunc is a non-block helper: it receives evaluated positional args,
// evaluated hash args, and the engine (for ambient cell context and the
// side-effect sink) and returns the value to render.
type HelperFunc func(e *Engine, args []Value, hash map[string]Value) (Value, error)

// Engine evaluates a Program against a data context, exposing the ambient
// current-cell state and the per-sheet side-effect sink helpers record
// into. One Engine is reused across every cell of a single sheet; the
// rewrite pass installs CurrentCol/CurrentRow/CurrentRef before each
// cell's evaluation.
type Engine struct {
	Helpers map[string]HelperFunc
	Sheet   *xl.Sheet // current sheet; merge/hyperlink/image effects land here
	Sink    *xl.WarningSink

	// ExternalRels maps an already-present external hyperlink relationship
	// target to its relationship id. The `hyperlink` helper never fabricates
	// External relationships; targets without an entry here are dropped.
	ExternalRels map[string]string

	// Ambient current-cell context.
	CurrentCol string
	CurrentRow int
	CurrentRef string

	// Per-cell outputs the rewrite pass reads back after each
	// evaluation and resets before the next.
	CellNumeric     bool
	CellNumericText string
	CellFormula     string
	CellFormulaSet  bool

	// Per-row side-channel, read once per row by the rewrite pass.
	RemoveRowRequested bool

	// Per-sheet workbook-level requests, applied by package finalization
	// after the whole sheet has rendered.
	SheetRenameTo  string
	SheetRenameSet bool
	SheetHideLevel string
	SheetHideSet   bool
	SheetDeleteSet bool
}

// NewEngine builds an Engine with the built-in helper library registered.
func NewEngine(sheet *xl.Sheet, sink *xl.WarningSink, externalRels map[string]string) *Engine {
	e := &Engine{
		Sheet:        sheet,
		Sink:         sink,
		ExternalRels: externalRels,
		Helpers:      map[string]HelperFunc{},
	}
	registerBuiltins(e)
	return e
}

// ResetCell clears the per-cell ambient output flags before rendering the
// next cell; current-cell coordinates are set separately by the caller.
func (e *Engine) ResetCell() {
	e.CellNumeric = false
	e.CellNumericText = ""
	e.CellFormula = ""
	e.CellFormulaSet = false
}

// Render evaluates a parsed Program against data and returns the
// concatenated textual output (block/side-effect helpers contribute "").
func (e *Engine) Render(nodes []Node, data Value) (string, error) {
	var sb strings.Builder
	if err := e.renderInto(&sb, nodes, rootScope(data)); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// RenderScope evaluates a parsed Program against an already-built scope
// instead of wrapping raw data in a fresh root scope. The rewrite pass
// uses this for per-cell rendering inside a row-span `#each`/`#if`, so a
// cell's own `../` path expressions walk out into the row-span's scope
// chain rather than stopping at a synthetic per-cell root.
func (e *Engine) RenderScope(nodes []Node, scope *Scope) (string, error) {
	var sb strings.Builder
	if err := e.renderInto(&sb, nodes, scope); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// EvalArgString parses and evaluates a single bare expression (a row-span
// `#each`/`#if`/`#unless`/`#with` argument string) against scope. Only the first token is used — these block helpers all take
// exactly one argument.
func (e *Engine) EvalArgString(s string, scope *Scope) (Value, error) {
	expr, err := ParseArgExpr(s)
	if err != nil {
		return nil, err
	}
	return e.eval(expr, scope)
}

func (e *Engine) renderInto(sb *strings.Builder, nodes []Node, scope *Scope) error {
	for _, n := range nodes {
		switch t := n.(type) {
		case LiteralNode:
			sb.WriteString(t.Text)
		case MustacheNode:
			v, err := e.evalCall(t.Call, scope)
			if err != nil {
				return err
			}
			sb.WriteString(ToString(v))
		case BlockNode:
			if err := e.evalBlock(sb, t, scope); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) evalBlock(sb *strings.Builder, b BlockNode, scope *Scope) error {
	switch b.Call.Name {
	case "if":
		cond, err := e.evalArg0(b.Call, scope)
		if err != nil {
			return err
		}
		if Truthy(cond) {
			return e.renderInto(sb, b.Program, scope)
		}
		return e.renderInto(sb, b.Inverse, scope)
	case "unless":
		cond, err := e.evalArg0(b.Call, scope)
		if err != nil {
			return err
		}
		if !Truthy(cond) {
			return e.renderInto(sb, b.Program, scope)
		}
		return e.renderInto(sb, b.Inverse, scope)
	case "with":
		v, err := e.evalArg0(b.Call, scope)
		if err != nil {
			return err
		}
		if !Truthy(v) {
			return e.renderInto(sb, b.Inverse, scope)
		}
		return e.renderInto(sb, b.Program, scope.child(v))
	case "each":
		return e.evalEach(sb, b, scope)
	default:
		return xl.Errorf(xl.KindTemplateParse, "unknown block helper %q", b.Call.Name)
	}
}

func (e *Engine) evalEach(sb *strings.Builder, b BlockNode, scope *Scope) error {
	v, err := e.evalArg0(b.Call, scope)
	if err != nil {
		return err
	}
	switch t := v.(type) {
	case []Value:
		if len(t) == 0 {
			return e.renderInto(sb, b.Inverse, scope)
		}
		for i, item := range t {
			child := scope.child(item)
			child.Index = float64(i)
			child.First = i == 0
			child.Last = i == len(t)-1
			child.hasIndexed = true
			if err := e.renderInto(sb, b.Program, child); err != nil {
				return err
			}
		}
		return nil
	case map[string]Value:
		if len(t) == 0 {
			return e.renderInto(sb, b.Inverse, scope)
		}
		keys := xl.SortedKeys(t)
		for i, k := range keys {
			child := scope.child(t[k])
			child.Key = k
			child.Index = float64(i)
			child.First = i == 0
			child.Last = i == len(keys)-1
			child.hasIndexed = true
			if err := e.renderInto(sb, b.Program, child); err != nil {
				return err
			}
		}
		return nil
	default:
		return e.renderInto(sb, b.Inverse, scope)
	}
}

func (e *Engine) evalArg0(c Call, scope *Scope) (Value, error) {
	if len(c.Args) == 0 {
		return nil, xl.Errorf(xl.KindTemplateEval, "%q requires one argument", c.Name)
	}
	return e.eval(c.Args[0], scope)
}

// evalCall evaluates a mustache/subexpression call: if Name resolves to a
// registered helper, invoke it; otherwise treat it as a bare path lookup
// (missing paths evaluate to undefined).
func (e *Engine) evalCall(c Call, scope *Scope) (Value, error) {
	if h, ok := e.Helpers[c.Name]; ok {
		args := make([]Value, len(c.Args))
		for i, a := range c.Args {
			v, err := e.eval(a, scope)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		hash := make(map[string]Value, len(c.Hash))
		for k, a := range c.Hash {
			v, err := e.eval(a, scope)
			if err != nil {
				return nil, err
			}
			hash[k] = v
		}
		return h(e, args, hash)
	}
	if len(c.Args) == 0 && len(c.Hash) == 0 {
		// A bare mustache like {{user.name}}, {{../x}}, {{this}} or
		// {{@index}} parses with the whole path in Name; resolve it the
		// same way an argument-position path would resolve.
		return e.resolvePath(parsePath(c.Name), scope), nil
	}
	return nil, xl.Errorf(xl.KindTemplateEval, "unknown helper %q", c.Name)
}

func (e *Engine) eval(expr Expression, scope *Scope) (Value, error) {
	switch t := expr.(type) {
	case LiteralExpr:
		return t.Value, nil
	case PathExpr:
		return e.resolvePath(t, scope), nil
	case SubExpr:
		return e.evalCall(t.Call, scope)
	default:
		return nil, xl.Errorf(xl.KindInternal, "unhandled expression node %T", expr)
	}
}

func (e *Engine) resolvePath(p PathExpr, scope *Scope) Value {
	if p.DataVar != "" {
		switch p.DataVar {
		case "@index":
			return scope.Index
		case "@key":
			return scope.Key
		case "@first":
			return scope.First
		case "@last":
			return scope.Last
		case "@root":
			return scope.Root
		default:
			return nil
		}
	}
	base := scope
	for i := 0; i < p.Scopes && base.Parent != nil; i++ {
		base = base.Parent
	}
	var v Value
	if p.Root {
		v = scope.Root
	} else {
		v = base.Data
	}
	if p.This || len(p.Segments) == 0 {
		return v
	}
	for _, seg := range p.Segments {
		v = index(v, seg)
		if v == nil {
			return nil
		}
	}
	return v
}

func index(v Value, seg string) Value {
	switch t := v.(type) {
	case map[string]Value:
		return t[seg]
	case []Value:
		if n, ok := ToNumber(seg); ok {
			i := int(n)
			if i >= 0 && i < len(t) {
				return t[i]
			}
		}
		return nil
	default:
		return nil
	}
}
