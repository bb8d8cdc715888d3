package hbs

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/adnsv/go-xltmpl/xl"
)

// registerBuiltins wires the built-in helper library into a fresh Engine.
// Every helper here follows the same ABI: evaluated positional
// args, evaluated hash args, engine for ambient cell/sink access.
func registerBuiltins(e *Engine) {
	e.Helpers["upper"] = func(_ *Engine, args []Value, _ map[string]Value) (Value, error) {
		return strings.ToUpper(ToString(arg(args, 0))), nil
	}
	e.Helpers["lower"] = func(_ *Engine, args []Value, _ map[string]Value) (Value, error) {
		return strings.ToLower(ToString(arg(args, 0))), nil
	}
	e.Helpers["len"] = func(_ *Engine, args []Value, _ map[string]Value) (Value, error) {
		return Len(arg(args, 0)), nil
	}
	e.Helpers["eq"] = cmpHelper(func(c int, eq bool) bool { return eq })
	e.Helpers["ne"] = cmpHelper(func(c int, eq bool) bool { return !eq })
	e.Helpers["gt"] = cmpHelper(func(c int, eq bool) bool { return c > 0 })
	e.Helpers["lt"] = cmpHelper(func(c int, eq bool) bool { return c < 0 })
	e.Helpers["gte"] = cmpHelper(func(c int, eq bool) bool { return c >= 0 })
	e.Helpers["lte"] = cmpHelper(func(c int, eq bool) bool { return c <= 0 })

	e.Helpers["add"] = arithHelper(func(a, b float64) float64 { return a + b })
	e.Helpers["sub"] = arithHelper(func(a, b float64) float64 { return a - b })
	e.Helpers["mul"] = arithHelper(func(a, b float64) float64 { return a * b })
	e.Helpers["div"] = func(en *Engine, args []Value, _ map[string]Value) (Value, error) {
		a, _ := ToNumber(arg(args, 0))
		b, ok := ToNumber(arg(args, 1))
		if !ok || b == 0 {
			return nil, xl.Errorf(xl.KindTemplateEval, "div: invalid or zero divisor")
		}
		return a / b, nil
	}
	e.Helpers["concat"] = func(_ *Engine, args []Value, _ map[string]Value) (Value, error) {
		var sb strings.Builder
		for _, a := range args {
			sb.WriteString(ToString(a))
		}
		return sb.String(), nil
	}

	e.Helpers["num"] = func(en *Engine, args []Value, _ map[string]Value) (Value, error) {
		v := arg(args, 0)
		n, ok := ToNumber(v)
		if !ok {
			return nil, xl.Errorf(xl.KindTemplateEval, "num: %v is not numeric", v)
		}
		en.CellNumeric = true
		en.CellNumericText = formatNumber(n)
		return "", nil
	}
	e.Helpers["formula"] = func(en *Engine, args []Value, _ map[string]Value) (Value, error) {
		en.CellFormula = ToString(arg(args, 0))
		en.CellFormulaSet = true
		return "", nil
	}

	e.Helpers["mergeCell"] = func(en *Engine, args []Value, _ map[string]Value) (Value, error) {
		ref := ToString(arg(args, 0))
		if _, _, _, _, err := xl.ParseRangeRef(ref); err != nil {
			en.Sink.Warnf(en.Sheet.Name, en.CurrentRef, "mergeCell: invalid range %q dropped", ref)
			return "", nil
		}
		en.Sheet.AddMergeRange(ref)
		return "", nil
	}

	e.Helpers["hyperlink"] = func(en *Engine, args []Value, _ map[string]Value) (Value, error) {
		ref := ToString(arg(args, 0))
		target := ToString(arg(args, 1))
		display := ToString(arg(args, 2))
		internal := strings.Contains(target, "!") || (!strings.Contains(target, "://") && !strings.Contains(target, ":"))
		if !internal {
			if _, ok := en.ExternalRels[target]; !ok {
				en.Sink.Warnf(en.Sheet.Name, ref, "hyperlink: external target %q has no pre-existing relationship, dropped", target)
				return "", nil
			}
		}
		en.Sheet.AddHyperlink(xl.Hyperlink{Ref: ref, Target: target, Display: display, Internal: internal})
		return "", nil
	}

	e.Helpers["img"] = func(en *Engine, args []Value, _ map[string]Value) (Value, error) {
		b64 := ToString(arg(args, 0))
		blob, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
		if err != nil {
			return nil, xl.Wrapf(xl.KindTemplateEval, err, "img: invalid base64")
		}
		format, dim, ok := xl.ImageDimensions(blob)
		if !ok {
			return nil, xl.Errorf(xl.KindTemplateEval, "img: unrecognized image format")
		}
		w, wOK := ToNumber(arg(args, 1))
		h, hOK := ToNumber(arg(args, 2))
		width, height := float64(dim.Width), float64(dim.Height)
		switch {
		case wOK && w > 0 && hOK && h > 0:
			width, height = w, h
		case wOK && w > 0:
			width = w
			height = w * float64(dim.Height) / float64(dim.Width)
		case hOK && h > 0:
			height = h
			width = h * float64(dim.Width) / float64(dim.Height)
		}
		en.Sheet.AddImage(xl.ImageAnchor{
			Ref:          en.CurrentRef,
			Blob:         blob,
			Format:       format,
			WidthPixels:  width,
			HeightPixels: height,
		})
		return "", nil
	}

	e.Helpers["removeRow"] = func(en *Engine, _ []Value, _ map[string]Value) (Value, error) {
		en.RemoveRowRequested = true
		return "", nil
	}

	e.Helpers["toColumnName"] = func(en *Engine, args []Value, _ map[string]Value) (Value, error) {
		cur := ToString(arg(args, 0))
		off, _ := ToNumber(arg(args, 1))
		name, err := xl.ColumnName(cur, int(off))
		if err != nil {
			return nil, xl.Wrapf(xl.KindTemplateEval, err, "toColumnName")
		}
		return name, nil
	}
	e.Helpers["toColumnIndex"] = func(en *Engine, args []Value, _ map[string]Value) (Value, error) {
		idx, err := xl.ColumnIndex(ToString(arg(args, 0)))
		if err != nil {
			return nil, xl.Wrapf(xl.KindTemplateEval, err, "toColumnIndex")
		}
		return float64(idx), nil
	}

	e.Helpers["_c"] = func(en *Engine, _ []Value, _ map[string]Value) (Value, error) { return en.CurrentCol, nil }
	e.Helpers["_r"] = func(en *Engine, _ []Value, _ map[string]Value) (Value, error) {
		return strconv.Itoa(en.CurrentRow), nil
	}
	e.Helpers["_cr"] = func(en *Engine, _ []Value, _ map[string]Value) (Value, error) { return en.CurrentRef, nil }

	e.Helpers["deleteCurrentSheet"] = func(en *Engine, _ []Value, _ map[string]Value) (Value, error) {
		en.SheetDeleteSet = true
		return "", nil
	}
	e.Helpers["setCurrentSheetName"] = func(en *Engine, args []Value, _ map[string]Value) (Value, error) {
		en.SheetRenameTo = ToString(arg(args, 0))
		en.SheetRenameSet = true
		return "", nil
	}
	e.Helpers["hideCurrentSheet"] = func(en *Engine, args []Value, _ map[string]Value) (Value, error) {
		level := "hidden"
		if v := arg(args, 0); v != nil {
			if s := ToString(v); s != "" {
				level = s
			}
		}
		if level != "hidden" && level != "veryHidden" {
			level = "hidden"
		}
		en.SheetHideLevel = level
		en.SheetHideSet = true
		return "", nil
	}
}

func arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func cmpHelper(pred func(cmp int, eq bool) bool) HelperFunc {
	return func(_ *Engine, args []Value, _ map[string]Value) (Value, error) {
		a, b := arg(args, 0), arg(args, 1)
		return pred(Compare(a, b), Equal(a, b)), nil
	}
}

func arithHelper(op func(a, b float64) float64) HelperFunc {
	return func(_ *Engine, args []Value, _ map[string]Value) (Value, error) {
		a, aok := ToNumber(arg(args, 0))
		b, bok := ToNumber(arg(args, 1))
		if !aok || !bok {
			return nil, xl.Errorf(xl.KindTemplateEval, "arithmetic helper received a non-numeric argument")
		}
		return op(a, b), nil
	}
}
