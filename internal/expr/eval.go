package expr

import (
	"fmt"
	"strings"
)

type literal struct{ value any }

func (l *literal) Eval(map[string]any) (any, error) { return l.value, nil }

type arrayLiteral struct{ items []Node }

func (a *arrayLiteral) Eval(env map[string]any) (any, error) {
	out := make([]any, len(a.items))
	for i, item := range a.items {
		v, err := item.Eval(env)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type identifier struct{ name string }

func (id *identifier) Eval(env map[string]any) (any, error) {
	v, ok := env[id.name]
	if !ok {
		return nil, fmt.Errorf("unknown variable reference %q", id.name)
	}
	return v, nil
}

type notOp struct{ operand Node }

func (n *notOp) Eval(env map[string]any) (any, error) {
	v, err := n.operand.Eval(env)
	if err != nil {
		return nil, err
	}
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("'!' requires a boolean operand, got %T", v)
	}
	return !b, nil
}

type binOp struct {
	op          string
	left, right Node
}

func (b *binOp) Eval(env map[string]any) (any, error) {
	l, err := b.left.Eval(env)
	if err != nil {
		return nil, err
	}
	switch b.op {
	case "&&":
		lb, ok := l.(bool)
		if !ok {
			return nil, fmt.Errorf("'&&' requires boolean operands, got %T", l)
		}
		if !lb {
			return false, nil
		}
		r, err := b.right.Eval(env)
		if err != nil {
			return nil, err
		}
		rb, ok := r.(bool)
		if !ok {
			return nil, fmt.Errorf("'&&' requires boolean operands, got %T", r)
		}
		return rb, nil
	case "||":
		lb, ok := l.(bool)
		if !ok {
			return nil, fmt.Errorf("'||' requires boolean operands, got %T", l)
		}
		if lb {
			return true, nil
		}
		r, err := b.right.Eval(env)
		if err != nil {
			return nil, err
		}
		rb, ok := r.(bool)
		if !ok {
			return nil, fmt.Errorf("'||' requires boolean operands, got %T", r)
		}
		return rb, nil
	}

	r, err := b.right.Eval(env)
	if err != nil {
		return nil, err
	}

	switch b.op {
	case "==":
		return equal(l, r), nil
	case "!=":
		return !equal(l, r), nil
	case "in":
		return member(l, r)
	case "+":
		return add(l, r)
	case ">", "<", ">=", "<=":
		return compare(b.op, l, r)
	}
	return nil, fmt.Errorf("unknown operator %q", b.op)
}

func equal(l, r any) bool {
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if lok && rok {
		return lf == rf
	}
	return fmt.Sprintf("%v", l) == fmt.Sprintf("%v", r) && sameKind(l, r)
}

func sameKind(l, r any) bool {
	switch l.(type) {
	case bool:
		_, ok := r.(bool)
		return ok
	case string:
		_, ok := r.(string)
		return ok
	}
	return fmt.Sprintf("%T", l) == fmt.Sprintf("%T", r)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func member(needle, haystack any) (any, error) {
	switch h := haystack.(type) {
	case []any:
		for _, item := range h {
			if equal(needle, item) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := needle.(string)
		if !ok {
			return nil, fmt.Errorf("'in' over a string requires a string operand, got %T", needle)
		}
		return strings.Contains(h, s), nil
	}
	return nil, fmt.Errorf("'in' requires an array or string on the right, got %T", haystack)
}

func add(l, r any) (any, error) {
	if lf, lok := toFloat(l); lok {
		if rf, rok := toFloat(r); rok {
			return lf + rf, nil
		}
	}
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		return ls + rs, nil
	}
	return nil, fmt.Errorf("'+' requires two numbers or two strings, got %T and %T", l, r)
}

func compare(op string, l, r any) (any, error) {
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if lok && rok {
		switch op {
		case ">":
			return lf > rf, nil
		case "<":
			return lf < rf, nil
		case ">=":
			return lf >= rf, nil
		case "<=":
			return lf <= rf, nil
		}
	}
	ls, lsok := l.(string)
	rs, rsok := r.(string)
	if lsok && rsok {
		switch op {
		case ">":
			return ls > rs, nil
		case "<":
			return ls < rs, nil
		case ">=":
			return ls >= rs, nil
		case "<=":
			return ls <= rs, nil
		}
	}
	return nil, fmt.Errorf("%q requires two numbers or two strings, got %T and %T", op, l, r)
}

type call struct {
	name string
	args []Node
}

func (c *call) Eval(env map[string]any) (any, error) {
	args := make([]any, len(c.args))
	for i, a := range c.args {
		v, err := a.Eval(env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	switch c.name {
	case "length":
		return length(args[0])
	case "empty":
		n, err := length(args[0])
		if err != nil {
			return nil, err
		}
		return n == 0, nil
	case "startsWith":
		s, sok := args[0].(string)
		prefix, pok := args[1].(string)
		if !sok || !pok {
			return nil, fmt.Errorf("startsWith(s, p) requires two strings")
		}
		return strings.HasPrefix(s, prefix), nil
	case "endsWith":
		s, sok := args[0].(string)
		suffix, pok := args[1].(string)
		if !sok || !pok {
			return nil, fmt.Errorf("endsWith(s, p) requires two strings")
		}
		return strings.HasSuffix(s, suffix), nil
	}
	return nil, fmt.Errorf("call to non-whitelisted function %q", c.name)
}

func length(v any) (float64, error) {
	switch x := v.(type) {
	case string:
		return float64(len(x)), nil
	case []any:
		return float64(len(x)), nil
	case map[string]any:
		return float64(len(x)), nil
	}
	return 0, fmt.Errorf("length() requires a string, array, or object, got %T", v)
}
