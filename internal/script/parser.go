// Package script parses the line-oriented trace format that drives the
// simulator and reports malformed lines with the offending operation
// and line number, per spec.md §6/§7.
package script

import (
	"fmt"
	"strconv"
	"strings"
)

// OpKind tags which of the eight scripted operations a line names.
type OpKind int

const (
	OpBegin OpKind = iota
	OpBeginReadOnly
	OpRead
	OpWrite
	OpEnd
	OpFail
	OpRecover
	OpDump
)

func (k OpKind) String() string {
	switch k {
	case OpBegin:
		return "begin"
	case OpBeginReadOnly:
		return "beginRO"
	case OpRead:
		return "R"
	case OpWrite:
		return "W"
	case OpEnd:
		return "end"
	case OpFail:
		return "fail"
	case OpRecover:
		return "recover"
	case OpDump:
		return "dump"
	default:
		return "?"
	}
}

// DumpArgKind distinguishes dump()'s three forms.
type DumpArgKind int

const (
	DumpArgNone DumpArgKind = iota
	DumpArgVariable
	DumpArgSite
)

// Operation is one parsed, fully validated line of the script.
type Operation struct {
	Kind     OpKind
	Line     int
	Raw      string
	Txn      int    // begin, beginRO, R, W, end
	Variable string // R, W, dump(xk)
	Value    int    // W
	Site     int    // fail, recover, dump(j)
	DumpArg  DumpArgKind
}

// ParseError names the offending operation and line, in the style of
// the SQL engine's structured parse errors.
type ParseError struct {
	Line    int
	Raw     string
	Op      string
	Message string
}

func (e *ParseError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("script: line %d: %s: %s (%q)", e.Line, e.Op, e.Message, e.Raw)
	}
	return fmt.Sprintf("script: line %d: %s (%q)", e.Line, e.Message, e.Raw)
}

var arity = map[string]int{
	"begin":   1,
	"beginRO": 1,
	"R":       2,
	"W":       3,
	"end":     1,
	"fail":    1,
	"recover": 1,
}

// IsComment reports whether a raw line is a comment: one beginning
// with any of / # ' " (spec.md §6), ignoring leading whitespace.
func IsComment(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return false
	}
	switch trimmed[0] {
	case '/', '#', '\'', '"':
		return true
	default:
		return false
	}
}

// Blank reports whether a raw line has no content worth a tick.
func Blank(raw string) bool {
	return strings.TrimSpace(raw) == ""
}

// ParseLine parses one non-comment, non-blank script line into an
// Operation, or returns a *ParseError naming the problem.
func ParseLine(raw string, lineNo int) (*Operation, error) {
	trimmed := strings.TrimSpace(raw)
	open := strings.IndexByte(trimmed, '(')
	shut := strings.LastIndexByte(trimmed, ')')
	if open < 0 || shut < open {
		return nil, &ParseError{Line: lineNo, Raw: raw, Message: "malformed operation: missing parentheses"}
	}
	name := strings.TrimSpace(trimmed[:open])
	argsRaw := strings.TrimSpace(trimmed[open+1 : shut])

	var args []string
	if argsRaw != "" {
		for _, a := range strings.Split(argsRaw, ",") {
			args = append(args, strings.TrimSpace(a))
		}
	}

	if name == "dump" {
		return parseDump(raw, lineNo, args)
	}

	want, known := arity[name]
	if !known {
		return nil, &ParseError{Line: lineNo, Raw: raw, Op: name, Message: "unknown operation"}
	}
	if len(args) != want {
		return nil, &ParseError{Line: lineNo, Raw: raw, Op: name,
			Message: fmt.Sprintf("expected %d argument(s), got %d", want, len(args))}
	}

	switch name {
	case "begin", "beginRO":
		id, err := parseTxnID(args[0], raw, lineNo, name)
		if err != nil {
			return nil, err
		}
		kind := OpBegin
		if name == "beginRO" {
			kind = OpBeginReadOnly
		}
		return &Operation{Kind: kind, Line: lineNo, Raw: raw, Txn: id}, nil

	case "end":
		id, err := parseTxnID(args[0], raw, lineNo, name)
		if err != nil {
			return nil, err
		}
		return &Operation{Kind: OpEnd, Line: lineNo, Raw: raw, Txn: id}, nil

	case "R":
		id, err := parseTxnID(args[0], raw, lineNo, name)
		if err != nil {
			return nil, err
		}
		variable, err := parseVariable(args[1], raw, lineNo, name)
		if err != nil {
			return nil, err
		}
		return &Operation{Kind: OpRead, Line: lineNo, Raw: raw, Txn: id, Variable: variable}, nil

	case "W":
		id, err := parseTxnID(args[0], raw, lineNo, name)
		if err != nil {
			return nil, err
		}
		variable, err := parseVariable(args[1], raw, lineNo, name)
		if err != nil {
			return nil, err
		}
		value, err := strconv.Atoi(args[2])
		if err != nil {
			return nil, &ParseError{Line: lineNo, Raw: raw, Op: name, Message: "value must be an integer"}
		}
		return &Operation{Kind: OpWrite, Line: lineNo, Raw: raw, Txn: id, Variable: variable, Value: value}, nil

	case "fail", "recover":
		site, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, &ParseError{Line: lineNo, Raw: raw, Op: name, Message: "site must be an integer"}
		}
		kind := OpFail
		if name == "recover" {
			kind = OpRecover
		}
		return &Operation{Kind: kind, Line: lineNo, Raw: raw, Site: site}, nil
	}

	return nil, &ParseError{Line: lineNo, Raw: raw, Op: name, Message: "unhandled operation"}
}

func parseDump(raw string, lineNo int, args []string) (*Operation, error) {
	if len(args) > 1 {
		return nil, &ParseError{Line: lineNo, Raw: raw, Op: "dump",
			Message: fmt.Sprintf("expected 0 or 1 argument(s), got %d", len(args))}
	}
	if len(args) == 0 || args[0] == "" {
		return &Operation{Kind: OpDump, Line: lineNo, Raw: raw, DumpArg: DumpArgNone}, nil
	}
	arg := args[0]
	if strings.HasPrefix(arg, "x") {
		variable, err := parseVariable(arg, raw, lineNo, "dump")
		if err != nil {
			return nil, err
		}
		return &Operation{Kind: OpDump, Line: lineNo, Raw: raw, DumpArg: DumpArgVariable, Variable: variable}, nil
	}
	site, err := strconv.Atoi(arg)
	if err != nil {
		return nil, &ParseError{Line: lineNo, Raw: raw, Op: "dump", Message: "argument must be a variable or a site number"}
	}
	return &Operation{Kind: OpDump, Line: lineNo, Raw: raw, DumpArg: DumpArgSite, Site: site}, nil
}

func parseTxnID(arg, raw string, lineNo int, op string) (int, error) {
	if !strings.HasPrefix(arg, "T") {
		return 0, &ParseError{Line: lineNo, Raw: raw, Op: op, Message: fmt.Sprintf("malformed transaction id %q", arg)}
	}
	id, err := strconv.Atoi(arg[1:])
	if err != nil {
		return 0, &ParseError{Line: lineNo, Raw: raw, Op: op, Message: fmt.Sprintf("malformed transaction id %q", arg)}
	}
	return id, nil
}

func parseVariable(arg, raw string, lineNo int, op string) (string, error) {
	if !strings.HasPrefix(arg, "x") {
		return "", &ParseError{Line: lineNo, Raw: raw, Op: op, Message: fmt.Sprintf("malformed variable id %q", arg)}
	}
	if _, err := strconv.Atoi(arg[1:]); err != nil {
		return "", &ParseError{Line: lineNo, Raw: raw, Op: op, Message: fmt.Sprintf("malformed variable id %q", arg)}
	}
	return arg, nil
}
