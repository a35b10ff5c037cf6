package script

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"quorumkv/internal/coordinator"
	"quorumkv/internal/diagnostics"
	"quorumkv/internal/logging"
	"quorumkv/internal/store"
)

// Run reads the script at inputDir/input, replays it one operation per
// tick against coord, and writes dump output plus the final commit/
// abort summary to out. It returns the first parse error encountered,
// since a malformed script terminates the run (spec.md §7). trace is
// optional: when non-nil, every executed operation is recorded to it
// for later Flush by the caller.
func Run(coord *coordinator.Coordinator, log *logging.Logger, inputDir, input string, out io.Writer, trace *diagnostics.TraceRecorder) error {
	path := filepath.Join(inputDir, input)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("script: open %s: %w", path, err)
	}
	defer f.Close()
	log.Info("starting run", logging.F("path", path))

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		if Blank(raw) || IsComment(raw) {
			continue
		}

		op, err := ParseLine(raw, lineNo)
		if err != nil {
			return err
		}

		coord.Advance()
		execute(coord, op, out)
		if trace != nil {
			trace.Record(diagnostics.TickEvent{Tick: coord.Tick(), Line: lineNo, Description: op.Raw})
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("script: read %s: %w", path, err)
	}

	log.Info("run complete", logging.F("ticks", coord.Tick()))
	writeSummary(coord, out)
	return nil
}

func execute(coord *coordinator.Coordinator, op *Operation, out io.Writer) {
	switch op.Kind {
	case OpBegin:
		coord.Begin(op.Txn)
	case OpBeginReadOnly:
		coord.BeginReadOnly(op.Txn)
	case OpRead:
		coord.Read(op.Txn, op.Variable)
	case OpWrite:
		coord.Write(op.Txn, op.Variable, op.Value)
	case OpEnd:
		coord.End(op.Txn)
	case OpFail:
		coord.Fail(op.Site)
	case OpRecover:
		coord.Recover(op.Site)
	case OpDump:
		switch op.DumpArg {
		case DumpArgVariable:
			coord.Dump(out, coordinator.DumpVariable, op.Variable, 0)
		case DumpArgSite:
			coord.Dump(out, coordinator.DumpSite, "", op.Site)
		default:
			coord.Dump(out, coordinator.DumpAll, "", 0)
		}
	}
}

// writeSummary renders the end-of-run report: each transaction's
// outcome, then each written variable's final committed value
// (spec.md §6).
func writeSummary(coord *coordinator.Coordinator, out io.Writer) {
	outcomes := coord.FinalOutcomes()
	ids := make([]int, 0, len(outcomes))
	for id := range outcomes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fmt.Fprintln(out, "--- transaction outcomes ---")
	for _, id := range ids {
		fmt.Fprintf(out, "T%d: %s\n", id, outcomes[id])
	}

	summary := coord.CommitSummary()
	variables := make([]string, 0, len(summary))
	for v := range summary {
		variables = append(variables, v)
	}
	sort.Slice(variables, func(i, j int) bool {
		return store.ParseVariableIndex(variables[i]) < store.ParseVariableIndex(variables[j])
	})
	fmt.Fprintln(out, "--- committed values ---")
	for _, v := range variables {
		fmt.Fprintf(out, "%s: %d\n", v, summary[v])
	}
}
