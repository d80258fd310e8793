// Package script runs model-authored Starlark programs under a contract: the
// program sees only the contract's input bindings and must assign every
// output binding.
//
// This is a trust boundary, not a sandbox. Starlark has no filesystem, network
// or environment access and load statements are refused, but a program can
// still burn CPU up to the step limit.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/querylens/querylens/internal/observability"
)

var (
	ErrContract = errors.New("script contract violated")
	ErrScript   = errors.New("script failed")
)

const DefaultMaxSteps = 5_000_000

type Contract struct {
	Name    string
	Inputs  starlark.StringDict
	Outputs []string
}

// ContractError names the output binding that was missing or had the wrong
// shape.
type ContractError struct {
	Contract string
	Binding  string
	Reason   string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("script %q: binding %q %s", e.Contract, e.Binding, e.Reason)
}

func (e *ContractError) Is(target error) bool {
	return target == ErrContract
}

// ExecError wraps a compile or runtime failure of the program itself.
type ExecError struct {
	Contract  string
	Err       error
	Backtrace string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("script %q: %v", e.Contract, e.Err)
}

func (e *ExecError) Is(target error) bool {
	return target == ErrScript
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

type Runtime struct {
	maxSteps uint64
	logger   *slog.Logger
}

func NewRuntime(maxSteps int, logger *slog.Logger) *Runtime {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runtime{maxSteps: uint64(maxSteps), logger: logger}
}

// Run executes src with the contract's inputs as the only predeclared names
// and returns the contract's outputs. The program is cancelled when ctx is.
func (r *Runtime) Run(ctx context.Context, c Contract, src string) (starlark.StringDict, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &ExecError{Contract: c.Name, Err: errors.New("empty program")}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	thread := &starlark.Thread{
		Name: c.Name,
		Print: func(_ *starlark.Thread, msg string) {
			r.logger.DebugContext(ctx, "script_print",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.String("contract", c.Name),
				slog.String("message", msg),
			)
		},
		Load: func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			return nil, fmt.Errorf("load of %q is not permitted", module)
		},
	}
	thread.SetMaxExecutionSteps(r.maxSteps)
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	predeclared := make(starlark.StringDict, len(c.Inputs))
	for name, value := range c.Inputs {
		predeclared[name] = value
	}

	globals, err := starlark.ExecFileOptions(fileOptions, thread, c.Name+".star", src, predeclared)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("script %q cancelled: %w", c.Name, ctxErr)
		}
		execErr := &ExecError{Contract: c.Name, Err: err}
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			execErr.Backtrace = evalErr.Backtrace()
		}
		return nil, execErr
	}

	outputs := make(starlark.StringDict, len(c.Outputs))
	for _, name := range c.Outputs {
		value, ok := globals[name]
		if !ok {
			return nil, &ContractError{Contract: c.Name, Binding: name, Reason: "was not assigned"}
		}
		if value == starlark.None {
			return nil, &ContractError{Contract: c.Name, Binding: name, Reason: "is None"}
		}
		outputs[name] = value
	}

	r.logger.DebugContext(ctx, "script_completed",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("contract", c.Name),
		slog.Uint64("steps", thread.ExecutionSteps()),
	)
	return outputs, nil
}
