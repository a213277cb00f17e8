// Package engine evaluates session scripts: zygomys Lisp programs that
// build geometry, embed anchors, compose the sizing field and list the
// mesh operations to run. Evaluation is sandboxed and bounded in time; the
// mesh operations are returned as steps for the caller to run under its
// own context.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/impactmesh/pkg/session"
	zygo "github.com/glycerine/zygomys/zygo"
	"go.uber.org/zap"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a builtin rejecting its arguments.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Engine wraps the zygomys interpreter. It is safe for concurrent use;
// each call to Evaluate creates a fresh sandbox and a fresh session.
type Engine struct {
	mu         sync.Mutex
	generation uint64

	logger      *zap.Logger
	timeout     time.Duration
	sessionOpts []session.Option
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger handed to every evaluated session.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTimeout overrides EvalTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithSessionOptions adds options applied to every evaluated session,
// such as the mesher or its configuration.
func WithSessionOptions(opts ...session.Option) Option {
	return func(e *Engine) { e.sessionOpts = append(e.sessionOpts, opts...) }
}

// NewEngine creates a new Engine instance.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{logger: zap.NewNop(), timeout: EvalTimeout}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluate runs source and returns the resulting script.
//
// Return semantics:
//   - On success: returns script + nil errors + nil error
//   - On parse/eval failure: returns nil script + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*Script, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		sc, evalErrs, err := e.evaluate(source)
		ch <- evalResult{script: sc, errors: evalErrs, err: err}
	}()

	return e.await(ch, gen)
}

func (e *Engine) newSession() *session.Session {
	opts := append([]session.Option{session.WithLogger(e.logger)}, e.sessionOpts...)
	return session.New(opts...)
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*Script, []EvalError, error) {
	st := newScriptState(e.newSession())

	// Empty source is a valid program that declares nothing.
	if strings.TrimSpace(source) == "" {
		return st.script(), nil, nil
	}

	// Sandbox mode keeps scripts away from the filesystem and syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerBuiltins(env, st)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if err := st.finish(); err != nil {
		return nil, []EvalError{{Message: err.Error()}}, nil
	}

	e.logger.Debug("script evaluated",
		zap.String("session_id", st.sess.ID()),
		zap.Stringer("state", st.sess.State()),
		zap.Int("steps", len(st.steps)),
	)
	return st.script(), nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values,
// extracting the line number when the message carries one.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{
				Line:    line,
				Message: strings.TrimSpace(m[2]),
			}}
		}
	}

	// Fallback: no line info available.
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
