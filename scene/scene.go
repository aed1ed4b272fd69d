// Package scene builds field graphs from lisp scripts evaluated in a
// sandboxed zygomys interpreter.
//
// A script is a sequence of expressions. The scene's field is the one passed
// to (scene f) or, absent a scene call, the value of the last expression.
//
//	(def body (box 2 1 1 :round 0.1))
//	(def hole (cylinder 0.3 3))
//	(subtraction body (rotate hole 1.5708 (vec3 1 0 0)))
package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/fabfield/forge/textfield"
)

// DefaultTimeout is the evaluation time limit used when [Config.Timeout] is zero.
const DefaultTimeout = 5 * time.Second

// EvalError is a non-fatal error in the script: a parse error, a runtime error
// or an invalid argument to a builtin.
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

type Config struct {
	// Mode fields are created in until the script calls (density) or (distance).
	Mode fieldeval.Mode
	// Font used by the text builtin. nil uses Go Regular.
	Font *textfield.Font
	// AllowFiles enables builtins that read files, such as image.
	AllowFiles bool
	// Timeout limits evaluation time. Zero uses DefaultTimeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Evaluate runs source in a fresh sandbox and returns the scene's field.
//
//   - On success it returns the field and nil errors.
//   - On script errors it returns nil and the errors found.
//   - On fatal failure (timeout, panic) it returns a non-nil error.
func Evaluate(source string, cfg Config) (fieldeval.Field, []EvalError, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	} else if timeout < 0 {
		return nil, nil, errors.New("negative timeout")
	}
	if cfg.Mode != fieldeval.ModeDistance && cfg.Mode != fieldeval.ModeDensity {
		return nil, nil, fmt.Errorf("invalid mode %d", cfg.Mode)
	}
	type result struct {
		f    fieldeval.Field
		errs []EvalError
		err  error
	}
	ch := make(chan result, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()
		f, errs := evaluate(source, cfg)
		ch <- result{f: f, errs: errs}
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		if cfg.Logger != nil {
			cfg.Logger.Debug("evaluated scene", slog.Int("errors", len(res.errs)), slog.Duration("elapsed", time.Since(start)))
		}
		return res.f, res.errs, res.err
	case <-timer.C:
		// The goroutine's result is discarded when it eventually completes.
		return nil, nil, fmt.Errorf("scene evaluation timed out after %s", timeout)
	}
}

func evaluate(source string, cfg Config) (fieldeval.Field, []EvalError) {
	if strings.TrimSpace(source) == "" {
		return nil, []EvalError{{Message: "empty scene"}}
	}
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	st := newState(cfg)
	st.register(env)

	err := env.LoadString(preprocessSource(source))
	if err != nil {
		return nil, parseZygomysError(err)
	}
	last, err := env.Run()
	if err != nil {
		return nil, parseZygomysError(err)
	}
	f := st.scene
	if f == nil {
		sf, ok := last.(*sexpField)
		if !ok {
			return nil, []EvalError{{Message: "script produced no field, end with a field expression or call (scene f)"}}
		}
		f = sf.f
	}
	return f, nil
}

// linePattern matches zygomys error messages with "Error on line N: ...".
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches "line N: ..." messages.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

func parseZygomysError(err error) []EvalError {
	msg := err.Error()
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
