package cipher

import (
	"time"

	"github.com/dop251/goja"
	"github.com/robertkrimen/otto"

	"github.com/tubeget/tubeget/internal/logger"
)

const (
	// defaultEvalTimeout bounds a single fallback-evaluator run.
	defaultEvalTimeout = 3 * time.Second
)

var log = logger.WithComponent(logger.ComponentCipher)

// config holds construction options for a Cipher.
type config struct {
	jsFallback  bool
	stepBudget  int
	evalTimeout time.Duration
}

// Option configures Cipher construction.
type Option func(*config)

// WithJSFallback enables the sandboxed JavaScript fallback evaluators. When
// structural recognition of the player script drifts, the signature falls
// back to otto and the n-transform to goja under a wall-clock interrupt.
// Without this option construction is strict: unrecognized shapes fail.
func WithJSFallback() Option {
	return func(c *config) { c.jsFallback = true }
}

// WithStepBudget overrides the n-transform execution step budget.
func WithStepBudget(steps int) Option {
	return func(c *config) { c.stepBudget = steps }
}

// WithEvalTimeout overrides the wall-clock budget of the fallback evaluators.
func WithEvalTimeout(d time.Duration) Option {
	return func(c *config) { c.evalTimeout = d }
}

// Cipher holds the compiled signature program and n-transform program of one
// player script version. It is immutable after construction and safe for
// concurrent use across manifest entries.
type Cipher struct {
	cfg config

	// script keeps the full player script text for the otto fallback: the
	// decipher function references the helper object, so the extracted
	// function source alone cannot run.
	script string

	sig     Program
	sigErr  error
	sigName string

	n     NProgram
	nErr  error
	nName string
	nSrc  string
}

// New parses the player script, classifies its helper operations and compiles
// both transform programs. The decipher function and helper object are
// required. A missing n-transform is tolerated here and only surfaces when
// ApplyN is called, since manifests without n-tokens never need it.
func New(js string, opts ...Option) (*Cipher, error) {
	cfg := config{stepBudget: defaultStepBudget, evalTimeout: defaultEvalTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	fns, err := parseScript(js)
	if err != nil {
		return nil, err
	}

	c := &Cipher{cfg: cfg, sigName: fns.decipherName}
	if cfg.jsFallback {
		c.script = js
	}

	table, err := classifyHelpers(fns.helperBody)
	if err != nil {
		if !cfg.jsFallback {
			return nil, err
		}
		c.sigErr = err
	} else {
		c.sig, c.sigErr = compileSignatureProgram(fns.decipherBody, fns.helperAlias, fns.param, table)
		if c.sigErr != nil && !cfg.jsFallback {
			return nil, c.sigErr
		}
		if c.sigErr == nil {
			log.Debug("compiled signature program", map[string]any{
				"fn":      fns.decipherName,
				"program": c.sig.String(),
			})
		}
	}

	if nErr := locateNTransform(js, fns); nErr != nil {
		c.nErr = nErr
	} else {
		c.nName = fns.nName
		c.nSrc = fns.nSrc
		c.n, c.nErr = compileNTransform(fns.nBody)
		if c.nErr == nil {
			log.Debug("compiled n-transform program", map[string]any{
				"fn":      fns.nName,
				"program": c.n.String(),
			})
		}
	}
	if c.nErr != nil && cfg.jsFallback && c.nSrc != "" {
		// The goja path can still evaluate the located source.
		c.nErr = nil
	}
	return c, nil
}

// SignatureProgram returns a copy of the compiled signature program.
func (c *Cipher) SignatureProgram() Program {
	out := make(Program, len(c.sig))
	copy(out, c.sig)
	return out
}

// NTransformProgram returns a copy of the compiled n-transform program.
func (c *Cipher) NTransformProgram() NProgram {
	out := make(NProgram, len(c.n))
	copy(out, c.n)
	return out
}

// ApplySignature descrambles a signature token. Pure: identical inputs always
// produce identical output.
func (c *Cipher) ApplySignature(token string) (string, error) {
	if c.sigErr == nil {
		return applySignatureProgram(token, c.sig), nil
	}
	if c.cfg.jsFallback && c.script != "" {
		if out, err := evalSignatureJS(c.script, c.sigName, token); err == nil {
			return out, nil
		}
	}
	return "", c.sigErr
}

// ApplyN transforms a throttle token. Execution runs under the configured
// step budget; the goja fallback, when enabled, runs under a wall-clock
// interrupt instead.
func (c *Cipher) ApplyN(token string) (string, error) {
	if c.nErr != nil {
		return "", c.nErr
	}
	if len(c.n) > 0 {
		return applyNProgram(token, c.n, c.cfg.stepBudget)
	}
	if c.cfg.jsFallback && c.nSrc != "" {
		return evalNTransformJS(c.nSrc, c.nName, token, c.cfg.evalTimeout)
	}
	return "", newPatternDrift(probeNTransform)
}

// applySignatureProgram executes a compiled signature program. Swap indexes
// are taken mod length; construction-time bounds already rejected nonsense.
func applySignatureProgram(token string, program Program) string {
	r := []rune(token)
	for _, op := range program {
		switch op.Kind {
		case OpReverse:
			reverseRunes(r)
		case OpSplice:
			if op.Arg < len(r) {
				r = r[op.Arg:]
			} else {
				r = r[:0]
			}
		case OpSwap:
			if len(r) > 0 {
				i := op.Arg % len(r)
				r[0], r[i] = r[i], r[0]
			}
		}
	}
	return string(r)
}

// evalSignatureJS runs the located decipher source in otto and calls it.
func evalSignatureJS(src, name, token string) (string, error) {
	vm := otto.New()
	if _, err := vm.Run(src); err != nil {
		return "", NewError(ErrCodeJSExecution, "failed to run decipher source", err.Error())
	}
	value, err := vm.Call(name, nil, token)
	if err != nil {
		return "", NewError(ErrCodeJSExecution, "failed to call decipher function", err.Error())
	}
	out, err := value.ToString()
	if err != nil {
		return "", NewError(ErrCodeJSExecution, "decipher function did not return a string", err.Error())
	}
	return out, nil
}

// evalNTransformJS runs the located n-transform source in goja with an
// interrupt-based budget. The VM gets no host bindings: the adversarial code
// can compute, but it cannot reach I/O.
func evalNTransformJS(src, name, token string, timeout time.Duration) (string, error) {
	vm := goja.New()
	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt("evaluation budget exceeded")
	})
	defer timer.Stop()

	if _, err := vm.RunString(src); err != nil {
		if _, ok := err.(*goja.InterruptedError); ok {
			return "", newEvalTimeout(timeout.String())
		}
		return "", NewError(ErrCodeJSExecution, "failed to run n-transform source", err.Error())
	}
	fn, ok := goja.AssertFunction(vm.Get(name))
	if !ok {
		return "", NewError(ErrCodeJSExecution, "n-transform is not callable", name)
	}
	res, err := fn(goja.Undefined(), vm.ToValue(token))
	if err != nil {
		if _, ok := err.(*goja.InterruptedError); ok {
			return "", newEvalTimeout(timeout.String())
		}
		return "", NewError(ErrCodeJSExecution, "failed to call n-transform", err.Error())
	}
	return res.String(), nil
}
