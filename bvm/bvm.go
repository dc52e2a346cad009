// package bvm contains the BFF virtual machine.
//
// The machine has three cursors over a single tape: the instruction pointer,
// the data pointer and the console pointer. In tape-resident mode, the program
// is read from the same bytes that the data operations modify, so a program can
// rewrite itself while it runs.
package bvm

import (
	"fmt"
	"math/rand/v2"

	"abiogenesis.dev/bff/bfftape"
	"abiogenesis.dev/bff/isa"
)

// Outcome is the way a run ended.
type Outcome uint8

const (
	// Exhausted means the operation budget ran out.
	Exhausted Outcome = iota
	// Terminated means the instruction pointer ran off the end of the program.
	Terminated
	// Crashed means a jump had no matching bracket.
	Crashed
	// TimedOut means the run was stopped by the probabilistic timeout.
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Exhausted:
		return "exhausted"
	case Terminated:
		return "terminated"
	case Crashed:
		return "crashed"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// Result describes a single run of the machine.
// At most one of Terminated, Crashed and TimedOut is set.
// If none are set, the run used its whole operation budget.
type Result struct {
	Operations uint64 `json:"operations"`
	Terminated bool   `json:"terminated"`
	Crashed    bool   `json:"crashed"`
	TimedOut   bool   `json:"timed_out"`

	FinalIP int `json:"final_instruction_pointer"`
	FinalDP int `json:"final_data_pointer"`
	FinalCP int `json:"final_console_pointer"`
}

func (r Result) Outcome() Outcome {
	switch {
	case r.Crashed:
		return Crashed
	case r.TimedOut:
		return TimedOut
	case r.Terminated:
		return Terminated
	default:
		return Exhausted
	}
}

// Interpreter executes instructions against a Tape it does not own.
type Interpreter struct {
	tape *bfftape.Tape
	rng  *rand.Rand

	ip, dp, cp int
}

// New creates an Interpreter over t.
// rng is used for timeout draws. If rng is nil, an unseeded generator is
// created the first time one is needed.
func New(t *bfftape.Tape, rng *rand.Rand) *Interpreter {
	return &Interpreter{tape: t, rng: rng}
}

// IP returns the instruction pointer.
func (vm *Interpreter) IP() int {
	return vm.ip
}

// DP returns the data pointer.
func (vm *Interpreter) DP() int {
	return vm.dp
}

// CP returns the console pointer.
func (vm *Interpreter) CP() int {
	return vm.cp
}

// SetDP sets the data pointer, wrapping it onto the tape.
func (vm *Interpreter) SetDP(x int) {
	vm.dp = vm.wrap(x)
}

// SetCP sets the console pointer, wrapping it onto the tape.
func (vm *Interpreter) SetCP(x int) {
	vm.cp = vm.wrap(x)
}

// Exec executes a single non-bracket instruction.
// It returns false if op is not one of the five data instructions, in which
// case nothing happens.
func (vm *Interpreter) Exec(op byte) bool {
	switch op {
	case isa.Right:
		vm.dp = vm.wrap(vm.dp + 1)
	case isa.Left:
		vm.dp = vm.wrap(vm.dp - 1)
	case isa.Inc:
		vm.tape.Increment(vm.dp)
	case isa.Dec:
		vm.tape.Decrement(vm.dp)
	case isa.Copy:
		vm.tape.Set(vm.dp, int(vm.tape.Get(vm.cp)))
		vm.cp = vm.wrap(vm.cp + 1)
	default:
		return false
	}
	return true
}

func (vm *Interpreter) wrap(x int) int {
	n := vm.tape.Len()
	x %= n
	if x < 0 {
		x += n
	}
	return x
}

func (vm *Interpreter) cell() byte {
	return vm.tape.Get(vm.dp)
}

// shouldTimeout draws from the generator, only when p > 0.
func (vm *Interpreter) shouldTimeout(p float64) bool {
	if p <= 0 {
		return false
	}
	if vm.rng == nil {
		vm.rng = bfftape.UnseededRand()
	}
	return vm.rng.Float64() < p
}

func (vm *Interpreter) result(ops uint64, ip int) Result {
	return Result{
		Operations: ops,
		FinalIP:    ip,
		FinalDP:    vm.dp,
		FinalCP:    vm.cp,
	}
}
