package bvm

import (
	"abiogenesis.dev/bff/isa"
)

// Run executes an explicit program against the tape, starting at index start of program.
// The program is immutable; only the data and console pointers touch the tape.
// Unmatched brackets anywhere in program crash the run before any
// instruction executes.
// If program is empty, the tape itself is executed, see RunFromTape.
func (vm *Interpreter) Run(program string, start int, maxOps uint64, timeoutProb float64) Result {
	if program == "" {
		return vm.RunFromTape(start, maxOps, timeoutProb)
	}
	jumps, ok := matchBrackets([]byte(program), true)
	if !ok || start < 0 {
		res := vm.result(0, start)
		res.Crashed = true
		return res
	}
	var ops uint64
	ip := start
	for ip < len(program) && ops < maxOps {
		if vm.shouldTimeout(timeoutProb) {
			res := vm.result(ops, ip)
			res.TimedOut = true
			return res
		}
		switch b := program[ip]; b {
		case isa.LoopStart:
			if vm.cell() == 0 {
				ip = jumps[ip]
			}
			ops++
		case isa.LoopEnd:
			if vm.cell() != 0 {
				ip = jumps[ip]
			}
			ops++
		default:
			if vm.Exec(b) {
				ops++
			}
		}
		// this happens after jumps as well, so a jump lands one past the matching bracket.
		ip++
	}
	res := vm.result(ops, ip)
	res.Terminated = ip >= len(program)
	return res
}

// RunFromTape executes the tape itself, starting at start.
//
// Jump targets are computed once, from the contents of the tape at the start
// of the run. If the program modifies its own brackets, the targets go stale,
// and a jump from a bracket which has no target crashes the run.
// Running off the end of the tape is normal termination.
// A negative start crashes without executing anything.
func (vm *Interpreter) RunFromTape(start int, maxOps uint64, timeoutProb float64) Result {
	vm.ip = start
	if start < 0 {
		return vm.crash(0)
	}
	jumps, _ := matchBrackets(vm.tape.Bytes(), false)

	var ops uint64
	for ops < maxOps {
		if vm.shouldTimeout(timeoutProb) {
			res := vm.result(ops, vm.ip)
			res.TimedOut = true
			return res
		}
		if vm.ip >= vm.tape.Len() {
			res := vm.result(ops, vm.ip)
			res.Terminated = true
			return res
		}
		switch b := vm.tape.Get(vm.ip); b {
		case isa.LoopStart:
			if vm.cell() == 0 {
				if !vm.jump(jumps) {
					return vm.crash(ops)
				}
			}
			ops++
		case isa.LoopEnd:
			if vm.cell() != 0 {
				if !vm.jump(jumps) {
					return vm.crash(ops)
				}
			}
			ops++
		default:
			if vm.Exec(b) {
				ops++
			}
		}
		vm.ip++
	}
	return vm.result(ops, vm.ip)
}

// jump moves the instruction pointer to the partner of the bracket under it.
func (vm *Interpreter) jump(jumps []int) bool {
	target := jumps[vm.ip]
	if target < 0 {
		return false
	}
	vm.ip = target
	return true
}

func (vm *Interpreter) crash(ops uint64) Result {
	res := vm.result(ops, vm.ip)
	res.Crashed = true
	return res
}

// matchBrackets returns, for every index of src, the index of the matching
// bracket, or -1 if there is none.
// If strict is true, any unmatched bracket makes the whole program invalid.
// Otherwise unmatched brackets are left without a partner.
func matchBrackets(src []byte, strict bool) ([]int, bool) {
	jumps := make([]int, len(src))
	for i := range jumps {
		jumps[i] = -1
	}
	var stack []int
	for i, b := range src {
		switch b {
		case isa.LoopStart:
			stack = append(stack, i)
		case isa.LoopEnd:
			if len(stack) == 0 {
				if strict {
					return nil, false
				}
				continue
			}
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			jumps[open] = i
			jumps[i] = open
		}
	}
	if strict && len(stack) > 0 {
		return nil, false
	}
	return jumps, true
}
