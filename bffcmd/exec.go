package bffcmd

import (
	"encoding/hex"
	"fmt"

	"go.brendoncarroll.net/star"

	"abiogenesis.dev/bff/bfftape"
	"abiogenesis.dev/bff/bvm"
)

var execCmd = star.Command{
	Metadata: star.Metadata{
		Short: "run a program on a zeroed tape and print the result",
	},
	Flags: []star.IParam{tapeLengthParam, maxOpsParam, execModeParam},
	Pos:   []star.IParam{programParam},
	F: func(c star.Context) error {
		program := programParam.Load(c)
		var t *bfftape.Tape
		var res bvm.Result
		switch execModeParam.Load(c) {
		case "tape":
			// the program is loaded into the tape and executes in place.
			t = bfftape.NewZero(max(tapeLengthParam.Load(c), len(program)))
			if err := t.CopyFrom(padTo([]byte(program), t.Len())); err != nil {
				return err
			}
			res = bvm.New(t, nil).Run("", 0, maxOpsParam.Load(c), 0)
		default:
			t = bfftape.NewZero(tapeLengthParam.Load(c))
			res = bvm.New(t, nil).Run(program, 0, maxOpsParam.Load(c), 0)
		}
		c.Printf("OUTCOME: %v\n", res.Outcome())
		c.Printf("OPS: %d\n", res.Operations)
		c.Printf("IP: %d DP: %d CP: %d\n", res.FinalIP, res.FinalDP, res.FinalCP)
		c.Printf("TAPE:\n%s", hex.Dump(t.Bytes()))
		return nil
	},
}

var programParam = star.Param[string]{Name: "program", Parse: star.ParseString}

// execModeParam is either "string", where the program is separate from the tape,
// or "tape", where the program is written to the start of the tape.
var execModeParam = star.Param[string]{
	Name:    "mode",
	Default: star.Ptr("string"),
	Parse: func(x string) (string, error) {
		switch x {
		case "string", "tape":
			return x, nil
		default:
			return "", fmt.Errorf("mode must be string or tape, have %q", x)
		}
	},
}

func padTo(x []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, x)
	return out
}
