package l2

import "github.com/availlang/avail/internal/types"

// Optimize runs the four required passes (spec.md §4.7) to a fixpoint,
// then compacts away the nops dead-code removal leaves behind. Grounded
// on the teacher's optimisation shape in spirit only — funvibe-funxy has
// no comparable IR pass pipeline — so this follows spec.md §4.7's pass
// list directly: constant propagation, move elimination via origin
// normalisation, branch folding, dead-code removal, iterated until no
// pass changes anything.
func Optimize(chunk *Chunk) {
	for {
		changed := false
		changed = constantPropagation(chunk) || changed
		changed = moveElimination(chunk) || changed
		changed = branchFolding(chunk) || changed
		changed = deadCodeRemoval(chunk) || changed
		if !changed {
			break
		}
	}
	compact(chunk)
}

// constantPropagation replaces a move whose source is a proven constant
// with move-constant (spec.md §4.7 "replace reads whose source is proven
// constant with move-constant").
func constantPropagation(chunk *Chunk) bool {
	constants := make(map[int]types.Value)
	changed := false
	for i := range chunk.Instructions {
		in := &chunk.Instructions[i]
		switch in.Op {
		case OpMoveConstant:
			constants[in.Dest] = in.Operands[0].Value.(types.Value)
		case OpMove:
			src := in.Operands[0].Reg
			if v, ok := constants[src]; ok {
				*in = NewInstruction(OpMoveConstant, in.Dest, Lit(v))
				constants[in.Dest] = v
				changed = true
				continue
			}
			delete(constants, in.Dest)
		default:
			if in.Dest >= 0 {
				delete(constants, in.Dest)
			}
		}
	}
	return changed
}

// moveElimination rewrites every register-valued operand to the earliest
// still-live register in its origin chain (spec.md §4.7 "move
// elimination via origin normalisation"). A move whose destination ends
// up referenced nowhere else becomes dead and is swept by
// deadCodeRemoval in the same fixpoint iteration or the next.
func moveElimination(chunk *Chunk) bool {
	regs := NewRegisterSet()
	changed := false
	for i := range chunk.Instructions {
		in := &chunk.Instructions[i]
		for j := range in.Operands {
			op := &in.Operands[j]
			switch op.Kind {
			case OperandRegister:
				if earliest := regs.EarliestLiveOrigin(op.Reg); earliest != op.Reg {
					op.Reg = earliest
					changed = true
				}
			case OperandRegisterList:
				for k, r := range op.Regs {
					if earliest := regs.EarliestLiveOrigin(r); earliest != r {
						op.Regs[k] = earliest
						changed = true
					}
				}
			}
		}
		switch {
		case in.Op == OpMove:
			regs.AddOrigin(in.Dest, in.Operands[0].Reg)
		case in.Dest >= 0:
			regs.Sever(in.Dest)
		}
	}
	return changed
}

// branchFolding implements spec.md §4.7's constant and partial branch
// folding for jump-if-kind-of-constant and its negated form. Operand
// layout: [value Reg, type Lit, trueOrBranch PC, falseOrNothing PC...].
func branchFolding(chunk *Chunk) bool {
	types_ := inferTypes(chunk)
	changed := false
	for i := range chunk.Instructions {
		in := &chunk.Instructions[i]
		switch in.Op {
		case OpJumpIfKindOfConstant:
			value := in.Operands[0].Reg
			testType := in.Operands[1].Value.(types.Type)
			known, ok := types_[value]
			if !ok {
				continue
			}
			if types.SubtypeOf(known, testType) {
				*in = NewInstruction(OpJump, -1, in.Operands[2])
				changed = true
			} else if intersection := types.Intersection(known, testType); !types.SubtypeOf(testType, intersection) && !isBottomType(intersection) {
				in.Operands[1] = Lit(intersection)
				changed = true
			}
		case OpJumpIfIsNotKindOfConstant:
			value := in.Operands[0].Reg
			testType := in.Operands[1].Value.(types.Type)
			known, ok := types_[value]
			if !ok {
				continue
			}
			if types.SubtypeOf(known, testType) {
				*in = NewInstruction(OpNop, -1)
				changed = true
			}
		}
	}
	return changed
}

func isBottomType(t types.Type) bool { return t == types.Bottom }

// inferTypes is a minimal forward scan recovering the same per-register
// static type knowledge the translator tracked, for use by later
// optimiser passes operating purely on the instruction list.
func inferTypes(chunk *Chunk) map[int]types.Type {
	known := make(map[int]types.Type)
	for _, in := range chunk.Instructions {
		if in.Dest < 0 {
			continue
		}
		switch in.Op {
		case OpMoveConstant:
			known[in.Dest] = in.Operands[0].Value.(types.Value).RuntimeType()
		case OpMove:
			if t, ok := known[in.Operands[0].Reg]; ok {
				known[in.Dest] = t
			}
		}
	}
	return known
}

// deadCodeRemoval drops instructions with no observable side effect and
// no live destination (spec.md §4.7). Removed instructions are replaced
// with OpNop in place so PC operands elsewhere in the chunk stay valid
// until Optimize's final compact pass.
func deadCodeRemoval(chunk *Chunk) bool {
	used := make(map[int]bool)
	for _, in := range chunk.Instructions {
		for _, op := range in.Operands {
			switch op.Kind {
			case OperandRegister:
				used[op.Reg] = true
			case OperandRegisterList:
				for _, r := range op.Regs {
					used[r] = true
				}
			}
		}
	}
	changed := false
	for i := range chunk.Instructions {
		in := &chunk.Instructions[i]
		if in.Op == OpNop {
			continue
		}
		if in.HasSideEffect() {
			continue
		}
		if in.Dest >= 0 && used[in.Dest] {
			continue
		}
		*in = NewInstruction(OpNop, -1)
		changed = true
	}
	return changed
}

// compact strips OpNop instructions and renumbers every PC operand to
// match, run once after Optimize's fixpoint loop converges. A PC that
// pointed at an instruction which was itself nopped is retargeted to the
// next surviving instruction — the natural fallthrough, since every
// branch target in translator-emitted code names a point that control
// resumes at, not a specific instruction identity.
func compact(chunk *Chunk) {
	n := len(chunk.Instructions)
	kept := make([]Instruction, 0, n)
	keptIndex := make([]int, n)
	for i, in := range chunk.Instructions {
		if in.Op == OpNop {
			keptIndex[i] = -1
			continue
		}
		keptIndex[i] = len(kept)
		kept = append(kept, in)
	}

	fwd := make([]int, n+1)
	fwd[n] = len(kept)
	for i := n - 1; i >= 0; i-- {
		if keptIndex[i] != -1 {
			fwd[i] = keptIndex[i]
		} else {
			fwd[i] = fwd[i+1]
		}
	}

	for i := range kept {
		for j := range kept[i].Operands {
			op := &kept[i].Operands[j]
			if op.Kind == OperandPC {
				op.Imm = fwd[op.Imm]
			}
		}
	}
	chunk.Instructions = kept
}
