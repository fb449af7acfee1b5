package insts

import "fmt"

// ErrSizeMismatch is returned by Decode when the input is not exactly 4
// bytes, which per the spec's scope means it is not a decodable ARM v7-A
// word (Thumb and AArch64 are both out of scope).
var ErrSizeMismatch = fmt.Errorf("insts: instruction word must be exactly 4 bytes")

// Decoder classifies ARM v7-A 32-bit words. It carries no state of its own;
// the zero value is ready to use.
type Decoder struct{}

// NewDecoder returns a ready-to-use Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode classifies a raw little-endian instruction word. raw must be
// exactly 4 bytes; anything else returns ErrSizeMismatch rather than a
// best-effort guess.
func (d *Decoder) Decode(raw []byte) (Instruction, error) {
	if len(raw) != 4 {
		return Instruction{}, ErrSizeMismatch
	}
	word := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
	return d.DecodeWord(word), nil
}

// DecodeWord classifies an already-assembled 32-bit word.
func (d *Decoder) DecodeWord(word uint32) Instruction {
	inst := Instruction{
		Raw:  word,
		Cond: uint8(word >> 28),
		Rn:   uint8((word >> 16) & 0xF),
		Rt:   uint8((word >> 12) & 0xF),
		Rm:   uint8(word & 0xF),
	}

	op1 := (word >> 25) & 0x7
	op := (word >> 4) & 0x1

	switch {
	case op1 == 0x2:
		decodeRegular(word, &inst)
	case op1 == 0x3 && op == 0:
		decodeRegular(word, &inst)
	case op1 == 0x3 && op == 1:
		// Media instructions: not a memory access in this model.
	case op1&0x6 == 0x0:
		decodeDataProcessingOrExtra(word, &inst)
	case op1 == 0x4 || op1 == 0x5:
		decodeBranchOrBlock(word, &inst)
	case op1&0x6 == 0x6:
		decodeCoprocessor(word, &inst)
	}

	return inst
}

func bit(word uint32, n uint) bool { return (word>>n)&1 != 0 }
func bits(word uint32, hi, lo uint) uint32 {
	return (word >> lo) & ((1 << (hi - lo + 1)) - 1)
}

// decodeRegular handles A5-15: regular LDR/STR(B) word/byte forms.
func decodeRegular(word uint32, inst *Instruction) {
	inst.Category = CategoryRegular

	op1 := bits(word, 24, 20)
	aBit := bit(word, 25)
	pBit := bit(word, 24)
	isLoad := op1&0x1 != 0
	isByte := op1&0x4 != 0
	isUnpriv := op1&0x12 == 0x02 // bits 1 & 4: 0b_1_0 pattern identifies unprivileged

	inst.Add = op1&0x08 != 0
	inst.Index = pBit
	inst.Wback = !pBit || (op1&0x02 != 0)

	inst.Imm12 = uint16(bits(word, 11, 0))
	inst.Imm5 = uint8(bits(word, 11, 7))
	inst.Shift = ShiftType(bits(word, 6, 5))

	if isLoad {
		inst.Dir = Load
	} else {
		inst.Dir = Store
	}

	if isUnpriv {
		if isLoad {
			inst.ID = pickID(isByte, IDLDRT, IDLDRBT)
		} else {
			inst.ID = pickID(isByte, IDSTRT, IDSTRBT)
		}
		return
	}

	if !aBit {
		// Immediate-indexed.
		if isLoad && inst.Rn == 0xF {
			inst.Imm32 = uint32(inst.Imm12)
			inst.ID = pickID(isByte, IDLDRLit, IDLDRBLit)
			return
		}
		inst.ID = pickID(isByte, pickID2(isLoad, IDLDRImm, IDSTRImm), pickID2(isLoad, IDLDRBImm, IDSTRBImm))
		return
	}

	// Register-indexed.
	inst.ID = pickID(isByte, pickID2(isLoad, IDLDRReg, IDSTRReg), pickID2(isLoad, IDLDRBReg, IDSTRBReg))
}

func pickID(cond bool, ifFalse, ifTrue ID) ID {
	if cond {
		return ifTrue
	}
	return ifFalse
}
func pickID2(cond bool, ifTrue, ifFalse ID) ID {
	if cond {
		return ifTrue
	}
	return ifFalse
}

// decodeDataProcessingOrExtra handles the op1 = 00x space: data
// processing/misc, which also hosts extra load/store (A5-10, A5-11) and
// the synchronization primitives.
func decodeDataProcessingOrExtra(word uint32, inst *Instruction) {
	if bit(word, 25) {
		return // data-processing (immediate); not a memory op
	}
	if !bit(word, 7) || !bit(word, 4) {
		return // data-processing / misc (MSR, NOP, register shifts, etc.); not a memory op
	}

	op1 := bits(word, 24, 20)

	if bits(word, 7, 4) == 0x9 {
		if op1&0x10 == 0x10 {
			decodeSync(word, inst)
		}
		return // op1 0xxxx with bits [7:4] 1001 is a multiply; not a memory op
	}

	decodeExtra(word, op1, bits(word, 6, 5), inst)
}

func decodeSync(word uint32, inst *Instruction) {
	inst.Category = CategorySync
	sub := bits(word, 23, 20)

	switch {
	case sub == 0x0:
		inst.ID, inst.Dir = IDSWP, LoadStore
	case sub == 0x4:
		inst.ID, inst.Dir = IDSWPB, LoadStore
	case sub == 0x8:
		inst.ID, inst.Dir = IDSTREX, Store
	case sub == 0x9:
		inst.ID, inst.Dir = IDLDREX, Load
	case sub == 0xA:
		inst.ID, inst.Dir = IDSTREXD, Store
	case sub == 0xB:
		inst.ID, inst.Dir = IDLDREXD, Load
	case sub == 0xC:
		inst.ID, inst.Dir = IDSTREXB, Store
	case sub == 0xD:
		inst.ID, inst.Dir = IDLDREXB, Load
	case sub == 0xE:
		inst.ID, inst.Dir = IDSTREXH, Store
	case sub == 0xF:
		inst.ID, inst.Dir = IDLDREXH, Load
	}
	inst.Rt2 = uint8(bits(word, 3, 0))
}

// decodeExtra handles A5-10/A5-11: halfword, dual and signed-byte
// load/store. The bit-0/bit-2 masks of op1 mirror the reference decoder:
// for op2 10/11 (dual forms) bit 0 of op1 selects dual-vs-signed rather
// than load-vs-store, since op2 itself fixes the direction for those rows.
func decodeExtra(word uint32, op1, op2 uint32, inst *Instruction) {
	inst.Category = CategoryExtra

	pBit := bit(word, 24)
	mask1 := op1 & 0x5  // bit 0 (L/dual-select) and bit 2 (I, immediate)
	mask2 := op1 & 0x13 // bits 0,1,4: identifies the unprivileged rows
	immIndexed := op1&0x4 != 0
	isLit := inst.Rn == 0xF && immIndexed

	inst.Add = op1&0x08 != 0
	inst.Index = pBit
	inst.Wback = !pBit || (op1&0x02 != 0)

	if immIndexed {
		inst.Imm32 = (bits(word, 11, 8) << 4) | bits(word, 3, 0)
	}

	switch op2 {
	case 0x1: // halfword
		switch {
		case mask2 == 0x02:
			inst.ID, inst.Dir = IDSTRHT, Store
		case mask2 == 0x03:
			inst.ID, inst.Dir = IDLDRHT, Load
		case mask1 == 0x00, mask1 == 0x04:
			inst.ID, inst.Dir = IDSTRH, Store
		case mask1 == 0x01:
			inst.ID, inst.Dir = IDLDRH, Load
		case mask1 == 0x05:
			if isLit {
				inst.ID = IDLDRHLit
			} else {
				inst.ID = IDLDRH
			}
			inst.Dir = Load
		}

	case 0x2: // dual load (LDRD) or signed-byte load (LDRSB)
		if mask2 == 0x03 {
			inst.ID, inst.Dir = IDLDRSBT, Load
			return
		}
		switch mask1 {
		case 0x00, 0x04:
			inst.Rt2 = inst.Rt + 1
			inst.Dir = Load
			if mask1 == 0x04 && isLit {
				inst.ID = IDLDRDLit
			} else {
				inst.ID = IDLDRD
			}
		case 0x01, 0x05:
			inst.Dir = Load
			if mask1 == 0x05 && isLit {
				inst.ID = IDLDRSBLit
			} else {
				inst.ID = IDLDRSB
			}
		}

	case 0x3: // store-dual (STRD) or signed-halfword load (LDRSH)
		if mask2 == 0x03 {
			inst.ID, inst.Dir = IDLDRSHT, Load
			return
		}
		switch mask1 {
		case 0x00, 0x04:
			inst.Rt2 = inst.Rt + 1
			inst.ID, inst.Dir = IDSTRD, Store
		case 0x01, 0x05:
			inst.Dir = Load
			if mask1 == 0x05 && isLit {
				inst.ID = IDLDRSHLit
			} else {
				inst.ID = IDLDRSH
			}
		}
	}
}

// decodeBranchOrBlock handles op1 in {100,101}: branch/branch-with-link or
// block data transfer (A5-21). Branches are not memory accesses in this
// model; only LDM/STM forms populate the Instruction.
func decodeBranchOrBlock(word uint32, inst *Instruction) {
	if bit(word, 25) {
		return // B / BL: not a memory access
	}

	op := bits(word, 24, 20)
	isLoad := op&0x1 != 0
	pBit := bit(word, 24)
	uBit := bit(word, 23)

	inst.Category = CategoryBlock
	inst.RegList = uint16(word & 0xFFFF)
	if isLoad {
		inst.Dir = Load
	} else {
		inst.Dir = Store
	}

	isException := bit(word, 22)
	isSP := inst.Rn == 0xD

	switch {
	case !pBit && uBit:
		if isLoad && isSP {
			inst.ID = IDPOP
		} else if isLoad && isException {
			inst.ID = IDLDMException
		} else if isLoad {
			inst.ID = IDLDMIA
		} else {
			inst.ID = IDSTMIA
		}
	case !pBit && !uBit:
		if isLoad {
			inst.ID = IDLDMDA
		} else {
			inst.ID = IDSTMDA
		}
	case pBit && uBit:
		if isLoad {
			inst.ID = IDLDMIB
		} else {
			inst.ID = IDSTMIB
		}
	case pBit && !uBit:
		if !isLoad && isSP {
			inst.ID = IDPUSH
		} else if isLoad {
			inst.ID = IDLDMDB
		} else {
			inst.ID = IDSTMDB
		}
	}

	if isLoad && isException && bit(word, 21) {
		inst.ID = IDLDMUser
	}
}

// decodeCoprocessor handles A5-22: coprocessor load/store and register
// transfer. Words addressed to the floating-point coprocessor (0xA/0xB) get
// only their Coproc field recorded and stay CategoryNone.
func decodeCoprocessor(word uint32, inst *Instruction) {
	coproc := uint8(bits(word, 11, 8))
	inst.Coproc = coproc
	if coproc&0xE == 0xA {
		return // floating-point coprocessor: not classified here
	}

	if bit(word, 25) {
		if !bit(word, 4) {
			return // CDP: coprocessor data processing, not a memory op
		}
		decodeCPRegTransfer(word, inst)
		return
	}

	// bit25==0: coprocessor load/store (LDC/STC).
	inst.Category = CategoryCoprocessor
	pBit := bit(word, 24)
	uBit := bit(word, 23)
	wBit := bit(word, 21)
	isLoad := bit(word, 20)

	inst.Add = uBit
	inst.Index = pBit
	inst.Wback = wBit
	inst.Imm8 = uint8(word & 0xFF)
	inst.CRn = inst.Rn
	inst.Rd = uint8(bits(word, 15, 12)) // CRd

	if isLoad {
		inst.Dir = Load
		if inst.Rn == 0xF {
			inst.ID = IDCPLDLit
		} else {
			inst.ID = IDCPLDImm
		}
	} else {
		inst.Dir = Store
		inst.ID = IDCPSTR
	}
}

func decodeCPRegTransfer(word uint32, inst *Instruction) {
	inst.Category = CategoryCoprocessor
	isMRC := bit(word, 20)

	inst.Opc1 = uint8(bits(word, 23, 21))
	inst.CRn = inst.Rn
	inst.CRm = uint8(bits(word, 3, 0))
	inst.Opc2 = uint8(bits(word, 7, 5))

	if isMRC {
		inst.ID = IDCPMRC
		inst.Dir = Load
	} else {
		inst.ID = IDCPMCR
		inst.Dir = Store
	}
}
