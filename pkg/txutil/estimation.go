package txutil

const (
	P2PKH = iota
	P2SH_P2WPKH
	P2WPKH
	P2WSH_MULTISIG_2OF2
)

var (
	scriptSigSizeByScriptType = map[int]int{
		P2PKH:               108, // len + opcode + sig + opcode + pubkey
		P2SH_P2WPKH:         23,  // len + p2wpkh script
		P2WPKH:              1,   // no scriptsig, still len is serialized
		P2WSH_MULTISIG_2OF2: 1,   // no scriptsig
	}
	scriptPubKeySizeByScriptType = map[int]int{
		P2PKH:               26, // len + opcodes (3) + hash(pubkey) + opcodes (2)
		P2SH_P2WPKH:         24, // len + opcodes (2) + hash(script) + opcode
		P2WPKH:              23, // len + opcodes (2) + hash(pubkey)
		P2WSH_MULTISIG_2OF2: 35, // len + opcodes (2) + hash(script)
	}
	witnessSizeByScriptType = map[int]int{
		P2SH_P2WPKH: 1 + 1 + 73 + 1 + 33, // items + len + sig + len + pubkey
		P2WPKH:      1 + 1 + 73 + 1 + 33,
		// items + empty + 2 * (len + sig) + len + script
		P2WSH_MULTISIG_2OF2: 1 + 1 + 2*(1+73) + 1 + 71,
	}
)

// EstimateTxSize makes an estimation of the virtual size of a transaction for
// which is required to specify the type of the inputs and outputs.
func EstimateTxSize(inScriptTypes, outScriptTypes []int) int {
	baseSize := calcTxBaseSize(inScriptTypes, outScriptTypes)
	witnessSize := calcTxWitnessSize(inScriptTypes)

	totalSize := baseSize
	if witnessSize > 0 {
		// marker + flag
		totalSize += 2 + witnessSize
	}

	weight := baseSize*3 + totalSize
	return (weight + 3) / 4
}

func calcTxBaseSize(inScriptTypes, outScriptTypes []int) int {
	// hash + index + sequence
	inBaseSize := 40
	insSize := 0
	for _, scriptType := range inScriptTypes {
		insSize += inBaseSize + scriptSigSizeByScriptType[scriptType]
	}

	// value
	outBaseSize := 8
	outsSize := 0
	for _, scriptType := range outScriptTypes {
		outsSize += outBaseSize + scriptPubKeySizeByScriptType[scriptType]
	}

	// version + locktime
	return 8 +
		varIntSerializeSize(uint64(len(inScriptTypes))) +
		varIntSerializeSize(uint64(len(outScriptTypes))) +
		insSize + outsSize
}

func calcTxWitnessSize(inScriptTypes []int) int {
	size := 0
	hasWitness := false
	for _, scriptType := range inScriptTypes {
		witnessSize, ok := witnessSizeByScriptType[scriptType]
		if !ok {
			// empty witness stack for legacy inputs
			size++
			continue
		}
		hasWitness = true
		size += witnessSize
	}
	if !hasWitness {
		return 0
	}
	return size
}

func varIntSerializeSize(val uint64) int {
	if val < 0xfd {
		return 1
	}
	if val <= 0xffff {
		return 3
	}
	if val <= 0xffffffff {
		return 5
	}
	return 9
}
