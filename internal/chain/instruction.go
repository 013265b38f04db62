package chain

const (
	ProgramComputeBudget = "ComputeBudget111111111111111111111111111111"
	ProgramToken         = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

type InstructionKind string

const (
	KindSetComputeUnitLimit InstructionKind = "set_compute_unit_limit"
	KindSetComputeUnitPrice InstructionKind = "set_compute_unit_price"
	KindTransferChecked     InstructionKind = "transfer_checked"
	KindApproveChecked      InstructionKind = "approve_checked"
	KindRevoke              InstructionKind = "revoke"
	KindTip                 InstructionKind = "tip"
)

type AccountMeta struct {
	Address  string `json:"address"`
	Signer   bool   `json:"signer,omitempty"`
	Writable bool   `json:"writable,omitempty"`
}

type Instruction struct {
	Program  string          `json:"program"`
	Kind     InstructionKind `json:"kind"`
	Accounts []AccountMeta   `json:"accounts,omitempty"`
	Amount   int64           `json:"amount,omitempty"`
	Decimals uint8           `json:"decimals,omitempty"`
	Units    uint64          `json:"units,omitempty"`
	// Data carries opaque relay-provided bytes, base64.
	Data string `json:"data,omitempty"`
}

func SetComputeUnitLimit(units uint32) Instruction {
	return Instruction{Program: ProgramComputeBudget, Kind: KindSetComputeUnitLimit, Units: uint64(units)}
}

func SetComputeUnitPrice(microPerUnit uint64) Instruction {
	return Instruction{Program: ProgramComputeBudget, Kind: KindSetComputeUnitPrice, Units: microPerUnit}
}

// TransferChecked moves amount out of source. authority signs, either as owner or as delegate.
func TransferChecked(source, mint, destination, authority string, amount int64, decimals uint8) Instruction {
	return Instruction{
		Program: ProgramToken,
		Kind:    KindTransferChecked,
		Accounts: []AccountMeta{
			{Address: source, Writable: true},
			{Address: mint},
			{Address: destination, Writable: true},
			{Address: authority, Signer: true},
		},
		Amount:   amount,
		Decimals: decimals,
	}
}

// ApproveChecked grants delegate a capped allowance over source. owner signs.
func ApproveChecked(source, mint, delegate, owner string, amount int64, decimals uint8) Instruction {
	return Instruction{
		Program: ProgramToken,
		Kind:    KindApproveChecked,
		Accounts: []AccountMeta{
			{Address: source, Writable: true},
			{Address: mint},
			{Address: delegate},
			{Address: owner, Signer: true},
		},
		Amount:   amount,
		Decimals: decimals,
	}
}

func Revoke(source, owner string) Instruction {
	return Instruction{
		Program: ProgramToken,
		Kind:    KindRevoke,
		Accounts: []AccountMeta{
			{Address: source, Writable: true},
			{Address: owner, Signer: true},
		},
	}
}

// Transfers returns the transfer_checked instructions in order.
func Transfers(ixs []Instruction) []Instruction {
	var out []Instruction
	for _, ix := range ixs {
		if ix.Kind == KindTransferChecked {
			out = append(out, ix)
		}
	}
	return out
}
