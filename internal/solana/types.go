package solana

// AccountInfo represents Solana account information with decoded data.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       []byte // decoded from base64
	Executable bool
	RentEpoch  uint64
}

// Empty reports whether the account carries no data, which is how a closed account appears.
func (a *AccountInfo) Empty() bool {
	return a == nil || len(a.Data) == 0
}

// KeyedAccount is one entry returned by getProgramAccounts.
type KeyedAccount struct {
	PublicKey string
	Account   AccountInfo
}

// MemcmpFilter matches accounts whose data at Offset equals Bytes.
type MemcmpFilter struct {
	Offset uint64
	Bytes  []byte
}

// ProgramAccountsOpts narrows getProgramAccounts results.
type ProgramAccountsOpts struct {
	Memcmp   []MemcmpFilter
	DataSize uint64 // 0 means no size filter
}

// Blockhash is a recent blockhash with its validity horizon.
type Blockhash struct {
	Hash                 string
	LastValidBlockHeight uint64
}
