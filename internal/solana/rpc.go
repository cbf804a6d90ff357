package solana

import "context"

// RPCClient defines the Solana RPC HTTP methods used by the program client.
type RPCClient interface {
	// GetAccountInfo retrieves an account. Returns nil, nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetProgramAccounts retrieves all accounts owned by program matching opts.
	GetProgramAccounts(ctx context.Context, program string, opts *ProgramAccountsOpts) ([]KeyedAccount, error)

	// GetLatestBlockhash retrieves a blockhash to sign transactions against.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	// SendTransaction submits a signed, serialized transaction and returns its signature.
	SendTransaction(ctx context.Context, tx []byte) (string, error)
}
