package stub

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"

	"tradetrainer/internal/solana"
)

// ErrNotFound is returned when an account is not found.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu        sync.Mutex
	Accounts  map[string]*solana.AccountInfo
	Sent      [][]byte
	Blockhash string

	// SendErr, when set, fails every SendTransaction.
	SendErr error
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Accounts:  make(map[string]*solana.AccountInfo),
		Blockhash: solana.SystemProgramID.String(),
	}
}

// GetAccountInfo retrieves an account from the stub store. Missing accounts return nil, nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	acc, ok := c.Accounts[pubkey]
	if !ok {
		return nil, nil
	}
	cp := *acc
	cp.Data = append([]byte(nil), acc.Data...)
	return &cp, nil
}

// GetProgramAccounts returns accounts owned by program that pass every filter, sorted by key.
func (c *RPCClient) GetProgramAccounts(_ context.Context, program string, opts *solana.ProgramAccountsOpts) ([]solana.KeyedAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []solana.KeyedAccount
	for key, acc := range c.Accounts {
		if acc.Owner != program || !matches(acc.Data, opts) {
			continue
		}
		out = append(out, solana.KeyedAccount{
			PublicKey: key,
			Account: solana.AccountInfo{
				Lamports: acc.Lamports,
				Owner:    acc.Owner,
				Data:     append([]byte(nil), acc.Data...),
			},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublicKey < out[j].PublicKey })
	return out, nil
}

func matches(data []byte, opts *solana.ProgramAccountsOpts) bool {
	if opts == nil {
		return true
	}
	if opts.DataSize > 0 && uint64(len(data)) != opts.DataSize {
		return false
	}
	for _, f := range opts.Memcmp {
		end := int(f.Offset) + len(f.Bytes)
		if end > len(data) || !bytes.Equal(data[f.Offset:end], f.Bytes) {
			return false
		}
	}
	return true
}

// GetLatestBlockhash returns the configured blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	return &solana.Blockhash{Hash: c.Blockhash, LastValidBlockHeight: 1}, nil
}

// SendTransaction records the raw transaction.
func (c *RPCClient) SendTransaction(_ context.Context, tx []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.Sent = append(c.Sent, append([]byte(nil), tx...))
	return "stubsig", nil
}

// SetAccount adds or replaces an account in the stub store.
func (c *RPCClient) SetAccount(pubkey string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = info
}

// DeleteAccount removes an account from the stub store.
func (c *RPCClient) DeleteAccount(pubkey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Accounts, pubkey)
}

var _ solana.RPCClient = (*RPCClient)(nil)
