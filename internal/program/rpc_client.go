package program

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"tradetrainer/internal/domain"
	"tradetrainer/internal/solana"
)

// RPCClient implements Client against a deployed program over JSON-RPC.
type RPCClient struct {
	rpc       solana.RPCClient
	programID solana.PublicKey
	payer     *solana.Keypair
	log       *logrus.Entry
}

// NewRPCClient creates a program client. A nil payer yields a read-only client.
func NewRPCClient(rpc solana.RPCClient, programID solana.PublicKey, payer *solana.Keypair, logger *logrus.Logger) *RPCClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RPCClient{
		rpc:       rpc,
		programID: programID,
		payer:     payer,
		log:       logger.WithField("component", "program"),
	}
}

// CreateExercise creates a new exercise account owned by the payer.
func (c *RPCClient) CreateExercise(ctx context.Context, params CreateExerciseParams) (*ExerciseAccount, error) {
	if c.payer == nil {
		return nil, ErrReadOnly
	}
	account, err := solana.GenerateKeypair()
	if err != nil {
		return nil, err
	}

	var data encoder
	data.raw(instructionDiscriminator("create_exercise"))
	data.str(params.CID)
	data.u8(params.ValidationsCapacity)

	ix := solana.Instruction{
		ProgramID: c.programID,
		Accounts: []solana.AccountMeta{
			{PublicKey: account.PublicKey(), IsSigner: true, IsWritable: true},
			{PublicKey: c.payer.PublicKey(), IsSigner: true, IsWritable: true},
			{PublicKey: solana.SystemProgramID},
		},
		Data: data.buf.Bytes(),
	}
	if _, err := c.send(ctx, "create_exercise", ix, account); err != nil {
		return nil, err
	}

	return &ExerciseAccount{
		PublicKey: account.PublicKey().String(),
		Account: domain.ExerciseAccount{
			Authority:           c.payer.PublicKey().String(),
			CID:                 params.CID,
			ValidationsCapacity: params.ValidationsCapacity,
		},
	}, nil
}

// GetFilteredExercises lists exercise accounts in the order the node returns them.
func (c *RPCClient) GetFilteredExercises(ctx context.Context, filters ExerciseFilters) ([]ExerciseAccount, error) {
	opts := &solana.ProgramAccountsOpts{
		Memcmp: []solana.MemcmpFilter{{Offset: 0, Bytes: exerciseDiscriminator}},
	}
	if filters.Authority != "" {
		authority, err := solana.ParsePublicKey(filters.Authority)
		if err != nil {
			return nil, err
		}
		opts.Memcmp = append(opts.Memcmp, solana.MemcmpFilter{Offset: discriminatorLen, Bytes: authority[:]})
	}

	raw, err := c.rpc.GetProgramAccounts(ctx, c.programID.String(), opts)
	if err != nil {
		return nil, fmt.Errorf("get exercises: %w", err)
	}

	out := make([]ExerciseAccount, 0, len(raw))
	for _, item := range raw {
		acc, err := DecodeExercise(item.Account.Data)
		if err != nil {
			c.log.WithError(err).WithField("account", item.PublicKey).Warn("skip undecodable exercise")
			continue
		}
		if !filters.Match(&acc) {
			continue
		}
		out = append(out, ExerciseAccount{PublicKey: item.PublicKey, Account: acc})
	}
	return out, nil
}

// AddValidation records the trader's validation on an exercise.
func (c *RPCClient) AddValidation(ctx context.Context, trader, exercise string, value float64) (*ExerciseAccount, error) {
	if err := c.checkSigner(trader); err != nil {
		return nil, err
	}
	exercisePK, traderPDA, err := c.exerciseAndTrader(exercise, trader)
	if err != nil {
		return nil, err
	}

	var data encoder
	data.raw(instructionDiscriminator("add_validation"))
	data.f64(value)

	ix := solana.Instruction{
		ProgramID: c.programID,
		Accounts: []solana.AccountMeta{
			{PublicKey: exercisePK, IsWritable: true},
			{PublicKey: traderPDA, IsWritable: true},
			{PublicKey: c.payer.PublicKey(), IsSigner: true, IsWritable: true},
			{PublicKey: solana.SystemProgramID},
		},
		Data: data.buf.Bytes(),
	}
	if _, err := c.send(ctx, "add_validation", ix); err != nil {
		return nil, err
	}
	return c.ReloadExercise(ctx, exercise)
}

// AddOutcome publishes the realized outcome and solution content of an exercise.
func (c *RPCClient) AddOutcome(ctx context.Context, exercise string, outcome float64, solutionCID string) (*ExerciseAccount, error) {
	if c.payer == nil {
		return nil, ErrReadOnly
	}
	exercisePK, err := solana.ParsePublicKey(exercise)
	if err != nil {
		return nil, err
	}

	var data encoder
	data.raw(instructionDiscriminator("add_outcome"))
	data.f64(outcome)
	data.str(solutionCID)

	ix := solana.Instruction{
		ProgramID: c.programID,
		Accounts: []solana.AccountMeta{
			{PublicKey: exercisePK, IsWritable: true},
			{PublicKey: c.payer.PublicKey(), IsSigner: true},
		},
		Data: data.buf.Bytes(),
	}
	if _, err := c.send(ctx, "add_outcome", ix); err != nil {
		return nil, err
	}
	return c.ReloadExercise(ctx, exercise)
}

// CheckValidation settles the trader's validation against the published outcome.
func (c *RPCClient) CheckValidation(ctx context.Context, trader, exercise string) (*TraderAccount, error) {
	if err := c.checkSigner(trader); err != nil {
		return nil, err
	}
	exercisePK, traderPDA, err := c.exerciseAndTrader(exercise, trader)
	if err != nil {
		return nil, err
	}

	ix := solana.Instruction{
		ProgramID: c.programID,
		Accounts: []solana.AccountMeta{
			{PublicKey: exercisePK, IsWritable: true},
			{PublicKey: traderPDA, IsWritable: true},
			{PublicKey: c.payer.PublicKey(), IsSigner: true},
		},
		Data: instructionDiscriminator("check_validation"),
	}
	if _, err := c.send(ctx, "check_validation", ix); err != nil {
		return nil, err
	}
	return c.ReloadTraderAccount(ctx, trader)
}

// ReloadExercise fetches and decodes one exercise account.
func (c *RPCClient) ReloadExercise(ctx context.Context, exercise string) (*ExerciseAccount, error) {
	info, err := c.rpc.GetAccountInfo(ctx, exercise)
	if err != nil {
		return nil, fmt.Errorf("reload exercise %s: %w", exercise, err)
	}
	if info.Empty() {
		return nil, fmt.Errorf("%w: exercise %s", ErrAccountNotFound, exercise)
	}
	acc, err := DecodeExercise(info.Data)
	if err != nil {
		return nil, fmt.Errorf("exercise %s: %w", exercise, err)
	}
	return &ExerciseAccount{PublicKey: exercise, Account: acc}, nil
}

// GetFilteredTraders lists trader accounts.
func (c *RPCClient) GetFilteredTraders(ctx context.Context, filters TraderFilters) ([]TraderAccount, error) {
	opts := &solana.ProgramAccountsOpts{
		DataSize: TraderAccountSize,
		Memcmp:   []solana.MemcmpFilter{{Offset: 0, Bytes: traderDiscriminator}},
	}
	if filters.User != "" {
		user, err := solana.ParsePublicKey(filters.User)
		if err != nil {
			return nil, err
		}
		opts.Memcmp = append(opts.Memcmp, solana.MemcmpFilter{Offset: discriminatorLen, Bytes: user[:]})
	}

	raw, err := c.rpc.GetProgramAccounts(ctx, c.programID.String(), opts)
	if err != nil {
		return nil, fmt.Errorf("get traders: %w", err)
	}

	out := make([]TraderAccount, 0, len(raw))
	for _, item := range raw {
		t, err := DecodeTrader(item.Account.Data)
		if err != nil {
			c.log.WithError(err).WithField("account", item.PublicKey).Warn("skip undecodable trader")
			continue
		}
		out = append(out, TraderAccount{PublicKey: item.PublicKey, Account: t})
	}
	return out, nil
}

// ReloadTraderAccount fetches the trader PDA of a wallet.
func (c *RPCClient) ReloadTraderAccount(ctx context.Context, trader string) (*TraderAccount, error) {
	addr, err := TraderAddress(c.programID, trader)
	if err != nil {
		return nil, err
	}
	info, err := c.rpc.GetAccountInfo(ctx, addr.String())
	if err != nil {
		return nil, fmt.Errorf("reload trader %s: %w", trader, err)
	}
	if info.Empty() {
		return nil, fmt.Errorf("%w: trader %s", ErrAccountNotFound, trader)
	}
	t, err := DecodeTrader(info.Data)
	if err != nil {
		return nil, fmt.Errorf("trader %s: %w", trader, err)
	}
	return &TraderAccount{PublicKey: addr.String(), Account: t}, nil
}

func (c *RPCClient) checkSigner(trader string) error {
	if c.payer == nil {
		return ErrReadOnly
	}
	if c.payer.PublicKey().String() != trader {
		return fmt.Errorf("trader %s is not the configured signer %s", trader, c.payer.PublicKey())
	}
	return nil
}

func (c *RPCClient) exerciseAndTrader(exercise, trader string) (solana.PublicKey, solana.PublicKey, error) {
	exercisePK, err := solana.ParsePublicKey(exercise)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	traderPDA, err := TraderAddress(c.programID, trader)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	return exercisePK, traderPDA, nil
}

// send builds, signs and submits a single-instruction transaction.
func (c *RPCClient) send(ctx context.Context, name string, ix solana.Instruction, extraSigners ...*solana.Keypair) (string, error) {
	bh, err := c.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: blockhash: %w", name, err)
	}

	tx, err := solana.NewTransaction([]solana.Instruction{ix}, bh.Hash, c.payer.PublicKey())
	if err != nil {
		return "", fmt.Errorf("%s: build: %w", name, err)
	}
	if err := tx.Sign(append([]*solana.Keypair{c.payer}, extraSigners...)...); err != nil {
		return "", fmt.Errorf("%s: sign: %w", name, err)
	}

	sig, err := c.rpc.SendTransaction(ctx, tx.Serialize())
	if err != nil {
		return "", fmt.Errorf("%s: send: %w", name, err)
	}
	c.log.WithFields(logrus.Fields{"instruction": name, "signature": sig}).Debug("transaction sent")
	return sig, nil
}

var _ Client = (*RPCClient)(nil)
