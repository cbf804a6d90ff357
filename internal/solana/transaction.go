package solana

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
)

// SignatureLength is the size of an ed25519 signature.
const SignatureLength = 64

// ErrMissingSigner is returned when a required signer did not sign.
var ErrMissingSigner = errors.New("missing signature for required signer")

// AccountMeta describes one account an instruction touches.
type AccountMeta struct {
	PublicKey  PublicKey
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// MessageHeader counts signer and read-only accounts.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction references accounts by index into the message key list.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message is a legacy transaction message.
type Message struct {
	Header          MessageHeader
	AccountKeys     []PublicKey
	RecentBlockhash PublicKey
	Instructions    []CompiledInstruction
}

// Transaction is a signed legacy transaction.
type Transaction struct {
	Signatures [][SignatureLength]byte
	Message    Message
}

// NewTransaction compiles instructions into a legacy message paid by payer.
// Accounts are ordered: payer, writable signers, read-only signers,
// writable non-signers, read-only non-signers.
func NewTransaction(instructions []Instruction, recentBlockhash string, payer PublicKey) (*Transaction, error) {
	if len(instructions) == 0 {
		return nil, errors.New("transaction has no instructions")
	}
	blockhash, err := ParsePublicKey(recentBlockhash)
	if err != nil {
		return nil, fmt.Errorf("recent blockhash: %w", err)
	}

	type entry struct {
		meta  AccountMeta
		order int
	}
	metas := map[PublicKey]*entry{
		payer: {meta: AccountMeta{PublicKey: payer, IsSigner: true, IsWritable: true}, order: 0},
	}
	next := 1
	add := func(m AccountMeta) {
		if e, ok := metas[m.PublicKey]; ok {
			e.meta.IsSigner = e.meta.IsSigner || m.IsSigner
			e.meta.IsWritable = e.meta.IsWritable || m.IsWritable
			return
		}
		metas[m.PublicKey] = &entry{meta: m, order: next}
		next++
	}
	for _, ix := range instructions {
		for _, acc := range ix.Accounts {
			add(acc)
		}
		add(AccountMeta{PublicKey: ix.ProgramID})
	}

	ordered := make([]*entry, 0, len(metas))
	for _, e := range metas {
		ordered = append(ordered, e)
	}
	rank := func(m AccountMeta) int {
		switch {
		case m.IsSigner && m.IsWritable:
			return 0
		case m.IsSigner:
			return 1
		case m.IsWritable:
			return 2
		default:
			return 3
		}
	}
	// payer is rank 0 with order 0, so it always sorts first
	sort.Slice(ordered, func(i, j int) bool {
		ri, rj := rank(ordered[i].meta), rank(ordered[j].meta)
		if ri != rj {
			return ri < rj
		}
		return ordered[i].order < ordered[j].order
	})
	if len(ordered) > 256 {
		return nil, fmt.Errorf("too many accounts: %d", len(ordered))
	}

	msg := Message{RecentBlockhash: blockhash}
	index := make(map[PublicKey]uint8, len(ordered))
	for i, e := range ordered {
		index[e.meta.PublicKey] = uint8(i)
		msg.AccountKeys = append(msg.AccountKeys, e.meta.PublicKey)
		switch rank(e.meta) {
		case 0:
			msg.Header.NumRequiredSignatures++
		case 1:
			msg.Header.NumRequiredSignatures++
			msg.Header.NumReadonlySignedAccounts++
		case 3:
			msg.Header.NumReadonlyUnsignedAccounts++
		}
	}

	for _, ix := range instructions {
		compiled := CompiledInstruction{
			ProgramIDIndex: index[ix.ProgramID],
			Data:           append([]byte(nil), ix.Data...),
		}
		for _, acc := range ix.Accounts {
			compiled.Accounts = append(compiled.Accounts, index[acc.PublicKey])
		}
		msg.Instructions = append(msg.Instructions, compiled)
	}

	return &Transaction{
		Signatures: make([][SignatureLength]byte, msg.Header.NumRequiredSignatures),
		Message:    msg,
	}, nil
}

// Serialize encodes the message in wire format.
func (m *Message) Serialize() []byte {
	var buf bytes.Buffer
	buf.WriteByte(m.Header.NumRequiredSignatures)
	buf.WriteByte(m.Header.NumReadonlySignedAccounts)
	buf.WriteByte(m.Header.NumReadonlyUnsignedAccounts)

	writeCompactU16(&buf, len(m.AccountKeys))
	for _, key := range m.AccountKeys {
		buf.Write(key[:])
	}
	buf.Write(m.RecentBlockhash[:])

	writeCompactU16(&buf, len(m.Instructions))
	for _, ix := range m.Instructions {
		buf.WriteByte(ix.ProgramIDIndex)
		writeCompactU16(&buf, len(ix.Accounts))
		buf.Write(ix.Accounts)
		writeCompactU16(&buf, len(ix.Data))
		buf.Write(ix.Data)
	}
	return buf.Bytes()
}

// Sign signs the message with every keypair whose key is a required signer.
func (tx *Transaction) Sign(signers ...*Keypair) error {
	message := tx.Message.Serialize()
	required := int(tx.Message.Header.NumRequiredSignatures)
	signed := make([]bool, required)

	for _, signer := range signers {
		pk := signer.PublicKey()
		for i := 0; i < required; i++ {
			if tx.Message.AccountKeys[i] == pk {
				copy(tx.Signatures[i][:], signer.Sign(message))
				signed[i] = true
			}
		}
	}
	for i, ok := range signed {
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingSigner, tx.Message.AccountKeys[i])
		}
	}
	return nil
}

// Serialize encodes the signed transaction in wire format.
func (tx *Transaction) Serialize() []byte {
	var buf bytes.Buffer
	writeCompactU16(&buf, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		buf.Write(sig[:])
	}
	buf.Write(tx.Message.Serialize())
	return buf.Bytes()
}

// writeCompactU16 writes n as the runtime's variable-length "shortvec" encoding.
func writeCompactU16(buf *bytes.Buffer, n int) {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | 0x80)
	}
}
