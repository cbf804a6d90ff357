package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func mustKeypair(t *testing.T) *Keypair {
	t.Helper()
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return kp
}

func TestNewTransaction_AccountOrdering(t *testing.T) {
	payer := mustKeypair(t)
	program := mustKeypair(t).PublicKey()
	writable := mustKeypair(t).PublicKey()
	readonly := mustKeypair(t).PublicKey()

	ix := Instruction{
		ProgramID: program,
		Accounts: []AccountMeta{
			{PublicKey: readonly},
			{PublicKey: writable, IsWritable: true},
			{PublicKey: payer.PublicKey(), IsSigner: true, IsWritable: true},
		},
		Data: []byte{7},
	}

	blockhash := mustKeypair(t).PublicKey().String()
	tx, err := NewTransaction([]Instruction{ix}, blockhash, payer.PublicKey())
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}

	keys := tx.Message.AccountKeys
	if len(keys) != 4 {
		t.Fatalf("expected 4 keys, got %d", len(keys))
	}
	if keys[0] != payer.PublicKey() || keys[1] != writable {
		t.Errorf("unexpected order: %v", keys)
	}

	h := tx.Message.Header
	if h.NumRequiredSignatures != 1 || h.NumReadonlySignedAccounts != 0 || h.NumReadonlyUnsignedAccounts != 2 {
		t.Errorf("unexpected header %+v", h)
	}

	compiled := tx.Message.Instructions[0]
	if keys[compiled.ProgramIDIndex] != program {
		t.Error("program index points at wrong key")
	}
	if !bytes.Equal(compiled.Accounts, []uint8{index(keys, readonly), 1, 0}) {
		t.Errorf("unexpected account indexes %v", compiled.Accounts)
	}
}

func index(keys []PublicKey, pk PublicKey) uint8 {
	for i, k := range keys {
		if k == pk {
			return uint8(i)
		}
	}
	return 255
}

func TestTransaction_SignAndSerialize(t *testing.T) {
	payer := mustKeypair(t)
	ix := Instruction{ProgramID: mustKeypair(t).PublicKey(), Data: []byte{1, 2, 3}}

	tx, err := NewTransaction([]Instruction{ix}, mustKeypair(t).PublicKey().String(), payer.PublicKey())
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}

	if err := tx.Sign(payer); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	raw := tx.Serialize()
	if raw[0] != 1 {
		t.Fatalf("expected 1 signature, got %d", raw[0])
	}

	sig := raw[1 : 1+SignatureLength]
	message := raw[1+SignatureLength:]
	pub := payer.PublicKey()
	if !ed25519.Verify(ed25519.PublicKey(pub[:]), message, sig) {
		t.Error("signature does not verify against serialized message")
	}
}

func TestTransaction_SignMissingSigner(t *testing.T) {
	payer := mustKeypair(t)
	other := mustKeypair(t)
	ix := Instruction{ProgramID: mustKeypair(t).PublicKey()}

	tx, err := NewTransaction([]Instruction{ix}, mustKeypair(t).PublicKey().String(), payer.PublicKey())
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}

	if err := tx.Sign(other); !errors.Is(err, ErrMissingSigner) {
		t.Errorf("expected ErrMissingSigner, got %v", err)
	}
}

func TestWriteCompactU16(t *testing.T) {
	tests := []struct {
		n    int
		want []byte
	}{
		{0, []byte{0x00}},
		{0x7f, []byte{0x7f}},
		{0x80, []byte{0x80, 0x01}},
		{0x3fff, []byte{0xff, 0x7f}},
		{0x4000, []byte{0x80, 0x80, 0x01}},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		writeCompactU16(&buf, tt.n)
		if !bytes.Equal(buf.Bytes(), tt.want) {
			t.Errorf("writeCompactU16(%d) = %x, want %x", tt.n, buf.Bytes(), tt.want)
		}
	}
}

func TestFindProgramAddress(t *testing.T) {
	program := mustKeypair(t).PublicKey()
	user := mustKeypair(t).PublicKey()

	addr, bump, err := FindProgramAddress([][]byte{[]byte("trader"), user[:]}, program)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	if isOnCurve(addr[:]) {
		t.Error("program address must be off curve")
	}

	again, err := CreateProgramAddress([][]byte{[]byte("trader"), user[:], {bump}}, program)
	if err != nil {
		t.Fatalf("CreateProgramAddress: %v", err)
	}
	if again != addr {
		t.Error("derivation is not deterministic")
	}
}

func TestParsePublicKey(t *testing.T) {
	pk, err := ParsePublicKey("11111111111111111111111111111111")
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if !pk.IsZero() || pk != SystemProgramID {
		t.Error("expected system program id")
	}

	if _, err := ParsePublicKey("abc"); err == nil {
		t.Error("expected length error")
	}
	if _, err := ParsePublicKey("0OIl"); err == nil {
		t.Error("expected base58 error")
	}
}

func TestLoadKeypair(t *testing.T) {
	kp := mustKeypair(t)
	path := filepath.Join(t.TempDir(), "id.json")

	ints := make([]int, len(kp.private))
	for i, b := range kp.private {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		t.Fatalf("marshal keypair: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write keypair: %v", err)
	}

	loaded, err := LoadKeypair(path)
	if err != nil {
		t.Fatalf("LoadKeypair: %v", err)
	}
	if loaded.PublicKey() != kp.PublicKey() {
		t.Error("loaded keypair differs")
	}
}
