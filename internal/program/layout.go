package program

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"tradetrainer/internal/domain"
	"tradetrainer/internal/solana"
)

// ErrMalformedAccount is returned when account data cannot be decoded.
var ErrMalformedAccount = errors.New("malformed account data")

const (
	discriminatorLen = 8
	maxStringLen     = 128
	maxValidations   = 255
)

// TraderAccountSize is the fixed encoded size of a trader account.
const TraderAccountSize = discriminatorLen + solana.PublicKeyLength + 4*3 + 8

var (
	exerciseDiscriminator = accountDiscriminator("Exercise")
	traderDiscriminator   = accountDiscriminator("Trader")
)

// accountDiscriminator is the first 8 bytes of sha256("account:<Name>").
func accountDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("account:" + name))
	return sum[:discriminatorLen]
}

// instructionDiscriminator is the first 8 bytes of sha256("global:<name>").
func instructionDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:discriminatorLen]
}

// Exercise layout:
//
//	discriminator [8] | authority [32] | cid string | solution_cid string |
//	outcome f64 | has_outcome u8 | sealed u8 | validations_capacity u8 |
//	validations vec<{user [32], value f64}>
//
// Strings and vecs carry a u32 little-endian length prefix.

// EncodeExercise serializes an exercise account.
func EncodeExercise(acc *domain.ExerciseAccount) ([]byte, error) {
	var e encoder
	e.raw(exerciseDiscriminator)
	if err := e.pubkey(acc.Authority); err != nil {
		return nil, fmt.Errorf("authority: %w", err)
	}
	e.str(acc.CID)
	e.str(acc.SolutionCID)
	e.f64(acc.Outcome)
	e.boolean(acc.HasOutcome)
	e.boolean(acc.Sealed)
	e.u8(acc.ValidationsCapacity)
	if len(acc.Validations) > maxValidations {
		return nil, fmt.Errorf("too many validations: %d", len(acc.Validations))
	}
	e.u32(uint32(len(acc.Validations)))
	for _, v := range acc.Validations {
		if err := e.pubkey(v.User); err != nil {
			return nil, fmt.Errorf("validation user: %w", err)
		}
		e.f64(v.Value)
	}
	return e.buf.Bytes(), nil
}

// DecodeExercise parses exercise account data.
func DecodeExercise(data []byte) (domain.ExerciseAccount, error) {
	d := decoder{data: data}
	d.expect(exerciseDiscriminator)

	acc := domain.ExerciseAccount{
		Authority:   d.pubkey(),
		CID:         d.str(),
		SolutionCID: d.str(),
		Outcome:     d.f64(),
		HasOutcome:  d.boolean(),
		Sealed:      d.boolean(),
	}
	acc.ValidationsCapacity = d.u8()

	n := d.u32()
	if n > maxValidations {
		d.fail("validation count %d", n)
	}
	for i := uint32(0); i < n && d.err == nil; i++ {
		acc.Validations = append(acc.Validations, domain.Validation{
			User:  d.pubkey(),
			Value: d.f64(),
		})
	}
	if d.err != nil {
		return domain.ExerciseAccount{}, d.err
	}
	return acc, nil
}

// Trader layout:
//
//	discriminator [8] | user [32] | validations u32 | successes u32 | failures u32 | performance f64

// EncodeTrader serializes a trader account.
func EncodeTrader(t *domain.Trader) ([]byte, error) {
	var e encoder
	e.raw(traderDiscriminator)
	if err := e.pubkey(t.User); err != nil {
		return nil, fmt.Errorf("user: %w", err)
	}
	e.u32(t.Validations)
	e.u32(t.Successes)
	e.u32(t.Failures)
	e.f64(t.Performance)
	return e.buf.Bytes(), nil
}

// DecodeTrader parses trader account data.
func DecodeTrader(data []byte) (domain.Trader, error) {
	d := decoder{data: data}
	d.expect(traderDiscriminator)

	t := domain.Trader{
		User:        d.pubkey(),
		Validations: d.u32(),
		Successes:   d.u32(),
		Failures:    d.u32(),
		Performance: d.f64(),
	}
	if d.err != nil {
		return domain.Trader{}, d.err
	}
	return t, nil
}

// TraderAddress derives the trader PDA for a wallet.
func TraderAddress(programID solana.PublicKey, user string) (solana.PublicKey, error) {
	pk, err := solana.ParsePublicKey(user)
	if err != nil {
		return solana.PublicKey{}, err
	}
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte("trader"), pk[:]}, programID)
	return addr, err
}

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) raw(b []byte) { e.buf.Write(b) }
func (e *encoder) u8(v uint8) { e.buf.WriteByte(v) }

func (e *encoder) boolean(v bool) {
	if v {
		e.u8(1)
		return
	}
	e.u8(0)
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) f64(v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	e.buf.Write(b[:])
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) pubkey(s string) error {
	pk, err := solana.ParsePublicKey(s)
	if err != nil {
		return err
	}
	e.buf.Write(pk[:])
	return nil
}

// decoder reads little-endian fields and records the first error.
type decoder struct {
	data []byte
	off  int
	err  error
}

func (d *decoder) fail(format string, args ...interface{}) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: "+format, append([]interface{}{ErrMalformedAccount}, args...)...)
	}
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.data) {
		d.fail("need %d bytes at offset %d, have %d", n, d.off, len(d.data))
		return nil
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) expect(disc []byte) {
	if b := d.take(len(disc)); b != nil && !bytes.Equal(b, disc) {
		d.fail("discriminator mismatch")
	}
}

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) boolean() bool {
	switch v := d.u8(); v {
	case 0:
		return false
	case 1:
		return true
	default:
		d.fail("invalid bool %d", v)
		return false
	}
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) f64() float64 {
	if b := d.take(8); b != nil {
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}

func (d *decoder) str() string {
	n := d.u32()
	if n > maxStringLen {
		d.fail("string length %d", n)
		return ""
	}
	return string(d.take(int(n)))
}

func (d *decoder) pubkey() string {
	b := d.take(solana.PublicKeyLength)
	if b == nil {
		return ""
	}
	var pk solana.PublicKey
	copy(pk[:], b)
	return pk.String()
}
