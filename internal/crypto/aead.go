// Package crypto implements the authenticated-encryption boundary.
// Every datagram is sealed as one unit: an 8-byte explicit sequence
// travels in the clear, acts as associated data and, combined with the
// directional IV, forms the nonce. The two directions use independent
// keys expanded from the session key, so the two endpoints must be
// configured with opposite roles.
package crypto

import (
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeyLen is the required session key length in bytes.
const KeyLen = 32

// SeqLen is the length of the explicit sequence prefix.
const SeqLen = 8

// Overhead is the total per-datagram expansion: sequence prefix plus
// the AEAD tag.
const Overhead = SeqLen + chacha20poly1305.Overhead

const (
	initiatorLabel = "squall initiator"
	responderLabel = "squall responder"
)

var (
	ErrDecryptFailed = errors.New("crypto: decrypt failed")
	ErrSealerClosed  = errors.New("crypto: sealer closed")
)

// AEAD seals outbound envelopes with this side's directional key and
// opens inbound datagrams with the peer's.
type AEAD struct {
	seal   cipher.AEAD
	open   cipher.AEAD
	sealIV [chacha20poly1305.NonceSize]byte
	openIV [chacha20poly1305.NonceSize]byte
}

// New derives both directional AEADs from the session key. The
// initiator seals with the initiator key and opens with the responder
// key; the responder does the opposite.
func New(key []byte, initiator bool) (*AEAD, error) {
	if len(key) != KeyLen {
		return nil, fmt.Errorf("crypto: session key must be %d bytes, got %d", KeyLen, len(key))
	}
	ourLabel, theirLabel := initiatorLabel, responderLabel
	if !initiator {
		ourLabel, theirLabel = theirLabel, ourLabel
	}
	a := &AEAD{}
	var err error
	if a.seal, a.sealIV, err = expand(key, ourLabel); err != nil {
		return nil, err
	}
	if a.open, a.openIV, err = expand(key, theirLabel); err != nil {
		return nil, err
	}
	return a, nil
}

func expand(key []byte, label string) (cipher.AEAD, [chacha20poly1305.NonceSize]byte, error) {
	var iv [chacha20poly1305.NonceSize]byte
	r := hkdf.New(sha256.New, key, nil, []byte(label))
	k := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, k); err != nil {
		return nil, iv, err
	}
	if _, err := io.ReadFull(r, iv[:]); err != nil {
		return nil, iv, err
	}
	aead, err := chacha20poly1305.New(k)
	if err != nil {
		return nil, iv, err
	}
	return aead, iv, nil
}

func (a *AEAD) nonce(iv [chacha20poly1305.NonceSize]byte, seq uint64) []byte {
	var n [chacha20poly1305.NonceSize]byte
	binary.BigEndian.PutUint64(n[chacha20poly1305.NonceSize-SeqLen:], seq)
	for i := range n {
		n[i] ^= iv[i]
	}
	return n[:]
}

// Seal encrypts envelope into dst: [seq:8][ciphertext+tag].
func (a *AEAD) Seal(dst, envelope []byte, seq uint64) ([]byte, error) {
	if a.seal == nil {
		return nil, ErrSealerClosed
	}
	dst = binary.BigEndian.AppendUint64(dst, seq)
	return a.seal.Seal(dst, a.nonce(a.sealIV, seq), envelope, dst[len(dst)-SeqLen:]), nil
}

// Open authenticates and decrypts a datagram produced by the peer's
// Seal, returning the envelope. Any failure is ErrDecryptFailed; the
// caller drops the datagram silently.
func (a *AEAD) Open(dst, datagram []byte) ([]byte, error) {
	if a.open == nil {
		return nil, ErrSealerClosed
	}
	if len(datagram) < Overhead {
		return nil, ErrDecryptFailed
	}
	seq := binary.BigEndian.Uint64(datagram[:SeqLen])
	envelope, err := a.open.Open(dst, a.nonce(a.openIV, seq), datagram[SeqLen:], datagram[:SeqLen])
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return envelope, nil
}

// Wipe invalidates the AEAD; subsequent Seal and Open calls fail.
func (a *AEAD) Wipe() {
	a.seal = nil
	a.open = nil
	a.sealIV = [chacha20poly1305.NonceSize]byte{}
	a.openIV = [chacha20poly1305.NonceSize]byte{}
}
