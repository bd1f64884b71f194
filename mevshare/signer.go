package mevshare

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrNoSignature      = errors.New("no signature provided")
	ErrInvalidSignature = errors.New("invalid signature provided")
)

// Signer is the capability used to authenticate requests to the relay.
// SignMessage must produce an EIP-191 personal_sign signature over msg.
type Signer interface {
	Address() common.Address
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}

// PrivateKeySigner is an in-memory Signer.
type PrivateKeySigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func NewPrivateKeySigner(privateKey *ecdsa.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

func NewPrivateKeySignerFromHex(hexKey string) (*PrivateKeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, err
	}
	return NewPrivateKeySigner(key), nil
}

// NewRandomSigner creates a signer with a fresh key, the relay uses the address for reputation only.
func NewRandomSigner() (*PrivateKeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewPrivateKeySigner(key), nil
}

func (s *PrivateKeySigner) Address() common.Address {
	return s.address
}

// SignMessage returns a 65 byte signature with v in {27, 28}.
func (s *PrivateKeySigner) SignMessage(_ context.Context, msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), s.privateKey)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverSigner returns the address that produced the X-Flashbots-Signature header for body.
func RecoverSigner(header string, body []byte) (common.Address, error) {
	if header == "" {
		return common.Address{}, ErrNoSignature
	}
	parts := strings.Split(header, ":")
	if len(parts) != 2 {
		return common.Address{}, ErrInvalidSignature
	}
	sig, err := hexutil.Decode(parts[1])
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	digest := bodyDigest(body)
	pubKey, err := crypto.SigToPub(accounts.TextHash([]byte(digest)), sig)
	if err != nil {
		return common.Address{}, errors.Join(ErrInvalidSignature, err)
	}
	signer := crypto.PubkeyToAddress(*pubKey)
	if signer != common.HexToAddress(parts[0]) {
		return common.Address{}, ErrInvalidSignature
	}
	return signer, nil
}
