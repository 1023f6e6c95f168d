package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrBadSignature is returned when a request signature cannot be recovered.
var ErrBadSignature = errors.New("crypto: bad signature")

// RequestMessage is the text a client signs to authenticate an API call:
// timestamp, method, path and body concatenated.
func RequestMessage(unixTS int64, method, path string, body []byte) []byte {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(unixTS, 10))
	b.WriteString(strings.ToUpper(method))
	b.WriteString(path)
	b.Write(body)
	return []byte(b.String())
}

// Signer holds a secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{privateKey: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}, nil
}

// Address returns the account the key controls.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignMessage returns a 0x-prefixed personal-sign signature (v in {27,28}).
func (s *Signer) SignMessage(msg []byte) (string, error) {
	sig, err := ethcrypto.Sign(accounts.TextHash(msg), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// SignRequest signs the RequestMessage for an API call.
func (s *Signer) SignRequest(unixTS int64, method, path string, body []byte) (string, error) {
	return s.SignMessage(RequestMessage(unixTS, method, path, body))
}

// RecoverMessage returns the account that produced sigHex over msg.
func RecoverMessage(msg []byte, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(sigHex), "0x"))
	if err != nil || len(sig) != 65 {
		return common.Address{}, ErrBadSignature
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(accounts.TextHash(msg), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
