// Package authz - authorization message construction and signing
package authz

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrUserRejected the wallet holder declined the signature request
var ErrUserRejected = fmt.Errorf("signature request rejected by user")

// Wallet signing surface of an account
//
// Implementations backed by remote wallets may return ErrUserRejected from
// either signing call.
type Wallet interface {
	// Address the account address of this wallet
	Address() (common.Address, error)

	/*
		SignTypedDigest sign a prehashed EIP-712 digest

		 @param ctx context.Context - execution context
		 @param digest []byte - the 32 byte digest
		 @return 65 byte [R || S || V] signature, V in {27, 28}
	*/
	SignTypedDigest(ctx context.Context, digest []byte) ([]byte, error)

	/*
		SignPersonalMessage sign a message with the personal_sign prefix scheme

		 @param ctx context.Context - execution context
		 @param message []byte - the raw message
		 @return 65 byte [R || S || V] signature, V in {27, 28}
	*/
	SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error)
}

// Transactor a wallet which can also author direct contract writes
type Transactor interface {
	Wallet

	// TransactOpts build transaction auth options for a direct write
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

// privateKeyWallet wallet over a locally held private key
type privateKeyWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

/*
NewPrivateKeyWallet define a wallet over a hex encoded private key

	@param keyHex string - the private key, with or without 0x prefix
	@param chainID *big.Int - chain ID used for transaction signing
	@returns wallet instance
*/
func NewPrivateKeyWallet(keyHex string, chainID *big.Int) (Transactor, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key [%w]", err)
	}
	if chainID == nil {
		return nil, fmt.Errorf("private key wallet requires a chain ID")
	}
	return &privateKeyWallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
	}, nil
}

func (w *privateKeyWallet) Address() (common.Address, error) {
	return w.address, nil
}

func (w *privateKeyWallet) SignTypedDigest(
	ctx context.Context, digest []byte,
) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("typed digest must be 32 bytes, got %d", len(digest))
	}
	sig, err := crypto.Sign(digest, w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed digest [%w]", err)
	}
	// Recovery ID to Ethereum V
	sig[64] += 27
	return sig, nil
}

func (w *privateKeyWallet) SignPersonalMessage(
	ctx context.Context, message []byte,
) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign personal message [%w]", err)
	}
	sig[64] += 27
	return sig, nil
}

func (w *privateKeyWallet) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(w.key, w.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction auth options [%w]", err)
	}
	opts.Context = ctx
	return opts, nil
}

/*
RecoverSigner recover the signing account of an EIP-712 digest signature

	@param digest []byte - the 32 byte digest
	@param signature []byte - 65 byte [R || S || V] signature, V in {27, 28}
	@return the signer account address
*/
func RecoverSigner(digest []byte, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf(
			"signature must be 65 bytes, got %d", len(signature),
		)
	}
	normalized := make([]byte, 65)
	copy(normalized, signature)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer [%w]", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
