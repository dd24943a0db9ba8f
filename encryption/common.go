// Package encryption - key derivation, payload envelopes, and key delegation
package encryption

import (
	"context"
	"errors"
	"fmt"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/argon2"
)

// UserKeySeedMessage well-known seed signed by the wallet to derive the user
// symmetric secret. The same seed yields the same signature, so the owner can
// re-derive the secret on any device without persisted storage.
const UserKeySeedMessage = "Sign to retrieve your encryption key"

// ErrWrongKey the ciphertext does not authenticate under the provided key
var ErrWrongKey = errors.New("ciphertext does not match the provided key")

// ErrMissingAccount the wallet has no bound account
var ErrMissingAccount = errors.New("wallet has no bound account")

// MessageSigner the slice of a wallet needed for user key derivation
type MessageSigner interface {
	// Address the wallet's bound account address
	Address() (common.Address, error)

	/*
		SignPersonalMessage sign an arbitrary message with the wallet key

			@param ctx context.Context - execution context
			@param message []byte - the message to sign
			@return the signature
	*/
	SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error)
}

// CipherBackend pluggable symmetric envelope cipher
//
// Implementations produce self-contained envelopes carrying whatever salt and
// nonce material they need to reverse the operation given only the secret.
type CipherBackend interface {
	/*
		EnvelopeEncrypt encrypt a payload under a secret

			@param ctx context.Context - execution context
			@param secret string - the symmetric secret
			@param plainText []byte - the payload to encrypt
			@return the envelope
	*/
	EnvelopeEncrypt(ctx context.Context, secret string, plainText []byte) ([]byte, error)

	/*
		EnvelopeDecrypt recover a payload from an envelope

			@param ctx context.Context - execution context
			@param secret string - the symmetric secret
			@param envelope []byte - envelope produced by EnvelopeEncrypt
			@return the payload
	*/
	EnvelopeDecrypt(ctx context.Context, secret string, envelope []byte) ([]byte, error)
}

/*
Engine the system's key encryption service

A pure transformation service; it performs cryptographic computation only and
holds no state beyond its injected cipher backend.
*/
type Engine interface {
	/*
		DeriveUserSecret derive the deterministic per-wallet symmetric secret

		The wallet signs the well-known seed message; the signature itself is the
		secret, so its length and format remain stable across wallet
		implementations.

			@param ctx context.Context - execution context
			@param wallet MessageSigner - the active wallet
			@return the symmetric secret
	*/
	DeriveUserSecret(ctx context.Context, wallet MessageSigner) (string, error)

	/*
		EncryptPayload encrypt a whole file payload under a symmetric secret

			@param ctx context.Context - execution context
			@param payload []byte - the payload to encrypt
			@param secret string - the symmetric secret
			@return the envelope
	*/
	EncryptPayload(ctx context.Context, payload []byte, secret string) ([]byte, error)

	/*
		DecryptPayload recover a file payload from an envelope

		Decrypting with the wrong secret fails with ErrWrongKey, never silent
		corruption.

			@param ctx context.Context - execution context
			@param envelope []byte - envelope produced by EncryptPayload
			@param secret string - the symmetric secret
			@return the payload
	*/
	DecryptPayload(ctx context.Context, envelope []byte, secret string) ([]byte, error)

	/*
		NewFileKey generate a fresh random file key

			@param ctx context.Context - execution context
			@return the file key as a hex string
	*/
	NewFileKey(ctx context.Context) (string, error)

	/*
		WrapKeyForRecipient wrap a file key under a recipient public key

		One wrap per recipient per file; only the holder of the matching private
		key can recover the file key.

			@param ctx context.Context - execution context
			@param fileKey string - the file key to wrap
			@param recipientPublicKey string - recipient secp256k1 public key, hex
			@return the wrapped key, hex
	*/
	WrapKeyForRecipient(ctx context.Context, fileKey string, recipientPublicKey string) (string, error)

	/*
		UnwrapKeyWithPrivateKey recover a file key with the recipient private key

			@param ctx context.Context - execution context
			@param wrappedKey string - wrapped key produced by WrapKeyForRecipient
			@param privateKey string - recipient secp256k1 private key, hex
			@return the file key
	*/
	UnwrapKeyWithPrivateKey(ctx context.Context, wrappedKey string, privateKey string) (string, error)
}

// keyEncryptionService implements Engine
type keyEncryptionService struct {
	goutils.Component

	cipher CipherBackend
}

// EngineParams key encryption service init parameters
type EngineParams struct {
	// Cipher symmetric envelope backend; defaults to the AES-256-GCM backend
	Cipher CipherBackend
}

/*
NewEngine define a new key encryption service

	@param params EngineParams - engine parameters
	@returns engine instance
*/
func NewEngine(params EngineParams) (Engine, error) {
	logTags := log.Fields{"module": "encryption", "component": "key-encryption-service"}

	cipher := params.Cipher
	if cipher == nil {
		cipher = NewAESGCMBackend()
	}

	return &keyEncryptionService{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		cipher: cipher,
	}, nil
}

/*
DeriveUserSecret derive the deterministic per-wallet symmetric secret

	@param ctx context.Context - execution context
	@param wallet MessageSigner - the active wallet
	@return the symmetric secret
*/
func (e *keyEncryptionService) DeriveUserSecret(
	ctx context.Context, wallet MessageSigner,
) (string, error) {
	if wallet == nil {
		return "", ErrMissingAccount
	}
	if _, err := wallet.Address(); err != nil {
		return "", fmt.Errorf("%w [%s]", ErrMissingAccount, err.Error())
	}

	signature, err := wallet.SignPersonalMessage(ctx, []byte(UserKeySeedMessage))
	if err != nil {
		return "", fmt.Errorf("failed to sign user key seed [%w]", err)
	}

	return hexutil.Encode(signature), nil
}

/*
EncryptPayload encrypt a whole file payload under a symmetric secret

	@param ctx context.Context - execution context
	@param payload []byte - the payload to encrypt
	@param secret string - the symmetric secret
	@return the envelope
*/
func (e *keyEncryptionService) EncryptPayload(
	ctx context.Context, payload []byte, secret string,
) ([]byte, error) {
	envelope, err := e.cipher.EnvelopeEncrypt(ctx, secret, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt payload [%w]", err)
	}
	return envelope, nil
}

/*
DecryptPayload recover a file payload from an envelope

	@param ctx context.Context - execution context
	@param envelope []byte - envelope produced by EncryptPayload
	@param secret string - the symmetric secret
	@return the payload
*/
func (e *keyEncryptionService) DecryptPayload(
	ctx context.Context, envelope []byte, secret string,
) ([]byte, error) {
	payload, err := e.cipher.EnvelopeDecrypt(ctx, secret, envelope)
	if err != nil {
		if errors.Is(err, ErrWrongKey) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to decrypt payload [%w]", err)
	}
	return payload, nil
}

// envelopeKeyLen length of keys derived for envelope ciphers
const envelopeKeyLen = 32

// deriveEnvelopeKey stretch a secret into an envelope cipher key
func deriveEnvelopeKey(secret string, salt []byte) []byte {
	return argon2.IDKey([]byte(secret), salt, 1, 64*1024, 4, envelopeKeyLen)
}
