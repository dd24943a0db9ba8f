//go:build cgo

package encryption

import (
	"bytes"
	"context"
	"fmt"

	cgoCrypto "github.com/alwitt/cgoutils/crypto"
	"github.com/apex/log"
)

// XChaCha20-Poly1305 envelope layout: magic || salt || nonce || ciphertext
var sodiumEnvelopeMagic = []byte("AKS1")

const sodiumEnvelopeSaltLen = 16

// sodiumBackend implements CipherBackend with libsodium XChaCha20-Poly1305
type sodiumBackend struct {
	crypto cgoCrypto.Engine
}

/*
NewSodiumBackend define the libsodium XChaCha20-Poly1305 envelope backend

	@returns backend instance
*/
func NewSodiumBackend() (CipherBackend, error) {
	engine, err := cgoCrypto.NewEngine(log.Fields{
		"package": "cgoutils", "module": "crypto", "component": "crypto-engine",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare core cryptography [%w]", err)
	}
	return &sodiumBackend{crypto: engine}, nil
}

// setupAEAD prepare AEAD with the key derived from a secret and salt pair
func (b *sodiumBackend) setupAEAD(
	ctx context.Context, secret string, salt []byte, nonce []byte,
) (cgoCrypto.AEAD, error) {
	aead, err := b.crypto.GetAEAD(ctx, cgoCrypto.AEADTypeXChaCha20Poly1305)
	if err != nil {
		return nil, fmt.Errorf("unable to define AEAD client [%w]", err)
	}

	key := deriveEnvelopeKey(secret, salt)

	// Set the AEAD encryption key
	keyBuffer, err := b.crypto.AllocateSecureCSlice(aead.ExpectedKeyLen())
	if err != nil {
		return nil, fmt.Errorf("failed to init AEAD key buffer [%w]", err)
	}
	keyBufferCore, err := keyBuffer.GetSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to access AEAD key buffer core [%w]", err)
	}
	if copied := copy(keyBufferCore, key); copied != aead.ExpectedKeyLen() {
		return nil, fmt.Errorf(
			"failed to fill AEAD key buffer core %d =/= %d", copied, aead.ExpectedKeyLen(),
		)
	}
	if err := aead.SetKey(keyBuffer); err != nil {
		return nil, fmt.Errorf("failed to install AEAD key [%w]", err)
	}

	// Set the AEAD nonce
	if len(nonce) > 0 {
		// Use existing nonce
		nonceBuffer, err := b.crypto.AllocateSecureCSlice(aead.ExpectedNonceLen())
		if err != nil {
			return nil, fmt.Errorf("failed to init AEAD nonce buffer [%w]", err)
		}
		nonceBufferCore, err := nonceBuffer.GetSlice()
		if err != nil {
			return nil, fmt.Errorf("failed to access AEAD nonce buffer core [%w]", err)
		}
		if copied := copy(nonceBufferCore, nonce); copied != aead.ExpectedNonceLen() {
			return nil, fmt.Errorf(
				"failed to fill AEAD nonce buffer core %d =/= %d", copied, aead.ExpectedNonceLen(),
			)
		}
		if err := aead.SetNonce(nonceBuffer); err != nil {
			return nil, fmt.Errorf("failed to install AEAD nonce [%w]", err)
		}
	} else {
		// Generate random nonce
		nonceBuffer, err := b.crypto.GetRandomBuf(ctx, aead.ExpectedNonceLen())
		if err != nil {
			return nil, fmt.Errorf("failed to init AEAD nonce [%w]", err)
		}
		if err := aead.SetNonce(nonceBuffer); err != nil {
			return nil, fmt.Errorf("failed to install AEAD nonce [%w]", err)
		}
	}

	return aead, nil
}

/*
EnvelopeEncrypt encrypt a payload under a secret

	@param ctx context.Context - execution context
	@param secret string - the symmetric secret
	@param plainText []byte - the payload to encrypt
	@return the envelope
*/
func (b *sodiumBackend) EnvelopeEncrypt(
	ctx context.Context, secret string, plainText []byte,
) ([]byte, error) {
	salt := make([]byte, sodiumEnvelopeSaltLen)
	rng := b.crypto.GetRNGReader()
	if read, err := rng.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes from RNG [%w]", sodiumEnvelopeSaltLen, err)
	} else if read != sodiumEnvelopeSaltLen {
		return nil, fmt.Errorf(
			"did not get %d bytes from RNG, only %d", sodiumEnvelopeSaltLen, read,
		)
	}

	aead, err := b.setupAEAD(ctx, secret, salt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to setup AEAD client [%w]", err)
	}

	// Grab the nonce
	nonce, err := aead.Nonce().GetSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce [%w]", err)
	}
	nonceCopy := make([]byte, aead.ExpectedNonceLen())
	if copied := copy(nonceCopy, nonce); copied != aead.ExpectedNonceLen() {
		return nil, fmt.Errorf(
			"failed to copy nonce %d =/= %d", copied, aead.ExpectedNonceLen(),
		)
	}

	// Encrypt the payload
	cipherText := make([]byte, aead.ExpectedCipherLen(int64(len(plainText))))
	if err := aead.Seal(ctx, 0, plainText, nil, cipherText); err != nil {
		return nil, fmt.Errorf("failed to encrypt payload [%w]", err)
	}

	envelope := make([]byte, 0, len(sodiumEnvelopeMagic)+len(salt)+len(nonceCopy)+len(cipherText))
	envelope = append(envelope, sodiumEnvelopeMagic...)
	envelope = append(envelope, salt...)
	envelope = append(envelope, nonceCopy...)
	envelope = append(envelope, cipherText...)
	return envelope, nil
}

/*
EnvelopeDecrypt recover a payload from an envelope

	@param ctx context.Context - execution context
	@param secret string - the symmetric secret
	@param envelope []byte - envelope produced by EnvelopeEncrypt
	@return the payload
*/
func (b *sodiumBackend) EnvelopeDecrypt(
	ctx context.Context, secret string, envelope []byte,
) ([]byte, error) {
	probe, err := b.crypto.GetAEAD(ctx, cgoCrypto.AEADTypeXChaCha20Poly1305)
	if err != nil {
		return nil, fmt.Errorf("unable to define AEAD client [%w]", err)
	}
	nonceLen := probe.ExpectedNonceLen()

	headerLen := len(sodiumEnvelopeMagic) + sodiumEnvelopeSaltLen + nonceLen
	if len(envelope) < headerLen {
		return nil, fmt.Errorf("envelope too short to carry the cipher header")
	}
	if !bytes.Equal(envelope[:len(sodiumEnvelopeMagic)], sodiumEnvelopeMagic) {
		return nil, fmt.Errorf("envelope does not carry the expected header")
	}

	salt := envelope[len(sodiumEnvelopeMagic) : len(sodiumEnvelopeMagic)+sodiumEnvelopeSaltLen]
	nonce := envelope[len(sodiumEnvelopeMagic)+sodiumEnvelopeSaltLen : headerLen]
	cipherText := envelope[headerLen:]

	aead, err := b.setupAEAD(ctx, secret, salt, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to setup AEAD client [%w]", err)
	}

	// Decrypt the payload
	plainText := make([]byte, aead.ExpectedPlainTextLen(int64(len(cipherText))))
	if err := aead.Unseal(ctx, 0, cipherText, nil, plainText); err != nil {
		return nil, fmt.Errorf("%w [%s]", ErrWrongKey, err.Error())
	}
	return plainText, nil
}
