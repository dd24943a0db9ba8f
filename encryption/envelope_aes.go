package encryption

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// AES-256-GCM envelope layout: magic || salt || nonce || ciphertext
var aesEnvelopeMagic = []byte("AKE1")

const (
	aesEnvelopeSaltLen  = 16
	aesEnvelopeNonceLen = 12
)

// aesGCMBackend implements CipherBackend with AES-256-GCM and an argon2id KDF
type aesGCMBackend struct{}

/*
NewAESGCMBackend define the pure Go AES-256-GCM envelope backend

	@returns backend instance
*/
func NewAESGCMBackend() CipherBackend {
	return &aesGCMBackend{}
}

/*
EnvelopeEncrypt encrypt a payload under a secret

	@param ctx context.Context - execution context
	@param secret string - the symmetric secret
	@param plainText []byte - the payload to encrypt
	@return the envelope
*/
func (b *aesGCMBackend) EnvelopeEncrypt(
	ctx context.Context, secret string, plainText []byte,
) ([]byte, error) {
	salt := make([]byte, aesEnvelopeSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate envelope salt [%w]", err)
	}

	aead, err := newAESGCM(secret, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate envelope nonce [%w]", err)
	}

	envelope := make([]byte, 0, len(aesEnvelopeMagic)+len(salt)+len(nonce)+len(plainText)+aead.Overhead())
	envelope = append(envelope, aesEnvelopeMagic...)
	envelope = append(envelope, salt...)
	envelope = append(envelope, nonce...)
	envelope = aead.Seal(envelope, nonce, plainText, nil)
	return envelope, nil
}

/*
EnvelopeDecrypt recover a payload from an envelope

	@param ctx context.Context - execution context
	@param secret string - the symmetric secret
	@param envelope []byte - envelope produced by EnvelopeEncrypt
	@return the payload
*/
func (b *aesGCMBackend) EnvelopeDecrypt(
	ctx context.Context, secret string, envelope []byte,
) ([]byte, error) {
	headerLen := len(aesEnvelopeMagic) + aesEnvelopeSaltLen + aesEnvelopeNonceLen
	if len(envelope) < headerLen {
		return nil, fmt.Errorf("envelope too short to carry the cipher header")
	}
	if !bytes.Equal(envelope[:len(aesEnvelopeMagic)], aesEnvelopeMagic) {
		return nil, fmt.Errorf("envelope does not carry the expected header")
	}

	salt := envelope[len(aesEnvelopeMagic) : len(aesEnvelopeMagic)+aesEnvelopeSaltLen]
	nonce := envelope[len(aesEnvelopeMagic)+aesEnvelopeSaltLen : headerLen]
	cipherText := envelope[headerLen:]

	aead, err := newAESGCM(secret, salt)
	if err != nil {
		return nil, err
	}

	// GCM authentication failure means the key does not match
	plainText, err := aead.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return nil, fmt.Errorf("%w [%s]", ErrWrongKey, err.Error())
	}
	return plainText, nil
}

// newAESGCM build the AEAD for a secret and salt pair
func newAESGCM(secret string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveEnvelopeKey(secret, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to init AES block cipher [%w]", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCM mode [%w]", err)
	}
	return aead, nil
}
