package encryption

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
)

/*
NewFileKey generate a fresh random file key

	@param ctx context.Context - execution context
	@return the file key as a hex string
*/
func (e *keyEncryptionService) NewFileKey(ctx context.Context) (string, error) {
	key := make([]byte, envelopeKeyLen)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to read %d bytes from RNG [%w]", envelopeKeyLen, err)
	}
	return hexutil.Encode(key), nil
}

/*
WrapKeyForRecipient wrap a file key under a recipient public key

	@param ctx context.Context - execution context
	@param fileKey string - the file key to wrap
	@param recipientPublicKey string - recipient secp256k1 public key, hex
	@return the wrapped key, hex
*/
func (e *keyEncryptionService) WrapKeyForRecipient(
	ctx context.Context, fileKey string, recipientPublicKey string,
) (string, error) {
	pubKey, err := parsePublicKeyHex(recipientPublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to parse recipient public key [%w]", err)
	}

	wrapped, err := ecies.Encrypt(rand.Reader, ecies.ImportECDSAPublic(pubKey), []byte(fileKey), nil, nil)
	if err != nil {
		return "", fmt.Errorf("failed to wrap file key for recipient [%w]", err)
	}

	return hexutil.Encode(wrapped), nil
}

/*
UnwrapKeyWithPrivateKey recover a file key with the recipient private key

	@param ctx context.Context - execution context
	@param wrappedKey string - wrapped key produced by WrapKeyForRecipient
	@param privateKey string - recipient secp256k1 private key, hex
	@return the file key
*/
func (e *keyEncryptionService) UnwrapKeyWithPrivateKey(
	ctx context.Context, wrappedKey string, privateKey string,
) (string, error) {
	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return "", fmt.Errorf("failed to parse recipient private key [%w]", err)
	}

	wrapped, err := hexutil.Decode(ensureHexPrefix(wrappedKey))
	if err != nil {
		return "", fmt.Errorf("failed to decode wrapped key [%w]", err)
	}

	fileKey, err := ecies.ImportECDSA(privKey).Decrypt(wrapped, nil, nil)
	if err != nil {
		return "", fmt.Errorf("%w [%s]", ErrWrongKey, err.Error())
	}

	return string(fileKey), nil
}

// parsePublicKeyHex parse a secp256k1 public key in any of its common hex forms
func parsePublicKeyHex(raw string) (*ecdsa.PublicKey, error) {
	keyBytes, err := hexutil.Decode(ensureHexPrefix(raw))
	if err != nil {
		return nil, fmt.Errorf("public key is not valid hex [%w]", err)
	}

	switch len(keyBytes) {
	case 65:
		return crypto.UnmarshalPubkey(keyBytes)
	case 64:
		// Uncompressed key missing the 0x04 marker byte
		return crypto.UnmarshalPubkey(append([]byte{0x04}, keyBytes...))
	case 33:
		return crypto.DecompressPubkey(keyBytes)
	}
	return nil, fmt.Errorf("unsupported public key length %d", len(keyBytes))
}

// ensureHexPrefix normalize hex strings for hexutil decoding
func ensureHexPrefix(raw string) string {
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		return raw
	}
	return "0x" + raw
}
