package authz_test

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/apex/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/vaultmesh/accesskit/authz"
	"github.com/vaultmesh/accesskit/models"
)

// fixedNonceSource nonce source returning a constant nonce
type fixedNonceSource struct {
	nonce *big.Int
	err   error
	calls int
}

func (s *fixedNonceSource) UserNonce(
	ctx context.Context, user common.Address,
) (*big.Int, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return new(big.Int).Set(s.nonce), nil
}

// countingWallet wallet wrapper counting signature requests
type countingWallet struct {
	inner     authz.Wallet
	signCalls int
	reject    bool
}

func (w *countingWallet) Address() (common.Address, error) {
	return w.inner.Address()
}

func (w *countingWallet) SignTypedDigest(
	ctx context.Context, digest []byte,
) ([]byte, error) {
	w.signCalls++
	if w.reject {
		return nil, authz.ErrUserRejected
	}
	return w.inner.SignTypedDigest(ctx, digest)
}

func (w *countingWallet) SignPersonalMessage(
	ctx context.Context, message []byte,
) ([]byte, error) {
	w.signCalls++
	if w.reject {
		return nil, authz.ErrUserRejected
	}
	return w.inner.SignPersonalMessage(ctx, message)
}

func newTestSigner(
	t *testing.T, nonces authz.NonceSource,
) (authz.Signer, *countingWallet, common.Address) {
	key, err := crypto.GenerateKey()
	assert.Nil(t, err)
	inner, err := authz.NewPrivateKeyWallet(
		hexutil.Encode(crypto.FromECDSA(key)), big.NewInt(14800),
	)
	assert.Nil(t, err)
	wallet := &countingWallet{inner: inner}

	uut, err := authz.NewSigner(authz.SignerParams{
		ChainID:  big.NewInt(14800),
		Registry: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Wallet:   wallet,
		Nonces:   nonces,
	})
	assert.Nil(t, err)

	return uut, wallet, crypto.PubkeyToAddress(key.PublicKey)
}

func TestSignerValidationBeforeWallet(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	nonces := &fixedNonceSource{nonce: big.NewInt(3)}
	uut, wallet, _ := newTestSigner(t, nonces)

	grantee := common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	// Case 0: zero grantee
	_, err := uut.BuildGrant(utCtx, common.Address{}, "ipfs://grant", nil)
	var validationErr *authz.ValidationError
	assert.ErrorAs(err, &validationErr)
	assert.Equal("grantee", validationErr.Field)

	// Case 1: missing grant document URI
	_, err = uut.BuildGrant(utCtx, grantee, "", nil)
	assert.ErrorAs(err, &validationErr)
	assert.Equal("grant", validationErr.Field)

	// Case 2: non-positive permission ID
	_, err = uut.BuildRevoke(utCtx, big.NewInt(0))
	assert.ErrorAs(err, &validationErr)
	assert.Equal("permissionId", validationErr.Field)
	_, err = uut.BuildRevoke(utCtx, nil)
	assert.ErrorAs(err, &validationErr)

	// Case 3: malformed server URL
	_, err = uut.BuildTrustServer(utCtx, grantee, "not a url")
	assert.ErrorAs(err, &validationErr)
	assert.Equal("serverUrl", validationErr.Field)

	// Case 4: positional array length mismatch names both lengths
	_, err = uut.BuildServerFilesAndPermission(utCtx, models.ServerFilesAndPermissionMessage{
		FileURLs:        []string{"https://files.example.com/a", "https://files.example.com/b"},
		SchemaIDs:       []*big.Int{big.NewInt(1)},
		FilePermissions: [][]models.FilePermissionGrantEntry{{}, {}},
		ServerAddress:   grantee,
		ServerURL:       "https://server.example.com",
	})
	assert.ErrorAs(err, &validationErr)
	assert.Equal("schemaIds", validationErr.Field)
	assert.Contains(validationErr.Reason, "1")
	assert.Contains(validationErr.Reason, "2")

	// Validation failures never touch the wallet or the nonce source
	assert.Equal(0, wallet.signCalls)
	assert.Equal(0, nonces.calls)
}

func TestSignerGrantSignatureRecovery(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	nonces := &fixedNonceSource{nonce: big.NewInt(9)}
	uut, wallet, signerAddr := newTestSigner(t, nonces)

	grantee := common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	signed, err := uut.BuildGrant(
		utCtx, grantee, "ipfs://grant-doc", []*big.Int{big.NewInt(41)},
	)
	assert.Nil(err)
	assert.Equal(models.AuthorizationKindGrant, signed.Kind)
	assert.Len(signed.Digest, 32)
	assert.Len(signed.Signature, 65)
	assert.Equal(1, wallet.signCalls)

	// The signature must recover to the wallet account
	recovered, err := authz.RecoverSigner(signed.Digest, signed.Signature)
	assert.Nil(err)
	assert.Equal(signerAddr, recovered)

	// The signed message carries the freshly fetched nonce
	msg, ok := signed.Message.(models.PermissionGrantMessage)
	assert.True(ok)
	assert.Equal(int64(9), msg.Nonce.Int64())
}

func TestSignerDigestSensitivity(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	nonces := &fixedNonceSource{nonce: big.NewInt(5)}
	uut, _, _ := newTestSigner(t, nonces)

	grantee := common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	signedA, err := uut.BuildGrant(utCtx, grantee, "ipfs://grant-a", nil)
	assert.Nil(err)
	signedB, err := uut.BuildGrant(utCtx, grantee, "ipfs://grant-b", nil)
	assert.Nil(err)
	signedA2, err := uut.BuildGrant(utCtx, grantee, "ipfs://grant-a", nil)
	assert.Nil(err)

	// Different content, different digest; same content, same digest
	assert.NotEqual(signedA.Digest, signedB.Digest)
	assert.Equal(signedA.Digest, signedA2.Digest)

	// A different message kind over similar content also differs
	signedRevoke, err := uut.BuildRevoke(utCtx, big.NewInt(5))
	assert.Nil(err)
	assert.NotEqual(signedA.Digest, signedRevoke.Digest)

	// The file list is covered by the digest, so a tampered relay payload
	// could not reuse the signature
	signedFiles, err := uut.BuildGrant(
		utCtx, grantee, "ipfs://grant-a", []*big.Int{big.NewInt(31), big.NewInt(32)},
	)
	assert.Nil(err)
	signedTampered, err := uut.BuildGrant(
		utCtx, grantee, "ipfs://grant-a", []*big.Int{big.NewInt(31), big.NewInt(99)},
	)
	assert.Nil(err)
	assert.NotEqual(signedA.Digest, signedFiles.Digest)
	assert.NotEqual(signedFiles.Digest, signedTampered.Digest)
}

func TestSignerNonceFetchFailure(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	nonces := &fixedNonceSource{err: fmt.Errorf("RPC endpoint unreachable")}
	uut, wallet, _ := newTestSigner(t, nonces)

	_, err := uut.BuildRevoke(utCtx, big.NewInt(77))
	var nonceErr *authz.NonceFetchError
	assert.ErrorAs(err, &nonceErr)
	assert.Contains(nonceErr.Error(), "RPC endpoint unreachable")

	// A nonce failure never reaches the wallet
	assert.Equal(0, wallet.signCalls)
}

func TestSignerUserRejection(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	nonces := &fixedNonceSource{nonce: big.NewInt(1)}
	uut, wallet, _ := newTestSigner(t, nonces)
	wallet.reject = true

	serverID := common.HexToAddress("0x0000000000000000000000000000000000000c0c")
	_, err := uut.BuildTrustServer(utCtx, serverID, "https://server.example.com")
	assert.ErrorIs(err, authz.ErrUserRejected)
}

func TestSignerServerFilesAndPermission(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	nonces := &fixedNonceSource{nonce: big.NewInt(12)}
	uut, _, signerAddr := newTestSigner(t, nonces)

	recipient := common.HexToAddress("0x0000000000000000000000000000000000000d0d")
	msg := models.ServerFilesAndPermissionMessage{
		FileURLs:  []string{"https://files.example.com/a", "https://files.example.com/b"},
		SchemaIDs: []*big.Int{big.NewInt(3), big.NewInt(0)},
		FilePermissions: [][]models.FilePermissionGrantEntry{
			{{Account: recipient, EncryptedKey: "0xwrapped-a"}},
			{{Account: recipient, EncryptedKey: "0xwrapped-b"}},
		},
		ServerAddress: common.HexToAddress("0x0000000000000000000000000000000000000e0e"),
		ServerURL:     "https://server.example.com",
	}

	signed, err := uut.BuildServerFilesAndPermission(utCtx, msg)
	assert.Nil(err)
	assert.Equal(models.AuthorizationKindServerFilesAndPermission, signed.Kind)

	recovered, err := authz.RecoverSigner(signed.Digest, signed.Signature)
	assert.Nil(err)
	assert.Equal(signerAddr, recovered)

	// The wrapped key content is part of the signed digest
	altered := msg
	altered.FilePermissions = [][]models.FilePermissionGrantEntry{
		{{Account: recipient, EncryptedKey: "0xwrapped-a"}},
		{{Account: recipient, EncryptedKey: "0xwrapped-tampered"}},
	}
	signedAltered, err := uut.BuildServerFilesAndPermission(utCtx, altered)
	assert.Nil(err)
	assert.NotEqual(signed.Digest, signedAltered.Digest)
}
