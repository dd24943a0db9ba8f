package submit_test

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/vaultmesh/accesskit/authz"
	"github.com/vaultmesh/accesskit/chain"
	"github.com/vaultmesh/accesskit/models"
	"github.com/vaultmesh/accesskit/resilience"
	"github.com/vaultmesh/accesskit/submit"
)

// fakeTransactorWallet wallet fake supporting direct writes
type fakeTransactorWallet struct {
	address common.Address
}

func (w *fakeTransactorWallet) Address() (common.Address, error) {
	return w.address, nil
}

func (w *fakeTransactorWallet) SignTypedDigest(
	ctx context.Context, digest []byte,
) ([]byte, error) {
	return make([]byte, 65), nil
}

func (w *fakeTransactorWallet) SignPersonalMessage(
	ctx context.Context, message []byte,
) ([]byte, error) {
	return make([]byte, 65), nil
}

func (w *fakeTransactorWallet) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: w.address, Context: ctx}, nil
}

// signOnlyWallet wallet fake without direct write support
type signOnlyWallet struct{}

func (w *signOnlyWallet) Address() (common.Address, error) {
	return common.Address{}, nil
}

func (w *signOnlyWallet) SignTypedDigest(ctx context.Context, digest []byte) ([]byte, error) {
	return make([]byte, 65), nil
}

func (w *signOnlyWallet) SignPersonalMessage(
	ctx context.Context, message []byte,
) ([]byte, error) {
	return make([]byte, 65), nil
}

// fakeWriter direct write fake recording dispatched messages
type fakeWriter struct {
	grantMsgs  []models.PermissionGrantMessage
	revokeMsgs []models.PermissionRevokeMessage
	fileURLs   []string

	revertOnChain     bool
	grantEvents       []chain.PermissionGrantedEvent
	fileEvents        []chain.FileAddedEvent
	lastSubmitted     *types.Transaction
	confirmedReceipts int
}

func (f *fakeWriter) newTx() *types.Transaction {
	f.lastSubmitted = types.NewTx(&types.LegacyTx{
		Nonce: uint64(len(f.grantMsgs) + len(f.revokeMsgs) + len(f.fileURLs)),
		Data:  []byte{0x01},
	})
	return f.lastSubmitted
}

func (f *fakeWriter) SubmitGrant(
	opts *bind.TransactOpts, msg models.PermissionGrantMessage,
) (*types.Transaction, error) {
	f.grantMsgs = append(f.grantMsgs, msg)
	return f.newTx(), nil
}

func (f *fakeWriter) SubmitRevoke(
	opts *bind.TransactOpts, msg models.PermissionRevokeMessage,
) (*types.Transaction, error) {
	f.revokeMsgs = append(f.revokeMsgs, msg)
	return f.newTx(), nil
}

func (f *fakeWriter) SubmitTrustServer(
	opts *bind.TransactOpts, msg models.TrustServerMessage,
) (*types.Transaction, error) {
	return f.newTx(), nil
}

func (f *fakeWriter) SubmitUntrustServer(
	opts *bind.TransactOpts, msg models.UntrustServerMessage,
) (*types.Transaction, error) {
	return f.newTx(), nil
}

func (f *fakeWriter) SubmitAddAndTrustServer(
	opts *bind.TransactOpts, msg models.AddAndTrustServerMessage,
) (*types.Transaction, error) {
	return f.newTx(), nil
}

func (f *fakeWriter) SubmitServerFilesAndPermission(
	opts *bind.TransactOpts, msg models.ServerFilesAndPermissionMessage,
) (*types.Transaction, error) {
	return f.newTx(), nil
}

func (f *fakeWriter) SubmitFile(
	opts *bind.TransactOpts, url string, owner common.Address,
) (*types.Transaction, error) {
	f.fileURLs = append(f.fileURLs, url)
	return f.newTx(), nil
}

func (f *fakeWriter) SubmitFileWithPermissions(
	opts *bind.TransactOpts,
	url string,
	owner common.Address,
	permissions []models.FilePermissionGrantEntry,
) (*types.Transaction, error) {
	f.fileURLs = append(f.fileURLs, url)
	return f.newTx(), nil
}

func (f *fakeWriter) Confirm(
	ctx context.Context, tx *types.Transaction,
) (*types.Receipt, error) {
	f.confirmedReceipts++
	status := types.ReceiptStatusSuccessful
	if f.revertOnChain {
		status = types.ReceiptStatusFailed
	}
	return &types.Receipt{Status: status, TxHash: tx.Hash()}, nil
}

func (f *fakeWriter) FileAddedEvents(receipt *types.Receipt) []chain.FileAddedEvent {
	return f.fileEvents
}

func (f *fakeWriter) PermissionGrantedEvents(
	receipt *types.Receipt,
) []chain.PermissionGrantedEvent {
	return f.grantEvents
}

func grantAuthorization(msg models.PermissionGrantMessage) authz.SignedAuthorization {
	return authz.SignedAuthorization{
		Kind:      models.AuthorizationKindGrant,
		Message:   msg,
		Digest:    make([]byte, 32),
		Signature: make([]byte, 65),
	}
}

func TestRouterRelayPath(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	writer := &fakeWriter{}
	var relayedMsg interface{}
	uut, err := submit.NewRouter(submit.RouterParams{
		Writer: writer,
		Wallet: &signOnlyWallet{},
		Relay: submit.RelayCallbacks{
			GrantPermission: func(
				ctx context.Context, message interface{}, signature []byte,
			) (string, error) {
				relayedMsg = message
				return "relay-tx-001", nil
			},
		},
	})
	assert.Nil(err)

	msg := models.PermissionGrantMessage{
		Grantee: common.HexToAddress("0x0000000000000000000000000000000000000b0b"),
		Grant:   "ipfs://grant-doc",
		Nonce:   big.NewInt(4),
	}
	result, err := uut.Submit(utCtx, grantAuthorization(msg))
	assert.Nil(err)
	assert.Equal(submit.SubmissionRouteRelay, result.Route)
	assert.Equal("relay-tx-001", result.TxHash)

	// The relay receives the message verbatim; the writer is never touched
	assert.Equal(msg, relayedMsg)
	assert.Empty(writer.grantMsgs)
}

func TestRouterRelayRetryPolicy(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	attempts := 0
	failures := 2
	var relayErr error
	uut, err := submit.NewRouter(submit.RouterParams{
		Writer: &fakeWriter{},
		Wallet: &signOnlyWallet{},
		Relay: submit.RelayCallbacks{
			GrantPermission: func(
				ctx context.Context, message interface{}, signature []byte,
			) (string, error) {
				attempts++
				if attempts <= failures {
					return "", relayErr
				}
				return "relay-tx-002", nil
			},
		},
		Retry: resilience.RetryParams{MaxAttempts: 4, Delay: time.Millisecond},
	})
	assert.Nil(err)

	signed := grantAuthorization(models.PermissionGrantMessage{Grant: "ipfs://grant"})

	// Transient relay failures are retried until success
	relayErr = fmt.Errorf("relay temporarily unavailable")
	result, err := uut.Submit(utCtx, signed)
	assert.Nil(err)
	assert.Equal(3, attempts)
	assert.Equal("relay-tx-002", result.TxHash)

	// A user rejection is terminal on the first attempt
	attempts = 0
	failures = 100
	relayErr = authz.ErrUserRejected
	_, err = uut.Submit(utCtx, signed)
	assert.ErrorIs(err, authz.ErrUserRejected)
	assert.Equal(1, attempts)
}

func TestRouterDirectPath(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	writer := &fakeWriter{
		grantEvents: []chain.PermissionGrantedEvent{{
			PermissionId: big.NewInt(88),
			Grantor:      common.HexToAddress("0x0000000000000000000000000000000000000a0a"),
			Grant:        "ipfs://grant-doc",
		}},
	}
	uut, err := submit.NewRouter(submit.RouterParams{
		Writer: writer,
		Wallet: &fakeTransactorWallet{
			address: common.HexToAddress("0x0000000000000000000000000000000000000a0a"),
		},
	})
	assert.Nil(err)

	msg := models.PermissionGrantMessage{
		Grantee: common.HexToAddress("0x0000000000000000000000000000000000000b0b"),
		Grant:   "ipfs://grant-doc",
		Nonce:   big.NewInt(4),
	}
	result, err := uut.Submit(utCtx, grantAuthorization(msg))
	assert.Nil(err)
	assert.Equal(submit.SubmissionRouteDirect, result.Route)
	assert.NotEmpty(result.TxHash)
	assert.Equal(int64(88), result.PermissionID.Int64())
	assert.Equal(1, writer.confirmedReceipts)

	// The direct write carries the same message the relay would have seen
	assert.Len(writer.grantMsgs, 1)
	assert.Equal(msg, writer.grantMsgs[0])
}

func TestRouterDirectMissingEvent(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	// Confirmed grant without the PermissionGranted event
	uut, err := submit.NewRouter(submit.RouterParams{
		Writer: &fakeWriter{},
		Wallet: &fakeTransactorWallet{},
	})
	assert.Nil(err)

	_, err = uut.Submit(utCtx, grantAuthorization(models.PermissionGrantMessage{
		Grant: "ipfs://grant",
	}))
	var missingEvent *submit.MissingExpectedEventError
	assert.ErrorAs(err, &missingEvent)
	assert.Equal("PermissionGranted", missingEvent.Event)
}

func TestRouterRejectsUnknownKind(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	writer := &fakeWriter{}
	relayCalls := 0
	uut, err := submit.NewRouter(submit.RouterParams{
		Writer: writer,
		Wallet: &fakeTransactorWallet{},
		Relay: submit.RelayCallbacks{
			GrantPermission: func(
				ctx context.Context, message interface{}, signature []byte,
			) (string, error) {
				relayCalls++
				return "relay-tx-001", nil
			},
		},
	})
	assert.Nil(err)

	// Neither an unknown kind nor a missing kind reaches either route
	for _, kind := range []models.AuthorizationKindENUMType{"rotate-keys", ""} {
		_, err = uut.Submit(utCtx, authz.SignedAuthorization{
			Kind:    kind,
			Message: models.PermissionRevokeMessage{PermissionID: big.NewInt(3)},
		})
		assert.Error(err)
	}
	assert.Equal(0, relayCalls)
	assert.Empty(writer.revokeMsgs)
}

func TestRouterDirectRequiresTransactor(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, err := submit.NewRouter(submit.RouterParams{
		Writer: &fakeWriter{},
		Wallet: &signOnlyWallet{},
	})
	assert.Nil(err)

	// No relay for this kind, and the wallet can not author writes
	_, err = uut.Submit(utCtx, authz.SignedAuthorization{
		Kind:    models.AuthorizationKindRevoke,
		Message: models.PermissionRevokeMessage{PermissionID: big.NewInt(3)},
	})
	assert.Error(err)
}

func TestRouterDirectRevertedTransaction(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, err := submit.NewRouter(submit.RouterParams{
		Writer: &fakeWriter{revertOnChain: true},
		Wallet: &fakeTransactorWallet{},
	})
	assert.Nil(err)

	_, err = uut.Submit(utCtx, authz.SignedAuthorization{
		Kind:    models.AuthorizationKindRevoke,
		Message: models.PermissionRevokeMessage{PermissionID: big.NewInt(3)},
	})
	assert.Error(err)
	assert.Contains(err.Error(), "reverted")
}

func TestRouterFileSubmission(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	owner := common.HexToAddress("0x0000000000000000000000000000000000000a0a")

	// Direct path decodes the generated file ID from the FileAdded event
	writer := &fakeWriter{
		fileEvents: []chain.FileAddedEvent{{
			FileId: big.NewInt(512), OwnerAddress: owner, Url: "ipfs://payload",
		}},
	}
	uut, err := submit.NewRouter(submit.RouterParams{
		Writer: writer,
		Wallet: &fakeTransactorWallet{address: owner},
	})
	assert.Nil(err)

	result, err := uut.SubmitFile(utCtx, "ipfs://payload", owner)
	assert.Nil(err)
	assert.Equal(submit.SubmissionRouteDirect, result.Route)
	assert.Equal(int64(512), result.FileID.Int64())

	// Relay path reports the relay generated ID
	relayed, err := submit.NewRouter(submit.RouterParams{
		Writer: &fakeWriter{},
		Wallet: &signOnlyWallet{},
		Relay: submit.RelayCallbacks{
			AddFile: func(
				ctx context.Context, url string, fileOwner common.Address,
			) (submit.FileRelayResult, error) {
				return submit.FileRelayResult{
					FileID: big.NewInt(513), TxID: "relay-tx-003",
				}, nil
			},
		},
	})
	assert.Nil(err)

	result, err = relayed.SubmitFile(utCtx, "ipfs://payload", owner)
	assert.Nil(err)
	assert.Equal(submit.SubmissionRouteRelay, result.Route)
	assert.Equal(int64(513), result.FileID.Int64())
	assert.Equal("relay-tx-003", result.TxHash)
}

func TestRouterSubmissionObservers(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, err := submit.NewRouter(submit.RouterParams{
		Writer: &fakeWriter{},
		Wallet: &signOnlyWallet{},
		Relay: submit.RelayCallbacks{
			RevokePermission: func(
				ctx context.Context, message interface{}, signature []byte,
			) (string, error) {
				return "relay-tx-004", nil
			},
		},
	})
	assert.Nil(err)

	var observed []submit.SubmissionResult
	subID := uut.SubscribeSubmissions(
		func(ctx context.Context, result submit.SubmissionResult) error {
			observed = append(observed, result)
			return nil
		},
	)

	signed := authz.SignedAuthorization{
		Kind:    models.AuthorizationKindRevoke,
		Message: models.PermissionRevokeMessage{PermissionID: big.NewInt(5)},
	}
	_, err = uut.Submit(utCtx, signed)
	assert.Nil(err)
	assert.Len(observed, 1)
	assert.Equal("relay-tx-004", observed[0].TxHash)

	// After unsubscribing no further deliveries arrive
	uut.UnsubscribeSubmissions(subID)
	_, err = uut.Submit(utCtx, signed)
	assert.Nil(err)
	assert.Len(observed, 1)
}
