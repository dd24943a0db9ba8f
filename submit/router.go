// Package submit - routes signed authorizations to a relay or to direct
// contract writes
package submit

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-playground/validator/v10"
	"github.com/vaultmesh/accesskit/authz"
	"github.com/vaultmesh/accesskit/chain"
	"github.com/vaultmesh/accesskit/models"
	"github.com/vaultmesh/accesskit/resilience"
)

// SubmissionRouteENUMType submission route enum type
type SubmissionRouteENUMType string

const (
	// SubmissionRouteRelay the message went through a relay callback
	SubmissionRouteRelay SubmissionRouteENUMType = "relay"
	// SubmissionRouteDirect the message was written to chain directly
	SubmissionRouteDirect SubmissionRouteENUMType = "direct"
)

// MissingExpectedEventError a confirmed transaction did not emit the event
// which carries its generated ID
type MissingExpectedEventError struct {
	// Event the expected event name
	Event string
	// TxHash the confirmed transaction
	TxHash string
}

func (e *MissingExpectedEventError) Error() string {
	return fmt.Sprintf(
		"transaction %s confirmed without the expected '%s' event", e.TxHash, e.Event,
	)
}

// SubmissionResult outcome of a routed authorization submission
type SubmissionResult struct {
	// Route the path which carried the submission
	Route SubmissionRouteENUMType `json:"route"`
	// TxHash transaction hash or relay transaction ID
	TxHash string `json:"tx_hash"`
	// PermissionID generated permission ID, grant submissions on the direct path only
	PermissionID *big.Int `json:"permission_id,omitempty"`
}

// FileSubmissionResult outcome of a routed file registration
type FileSubmissionResult struct {
	// Route the path which carried the submission
	Route SubmissionRouteENUMType `json:"route"`
	// TxHash transaction hash or relay transaction ID
	TxHash string `json:"tx_hash"`
	// FileID generated on-chain file ID, when the carrying path reports it
	FileID *big.Int `json:"file_id,omitempty"`
}

// RelayCallback forwards a signed typed message to a relay service
type RelayCallback func(
	ctx context.Context, message interface{}, signature []byte,
) (string, error)

// FileRelayResult relay outcome of a file registration
type FileRelayResult struct {
	// FileID generated on-chain file ID
	FileID *big.Int
	// TxID relay transaction ID
	TxID string
}

// RelayCallbacks optional per-kind relay forwarding callbacks
//
// A nil callback routes that kind to the direct path instead.
type RelayCallbacks struct {
	// GrantPermission forward a permission grant
	GrantPermission RelayCallback
	// RevokePermission forward a permission revocation
	RevokePermission RelayCallback
	// TrustServer forward a server trust entry
	TrustServer RelayCallback
	// UntrustServer forward a server trust removal
	UntrustServer RelayCallback
	// AddAndTrustServer forward a combined server registration and trust entry
	AddAndTrustServer RelayCallback
	// ServerFilesAndPermission forward a batched file registration
	ServerFilesAndPermission RelayCallback
	// AddFile forward a single file registration
	AddFile func(ctx context.Context, url string, owner common.Address) (FileRelayResult, error)
	// AddFileWithPermissions forward a single file registration with recipients
	AddFileWithPermissions func(
		ctx context.Context,
		url string,
		owner common.Address,
		permissions []models.FilePermissionGrantEntry,
	) (FileRelayResult, error)
}

// Writer direct contract write surface the router dispatches to
type Writer interface {
	// SubmitGrant write a permission grant
	SubmitGrant(
		opts *bind.TransactOpts, msg models.PermissionGrantMessage,
	) (*types.Transaction, error)
	// SubmitRevoke write a permission revocation
	SubmitRevoke(
		opts *bind.TransactOpts, msg models.PermissionRevokeMessage,
	) (*types.Transaction, error)
	// SubmitTrustServer write a server trust entry
	SubmitTrustServer(
		opts *bind.TransactOpts, msg models.TrustServerMessage,
	) (*types.Transaction, error)
	// SubmitUntrustServer write a server trust removal
	SubmitUntrustServer(
		opts *bind.TransactOpts, msg models.UntrustServerMessage,
	) (*types.Transaction, error)
	// SubmitAddAndTrustServer write a combined server registration and trust entry
	SubmitAddAndTrustServer(
		opts *bind.TransactOpts, msg models.AddAndTrustServerMessage,
	) (*types.Transaction, error)
	// SubmitServerFilesAndPermission write a batched file registration
	SubmitServerFilesAndPermission(
		opts *bind.TransactOpts, msg models.ServerFilesAndPermissionMessage,
	) (*types.Transaction, error)
	// SubmitFile write a single file registration
	SubmitFile(
		opts *bind.TransactOpts, url string, owner common.Address,
	) (*types.Transaction, error)
	// SubmitFileWithPermissions write a single file registration with recipients
	SubmitFileWithPermissions(
		opts *bind.TransactOpts,
		url string,
		owner common.Address,
		permissions []models.FilePermissionGrantEntry,
	) (*types.Transaction, error)
	// Confirm await the receipt of a submitted transaction
	Confirm(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	// FileAddedEvents decode the FileAdded events of a receipt
	FileAddedEvents(receipt *types.Receipt) []chain.FileAddedEvent
	// PermissionGrantedEvents decode the PermissionGranted events of a receipt
	PermissionGrantedEvents(receipt *types.Receipt) []chain.PermissionGrantedEvent
}

// Router routes signed authorizations and file registrations to chain
type Router interface {
	/*
		Submit route one signed authorization

		A relay callback configured for the message kind carries it; otherwise
		the message is re-encoded as a direct contract write and confirmed.

		 @param ctx context.Context - execution context
		 @param signed authz.SignedAuthorization - the signed message
		 @return the submission outcome
	*/
	Submit(ctx context.Context, signed authz.SignedAuthorization) (SubmissionResult, error)

	/*
		SubmitFile route one file registration

		 @param ctx context.Context - execution context
		 @param url string - storage URL of the file
		 @param owner common.Address - file owner account
		 @return the submission outcome, including the generated file ID
	*/
	SubmitFile(
		ctx context.Context, url string, owner common.Address,
	) (FileSubmissionResult, error)

	/*
		SubmitFileWithPermissions route one file registration with its
		recipient permission list

		 @param ctx context.Context - execution context
		 @param url string - storage URL of the file
		 @param owner common.Address - file owner account
		 @param permissions []models.FilePermissionGrantEntry - per-recipient grants
		 @return the submission outcome, including the generated file ID
	*/
	SubmitFileWithPermissions(
		ctx context.Context,
		url string,
		owner common.Address,
		permissions []models.FilePermissionGrantEntry,
	) (FileSubmissionResult, error)

	/*
		SubscribeSubmissions observe every successful submission

		 @param observer resilience.Observer[SubmissionResult] - observer callback
		 @return subscription ID
	*/
	SubscribeSubmissions(observer resilience.Observer[SubmissionResult]) string

	// UnsubscribeSubmissions remove a previously registered observer
	UnsubscribeSubmissions(subID string)
}

// submissionRouter implements Router
type submissionRouter struct {
	goutils.Component

	writer   Writer
	wallet   authz.Wallet
	relay    RelayCallbacks
	retry    resilience.RetryParams
	notifier *resilience.Notifier[SubmissionResult]
	validate *validator.Validate
}

// RouterParams submission router init parameters
type RouterParams struct {
	// Writer direct contract write surface
	Writer Writer `validate:"required"`
	// Wallet signing wallet; must be an authz.Transactor for the direct path
	Wallet authz.Wallet `validate:"required"`
	// Relay optional per-kind relay callbacks
	Relay RelayCallbacks
	// Retry relay retry policy; defaults applied when zero valued
	Retry resilience.RetryParams `validate:"-"`
}

/*
NewRouter define a new submission router

	@param params RouterParams - router parameters
	@returns router instance
*/
func NewRouter(params RouterParams) (Router, error) {
	validate := validator.New()
	if err := models.RegisterWithValidator(validate); err != nil {
		return nil, fmt.Errorf("failed to prepare submission validation [%w]", err)
	}
	if err := validate.Struct(&params); err != nil {
		return nil, err
	}

	retry := params.Retry
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 3
	}
	if retry.Delay == 0 {
		retry.Delay = time.Millisecond * 250
	}
	if retry.ShouldRetry == nil {
		retry.ShouldRetry = transientFailure
	}

	logTags := log.Fields{"module": "submit", "component": "router"}

	return &submissionRouter{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		writer:   params.Writer,
		wallet:   params.Wallet,
		relay:    params.Relay,
		retry:    retry,
		notifier: resilience.NewNotifier[SubmissionResult]("submissions"),
		validate: validate,
	}, nil
}

func (r *submissionRouter) SubscribeSubmissions(
	observer resilience.Observer[SubmissionResult],
) string {
	return r.notifier.Subscribe(observer)
}

func (r *submissionRouter) UnsubscribeSubmissions(subID string) {
	r.notifier.Unsubscribe(subID)
}

// transientFailure default relay retry filter
//
// Rejections and malformed messages can not succeed on a later attempt.
func transientFailure(err error) bool {
	if errors.Is(err, authz.ErrUserRejected) {
		return false
	}
	var validationErr *authz.ValidationError
	if errors.As(err, &validationErr) {
		return false
	}
	var missingEvent *MissingExpectedEventError
	return !errors.As(err, &missingEvent)
}

// relayCallbackFor the configured relay callback of a message kind
func (r *submissionRouter) relayCallbackFor(
	kind models.AuthorizationKindENUMType,
) RelayCallback {
	switch kind {
	case models.AuthorizationKindGrant:
		return r.relay.GrantPermission
	case models.AuthorizationKindRevoke:
		return r.relay.RevokePermission
	case models.AuthorizationKindTrustServer:
		return r.relay.TrustServer
	case models.AuthorizationKindUntrustServer:
		return r.relay.UntrustServer
	case models.AuthorizationKindAddAndTrustServer:
		return r.relay.AddAndTrustServer
	case models.AuthorizationKindServerFilesAndPermission:
		return r.relay.ServerFilesAndPermission
	}
	return nil
}

func (r *submissionRouter) Submit(
	ctx context.Context, signed authz.SignedAuthorization,
) (SubmissionResult, error) {
	logTags := r.GetLogTagsForContext(ctx)

	if err := r.validate.Struct(&signed); err != nil {
		return SubmissionResult{}, fmt.Errorf("authorization can not be routed [%w]", err)
	}

	if callback := r.relayCallbackFor(signed.Kind); callback != nil {
		txID, err := resilience.RetryWithResult(
			ctx, r.retry, func(opCtx context.Context) (string, error) {
				return callback(opCtx, signed.Message, signed.Signature)
			},
		)
		if err != nil {
			log.
				WithError(err).
				WithFields(logTags).
				Errorf("Relay submission of '%s' failed", signed.Kind)
			return SubmissionResult{}, err
		}
		log.
			WithFields(logTags).
			WithField("kind", signed.Kind).
			WithField("tx", txID).
			Info("Relayed authorization")
		result := SubmissionResult{Route: SubmissionRouteRelay, TxHash: txID}
		r.notifier.Emit(ctx, result)
		return result, nil
	}

	return r.submitDirect(ctx, signed)
}

// submitDirect re-encode a signed authorization as a direct contract write
func (r *submissionRouter) submitDirect(
	ctx context.Context, signed authz.SignedAuthorization,
) (SubmissionResult, error) {
	logTags := r.GetLogTagsForContext(ctx)

	opts, err := r.transactOpts(ctx, signed.Kind)
	if err != nil {
		return SubmissionResult{}, err
	}

	var tx *types.Transaction
	switch msg := signed.Message.(type) {
	case models.PermissionGrantMessage:
		tx, err = r.writer.SubmitGrant(opts, msg)
	case models.PermissionRevokeMessage:
		tx, err = r.writer.SubmitRevoke(opts, msg)
	case models.TrustServerMessage:
		tx, err = r.writer.SubmitTrustServer(opts, msg)
	case models.UntrustServerMessage:
		tx, err = r.writer.SubmitUntrustServer(opts, msg)
	case models.AddAndTrustServerMessage:
		tx, err = r.writer.SubmitAddAndTrustServer(opts, msg)
	case models.ServerFilesAndPermissionMessage:
		tx, err = r.writer.SubmitServerFilesAndPermission(opts, msg)
	default:
		return SubmissionResult{}, fmt.Errorf(
			"no direct write encoding for message kind '%s'", signed.Kind,
		)
	}
	if err != nil {
		return SubmissionResult{}, err
	}

	receipt, err := r.confirm(ctx, tx)
	if err != nil {
		return SubmissionResult{}, err
	}

	result := SubmissionResult{
		Route: SubmissionRouteDirect, TxHash: tx.Hash().Hex(),
	}

	// Grants generate a permission ID, reported through the emitted event
	if signed.Kind == models.AuthorizationKindGrant {
		events := r.writer.PermissionGrantedEvents(receipt)
		if len(events) == 0 {
			return SubmissionResult{}, &MissingExpectedEventError{
				Event: "PermissionGranted", TxHash: tx.Hash().Hex(),
			}
		}
		result.PermissionID = events[0].PermissionId
	}

	log.
		WithFields(logTags).
		WithField("kind", signed.Kind).
		WithField("tx", result.TxHash).
		Info("Confirmed direct authorization write")
	r.notifier.Emit(ctx, result)
	return result, nil
}

func (r *submissionRouter) SubmitFile(
	ctx context.Context, url string, owner common.Address,
) (FileSubmissionResult, error) {
	if r.relay.AddFile != nil {
		relayed, err := r.relay.AddFile(ctx, url, owner)
		if err != nil {
			return FileSubmissionResult{}, err
		}
		return FileSubmissionResult{
			Route: SubmissionRouteRelay, TxHash: relayed.TxID, FileID: relayed.FileID,
		}, nil
	}

	opts, err := r.transactOpts(ctx, "file registration")
	if err != nil {
		return FileSubmissionResult{}, err
	}
	tx, err := r.writer.SubmitFile(opts, url, owner)
	if err != nil {
		return FileSubmissionResult{}, err
	}
	return r.confirmFileWrite(ctx, tx)
}

func (r *submissionRouter) SubmitFileWithPermissions(
	ctx context.Context,
	url string,
	owner common.Address,
	permissions []models.FilePermissionGrantEntry,
) (FileSubmissionResult, error) {
	if r.relay.AddFileWithPermissions != nil {
		relayed, err := r.relay.AddFileWithPermissions(ctx, url, owner, permissions)
		if err != nil {
			return FileSubmissionResult{}, err
		}
		return FileSubmissionResult{
			Route: SubmissionRouteRelay, TxHash: relayed.TxID, FileID: relayed.FileID,
		}, nil
	}

	opts, err := r.transactOpts(ctx, "file registration")
	if err != nil {
		return FileSubmissionResult{}, err
	}
	tx, err := r.writer.SubmitFileWithPermissions(opts, url, owner, permissions)
	if err != nil {
		return FileSubmissionResult{}, err
	}
	return r.confirmFileWrite(ctx, tx)
}

// transactOpts build direct write auth options, if the wallet supports them
func (r *submissionRouter) transactOpts(
	ctx context.Context, kind models.AuthorizationKindENUMType,
) (*bind.TransactOpts, error) {
	transactor, ok := r.wallet.(authz.Transactor)
	if !ok {
		return nil, fmt.Errorf(
			"no relay callback for '%s' and the wallet can not author direct writes", kind,
		)
	}
	return transactor.TransactOpts(ctx)
}

// confirm await a receipt and reject reverted transactions
func (r *submissionRouter) confirm(
	ctx context.Context, tx *types.Transaction,
) (*types.Receipt, error) {
	receipt, err := r.writer.Confirm(ctx, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s reverted on chain", tx.Hash().Hex())
	}
	return receipt, nil
}

// confirmFileWrite await a file registration receipt and decode the file ID
func (r *submissionRouter) confirmFileWrite(
	ctx context.Context, tx *types.Transaction,
) (FileSubmissionResult, error) {
	receipt, err := r.confirm(ctx, tx)
	if err != nil {
		return FileSubmissionResult{}, err
	}

	events := r.writer.FileAddedEvents(receipt)
	if len(events) == 0 {
		return FileSubmissionResult{}, &MissingExpectedEventError{
			Event: "FileAdded", TxHash: tx.Hash().Hex(),
		}
	}
	return FileSubmissionResult{
		Route:  SubmissionRouteDirect,
		TxHash: tx.Hash().Hex(),
		FileID: events[0].FileId,
	}, nil
}
