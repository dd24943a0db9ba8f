package authz

import (
	"context"
	"fmt"
	"math/big"
	"net/url"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"
	"github.com/vaultmesh/accesskit/models"
)

// ValidationError a message failed pre-signature validation
//
// Raised before any wallet interaction; a message which fails validation is
// never presented for signing.
type ValidationError struct {
	// Field the offending message field
	Field string
	// Reason why the field is invalid
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid authorization field '%s': %s", e.Field, e.Reason)
}

// NonceFetchError reading the signer nonce from chain failed
type NonceFetchError struct {
	// Account the account whose nonce was requested
	Account common.Address
	// Cause the underlying read failure
	Cause error
}

func (e *NonceFetchError) Error() string {
	return fmt.Sprintf("failed to fetch nonce of %s: %s", e.Account.Hex(), e.Cause.Error())
}

func (e *NonceFetchError) Unwrap() error {
	return e.Cause
}

// NonceSource reads the current per-account authorization nonce from chain
type NonceSource interface {
	// UserNonce current authorization nonce of an account
	UserNonce(ctx context.Context, user common.Address) (*big.Int, error)
}

// SignedAuthorization a typed message with its signature, ready for submission
type SignedAuthorization struct {
	// Kind the message kind
	Kind models.AuthorizationKindENUMType `json:"kind" validate:"required,authz_kind"`
	// Domain the signing domain the digest was built under
	Domain Domain `json:"domain"`
	// Message the typed message content
	Message interface{} `json:"message"`
	// Digest the signed EIP-712 digest
	Digest []byte `json:"digest"`
	// Signature 65 byte [R || S || V] wallet signature
	Signature []byte `json:"signature"`
}

// Signer builds and signs registry authorization messages
//
// Every build fetches the signer nonce immediately before signing; nonces are
// never cached across builds.
type Signer interface {
	/*
		BuildGrant build and sign a permission grant

		 @param ctx context.Context - execution context
		 @param grantee common.Address - account being granted access
		 @param grantURL string - URI of the off-chain grant document
		 @param fileIDs []*big.Int - on-chain IDs of the covered files
		 @return the signed authorization
	*/
	BuildGrant(
		ctx context.Context, grantee common.Address, grantURL string, fileIDs []*big.Int,
	) (SignedAuthorization, error)

	/*
		BuildRevoke build and sign a permission revocation

		 @param ctx context.Context - execution context
		 @param permissionID *big.Int - on-chain ID of the permission to revoke
		 @return the signed authorization
	*/
	BuildRevoke(ctx context.Context, permissionID *big.Int) (SignedAuthorization, error)

	/*
		BuildTrustServer build and sign a server trust entry

		 @param ctx context.Context - execution context
		 @param serverID common.Address - server account address
		 @param serverURL string - server endpoint URL
		 @return the signed authorization
	*/
	BuildTrustServer(
		ctx context.Context, serverID common.Address, serverURL string,
	) (SignedAuthorization, error)

	/*
		BuildUntrustServer build and sign a server trust removal

		 @param ctx context.Context - execution context
		 @param serverID common.Address - server account address
		 @return the signed authorization
	*/
	BuildUntrustServer(
		ctx context.Context, serverID common.Address,
	) (SignedAuthorization, error)

	/*
		BuildAddAndTrustServer build and sign a combined server registration
		and trust entry

		 @param ctx context.Context - execution context
		 @param serverID common.Address - server account address
		 @param serverURL string - server endpoint URL
		 @param serverPublicKey string - server public key for key delegation
		 @return the signed authorization
	*/
	BuildAddAndTrustServer(
		ctx context.Context, serverID common.Address, serverURL string, serverPublicKey string,
	) (SignedAuthorization, error)

	/*
		BuildServerFilesAndPermission build and sign a batched file
		registration with per-file recipient permissions

		 @param ctx context.Context - execution context
		 @param msg models.ServerFilesAndPermissionMessage - message content, nonce ignored
		 @return the signed authorization
	*/
	BuildServerFilesAndPermission(
		ctx context.Context, msg models.ServerFilesAndPermissionMessage,
	) (SignedAuthorization, error)
}

// authorizationSigner implements Signer
type authorizationSigner struct {
	goutils.Component

	domain Domain
	wallet Wallet
	nonces NonceSource
}

// SignerParams authorization signer init parameters
type SignerParams struct {
	// ChainID chain the registry is deployed on
	ChainID *big.Int `validate:"required"`
	// Registry registry contract address
	Registry common.Address
	// Wallet signing wallet
	Wallet Wallet `validate:"required"`
	// Nonces chain nonce source
	Nonces NonceSource `validate:"required"`
}

/*
NewSigner define a new authorization signer

	@param params SignerParams - signer parameters
	@returns signer instance
*/
func NewSigner(params SignerParams) (Signer, error) {
	validate := validator.New()
	if err := validate.Struct(&params); err != nil {
		return nil, err
	}

	logTags := log.Fields{"module": "authz", "component": "signer"}

	return &authorizationSigner{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		domain: NewRegistryDomain(params.ChainID, params.Registry),
		wallet: params.Wallet,
		nonces: params.Nonces,
	}, nil
}

// fetchNonce read the signer's current nonce, immediately before signing
func (s *authorizationSigner) fetchNonce(ctx context.Context) (common.Address, *big.Int, error) {
	signer, err := s.wallet.Address()
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to resolve signer account [%w]", err)
	}
	nonce, err := s.nonces.UserNonce(ctx, signer)
	if err != nil {
		return common.Address{}, nil, &NonceFetchError{Account: signer, Cause: err}
	}
	return signer, nonce, nil
}

// sign request the wallet signature over a struct hash
func (s *authorizationSigner) sign(
	ctx context.Context,
	kind models.AuthorizationKindENUMType,
	message interface{},
	structHash []byte,
) (SignedAuthorization, error) {
	logTags := s.GetLogTagsForContext(ctx)

	digest := s.domain.typedDigest(structHash)
	signature, err := s.wallet.SignTypedDigest(ctx, digest)
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf("Signing '%s' message failed", kind)
		return SignedAuthorization{}, err
	}

	log.
		WithFields(logTags).
		WithField("kind", kind).
		WithField("digest", hexutil.Encode(digest)).
		Debug("Built signed authorization")
	return SignedAuthorization{
		Kind:      kind,
		Domain:    s.domain,
		Message:   message,
		Digest:    digest,
		Signature: signature,
	}, nil
}

func validURL(value string) bool {
	parsed, err := url.Parse(value)
	return err == nil && parsed.Scheme != "" && parsed.Host != ""
}

func (s *authorizationSigner) BuildGrant(
	ctx context.Context, grantee common.Address, grantURL string, fileIDs []*big.Int,
) (SignedAuthorization, error) {
	if grantee == (common.Address{}) {
		return SignedAuthorization{}, &ValidationError{
			Field: "grantee", Reason: "must not be the zero address",
		}
	}
	if grantURL == "" {
		return SignedAuthorization{}, &ValidationError{
			Field: "grant", Reason: "grant document URI is required",
		}
	}
	for idx, id := range fileIDs {
		if id == nil || id.Sign() < 0 {
			return SignedAuthorization{}, &ValidationError{
				Field:  "fileIds",
				Reason: fmt.Sprintf("entry %d is not a valid file ID", idx),
			}
		}
	}

	_, nonce, err := s.fetchNonce(ctx)
	if err != nil {
		return SignedAuthorization{}, err
	}

	msg := models.PermissionGrantMessage{
		Grantee: grantee, Grant: grantURL, FileIDs: fileIDs, Nonce: nonce,
	}
	return s.sign(ctx, models.AuthorizationKindGrant, msg, hashGrantMessage(msg))
}

func (s *authorizationSigner) BuildRevoke(
	ctx context.Context, permissionID *big.Int,
) (SignedAuthorization, error) {
	if permissionID == nil || permissionID.Sign() <= 0 {
		return SignedAuthorization{}, &ValidationError{
			Field: "permissionId", Reason: "must be a positive on-chain permission ID",
		}
	}

	_, nonce, err := s.fetchNonce(ctx)
	if err != nil {
		return SignedAuthorization{}, err
	}

	msg := models.PermissionRevokeMessage{PermissionID: permissionID, Nonce: nonce}
	return s.sign(ctx, models.AuthorizationKindRevoke, msg, hashRevokeMessage(msg))
}

func (s *authorizationSigner) BuildTrustServer(
	ctx context.Context, serverID common.Address, serverURL string,
) (SignedAuthorization, error) {
	if serverID == (common.Address{}) {
		return SignedAuthorization{}, &ValidationError{
			Field: "serverId", Reason: "must not be the zero address",
		}
	}
	if !validURL(serverURL) {
		return SignedAuthorization{}, &ValidationError{
			Field: "serverUrl", Reason: "must be an absolute URL",
		}
	}

	_, nonce, err := s.fetchNonce(ctx)
	if err != nil {
		return SignedAuthorization{}, err
	}

	msg := models.TrustServerMessage{ServerID: serverID, ServerURL: serverURL, Nonce: nonce}
	return s.sign(ctx, models.AuthorizationKindTrustServer, msg, hashTrustServerMessage(msg))
}

func (s *authorizationSigner) BuildUntrustServer(
	ctx context.Context, serverID common.Address,
) (SignedAuthorization, error) {
	if serverID == (common.Address{}) {
		return SignedAuthorization{}, &ValidationError{
			Field: "serverId", Reason: "must not be the zero address",
		}
	}

	_, nonce, err := s.fetchNonce(ctx)
	if err != nil {
		return SignedAuthorization{}, err
	}

	msg := models.UntrustServerMessage{ServerID: serverID, Nonce: nonce}
	return s.sign(ctx, models.AuthorizationKindUntrustServer, msg, hashUntrustServerMessage(msg))
}

func (s *authorizationSigner) BuildAddAndTrustServer(
	ctx context.Context, serverID common.Address, serverURL string, serverPublicKey string,
) (SignedAuthorization, error) {
	if serverID == (common.Address{}) {
		return SignedAuthorization{}, &ValidationError{
			Field: "serverId", Reason: "must not be the zero address",
		}
	}
	if !validURL(serverURL) {
		return SignedAuthorization{}, &ValidationError{
			Field: "serverUrl", Reason: "must be an absolute URL",
		}
	}
	if serverPublicKey == "" {
		return SignedAuthorization{}, &ValidationError{
			Field: "serverPublicKey", Reason: "server public key is required",
		}
	}

	_, nonce, err := s.fetchNonce(ctx)
	if err != nil {
		return SignedAuthorization{}, err
	}

	msg := models.AddAndTrustServerMessage{
		ServerID:        serverID,
		ServerURL:       serverURL,
		ServerPublicKey: serverPublicKey,
		Nonce:           nonce,
	}
	return s.sign(
		ctx, models.AuthorizationKindAddAndTrustServer, msg, hashAddAndTrustServerMessage(msg),
	)
}

func (s *authorizationSigner) BuildServerFilesAndPermission(
	ctx context.Context, msg models.ServerFilesAndPermissionMessage,
) (SignedAuthorization, error) {
	if len(msg.FileURLs) == 0 {
		return SignedAuthorization{}, &ValidationError{
			Field: "fileUrls", Reason: "at least one file is required",
		}
	}
	if len(msg.SchemaIDs) != len(msg.FileURLs) {
		return SignedAuthorization{}, &ValidationError{
			Field: "schemaIds",
			Reason: fmt.Sprintf(
				"length %d does not match %d files", len(msg.SchemaIDs), len(msg.FileURLs),
			),
		}
	}
	if len(msg.FilePermissions) != len(msg.FileURLs) {
		return SignedAuthorization{}, &ValidationError{
			Field: "filePermissions",
			Reason: fmt.Sprintf(
				"length %d does not match %d files",
				len(msg.FilePermissions),
				len(msg.FileURLs),
			),
		}
	}
	if msg.ServerAddress == (common.Address{}) {
		return SignedAuthorization{}, &ValidationError{
			Field: "serverAddress", Reason: "must not be the zero address",
		}
	}
	if !validURL(msg.ServerURL) {
		return SignedAuthorization{}, &ValidationError{
			Field: "serverUrl", Reason: "must be an absolute URL",
		}
	}
	for fileIdx, entries := range msg.FilePermissions {
		for entryIdx, entry := range entries {
			if entry.Account == (common.Address{}) {
				return SignedAuthorization{}, &ValidationError{
					Field: "filePermissions",
					Reason: fmt.Sprintf(
						"file %d entry %d has the zero address as recipient",
						fileIdx,
						entryIdx,
					),
				}
			}
			if entry.EncryptedKey == "" {
				return SignedAuthorization{}, &ValidationError{
					Field: "filePermissions",
					Reason: fmt.Sprintf(
						"file %d entry %d is missing the wrapped key", fileIdx, entryIdx,
					),
				}
			}
		}
	}

	_, nonce, err := s.fetchNonce(ctx)
	if err != nil {
		return SignedAuthorization{}, err
	}

	msg.Nonce = nonce
	return s.sign(
		ctx,
		models.AuthorizationKindServerFilesAndPermission,
		msg,
		hashServerFilesMessage(msg),
	)
}
