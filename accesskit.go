// Package accesskit - client SDK for scoped access to encrypted files on a
// permissioned data registry chain
package accesskit

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-playground/validator/v10"
	"github.com/vaultmesh/accesskit/authz"
	"github.com/vaultmesh/accesskit/chain"
	"github.com/vaultmesh/accesskit/content"
	"github.com/vaultmesh/accesskit/encryption"
	"github.com/vaultmesh/accesskit/models"
	"github.com/vaultmesh/accesskit/resilience"
	"github.com/vaultmesh/accesskit/resolver"
	"github.com/vaultmesh/accesskit/submit"
)

// StorageProvider uploads encrypted content to off-chain storage
//
// Storage itself is an external collaborator; the SDK only depends on this
// boundary.
type StorageProvider interface {
	/*
		Upload store one content blob

		 @param ctx context.Context - execution context
		 @param fileContent []byte - the content
		 @param name string - suggested object name
		 @return URL of the stored object
	*/
	Upload(ctx context.Context, fileContent []byte, name string) (string, error)
}

// ClientParams access client init parameters
type ClientParams struct {
	// RPCURL chain RPC endpoint; ignored when Backend is set
	RPCURL string
	// Backend chain backend; overrides RPCURL when set
	Backend chain.Backend
	// ChainID chain the registry is deployed on
	ChainID *big.Int `validate:"required"`
	// RegistryAddress registry contract address
	RegistryAddress common.Address
	// MulticallAddress Multicall3 contract address
	MulticallAddress common.Address
	// Wallet signing wallet
	Wallet authz.Wallet `validate:"required"`
	// Relay optional per-kind relay callbacks
	Relay submit.RelayCallbacks
	// RelayRetry relay retry policy; defaults applied when zero valued
	RelayRetry resilience.RetryParams `validate:"-"`
	// IndexedEndpoint indexed query service URL, empty when not configured
	IndexedEndpoint string
	// Gateways ordered content gateway base URLs, nil for the defaults
	Gateways []string
	// Cipher payload cipher backend, nil for the AES-GCM default
	Cipher encryption.CipherBackend
	// Storage off-chain storage collaborator, required for upload and grant flows
	Storage StorageProvider
}

// AccessClient the assembled SDK facade
type AccessClient struct {
	wallet   authz.Wallet
	registry *chain.Registry
	signer   authz.Signer
	router   submit.Router
	resolver resolver.Resolver
	engine   encryption.Engine
	fetcher  content.Fetcher
	storage  StorageProvider
}

/*
NewAccessClient initialize an access client instance.

Wires the contract access layer, the authorization signer, the submission
router, the dual mode state resolver, the encryption engine, and the content
fetcher into one facade.

	@param ctx context.Context - execution context
	@param params ClientParams - client parameters
	@returns new client instance
*/
func NewAccessClient(ctx context.Context, params ClientParams) (*AccessClient, error) {
	validate := validator.New()
	if err := validate.Struct(&params); err != nil {
		return nil, err
	}

	// Prepare the chain backend
	backend := params.Backend
	if backend == nil {
		if params.RPCURL == "" {
			return nil, fmt.Errorf("access client requires a chain backend or RPC URL")
		}
		client, err := ethclient.DialContext(ctx, params.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to chain RPC [%w]", err)
		}
		backend = client
	}

	// Prepare the contract access layer
	registry, err := chain.NewRegistry(chain.RegistryParams{
		Address:          params.RegistryAddress,
		MulticallAddress: params.MulticallAddress,
		Backend:          backend,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize registry wrapper [%w]", err)
	}

	// Prepare the authorization signer
	signer, err := authz.NewSigner(authz.SignerParams{
		ChainID:  params.ChainID,
		Registry: params.RegistryAddress,
		Wallet:   params.Wallet,
		Nonces:   registry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize authorization signer [%w]", err)
	}

	// Prepare the submission router
	router, err := submit.NewRouter(submit.RouterParams{
		Writer: registry,
		Wallet: params.Wallet,
		Relay:  params.Relay,
		Retry:  params.RelayRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize submission router [%w]", err)
	}

	// Prepare the state resolver
	var indexed resolver.IndexedSource
	if params.IndexedEndpoint != "" {
		indexed, err = resolver.NewIndexedClient(params.IndexedEndpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize indexed query client [%w]", err)
		}
	}
	stateResolver, err := resolver.NewResolver(resolver.ResolverParams{
		Indexed: indexed, Direct: registry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state resolver [%w]", err)
	}

	// Prepare the encryption engine
	engine, err := encryption.NewEngine(encryption.EngineParams{Cipher: params.Cipher})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption engine [%w]", err)
	}

	// Prepare the content fetcher
	fetcher, err := content.NewGatewayFetcher(params.Gateways, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize content fetcher [%w]", err)
	}

	return &AccessClient{
		wallet:   params.Wallet,
		registry: registry,
		signer:   signer,
		router:   router,
		resolver: stateResolver,
		engine:   engine,
		fetcher:  fetcher,
		storage:  params.Storage,
	}, nil
}

// Signer the authorization signer of this client
func (c *AccessClient) Signer() authz.Signer {
	return c.signer
}

// Router the submission router of this client
func (c *AccessClient) Router() submit.Router {
	return c.router
}

// Encryption the encryption engine of this client
func (c *AccessClient) Encryption() encryption.Engine {
	return c.engine
}

// ------------------------------------------------------------------------------------
// Permission operations

/*
GrantAccess grant a grantee scoped access to a set of registered files

The grant document is serialized and placed in off-chain storage; only its
URL travels in the signed on-chain message.

	@param ctx context.Context - execution context
	@param grantee common.Address - account being granted access
	@param operation models.PermissionOperationENUMType - what the grant authorizes
	@param parameters json.RawMessage - operation specific parameters
	@param fileIDs []*big.Int - on-chain IDs of the covered files
	@return the submission outcome
*/
func (c *AccessClient) GrantAccess(
	ctx context.Context,
	grantee common.Address,
	operation models.PermissionOperationENUMType,
	parameters json.RawMessage,
	fileIDs []*big.Int,
) (submit.SubmissionResult, error) {
	if c.storage == nil {
		return submit.SubmissionResult{}, fmt.Errorf(
			"granting access requires a storage provider",
		)
	}

	files := make([]uint64, 0, len(fileIDs))
	for _, id := range fileIDs {
		if id != nil {
			files = append(files, id.Uint64())
		}
	}
	doc := models.NewGrantDocument(grantee.Hex(), operation, parameters, files)
	serialized, err := doc.Serialize()
	if err != nil {
		return submit.SubmissionResult{}, err
	}

	grantURL, err := c.storage.Upload(ctx, serialized, fmt.Sprintf("grant-%s.json", doc.ID))
	if err != nil {
		return submit.SubmissionResult{}, fmt.Errorf(
			"failed to store grant document [%w]", err,
		)
	}

	signed, err := c.signer.BuildGrant(ctx, grantee, grantURL, fileIDs)
	if err != nil {
		return submit.SubmissionResult{}, err
	}
	return c.router.Submit(ctx, signed)
}

/*
RevokeAccess revoke a previously granted permission

	@param ctx context.Context - execution context
	@param permissionID *big.Int - on-chain ID of the permission
	@return the submission outcome
*/
func (c *AccessClient) RevokeAccess(
	ctx context.Context, permissionID *big.Int,
) (submit.SubmissionResult, error) {
	signed, err := c.signer.BuildRevoke(ctx, permissionID)
	if err != nil {
		return submit.SubmissionResult{}, err
	}
	return c.router.Submit(ctx, signed)
}

// ------------------------------------------------------------------------------------
// Trust set operations

/*
TrustServer add a server to the caller's trust set

	@param ctx context.Context - execution context
	@param serverID common.Address - server account address
	@param serverURL string - server endpoint URL
	@return the submission outcome
*/
func (c *AccessClient) TrustServer(
	ctx context.Context, serverID common.Address, serverURL string,
) (submit.SubmissionResult, error) {
	signed, err := c.signer.BuildTrustServer(ctx, serverID, serverURL)
	if err != nil {
		return submit.SubmissionResult{}, err
	}
	return c.router.Submit(ctx, signed)
}

/*
UntrustServer remove a server from the caller's trust set

	@param ctx context.Context - execution context
	@param serverID common.Address - server account address
	@return the submission outcome
*/
func (c *AccessClient) UntrustServer(
	ctx context.Context, serverID common.Address,
) (submit.SubmissionResult, error) {
	signed, err := c.signer.BuildUntrustServer(ctx, serverID)
	if err != nil {
		return submit.SubmissionResult{}, err
	}
	return c.router.Submit(ctx, signed)
}

/*
AddAndTrustServer register a server and trust it in one operation

	@param ctx context.Context - execution context
	@param serverID common.Address - server account address
	@param serverURL string - server endpoint URL
	@param serverPublicKey string - server public key for key delegation
	@return the submission outcome
*/
func (c *AccessClient) AddAndTrustServer(
	ctx context.Context, serverID common.Address, serverURL string, serverPublicKey string,
) (submit.SubmissionResult, error) {
	signed, err := c.signer.BuildAddAndTrustServer(ctx, serverID, serverURL, serverPublicKey)
	if err != nil {
		return submit.SubmissionResult{}, err
	}
	return c.router.Submit(ctx, signed)
}

// ------------------------------------------------------------------------------------
// State resolution

/*
Permissions resolve one page of the caller's granted permissions

	@param ctx context.Context - execution context
	@param params resolver.QueryParams - page and mode selection
	@return the resolved page
*/
func (c *AccessClient) Permissions(
	ctx context.Context, params resolver.QueryParams,
) (models.Page[models.Permission], error) {
	user, err := c.wallet.Address()
	if err != nil {
		return models.Page[models.Permission]{}, err
	}
	return c.resolver.Permissions(ctx, user, params)
}

/*
TrustedServers resolve one page of the caller's trust set

	@param ctx context.Context - execution context
	@param params resolver.QueryParams - page and mode selection
	@return the resolved page
*/
func (c *AccessClient) TrustedServers(
	ctx context.Context, params resolver.QueryParams,
) (models.Page[models.TrustedServer], error) {
	user, err := c.wallet.Address()
	if err != nil {
		return models.Page[models.TrustedServer]{}, err
	}
	return c.resolver.TrustedServers(ctx, user, params)
}

/*
GetSchema read one schema reference from the registry

	@param ctx context.Context - execution context
	@param schemaID *big.Int - on-chain schema ID
	@return the schema reference
*/
func (c *AccessClient) GetSchema(
	ctx context.Context, schemaID *big.Int,
) (models.SchemaRef, error) {
	return c.registry.SchemaAt(ctx, schemaID)
}

/*
GetRefiner read one refiner reference from the registry

	@param ctx context.Context - execution context
	@param refinerID *big.Int - on-chain refiner ID
	@return the refiner reference
*/
func (c *AccessClient) GetRefiner(
	ctx context.Context, refinerID *big.Int,
) (models.RefinerRef, error) {
	return c.registry.RefinerAt(ctx, refinerID)
}

/*
FetchGrantDocument retrieve and parse the grant document of a permission

	@param ctx context.Context - execution context
	@param ref string - grant document reference
	@return the parsed grant document
*/
func (c *AccessClient) FetchGrantDocument(
	ctx context.Context, ref string,
) (models.GrantDocument, error) {
	return c.fetcher.FetchGrantDocument(ctx, ref)
}

// ------------------------------------------------------------------------------------
// Payload decryption

/*
DecryptWithWallet decrypt an envelope encrypted under the caller's derived
secret

	@param ctx context.Context - execution context
	@param envelope []byte - the encrypted envelope
	@return the plaintext content
*/
func (c *AccessClient) DecryptWithWallet(
	ctx context.Context, envelope []byte,
) ([]byte, error) {
	secret, err := c.engine.DeriveUserSecret(ctx, c.wallet)
	if err != nil {
		return nil, err
	}
	return c.engine.DecryptPayload(ctx, envelope, secret)
}
