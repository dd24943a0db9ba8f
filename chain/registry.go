package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/vaultmesh/accesskit/models"
)

// Backend chain RPC surface the registry layer needs
type Backend interface {
	bind.ContractBackend

	// TransactionReceipt fetch the receipt of a mined transaction
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// PermissionInfo permission entry as returned by the registry contract
type PermissionInfo struct {
	Id         *big.Int
	Grantor    common.Address
	Grantee    common.Address
	Nonce      *big.Int
	Grant      string
	Operation  string
	Parameters string
	FileIds    []*big.Int
	StartBlock *big.Int
	EndBlock   *big.Int
	Active     bool
}

// ServerInfo server entry as returned by the registry contract
type ServerInfo struct {
	Id        common.Address
	Url       string
	Owner     common.Address
	PublicKey string
	TrustedAt *big.Int
}

// SchemaInfo schema entry as returned by the registry contract
type SchemaInfo struct {
	Id            *big.Int
	Name          string
	DefinitionUrl string
}

// RefinerInfo refiner entry as returned by the registry contract
type RefinerInfo struct {
	Id             *big.Int
	DlpId          *big.Int
	SchemaId       *big.Int
	InstructionUrl string
	Owner          common.Address
}

// FileAddedEvent emitted by the registry for each registered file
type FileAddedEvent struct {
	FileId       *big.Int
	OwnerAddress common.Address
	Url          string
}

// PermissionGrantedEvent emitted by the registry for each recorded grant
type PermissionGrantedEvent struct {
	PermissionId *big.Int
	Grantor      common.Address
	Grant        string
}

// Registry data registry contract wrapper
type Registry struct {
	goutils.Component

	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
	backend  Backend
	mc       *Multicall
}

// RegistryParams registry wrapper init parameters
type RegistryParams struct {
	// Address deployed registry contract address
	Address common.Address
	// MulticallAddress deployed Multicall3 contract address
	MulticallAddress common.Address
	// Backend chain RPC backend
	Backend Backend
}

/*
NewRegistry define a new registry contract wrapper

	@param params RegistryParams - wrapper parameters
	@returns wrapper instance
*/
func NewRegistry(params RegistryParams) (*Registry, error) {
	logTags := log.Fields{"module": "chain", "component": "registry"}

	if params.Backend == nil {
		return nil, fmt.Errorf("registry wrapper requires a chain backend")
	}
	if params.Address == (common.Address{}) {
		return nil, fmt.Errorf("registry wrapper requires a contract address")
	}

	parsed, err := abi.JSON(strings.NewReader(RegistryABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI [%w]", err)
	}

	mc, err := NewMulticall(params.MulticallAddress, params.Backend)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare multicall batcher [%w]", err)
	}

	return &Registry{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		address:  params.Address,
		abi:      parsed,
		contract: bind.NewBoundContract(params.Address, parsed, params.Backend, params.Backend, params.Backend),
		backend:  params.Backend,
		mc:       mc,
	}, nil
}

// Address the registry contract address
func (r *Registry) Address() common.Address {
	return r.address
}

// ------------------------------------------------------------------------------------
// Single reads

/*
UserNonce read the current per-account authorization nonce

The nonce is read immediately before building a message and never cached, to
minimize races with concurrent submissions from the same account.

	@param ctx context.Context - execution context
	@param user common.Address - the account
	@return current nonce
*/
func (r *Registry) UserNonce(ctx context.Context, user common.Address) (*big.Int, error) {
	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "userNonce", user); err != nil {
		return nil, fmt.Errorf("failed to read nonce of %s [%w]", user.Hex(), err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

/*
PermissionCount read the number of permission entries of a user

	@param ctx context.Context - execution context
	@param user common.Address - the account
	@return entry count
*/
func (r *Registry) PermissionCount(ctx context.Context, user common.Address) (int, error) {
	var out []interface{}
	if err := r.contract.Call(
		&bind.CallOpts{Context: ctx}, &out, "userPermissionIdsLength", user,
	); err != nil {
		return 0, fmt.Errorf("failed to read permission count of %s [%w]", user.Hex(), err)
	}
	count := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return int(count.Int64()), nil
}

/*
ServerCount read the size of a user's trust set

	@param ctx context.Context - execution context
	@param user common.Address - the account
	@return entry count
*/
func (r *Registry) ServerCount(ctx context.Context, user common.Address) (int, error) {
	var out []interface{}
	if err := r.contract.Call(
		&bind.CallOpts{Context: ctx}, &out, "userServerIdsLength", user,
	); err != nil {
		return 0, fmt.Errorf("failed to read trust set size of %s [%w]", user.Hex(), err)
	}
	count := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return int(count.Int64()), nil
}

/*
SchemaAt read one schema reference

	@param ctx context.Context - execution context
	@param schemaID *big.Int - on-chain schema ID
	@return the schema reference
*/
func (r *Registry) SchemaAt(ctx context.Context, schemaID *big.Int) (models.SchemaRef, error) {
	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "schemas", schemaID); err != nil {
		return models.SchemaRef{}, fmt.Errorf("failed to read schema %s [%w]", schemaID, err)
	}
	info := *abi.ConvertType(out[0], new(SchemaInfo)).(*SchemaInfo)
	return models.SchemaRef{ID: info.Id, Name: info.Name, DefinitionURL: info.DefinitionUrl}, nil
}

/*
RefinerAt read one refiner reference

	@param ctx context.Context - execution context
	@param refinerID *big.Int - on-chain refiner ID
	@return the refiner reference
*/
func (r *Registry) RefinerAt(ctx context.Context, refinerID *big.Int) (models.RefinerRef, error) {
	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "refiners", refinerID); err != nil {
		return models.RefinerRef{}, fmt.Errorf("failed to read refiner %s [%w]", refinerID, err)
	}
	info := *abi.ConvertType(out[0], new(RefinerInfo)).(*RefinerInfo)
	return models.RefinerRef{
		ID:             info.Id,
		DLPID:          info.DlpId,
		SchemaID:       info.SchemaId,
		InstructionURL: info.InstructionUrl,
		Owner:          info.Owner,
	}, nil
}

// ------------------------------------------------------------------------------------
// Batched paged reads

/*
PermissionsPage read one page of a user's permission entries

Index reads are all-or-nothing; per-entry detail reads tolerate individual
failure, degrading the affected entry to a placeholder instead of aborting
the page.

	@param ctx context.Context - execution context
	@param user common.Address - the account
	@param offset int - page offset
	@param limit int - page size
	@return tagged page entries, in index order
*/
func (r *Registry) PermissionsPage(
	ctx context.Context, user common.Address, offset int, limit int,
) ([]models.BatchResult[models.Permission], error) {
	ids, err := r.permissionIDsPage(ctx, user, offset, limit)
	if err != nil {
		return nil, err
	}

	detailCalls := make([]Call, 0, len(ids))
	for _, id := range ids {
		callData, err := r.abi.Pack("permissions", id)
		if err != nil {
			return nil, fmt.Errorf("failed to encode permission detail read [%w]", err)
		}
		detailCalls = append(detailCalls, Call{Target: r.address, CallData: callData})
	}

	detailResults, err := r.mc.TryAggregate(ctx, false, detailCalls)
	if err != nil {
		return nil, fmt.Errorf("failed to read permission details of %s [%w]", user.Hex(), err)
	}

	entries := make([]models.BatchResult[models.Permission], 0, len(detailResults))
	for idx, result := range detailResults {
		entries = append(entries, r.decodePermissionEntry(ids[idx], result))
	}
	return entries, nil
}

// permissionIDsPage batched read of one page of permission IDs
func (r *Registry) permissionIDsPage(
	ctx context.Context, user common.Address, offset int, limit int,
) ([]*big.Int, error) {
	if limit <= 0 {
		return []*big.Int{}, nil
	}

	idCalls := make([]Call, 0, limit)
	for i := 0; i < limit; i++ {
		callData, err := r.abi.Pack("userPermissionIdsAt", user, big.NewInt(int64(offset+i)))
		if err != nil {
			return nil, fmt.Errorf("failed to encode permission index read [%w]", err)
		}
		idCalls = append(idCalls, Call{Target: r.address, CallData: callData})
	}

	idResults, err := r.mc.TryAggregate(ctx, true, idCalls)
	if err != nil {
		return nil, fmt.Errorf("failed to read permission IDs of %s [%w]", user.Hex(), err)
	}

	ids := make([]*big.Int, 0, len(idResults))
	for _, result := range idResults {
		vals, err := r.abi.Unpack("userPermissionIdsAt", result.ReturnData)
		if err != nil {
			return nil, fmt.Errorf("failed to decode permission index read [%w]", err)
		}
		ids = append(ids, *abi.ConvertType(vals[0], new(*big.Int)).(**big.Int))
	}
	return ids, nil
}

// decodePermissionEntry decode one tagged permission detail result
func (r *Registry) decodePermissionEntry(
	id *big.Int, result CallResult,
) models.BatchResult[models.Permission] {
	placeholder := models.Permission{ID: id}

	if !result.Ok || len(result.ReturnData) == 0 {
		return models.BatchResult[models.Permission]{
			Ok: false, Value: placeholder, Cause: "entry read reverted",
		}
	}

	vals, err := r.abi.Unpack("permissions", result.ReturnData)
	if err != nil {
		return models.BatchResult[models.Permission]{
			Ok:    false,
			Value: placeholder,
			Cause: fmt.Sprintf("entry decode failed: %s", err.Error()),
		}
	}

	info := *abi.ConvertType(vals[0], new(PermissionInfo)).(*PermissionInfo)
	return models.BatchResult[models.Permission]{
		Ok: true,
		Value: models.Permission{
			ID:         info.Id,
			Grantor:    info.Grantor,
			Grantee:    info.Grantee,
			Grant:      info.Grant,
			Nonce:      info.Nonce,
			Operation:  info.Operation,
			Parameters: info.Parameters,
			FileIDs:    info.FileIds,
			StartBlock: info.StartBlock,
			EndBlock:   info.EndBlock,
			Active:     info.Active,
		},
	}
}

/*
ServersPage read one page of a user's trust set

	@param ctx context.Context - execution context
	@param user common.Address - the account
	@param offset int - page offset
	@param limit int - page size
	@return tagged page entries, in index order
*/
func (r *Registry) ServersPage(
	ctx context.Context, user common.Address, offset int, limit int,
) ([]models.BatchResult[models.TrustedServer], error) {
	if limit <= 0 {
		return []models.BatchResult[models.TrustedServer]{}, nil
	}

	idCalls := make([]Call, 0, limit)
	for i := 0; i < limit; i++ {
		callData, err := r.abi.Pack("userServerIdsAt", user, big.NewInt(int64(offset+i)))
		if err != nil {
			return nil, fmt.Errorf("failed to encode trust set index read [%w]", err)
		}
		idCalls = append(idCalls, Call{Target: r.address, CallData: callData})
	}

	idResults, err := r.mc.TryAggregate(ctx, true, idCalls)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust set of %s [%w]", user.Hex(), err)
	}

	ids := make([]common.Address, 0, len(idResults))
	detailCalls := make([]Call, 0, len(idResults))
	for _, result := range idResults {
		vals, err := r.abi.Unpack("userServerIdsAt", result.ReturnData)
		if err != nil {
			return nil, fmt.Errorf("failed to decode trust set index read [%w]", err)
		}
		serverID := *abi.ConvertType(vals[0], new(common.Address)).(*common.Address)
		ids = append(ids, serverID)

		callData, err := r.abi.Pack("servers", serverID)
		if err != nil {
			return nil, fmt.Errorf("failed to encode server detail read [%w]", err)
		}
		detailCalls = append(detailCalls, Call{Target: r.address, CallData: callData})
	}

	detailResults, err := r.mc.TryAggregate(ctx, false, detailCalls)
	if err != nil {
		return nil, fmt.Errorf("failed to read server details of %s [%w]", user.Hex(), err)
	}

	entries := make([]models.BatchResult[models.TrustedServer], 0, len(detailResults))
	for idx, result := range detailResults {
		entries = append(entries, r.decodeServerEntry(ids[idx], result))
	}
	return entries, nil
}

// decodeServerEntry decode one tagged server detail result
func (r *Registry) decodeServerEntry(
	id common.Address, result CallResult,
) models.BatchResult[models.TrustedServer] {
	placeholder := models.TrustedServer{ServerID: id}

	if !result.Ok || len(result.ReturnData) == 0 {
		return models.BatchResult[models.TrustedServer]{
			Ok: false, Value: placeholder, Cause: "entry read reverted",
		}
	}

	vals, err := r.abi.Unpack("servers", result.ReturnData)
	if err != nil {
		return models.BatchResult[models.TrustedServer]{
			Ok:    false,
			Value: placeholder,
			Cause: fmt.Sprintf("entry decode failed: %s", err.Error()),
		}
	}

	info := *abi.ConvertType(vals[0], new(ServerInfo)).(*ServerInfo)
	return models.BatchResult[models.TrustedServer]{
		Ok: true,
		Value: models.TrustedServer{
			ServerID:  info.Id,
			ServerURL: info.Url,
			Owner:     info.Owner,
			PublicKey: info.PublicKey,
			TrustedAt: info.TrustedAt.Int64(),
		},
	}
}

// ------------------------------------------------------------------------------------
// Writes

/*
SubmitGrant submit a permission grant as a direct write

	@param opts *bind.TransactOpts - transaction auth options
	@param msg models.PermissionGrantMessage - the grant content
	@return the submitted transaction
*/
func (r *Registry) SubmitGrant(
	opts *bind.TransactOpts, msg models.PermissionGrantMessage,
) (*types.Transaction, error) {
	fileIDs := msg.FileIDs
	if fileIDs == nil {
		fileIDs = []*big.Int{}
	}
	tx, err := r.contract.Transact(opts, "addPermission", msg.Grantee, msg.Grant, fileIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to submit permission grant [%w]", err)
	}
	return tx, nil
}

/*
SubmitRevoke submit a permission revocation as a direct write

	@param opts *bind.TransactOpts - transaction auth options
	@param msg models.PermissionRevokeMessage - the revocation content
	@return the submitted transaction
*/
func (r *Registry) SubmitRevoke(
	opts *bind.TransactOpts, msg models.PermissionRevokeMessage,
) (*types.Transaction, error) {
	tx, err := r.contract.Transact(opts, "revokePermission", msg.PermissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to submit permission revocation [%w]", err)
	}
	return tx, nil
}

/*
SubmitTrustServer submit a server trust entry as a direct write

	@param opts *bind.TransactOpts - transaction auth options
	@param msg models.TrustServerMessage - the trust content
	@return the submitted transaction
*/
func (r *Registry) SubmitTrustServer(
	opts *bind.TransactOpts, msg models.TrustServerMessage,
) (*types.Transaction, error) {
	tx, err := r.contract.Transact(opts, "trustServer", msg.ServerID, msg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to submit server trust [%w]", err)
	}
	return tx, nil
}

/*
SubmitUntrustServer submit a server trust removal as a direct write

	@param opts *bind.TransactOpts - transaction auth options
	@param msg models.UntrustServerMessage - the untrust content
	@return the submitted transaction
*/
func (r *Registry) SubmitUntrustServer(
	opts *bind.TransactOpts, msg models.UntrustServerMessage,
) (*types.Transaction, error) {
	tx, err := r.contract.Transact(opts, "untrustServer", msg.ServerID)
	if err != nil {
		return nil, fmt.Errorf("failed to submit server untrust [%w]", err)
	}
	return tx, nil
}

/*
SubmitAddAndTrustServer submit a combined server registration and trust entry

	@param opts *bind.TransactOpts - transaction auth options
	@param msg models.AddAndTrustServerMessage - the registration content
	@return the submitted transaction
*/
func (r *Registry) SubmitAddAndTrustServer(
	opts *bind.TransactOpts, msg models.AddAndTrustServerMessage,
) (*types.Transaction, error) {
	tx, err := r.contract.Transact(
		opts, "addAndTrustServer", msg.ServerID, msg.ServerURL, msg.ServerPublicKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to submit server registration [%w]", err)
	}
	return tx, nil
}

/*
SubmitServerFilesAndPermission submit a batched file registration with
per-file permissions as a direct write

	@param opts *bind.TransactOpts - transaction auth options
	@param msg models.ServerFilesAndPermissionMessage - the registration content
	@return the submitted transaction
*/
func (r *Registry) SubmitServerFilesAndPermission(
	opts *bind.TransactOpts, msg models.ServerFilesAndPermissionMessage,
) (*types.Transaction, error) {
	tx, err := r.contract.Transact(
		opts,
		"addServerWithFilesAndPermissions",
		msg.FileURLs,
		msg.SchemaIDs,
		msg.FilePermissions,
		msg.ServerAddress,
		msg.ServerURL,
		msg.ServerPublicKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to submit file registration batch [%w]", err)
	}
	return tx, nil
}

/*
SubmitFile submit a single file registration as a direct write

	@param opts *bind.TransactOpts - transaction auth options
	@param url string - storage URL of the file
	@param owner common.Address - file owner account
	@return the submitted transaction
*/
func (r *Registry) SubmitFile(
	opts *bind.TransactOpts, url string, owner common.Address,
) (*types.Transaction, error) {
	tx, err := r.contract.Transact(opts, "addFile", url, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to submit file registration [%w]", err)
	}
	return tx, nil
}

/*
SubmitFileWithPermissions submit a single file registration with its
recipient permission list as a direct write

	@param opts *bind.TransactOpts - transaction auth options
	@param url string - storage URL of the file
	@param owner common.Address - file owner account
	@param permissions []models.FilePermissionGrantEntry - per-recipient grants
	@return the submitted transaction
*/
func (r *Registry) SubmitFileWithPermissions(
	opts *bind.TransactOpts,
	url string,
	owner common.Address,
	permissions []models.FilePermissionGrantEntry,
) (*types.Transaction, error) {
	if permissions == nil {
		permissions = []models.FilePermissionGrantEntry{}
	}
	tx, err := r.contract.Transact(opts, "addFileWithPermissions", url, owner, permissions)
	if err != nil {
		return nil, fmt.Errorf("failed to submit file registration with permissions [%w]", err)
	}
	return tx, nil
}

// ------------------------------------------------------------------------------------
// Confirmation and event decoding

/*
Confirm await the receipt of a submitted transaction

	@param ctx context.Context - execution context
	@param tx *types.Transaction - the submitted transaction
	@return the mined receipt
*/
func (r *Registry) Confirm(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, r.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to await receipt of %s [%w]", tx.Hash().Hex(), err)
	}
	return receipt, nil
}

/*
FileAddedEvents decode all FileAdded events of a receipt

Unrelated log entries are skipped; only entries matching the expected event
signature are decoded.

	@param receipt *types.Receipt - the mined receipt
	@return the decoded events, in log order
*/
func (r *Registry) FileAddedEvents(receipt *types.Receipt) []FileAddedEvent {
	eventID := r.abi.Events["FileAdded"].ID

	var events []FileAddedEvent
	for _, entry := range receipt.Logs {
		if entry == nil || len(entry.Topics) == 0 || entry.Topics[0] != eventID {
			continue
		}
		var event FileAddedEvent
		if err := r.contract.UnpackLog(&event, "FileAdded", *entry); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events
}

/*
PermissionGrantedEvents decode all PermissionGranted events of a receipt

	@param receipt *types.Receipt - the mined receipt
	@return the decoded events, in log order
*/
func (r *Registry) PermissionGrantedEvents(receipt *types.Receipt) []PermissionGrantedEvent {
	eventID := r.abi.Events["PermissionGranted"].ID

	var events []PermissionGrantedEvent
	for _, entry := range receipt.Logs {
		if entry == nil || len(entry.Topics) == 0 || entry.Topics[0] != eventID {
			continue
		}
		var event PermissionGrantedEvent
		if err := r.contract.UnpackLog(&event, "PermissionGranted", *entry); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events
}
