// Package models - system data models
package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// QueryModeENUMType state resolution query mode enum type
type QueryModeENUMType string

const (
	// QueryModeAuto prefer the indexed query service, fall back to direct contract reads
	QueryModeAuto QueryModeENUMType = "auto"
	// QueryModeIndexed request the indexed query service path
	QueryModeIndexed QueryModeENUMType = "indexed"
	// QueryModeRPC request the direct contract read path
	QueryModeRPC QueryModeENUMType = "rpc"
)

// PermissionOperationENUMType permission operation enum type
type PermissionOperationENUMType string

const (
	// PermissionOperationRead the grantee may read the referenced files
	PermissionOperationRead PermissionOperationENUMType = "read"
	// PermissionOperationCompute the grantee may run compute jobs over the referenced files
	PermissionOperationCompute PermissionOperationENUMType = "compute"
)

// Permission one on-chain access permission entry
//
// Identity is the on-chain ID. The nonce is per-grantor and monotonically
// increasing; the chain uses it to reject replayed grant signatures.
type Permission struct {
	// ID on-chain permission ID
	ID *big.Int `json:"id" validate:"required"`
	// Grantor the account which granted the permission
	Grantor common.Address `json:"grantor"`
	// Grantee the account the permission was granted to
	Grantee common.Address `json:"grantee"`
	// Grant URI of the off-chain grant document
	Grant string `json:"grant" validate:"required"`
	// Nonce grantor nonce the grant was signed with
	Nonce *big.Int `json:"nonce"`
	// Operation what the permission authorizes
	Operation string `json:"operation"`
	// Parameters operation specific parameter blob
	Parameters string `json:"parameters"`
	// FileIDs on-chain IDs of the files covered by this permission
	FileIDs []*big.Int `json:"file_ids"`
	// StartBlock first block the permission is valid at
	StartBlock *big.Int `json:"start_block"`
	// EndBlock last block the permission is valid at, zero for open ended
	EndBlock *big.Int `json:"end_block"`
	// Active whether the permission is still active
	Active bool `json:"active"`

	// AddedAtBlock block the grant transaction landed in (indexed path only)
	AddedAtBlock uint64 `json:"added_at_block,omitempty"`
	// AddedAtTimestamp UNIX timestamp of the grant transaction (indexed path only)
	AddedAtTimestamp int64 `json:"added_at_timestamp,omitempty"`
	// TransactionHash hash of the grant transaction (indexed path only)
	TransactionHash string `json:"transaction_hash,omitempty"`
}

// TrustedServer one entry of a user's trust set
//
// The trust set is keyed by (user, server ID). Trusting is idempotent at this
// layer but produces a new on-chain event each time.
type TrustedServer struct {
	// ServerID server account address
	ServerID common.Address `json:"server_id"`
	// ServerURL server endpoint URL
	ServerURL string `json:"server_url"`
	// Owner account which registered the server
	Owner common.Address `json:"owner"`
	// PublicKey server public key used for key delegation
	PublicKey string `json:"public_key"`
	// TrustedAt UNIX timestamp the trust edge was recorded at
	TrustedAt int64 `json:"trusted_at"`

	// AddedAtBlock block the trust transaction landed in (indexed path only)
	AddedAtBlock uint64 `json:"added_at_block,omitempty"`
	// TransactionHash hash of the trust transaction (indexed path only)
	TransactionHash string `json:"transaction_hash,omitempty"`
}

// FilePermissionGrantEntry per-recipient decryption grant attached to a file registration
//
// The file key is never persisted in plaintext; only this asymmetric-wrapped
// form travels with the file.
type FilePermissionGrantEntry struct {
	// Account recipient account address
	Account common.Address `json:"account"`
	// EncryptedKey the file key wrapped under the recipient public key
	EncryptedKey string `json:"encryptedKey" validate:"required"`
}

// SchemaRef reference to a structural validation schema
type SchemaRef struct {
	// ID on-chain schema ID
	ID *big.Int `json:"id"`
	// Name schema display name
	Name string `json:"name"`
	// DefinitionURL URL of the schema definition document
	DefinitionURL string `json:"definition_url"`
}

// RefinerRef reference to a data refiner registration
type RefinerRef struct {
	// ID on-chain refiner ID
	ID *big.Int `json:"id"`
	// DLPID data liquidity pool the refiner belongs to
	DLPID *big.Int `json:"dlp_id"`
	// SchemaID schema the refiner outputs conform to
	SchemaID *big.Int `json:"schema_id"`
	// InstructionURL URL of the refinement instruction artifact
	InstructionURL string `json:"instruction_url"`
	// Owner account which registered the refiner
	Owner common.Address `json:"owner"`
}

// Page one page of a state resolution query result
//
// UsedMode always reflects the path which actually produced the page,
// regardless of the mode the caller requested.
type Page[T any] struct {
	// Items the page entries, in per-path enumeration order
	Items []T `json:"items"`
	// Total total number of entries across all pages
	Total int `json:"total"`
	// Offset requested page offset
	Offset int `json:"offset"`
	// Limit requested page limit
	Limit int `json:"limit"`
	// HasMore whether entries exist past this page
	HasMore bool `json:"has_more"`
	// UsedMode the read path which produced this page
	UsedMode QueryModeENUMType `json:"used_mode"`
	// Warnings non-fatal degradations encountered while resolving
	Warnings []string `json:"warnings"`
}

// BatchResult tagged per-entry result of a batched read
//
// A failed entry carries the failure cause instead of aborting the batch.
type BatchResult[T any] struct {
	// Ok whether the entry read succeeded
	Ok bool `json:"ok"`
	// Value the entry value, a placeholder when Ok is false
	Value T `json:"value"`
	// Cause failure description when Ok is false
	Cause string `json:"cause,omitempty"`
}
