package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AuthorizationKindENUMType authorization message kind enum type
type AuthorizationKindENUMType string

const (
	// AuthorizationKindGrant grant a permission
	AuthorizationKindGrant AuthorizationKindENUMType = "grant-permission"
	// AuthorizationKindRevoke revoke a permission by its on-chain ID
	AuthorizationKindRevoke AuthorizationKindENUMType = "revoke-permission"
	// AuthorizationKindTrustServer add a server to the signer's trust set
	AuthorizationKindTrustServer AuthorizationKindENUMType = "trust-server"
	// AuthorizationKindUntrustServer remove a server from the signer's trust set
	AuthorizationKindUntrustServer AuthorizationKindENUMType = "untrust-server"
	// AuthorizationKindAddAndTrustServer register a server and trust it in one message
	AuthorizationKindAddAndTrustServer AuthorizationKindENUMType = "add-and-trust-server"
	// AuthorizationKindServerFilesAndPermission batched file registration with per-file permissions
	AuthorizationKindServerFilesAndPermission AuthorizationKindENUMType = "server-files-and-permission"
)

// PermissionGrantMessage typed message granting a permission
type PermissionGrantMessage struct {
	// Grantee the account being granted access
	Grantee common.Address `json:"grantee"`
	// Grant URI of the off-chain grant document
	Grant string `json:"grant"`
	// FileIDs on-chain IDs of the files covered by the grant
	FileIDs []*big.Int `json:"fileIds"`
	// Nonce current grantor nonce at signing time
	Nonce *big.Int `json:"nonce"`
}

// PermissionRevokeMessage typed message revoking a permission
//
// Revocation targets the on-chain permission ID. The signer nonce still guards
// against replay of the revoke itself.
type PermissionRevokeMessage struct {
	// PermissionID on-chain ID of the permission being revoked
	PermissionID *big.Int `json:"permissionId"`
	// Nonce current signer nonce at signing time
	Nonce *big.Int `json:"nonce"`
}

// TrustServerMessage typed message adding a server to the signer's trust set
type TrustServerMessage struct {
	// ServerID server account address
	ServerID common.Address `json:"serverId"`
	// ServerURL server endpoint URL
	ServerURL string `json:"serverUrl"`
	// Nonce current signer nonce at signing time
	Nonce *big.Int `json:"nonce"`
}

// UntrustServerMessage typed message removing a server from the signer's trust set
type UntrustServerMessage struct {
	// ServerID server account address
	ServerID common.Address `json:"serverId"`
	// Nonce current signer nonce at signing time
	Nonce *big.Int `json:"nonce"`
}

// AddAndTrustServerMessage typed message registering a server and trusting it
type AddAndTrustServerMessage struct {
	// ServerID server account address
	ServerID common.Address `json:"serverId"`
	// ServerURL server endpoint URL
	ServerURL string `json:"serverUrl"`
	// ServerPublicKey server public key used for key delegation
	ServerPublicKey string `json:"serverPublicKey"`
	// Nonce current signer nonce at signing time
	Nonce *big.Int `json:"nonce"`
}

// ServerFilesAndPermissionMessage typed message registering a batch of files
// with per-file schema references and per-file recipient permission lists
//
// SchemaIDs and FilePermissions are positional and must match FileURLs entry
// for entry.
type ServerFilesAndPermissionMessage struct {
	// FileURLs storage URLs of the files being registered
	FileURLs []string `json:"fileUrls"`
	// SchemaIDs per-file schema reference, zero for none
	SchemaIDs []*big.Int `json:"schemaIds"`
	// FilePermissions per-file recipient permission list
	FilePermissions [][]FilePermissionGrantEntry `json:"filePermissions"`
	// ServerAddress account address of the registering server
	ServerAddress common.Address `json:"serverAddress"`
	// ServerURL endpoint URL of the registering server
	ServerURL string `json:"serverUrl"`
	// ServerPublicKey public key of the registering server
	ServerPublicKey string `json:"serverPublicKey"`
	// Nonce current signer nonce at signing time
	Nonce *big.Int `json:"nonce"`
}
