package authz

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vaultmesh/accesskit/models"
)

// Typed data domain constants of the data registry
const (
	// TypedDomainName EIP-712 domain name
	TypedDomainName = "DataRegistry"
	// TypedDomainVersion EIP-712 domain version
	TypedDomainVersion = "1"
)

var (
	domainTypeHash = crypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)
	grantTypeHash = crypto.Keccak256(
		[]byte("PermissionGrant(address grantee,string grant,uint256[] fileIds,uint256 nonce)"),
	)
	revokeTypeHash = crypto.Keccak256(
		[]byte("PermissionRevoke(uint256 permissionId,uint256 nonce)"),
	)
	trustServerTypeHash = crypto.Keccak256(
		[]byte("TrustServer(address serverId,string serverUrl,uint256 nonce)"),
	)
	untrustServerTypeHash = crypto.Keccak256(
		[]byte("UntrustServer(address serverId,uint256 nonce)"),
	)
	addAndTrustServerTypeHash = crypto.Keccak256(
		[]byte("AddAndTrustServer(address serverId,string serverUrl,string serverPublicKey,uint256 nonce)"),
	)
	filePermissionTypeHash = crypto.Keccak256(
		[]byte("FilePermission(address account,string encryptedKey)"),
	)
	serverFilesTypeHash = crypto.Keccak256(
		[]byte("ServerFilesAndPermission(string[] fileUrls,uint256[] schemaIds,FilePermission[][] filePermissions,address serverAddress,string serverUrl,string serverPublicKey,uint256 nonce)FilePermission(address account,string encryptedKey)"),
	)
)

// Domain EIP-712 signing domain of a registry deployment
type Domain struct {
	// Name domain name
	Name string `json:"name"`
	// Version domain version
	Version string `json:"version"`
	// ChainID chain the registry is deployed on
	ChainID *big.Int `json:"chainId"`
	// VerifyingContract registry contract address
	VerifyingContract common.Address `json:"verifyingContract"`
}

// NewRegistryDomain the signing domain of a registry deployment
func NewRegistryDomain(chainID *big.Int, registry common.Address) Domain {
	return Domain{
		Name:              TypedDomainName,
		Version:           TypedDomainVersion,
		ChainID:           chainID,
		VerifyingContract: registry,
	}
}

// separator the EIP-712 domain separator hash
func (d Domain) separator() []byte {
	return crypto.Keccak256(
		domainTypeHash,
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		encodeUint256(d.ChainID),
		encodeAddress(d.VerifyingContract),
	)
}

// typedDigest the final signable digest of a struct hash under this domain
func (d Domain) typedDigest(structHash []byte) []byte {
	return crypto.Keccak256([]byte("\x19\x01"), d.separator(), structHash)
}

// ------------------------------------------------------------------------------------
// Field encoding

func encodeUint256(value *big.Int) []byte {
	if value == nil {
		value = big.NewInt(0)
	}
	return math.PaddedBigBytes(value, 32)
}

func encodeAddress(value common.Address) []byte {
	return common.LeftPadBytes(value.Bytes(), 32)
}

func hashString(value string) []byte {
	return crypto.Keccak256([]byte(value))
}

func hashStringArray(values []string) []byte {
	var packed []byte
	for _, value := range values {
		packed = append(packed, hashString(value)...)
	}
	return crypto.Keccak256(packed)
}

func hashUint256Array(values []*big.Int) []byte {
	var packed []byte
	for _, value := range values {
		packed = append(packed, encodeUint256(value)...)
	}
	return crypto.Keccak256(packed)
}

// hashFilePermission struct hash of one recipient grant entry
func hashFilePermission(entry models.FilePermissionGrantEntry) []byte {
	return crypto.Keccak256(
		filePermissionTypeHash,
		encodeAddress(entry.Account),
		hashString(entry.EncryptedKey),
	)
}

// hashFilePermissionMatrix hash of the per-file recipient grant lists
func hashFilePermissionMatrix(matrix [][]models.FilePermissionGrantEntry) []byte {
	var outer []byte
	for _, entries := range matrix {
		var inner []byte
		for _, entry := range entries {
			inner = append(inner, hashFilePermission(entry)...)
		}
		outer = append(outer, crypto.Keccak256(inner)...)
	}
	return crypto.Keccak256(outer)
}

// ------------------------------------------------------------------------------------
// Struct hashing per message kind

func hashGrantMessage(msg models.PermissionGrantMessage) []byte {
	return crypto.Keccak256(
		grantTypeHash,
		encodeAddress(msg.Grantee),
		hashString(msg.Grant),
		hashUint256Array(msg.FileIDs),
		encodeUint256(msg.Nonce),
	)
}

func hashRevokeMessage(msg models.PermissionRevokeMessage) []byte {
	return crypto.Keccak256(
		revokeTypeHash,
		encodeUint256(msg.PermissionID),
		encodeUint256(msg.Nonce),
	)
}

func hashTrustServerMessage(msg models.TrustServerMessage) []byte {
	return crypto.Keccak256(
		trustServerTypeHash,
		encodeAddress(msg.ServerID),
		hashString(msg.ServerURL),
		encodeUint256(msg.Nonce),
	)
}

func hashUntrustServerMessage(msg models.UntrustServerMessage) []byte {
	return crypto.Keccak256(
		untrustServerTypeHash,
		encodeAddress(msg.ServerID),
		encodeUint256(msg.Nonce),
	)
}

func hashAddAndTrustServerMessage(msg models.AddAndTrustServerMessage) []byte {
	return crypto.Keccak256(
		addAndTrustServerTypeHash,
		encodeAddress(msg.ServerID),
		hashString(msg.ServerURL),
		hashString(msg.ServerPublicKey),
		encodeUint256(msg.Nonce),
	)
}

func hashServerFilesMessage(msg models.ServerFilesAndPermissionMessage) []byte {
	return crypto.Keccak256(
		serverFilesTypeHash,
		hashStringArray(msg.FileURLs),
		hashUint256Array(msg.SchemaIDs),
		hashFilePermissionMatrix(msg.FilePermissions),
		encodeAddress(msg.ServerAddress),
		hashString(msg.ServerURL),
		hashString(msg.ServerPublicKey),
		encodeUint256(msg.Nonce),
	)
}
