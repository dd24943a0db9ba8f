package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GrantDocument off-chain JSON document describing what a permission authorizes
//
// The document is content-addressed by an external storage collaborator; the
// signed on-chain message only carries its URI, never the document itself.
type GrantDocument struct {
	// ID document ID
	ID string `json:"id" validate:"required,uuid_rfc4122"`
	// Grantee the account being granted access
	Grantee string `json:"grantee" validate:"required,eth_addr_hex"`
	// Operation what the grant authorizes
	Operation PermissionOperationENUMType `json:"operation" validate:"required,permission_operation"`
	// Parameters operation specific parameters
	Parameters json.RawMessage `json:"parameters,omitempty"`
	// Files on-chain IDs of the files covered by the grant
	Files []uint64 `json:"files"`
	// Expires optional expiry timestamp
	Expires *time.Time `json:"expires,omitempty"`
}

/*
NewGrantDocument define a new grant document

	@param grantee string - account address being granted access
	@param operation PermissionOperationENUMType - what the grant authorizes
	@param parameters json.RawMessage - operation specific parameters
	@param files []uint64 - on-chain file IDs covered by the grant
	@returns the document
*/
func NewGrantDocument(
	grantee string,
	operation PermissionOperationENUMType,
	parameters json.RawMessage,
	files []uint64,
) GrantDocument {
	return GrantDocument{
		ID:         uuid.NewString(),
		Grantee:    grantee,
		Operation:  operation,
		Parameters: parameters,
		Files:      files,
	}
}

// Serialize marshal the grant document for content-addressed storage
func (d GrantDocument) Serialize() ([]byte, error) {
	content, err := json.Marshal(&d)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize grant document [%w]", err)
	}
	return content, nil
}

// ParseGrantDocument unmarshal a grant document fetched from storage
func ParseGrantDocument(content []byte) (GrantDocument, error) {
	var parsed GrantDocument
	if err := json.Unmarshal(content, &parsed); err != nil {
		return GrantDocument{}, fmt.Errorf("failed to parse grant document [%w]", err)
	}
	return parsed, nil
}
