package accesskit

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/vaultmesh/accesskit/models"
	"github.com/vaultmesh/accesskit/submit"
	"golang.org/x/sync/errgroup"
)

// Recipient one party receiving decryption access to an uploaded file
type Recipient struct {
	// Account recipient account address
	Account common.Address
	// PublicKey recipient secp256k1 public key, hex
	PublicKey string `validate:"required"`
}

// UploadEncryptedParams encrypted upload parameters
type UploadEncryptedParams struct {
	// Payload the plaintext content
	Payload []byte `validate:"required"`
	// Name suggested storage object name; generated when empty
	Name string
	// Recipients parties receiving decryption access
	Recipients []Recipient `validate:"required,min=1,dive"`
	// SchemaID schema the content conforms to, nil for none
	SchemaID *big.Int
	// ServerAddress account address of the hosting server
	ServerAddress common.Address
	// ServerURL endpoint URL of the hosting server
	ServerURL string `validate:"required"`
	// ServerPublicKey public key of the hosting server
	ServerPublicKey string `validate:"required"`
}

// UploadEncryptedResult outcome of an encrypted upload
type UploadEncryptedResult struct {
	// FileURL storage URL of the encrypted content
	FileURL string `json:"file_url"`
	// FileKey the generated file key; the caller may retain it for local reads
	FileKey string `json:"file_key"`
	// Submission the on-chain registration outcome
	Submission submit.SubmissionResult `json:"submission"`
}

/*
UploadEncrypted encrypt a payload, place it in storage, and register it on
chain with per-recipient decryption access

A fresh file key encrypts the payload. The key is then wrapped once per
recipient under that recipient's public key; if any single wrap fails the
whole upload is abandoned, so a registered file never reaches chain with a
partial recipient list.

	@param ctx context.Context - execution context
	@param params UploadEncryptedParams - upload parameters
	@return the upload outcome
*/
func (c *AccessClient) UploadEncrypted(
	ctx context.Context, params UploadEncryptedParams,
) (UploadEncryptedResult, error) {
	validate := validator.New()
	if err := validate.Struct(&params); err != nil {
		return UploadEncryptedResult{}, err
	}
	if c.storage == nil {
		return UploadEncryptedResult{}, fmt.Errorf(
			"encrypted upload requires a storage provider",
		)
	}

	// Fresh key per file; the wallet derived secret never leaves the client
	fileKey, err := c.engine.NewFileKey(ctx)
	if err != nil {
		return UploadEncryptedResult{}, err
	}

	envelope, err := c.engine.EncryptPayload(ctx, params.Payload, fileKey)
	if err != nil {
		return UploadEncryptedResult{}, err
	}

	name := params.Name
	if name == "" {
		name = fmt.Sprintf("file-%s", ulid.Make().String())
	}
	fileURL, err := c.storage.Upload(ctx, envelope, name)
	if err != nil {
		return UploadEncryptedResult{}, fmt.Errorf(
			"failed to store encrypted content [%w]", err,
		)
	}

	// Wrap the file key for every recipient, all or nothing
	entries := make([]models.FilePermissionGrantEntry, len(params.Recipients))
	wrapGroup, wrapCtx := errgroup.WithContext(ctx)
	for idx, recipient := range params.Recipients {
		wrapGroup.Go(func() error {
			wrapped, err := c.engine.WrapKeyForRecipient(
				wrapCtx, fileKey, recipient.PublicKey,
			)
			if err != nil {
				return fmt.Errorf(
					"failed to wrap file key for %s [%w]", recipient.Account.Hex(), err,
				)
			}
			entries[idx] = models.FilePermissionGrantEntry{
				Account: recipient.Account, EncryptedKey: wrapped,
			}
			return nil
		})
	}
	if err := wrapGroup.Wait(); err != nil {
		return UploadEncryptedResult{}, err
	}

	schemaID := params.SchemaID
	if schemaID == nil {
		schemaID = big.NewInt(0)
	}
	signed, err := c.signer.BuildServerFilesAndPermission(
		ctx, models.ServerFilesAndPermissionMessage{
			FileURLs:        []string{fileURL},
			SchemaIDs:       []*big.Int{schemaID},
			FilePermissions: [][]models.FilePermissionGrantEntry{entries},
			ServerAddress:   params.ServerAddress,
			ServerURL:       params.ServerURL,
			ServerPublicKey: params.ServerPublicKey,
		},
	)
	if err != nil {
		return UploadEncryptedResult{}, err
	}

	submission, err := c.router.Submit(ctx, signed)
	if err != nil {
		return UploadEncryptedResult{}, err
	}

	return UploadEncryptedResult{
		FileURL:    fileURL,
		FileKey:    fileKey,
		Submission: submission,
	}, nil
}
