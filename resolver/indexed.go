// Package resolver - dual mode registry state resolution
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/vaultmesh/accesskit/models"
)

// permissionsQuery indexed query for the permission entries of a grantor
const permissionsQuery = `query UserPermissions($user: String!) {
  permissions(
    where: {grantor: $user}
    orderBy: blockNumber
    orderDirection: desc
  ) {
    id
    grantor
    grantee
    grant
    nonce
    operation
    parameters
    fileIds
    startBlock
    endBlock
    active
    blockNumber
    blockTimestamp
    transactionHash
  }
}`

// trustedServersQuery indexed query for the trust set of a user
const trustedServersQuery = `query UserTrustedServers($user: String!) {
  trustedServers(
    where: {user: $user}
    orderBy: blockNumber
    orderDirection: desc
  ) {
    serverId
    serverUrl
    owner
    publicKey
    trustedAt
    blockNumber
    transactionHash
  }
}`

// graphQLRequest wire shape of an indexed query
type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

// graphQLError one entry of the response error list
type graphQLError struct {
	Message string `json:"message"`
}

// graphQLResponse wire shape of an indexed query response
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// indexedPermission permission entry as the indexer returns it
type indexedPermission struct {
	ID              string   `json:"id"`
	Grantor         string   `json:"grantor"`
	Grantee         string   `json:"grantee"`
	Grant           string   `json:"grant"`
	Nonce           string   `json:"nonce"`
	Operation       string   `json:"operation"`
	Parameters      string   `json:"parameters"`
	FileIDs         []string `json:"fileIds"`
	StartBlock      string   `json:"startBlock"`
	EndBlock        string   `json:"endBlock"`
	Active          bool     `json:"active"`
	BlockNumber     string   `json:"blockNumber"`
	BlockTimestamp  string   `json:"blockTimestamp"`
	TransactionHash string   `json:"transactionHash"`
}

// indexedServer trust set entry as the indexer returns it
type indexedServer struct {
	ServerID        string `json:"serverId"`
	ServerURL       string `json:"serverUrl"`
	Owner           string `json:"owner"`
	PublicKey       string `json:"publicKey"`
	TrustedAt       string `json:"trustedAt"`
	BlockNumber     string `json:"blockNumber"`
	TransactionHash string `json:"transactionHash"`
}

// IndexedSource the indexed query service surface of the resolver
type IndexedSource interface {
	// UserPermissions all permission entries of a grantor, most recent first
	UserPermissions(ctx context.Context, user common.Address) ([]models.Permission, error)

	// UserTrustedServers the full trust set of a user, most recent first
	UserTrustedServers(ctx context.Context, user common.Address) ([]models.TrustedServer, error)
}

// indexedClient implements IndexedSource over a GraphQL HTTP endpoint
type indexedClient struct {
	goutils.Component

	endpoint string
	client   *http.Client
}

/*
NewIndexedClient define a new indexed query service client

	@param endpoint string - GraphQL endpoint URL
	@param client *http.Client - HTTP client, nil for a default with timeout
	@returns client instance
*/
func NewIndexedClient(endpoint string, client *http.Client) (IndexedSource, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("indexed query client requires an endpoint URL")
	}
	if client == nil {
		client = &http.Client{Timeout: time.Second * 15}
	}

	logTags := log.Fields{"module": "resolver", "component": "indexed-client"}

	return &indexedClient{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		endpoint: endpoint,
		client:   client,
	}, nil
}

// query run one GraphQL request and return the raw data section
//
// A schema level error entry is treated the same as a transport failure.
func (c *indexedClient) query(
	ctx context.Context, query string, variables map[string]interface{},
) (json.RawMessage, error) {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to encode indexed query [%w]", err)
	}

	request, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build indexed query request [%w]", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("indexed query transport failed [%w]", err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, fmt.Errorf("indexed query returned status %d", response.StatusCode)
	}

	var parsed graphQLResponse
	if err := json.NewDecoder(response.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode indexed query response [%w]", err)
	}
	if len(parsed.Errors) > 0 {
		messages := make([]string, 0, len(parsed.Errors))
		for _, entry := range parsed.Errors {
			messages = append(messages, entry.Message)
		}
		return nil, fmt.Errorf("indexed query rejected: %s", strings.Join(messages, "; "))
	}
	return parsed.Data, nil
}

func (c *indexedClient) UserPermissions(
	ctx context.Context, user common.Address,
) ([]models.Permission, error) {
	data, err := c.query(ctx, permissionsQuery, map[string]interface{}{
		"user": strings.ToLower(user.Hex()),
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Permissions []indexedPermission `json:"permissions"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode indexed permissions [%w]", err)
	}

	entries := make([]models.Permission, 0, len(parsed.Permissions))
	for _, raw := range parsed.Permissions {
		fileIDs := make([]*big.Int, 0, len(raw.FileIDs))
		for _, id := range raw.FileIDs {
			fileIDs = append(fileIDs, parseDecimal(id))
		}
		entries = append(entries, models.Permission{
			ID:               parseDecimal(raw.ID),
			Grantor:          common.HexToAddress(raw.Grantor),
			Grantee:          common.HexToAddress(raw.Grantee),
			Grant:            raw.Grant,
			Nonce:            parseDecimal(raw.Nonce),
			Operation:        raw.Operation,
			Parameters:       raw.Parameters,
			FileIDs:          fileIDs,
			StartBlock:       parseDecimal(raw.StartBlock),
			EndBlock:         parseDecimal(raw.EndBlock),
			Active:           raw.Active,
			AddedAtBlock:     parseDecimal(raw.BlockNumber).Uint64(),
			AddedAtTimestamp: parseDecimal(raw.BlockTimestamp).Int64(),
			TransactionHash:  raw.TransactionHash,
		})
	}
	return entries, nil
}

func (c *indexedClient) UserTrustedServers(
	ctx context.Context, user common.Address,
) ([]models.TrustedServer, error) {
	data, err := c.query(ctx, trustedServersQuery, map[string]interface{}{
		"user": strings.ToLower(user.Hex()),
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		TrustedServers []indexedServer `json:"trustedServers"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode indexed trust set [%w]", err)
	}

	entries := make([]models.TrustedServer, 0, len(parsed.TrustedServers))
	for _, raw := range parsed.TrustedServers {
		entries = append(entries, models.TrustedServer{
			ServerID:        common.HexToAddress(raw.ServerID),
			ServerURL:       raw.ServerURL,
			Owner:           common.HexToAddress(raw.Owner),
			PublicKey:       raw.PublicKey,
			TrustedAt:       parseDecimal(raw.TrustedAt).Int64(),
			AddedAtBlock:    parseDecimal(raw.BlockNumber).Uint64(),
			TransactionHash: raw.TransactionHash,
		})
	}
	return entries, nil
}

// parseDecimal lenient decimal parse; indexers serialize numerics as strings
func parseDecimal(value string) *big.Int {
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return big.NewInt(0)
	}
	return parsed
}
