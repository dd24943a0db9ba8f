// Package content - content addressed document retrieval through public
// gateways
package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/vaultmesh/accesskit/models"
)

// DefaultGateways gateway list used when none is configured
var DefaultGateways = []string{
	"https://ipfs.io/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
	"https://gateway.pinata.cloud/ipfs/",
}

// maxDocumentSize upper bound on fetched document size
const maxDocumentSize = 16 * 1024 * 1024

// Fetcher retrieves content addressed documents
type Fetcher interface {
	/*
		Fetch retrieve one document

		Accepts an ipfs:// URI, a bare content hash, or a full URL. Hash
		references are tried against every configured gateway in order; the
		aggregate error is raised only after the whole list failed.

		 @param ctx context.Context - execution context
		 @param ref string - document reference
		 @return the document content
	*/
	Fetch(ctx context.Context, ref string) ([]byte, error)

	/*
		FetchGrantDocument retrieve and parse one grant document

		 @param ctx context.Context - execution context
		 @param ref string - grant document reference
		 @return the parsed grant document
	*/
	FetchGrantDocument(ctx context.Context, ref string) (models.GrantDocument, error)
}

// gatewayFetcher implements Fetcher over an ordered gateway list
type gatewayFetcher struct {
	goutils.Component

	gateways []string
	client   *http.Client
	validate *validator.Validate
}

/*
NewGatewayFetcher define a new gateway content fetcher

	@param gateways []string - ordered gateway base URLs, nil for the defaults
	@param client *http.Client - HTTP client, nil for a default with timeout
	@returns fetcher instance
*/
func NewGatewayFetcher(gateways []string, client *http.Client) (Fetcher, error) {
	if len(gateways) == 0 {
		gateways = DefaultGateways
	}
	if client == nil {
		client = &http.Client{Timeout: time.Second * 30}
	}

	validate := validator.New()
	if err := models.RegisterWithValidator(validate); err != nil {
		return nil, fmt.Errorf("failed to prepare document validation [%w]", err)
	}

	logTags := log.Fields{"module": "content", "component": "gateway-fetcher"}

	return &gatewayFetcher{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		gateways: gateways,
		client:   client,
		validate: validate,
	}, nil
}

// candidateURLs the fetch URLs to try for a reference, in order
func (f *gatewayFetcher) candidateURLs(ref string) []string {
	// Full URLs bypass the gateway list
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return []string{ref}
	}

	hash := strings.TrimPrefix(ref, "ipfs://")
	urls := make([]string, 0, len(f.gateways))
	for _, gateway := range f.gateways {
		if !strings.HasSuffix(gateway, "/") {
			gateway += "/"
		}
		urls = append(urls, gateway+hash)
	}
	return urls
}

func (f *gatewayFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	logTags := f.GetLogTagsForContext(ctx)

	if ref == "" {
		return nil, fmt.Errorf("document reference is required")
	}

	var failures []string
	for _, url := range f.candidateURLs(ref) {
		content, err := f.fetchOne(ctx, url)
		if err == nil {
			return content, nil
		}
		failures = append(failures, fmt.Sprintf("%s: %s", url, err.Error()))
		log.WithError(err).WithFields(logTags).Debugf("Gateway fetch of '%s' failed", url)

		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf(
		"failed to fetch '%s' from all sources: %s", ref, strings.Join(failures, "; "),
	)
}

// fetchOne one fetch attempt against one URL
func (f *gatewayFetcher) fetchOne(ctx context.Context, url string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	response, err := f.client.Do(request)
	if err != nil {
		return nil, err
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, fmt.Errorf("status %d", response.StatusCode)
	}

	content, err := io.ReadAll(io.LimitReader(response.Body, maxDocumentSize))
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (f *gatewayFetcher) FetchGrantDocument(
	ctx context.Context, ref string,
) (models.GrantDocument, error) {
	content, err := f.Fetch(ctx, ref)
	if err != nil {
		return models.GrantDocument{}, err
	}
	doc, err := models.ParseGrantDocument(content)
	if err != nil {
		return models.GrantDocument{}, fmt.Errorf(
			"document at '%s' is not a grant document [%w]", ref, err,
		)
	}
	if err := f.validate.Struct(&doc); err != nil {
		return models.GrantDocument{}, fmt.Errorf(
			"grant document at '%s' failed validation [%w]", ref, err,
		)
	}
	return doc, nil
}
