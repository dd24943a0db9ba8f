package content_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
	"github.com/vaultmesh/accesskit/content"
	"github.com/vaultmesh/accesskit/models"
)

func TestGatewayFallbackOrder(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	// First gateway always fails, second serves the document
	brokenCalls := 0
	broken := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			brokenCalls++
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	))
	defer broken.Close()

	healthy := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "content of %s", r.URL.Path)
		},
	))
	defer healthy.Close()

	uut, err := content.NewGatewayFetcher(
		[]string{broken.URL + "/ipfs/", healthy.URL + "/ipfs/"}, nil,
	)
	assert.Nil(err)

	// Case 0: ipfs URI
	fetched, err := uut.Fetch(utCtx, "ipfs://QmTestHash001")
	assert.Nil(err)
	assert.Equal("content of /ipfs/QmTestHash001", string(fetched))
	assert.Equal(1, brokenCalls)

	// Case 1: bare content hash
	fetched, err = uut.Fetch(utCtx, "QmTestHash002")
	assert.Nil(err)
	assert.Equal("content of /ipfs/QmTestHash002", string(fetched))

	// Case 2: full URL bypasses the gateway list entirely
	brokenCalls = 0
	fetched, err = uut.Fetch(utCtx, healthy.URL+"/direct/document")
	assert.Nil(err)
	assert.Equal("content of /direct/document", string(fetched))
	assert.Equal(0, brokenCalls)
}

func TestGatewayAggregateFailure(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	notFound := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
	))
	defer notFound.Close()

	serverError := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	))
	defer serverError.Close()

	uut, err := content.NewGatewayFetcher(
		[]string{notFound.URL + "/ipfs/", serverError.URL + "/ipfs/"}, nil,
	)
	assert.Nil(err)

	// Only after every gateway failed does the fetch error, naming each failure
	_, err = uut.Fetch(utCtx, "QmMissingHash")
	assert.Error(err)
	assert.Contains(err.Error(), "status 404")
	assert.Contains(err.Error(), "status 500")

	// Empty references are rejected outright
	_, err = uut.Fetch(utCtx, "")
	assert.Error(err)
}

func TestGatewayGrantDocumentFetch(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	doc := models.NewGrantDocument(
		"0x0000000000000000000000000000000000000b0b",
		models.PermissionOperationRead,
		nil,
		[]uint64{41, 42},
	)
	serialized, err := doc.Serialize()
	assert.Nil(err)

	badOpDoc := doc
	badOpDoc.Operation = "rotate-keys"
	badOpSerialized, err := badOpDoc.Serialize()
	assert.Nil(err)

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/ipfs/QmGrantDoc":
				_, _ = w.Write(serialized)
			case "/ipfs/QmBadOpDoc":
				_, _ = w.Write(badOpSerialized)
			default:
				fmt.Fprint(w, "this is not JSON")
			}
		},
	))
	defer server.Close()

	uut, err := content.NewGatewayFetcher([]string{server.URL + "/ipfs/"}, nil)
	assert.Nil(err)

	fetched, err := uut.FetchGrantDocument(utCtx, "ipfs://QmGrantDoc")
	assert.Nil(err)
	assert.Equal(doc.ID, fetched.ID)
	assert.Equal(doc.Grantee, fetched.Grantee)
	assert.Equal([]uint64{41, 42}, fetched.Files)

	// Content which is not a grant document is an error, not a silent zero value
	_, err = uut.FetchGrantDocument(utCtx, "ipfs://QmNotADoc")
	assert.Error(err)
	assert.Contains(err.Error(), "not a grant document")

	// A document authorizing an unknown operation fails validation
	_, err = uut.FetchGrantDocument(utCtx, "ipfs://QmBadOpDoc")
	assert.Error(err)
	assert.Contains(err.Error(), "failed validation")
}
