package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("blob storage is not configured")

type Options struct {
	// SASURL is an account SAS service URL that grants write access.
	SASURL    string
	Container string
	// AccountName and AccountKey sign read URLs.
	AccountName string
	AccountKey  string
	// AccountURL overrides https://{AccountName}.blob.core.windows.net.
	AccountURL string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// BlobStore uploads audio into a container and signs short-lived read URLs
// for the uploaded blobs.
type BlobStore struct {
	client     *azblob.Client
	credential *azblob.SharedKeyCredential
	container  string
	accountURL string
	logger     *zap.Logger
	now        func() time.Time
}

func NewBlobStore(opts Options) (*BlobStore, error) {
	if opts.SASURL == "" || opts.Container == "" {
		return nil, fmt.Errorf("%w: SAS URL and container are required", ErrNotConfigured)
	}
	if opts.AccountName == "" || opts.AccountKey == "" {
		return nil, fmt.Errorf("%w: account name and key are required to sign read URLs", ErrNotConfigured)
	}

	clientOpts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}
	if opts.HTTPClient != nil {
		clientOpts.Transport = opts.HTTPClient
	}

	client, err := azblob.NewClientWithNoCredential(opts.SASURL, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	cred, err := azblob.NewSharedKeyCredential(opts.AccountName, opts.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}

	accountURL := opts.AccountURL
	if accountURL == "" {
		accountURL = fmt.Sprintf("https://%s.blob.core.windows.net", opts.AccountName)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BlobStore{
		client:     client,
		credential: cred,
		container:  opts.Container,
		accountURL: strings.TrimRight(accountURL, "/"),
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (s *BlobStore) Upload(ctx context.Context, dir, name string, data []byte) error {
	blobName := path.Join(dir, name)
	if _, err := s.client.UploadBuffer(ctx, s.container, blobName, data, nil); err != nil {
		return fmt.Errorf("upload blob %s: %w", blobName, err)
	}
	s.logger.Debug("blob uploaded", zap.String("container", s.container), zap.String("blob", blobName), zap.Int("bytes", len(data)))
	return nil
}

// ReadURL signs an HTTPS-only, read-only URL for {dir}/{name} that expires
// after expiry.
func (s *BlobStore) ReadURL(dir, name string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		return "", errors.New("read URL expiry must be positive")
	}
	blobName := path.Join(dir, name)

	params, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		ExpiryTime:    s.now().UTC().Add(expiry),
		Permissions:   (&sas.BlobPermissions{Read: true}).String(),
		ContainerName: s.container,
		BlobName:      blobName,
	}.SignWithSharedKey(s.credential)
	if err != nil {
		return "", fmt.Errorf("sign read URL for %s: %w", blobName, err)
	}

	blobURL := s.accountURL + "/" + url.PathEscape(s.container) + "/" + escapeBlobName(blobName)
	return blobURL + "?" + params.Encode(), nil
}

func escapeBlobName(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
