// Package storage wraps the Azure Blob container that receives daily files.
//
// Clients never see the account key. They get a short-lived SAS URL that
// allows create and write on exactly one blob path; the server later reads
// that blob back to validate it.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
)

var (
	// ErrNotFound is returned when the blob does not exist.
	ErrNotFound = errors.New("blob not found")

	// ErrTooLarge is returned when a download exceeds its size limit.
	ErrTooLarge = errors.New("blob exceeds size limit")
)

// Options configures a Container.
type Options struct {
	AccountName string
	AccountKey  string
	Container   string
	// Endpoint overrides https://<account>.blob.core.windows.net/ (Azurite, sovereign clouds).
	Endpoint   string
	SASExpiry  time.Duration
	MaxRetries int32
}

// BlobInfo describes one stored blob.
type BlobInfo struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	ETag         string    `json:"etag,omitempty"`
}

// SignedURL is a delegated write URL and its expiry.
type SignedURL struct {
	URL       string
	BlobPath  string
	ExpiresAt time.Time
}

// Container is a handle on one blob container.
type Container struct {
	client     *azblob.Client
	cred       *azblob.SharedKeyCredential
	name       string
	serviceURL string
	sasExpiry  time.Duration
	now        func() time.Time
}

// NewContainer builds a client with shared key credentials. No network
// traffic happens until a method is called.
func NewContainer(opts Options) (*Container, error) {
	if opts.AccountName == "" || opts.AccountKey == "" {
		return nil, errors.New("storage: account name and key are required")
	}
	if opts.Container == "" {
		return nil, errors.New("storage: container name is required")
	}

	cred, err := azblob.NewSharedKeyCredential(opts.AccountName, opts.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("storage credential: %w", err)
	}

	serviceURL := opts.Endpoint
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", opts.AccountName)
	}
	if !strings.HasSuffix(serviceURL, "/") {
		serviceURL += "/"
	}

	clientOpts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: opts.MaxRetries},
		},
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}

	expiry := opts.SASExpiry
	if expiry <= 0 {
		expiry = 10 * time.Minute
	}

	return &Container{
		client:     client,
		cred:       cred,
		name:       opts.Container,
		serviceURL: serviceURL,
		sasExpiry:  expiry,
		now:        time.Now,
	}, nil
}

// Name returns the container name.
func (c *Container) Name() string {
	return c.name
}

// EnsureExists creates the container if it is missing.
func (c *Container) EnsureExists(ctx context.Context) error {
	_, err := c.client.CreateContainer(ctx, c.name, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("create container %s: %w", c.name, err)
	}
	return nil
}

// WriteURL signs a URL allowing create and write on blobPath only.
func (c *Container) WriteURL(blobPath string) (SignedURL, error) {
	now := c.now().UTC()
	expires := now.Add(c.sasExpiry)

	// StartTime is backdated for clock skew.
	values := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     now.Add(-5 * time.Minute),
		ExpiryTime:    expires,
		Permissions:   (&sas.BlobPermissions{Create: true, Write: true}).String(),
		ContainerName: c.name,
		BlobName:      blobPath,
	}

	qp, err := values.SignWithSharedKey(c.cred)
	if err != nil {
		return SignedURL{}, fmt.Errorf("sign SAS for %s: %w", blobPath, err)
	}

	return SignedURL{
		URL:       fmt.Sprintf("%s%s/%s?%s", c.serviceURL, c.name, blobPath, qp.Encode()),
		BlobPath:  blobPath,
		ExpiresAt: expires,
	}, nil
}

// Download reads a whole blob. limit <= 0 means no limit.
func (c *Container) Download(ctx context.Context, blobPath string, limit int64) ([]byte, error) {
	resp, err := c.client.DownloadStream(ctx, c.name, blobPath, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download %s: %w", blobPath, err)
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if limit > 0 {
		r = io.LimitReader(resp.Body, limit+1)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("read %s: %w", blobPath, err)
	}
	if limit > 0 && int64(buf.Len()) > limit {
		return nil, ErrTooLarge
	}
	return buf.Bytes(), nil
}

// Delete removes a blob. A missing blob is reported as ErrNotFound.
func (c *Container) Delete(ctx context.Context, blobPath string) error {
	_, err := c.client.DeleteBlob(ctx, c.name, blobPath, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete %s: %w", blobPath, err)
	}
	return nil
}

// List returns every blob whose name starts with prefix.
func (c *Container) List(ctx context.Context, prefix string) ([]BlobInfo, error) {
	pager := c.client.NewListBlobsFlatPager(c.name, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})

	var out []BlobInfo
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			info := BlobInfo{Name: *item.Name}
			if p := item.Properties; p != nil {
				if p.ContentLength != nil {
					info.Size = *p.ContentLength
				}
				if p.LastModified != nil {
					info.LastModified = *p.LastModified
				}
				if p.ETag != nil {
					info.ETag = string(*p.ETag)
				}
			}
			out = append(out, info)
		}
	}
	return out, nil
}

// Ping checks that the container is reachable.
func (c *Container) Ping(ctx context.Context) error {
	_, err := c.client.ServiceClient().NewContainerClient(c.name).GetProperties(ctx, nil)
	if err != nil {
		return fmt.Errorf("container %s: %w", c.name, err)
	}
	return nil
}
