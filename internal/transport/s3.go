package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/goccy/go-json"
	"github.com/lychee-technology/formedit"
	"go.uber.org/zap"
)

type objectStore interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 keeps each collection as one JSON document under prefix. Writes rewrite
// the whole document; a process-local lock serialises them.
type S3 struct {
	client   objectStore
	uploader *manager.Uploader
	bucket   string
	prefix   string
	mu       sync.Mutex
}

// NewS3 creates an object-storage transport over client.
func NewS3(client objectStore, cfg formedit.S3Config) *S3 {
	return &S3{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}
}

// NewS3Client builds an SDK client from cfg. Static credentials and a custom
// endpoint are optional; without them the default AWS chain applies.
func NewS3Client(ctx context.Context, cfg formedit.S3Config) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	if cfg.Endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(cfg.Endpoint))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

func (s *S3) objectKey(collection string) string {
	return s.prefix + collection + ".json"
}

func (s *S3) FetchCollection(ctx context.Context, name string) (*formedit.CollectionPage, error) {
	return s.load(ctx, name)
}

func (s *S3) CreateRecord(ctx context.Context, name string, raw formedit.Record) (formedit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, err := s.load(ctx, name)
	if err != nil {
		return formedit.Record{}, err
	}
	created := withID(raw, newRecordID())
	page.Items = append(page.Items, created)
	if err := s.store(ctx, name, page); err != nil {
		return formedit.Record{}, err
	}
	return created.Clone(), nil
}

func (s *S3) UpdateRecord(ctx context.Context, name, id string, raw formedit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	for i, r := range page.Items {
		if r.ID() != id {
			continue
		}
		for _, k := range raw.Keys() {
			if k == formedit.IDKey {
				continue
			}
			r.Set(k, raw.Value(k))
		}
		page.Items[i] = r
		return s.store(ctx, name, page)
	}
	return formedit.NewRecordNotFoundError(name, id)
}

func (s *S3) DeleteRecord(ctx context.Context, name, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	for i, r := range page.Items {
		if r.ID() == id {
			page.Items = append(page.Items[:i:i], page.Items[i+1:]...)
			return s.store(ctx, name, page)
		}
	}
	return formedit.NewRecordNotFoundError(name, id)
}

func (s *S3) load(ctx context.Context, name string) (*formedit.CollectionPage, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(name)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			zap.S().Debugw("collection object missing, treating as empty", "collection", name, "key", s.objectKey(name))
			return &formedit.CollectionPage{Meta: formedit.NewRecord(), Items: []formedit.Record{}}, nil
		}
		return nil, formedit.NewTransportError(name, "get collection object", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, formedit.NewTransportError(name, "read collection object", err)
	}
	page, err := formedit.DecodeCollectionPage(data)
	if err != nil {
		return nil, formedit.NewEditorError(formedit.ErrorTypeTransport, formedit.ErrCodeInvalidPayload, "collection object is not readable").
			WithRecord(name, "").WithCause(err)
	}
	return page, nil
}

func (s *S3) store(ctx context.Context, name string, page *formedit.CollectionPage) error {
	data, err := encodePage(page)
	if err != nil {
		return formedit.NewInternalError("encode collection", err)
	}
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(name)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return formedit.NewTransportError(name, "upload collection object", err)
	}
	return nil
}

// encodePage writes a bare array, or an object with the meta fields followed
// by "items" when the page carries metadata.
func encodePage(page *formedit.CollectionPage) ([]byte, error) {
	items := page.Items
	if items == nil {
		items = []formedit.Record{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	if page.Meta.Len() == 0 {
		return itemsJSON, nil
	}
	metaJSON, err := json.Marshal(page.Meta)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(metaJSON[:len(metaJSON)-1])
	buf.WriteString(`,"items":`)
	buf.Write(itemsJSON)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
