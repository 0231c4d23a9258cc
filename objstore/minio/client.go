package minio

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spirit-labs/strata/common"
	"github.com/spirit-labs/strata/objstore"
)

type Conf struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
}

func NewMinioClient(cfg Conf) *Client {
	return &Client{
		cfg: cfg,
	}
}

type Client struct {
	cfg    Conf
	client *minio.Client
}

func (m *Client) Get(ctx context.Context, bucket string, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, maybeConvertError(err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer obj.Close()
	buff, err := io.ReadAll(obj)
	if err != nil {
		var merr minio.ErrorResponse
		if errors.As(err, &merr) {
			if merr.StatusCode == 404 {
				// does not exist
				return nil, nil
			}
		}
		return nil, maybeConvertError(err)
	}
	return buff, nil
}

func (m *Client) Put(ctx context.Context, bucket string, key string, value []byte) error {
	buff := bytes.NewBuffer(value)
	_, err := m.client.PutObject(ctx, bucket, key, buff, int64(len(value)), minio.PutObjectOptions{})
	return maybeConvertError(err)
}

func (m *Client) Delete(ctx context.Context, bucket string, key string) error {
	return maybeConvertError(m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}))
}

func (m *Client) DeleteAll(ctx context.Context, bucket string, keys []string) error {
	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)
	for rErr := range m.client.RemoveObjects(ctx, bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rErr.Err != nil {
			return maybeConvertError(rErr.Err)
		}
	}
	return nil
}

// MakeBucket creates the bucket if it does not already exist
func (m *Client) MakeBucket(ctx context.Context, bucket string) error {
	err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
	if err != nil {
		exists, err2 := m.client.BucketExists(ctx, bucket)
		if err2 == nil && exists {
			return nil
		}
		return maybeConvertError(err)
	}
	return nil
}

func (m *Client) ListObjectsWithPrefix(ctx context.Context, bucket string, prefix string, maxKeys int) ([]objstore.ObjectInfo, error) {
	// Cancelling the context terminates the listing goroutine in the minio client if we stop early
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var infos []objstore.ObjectInfo
	for obj := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, maybeConvertError(obj.Err)
		}
		infos = append(infos, objstore.ObjectInfo{Key: obj.Key, LastModified: obj.LastModified})
		if maxKeys > 0 && len(infos) == maxKeys {
			break
		}
	}
	return infos, nil
}

func (m *Client) Start() error {
	client, err := minio.New(m.cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(m.cfg.AccessKey, m.cfg.SecretKey, ""),
		Secure: m.cfg.Secure,
	})
	if err != nil {
		return err
	}
	m.client = client
	return nil
}

func (m *Client) Stop() error {
	m.client = nil
	return nil
}

func maybeConvertError(err error) error {
	if err == nil {
		return err
	}
	return common.NewStrataErrorf(common.Unavailable, err.Error())
}
