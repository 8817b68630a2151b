package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options for the filer
type Options struct {
	URL       string
	User      string
	Key       string
	Bucket    string
	Region    string
	Secure    bool
	URLExpire time.Duration
}

// Filer keeps song audio in a minio bucket
type Filer struct {
	client    *minio.Client
	bucket    string
	urlExpire time.Duration
}

// NewFiler creates filer, makes the bucket if it does not exist
func NewFiler(ctx context.Context, opt Options) (*Filer, error) {
	res, err := newFiler(opt)
	if err != nil {
		return nil, err
	}
	ok, err := res.client.BucketExists(ctx, res.bucket)
	if err != nil {
		return nil, fmt.Errorf("can't check bucket: %w", err)
	}
	if !ok {
		goapp.Log.Info().Str("bucket", res.bucket).Msg("create bucket")
		if err := res.client.MakeBucket(ctx, res.bucket, minio.MakeBucketOptions{Region: opt.Region}); err != nil {
			return nil, fmt.Errorf("can't create bucket: %w", err)
		}
	}
	return res, nil
}

func newFiler(opt Options) (*Filer, error) {
	if opt.URL == "" {
		return nil, fmt.Errorf("no url")
	}
	if opt.Bucket == "" {
		return nil, fmt.Errorf("no bucket")
	}
	client, err := minio.New(opt.URL, &minio.Options{
		Creds:  credentials.NewStaticV4(opt.User, opt.Key, ""),
		Secure: opt.Secure,
		Region: opt.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("can't init minio client: %w", err)
	}
	res := &Filer{client: client, bucket: opt.Bucket, urlExpire: opt.URLExpire}
	if res.urlExpire <= 0 {
		res.urlExpire = time.Hour
	}
	goapp.Log.Info().Str("url", opt.URL).Str("bucket", opt.Bucket).Bool("secure", opt.Secure).
		Dur("urlExpire", res.urlExpire).Msg("minio filer")
	return res, nil
}

// SaveFile stores the object, size -1 means unknown
func (f *Filer) SaveFile(ctx context.Context, name string, r io.Reader, size int64) error {
	_, err := f.client.PutObject(ctx, f.bucket, name, r, size, minio.PutObjectOptions{ContentType: contentType(name)})
	if err != nil {
		return fmt.Errorf("can't save %s: %w", name, err)
	}
	goapp.Log.Info().Str("file", name).Msg("saved")
	return nil
}

// LoadFile returns the object reader
func (f *Filer) LoadFile(ctx context.Context, name string) (io.ReadSeekCloser, error) {
	res, err := f.client.GetObject(ctx, f.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("can't load %s: %w", name, err)
	}
	return res, nil
}

// Delete removes the object
func (f *Filer) Delete(ctx context.Context, name string) error {
	if err := f.client.RemoveObject(ctx, f.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("can't delete %s: %w", name, err)
	}
	return nil
}

// SignedURL returns a time limited GET URL of the object
func (f *Filer) SignedURL(ctx context.Context, name string) (string, error) {
	res, err := f.client.PresignedGetObject(ctx, f.bucket, name, f.urlExpire, url.Values{})
	if err != nil {
		return "", fmt.Errorf("can't sign %s: %w", name, err)
	}
	return res.String(), nil
}

// Clean removes all objects of the song
func (f *Filer) Clean(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" || strings.Contains(id, "/") {
		return fmt.Errorf("wrong id '%s'", id)
	}
	prefix := id + "/"
	ctx, cf := context.WithCancel(ctx)
	defer cf()
	var errs []error
	for o := range f.client.ListObjects(ctx, f.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if o.Err != nil {
			return fmt.Errorf("can't list %s: %w", prefix, o.Err)
		}
		goapp.Log.Info().Str("file", o.Key).Msg("delete")
		if err := f.Delete(ctx, o.Key); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("can't clean %s: %w", id, errs[0])
	}
	return nil
}

// IsNotFound returns true for missing object errors
func IsNotFound(err error) bool {
	var errResp minio.ErrorResponse
	if errors.As(err, &errResp) {
		return errResp.StatusCode == http.StatusNotFound || errResp.Code == "NoSuchKey"
	}
	return false
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".webm":
		return "audio/webm"
	case ".ogg":
		return "audio/ogg"
	}
	return "application/octet-stream"
}
