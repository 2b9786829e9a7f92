package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"ktm-timetables/config"
)

const (
	timetablesKind = "timetables"
	databaseKind   = "database"
)

// ObjectStore is the part of the S3 API the backup job needs.
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Backup uploads archives below Prefix/<kind>/ and keeps the newest Keep
// archives of each kind.
type Backup struct {
	Client ObjectStore
	Bucket string
	Prefix string
	Keep   int
	Logger *zap.Logger
}

// Store uploads one archive and rotates older archives of the same kind.
func (b *Backup) Store(ctx context.Context, kind, name string, data []byte) error {
	key := path.Join(b.Prefix, kind, name)
	_, err := b.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", b.Bucket, key, err)
	}
	b.Logger.Info("Backup uploaded", zap.String("key", key), zap.Int("bytes", len(data)))
	return b.Rotate(ctx, kind)
}

// Rotate deletes all but the newest Keep archives of a kind. Failed
// deletions are logged and do not stop the rotation.
func (b *Backup) Rotate(ctx context.Context, kind string) error {
	prefix := path.Join(b.Prefix, kind) + "/"
	out, err := b.Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.Bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return fmt.Errorf("list s3://%s/%s: %w", b.Bucket, prefix, err)
	}
	if len(out.Contents) <= b.Keep {
		b.Logger.Debug("No rotation needed", zap.String("kind", kind), zap.Int("objects", len(out.Contents)))
		return nil
	}

	objects := out.Contents
	sort.Slice(objects, func(i, j int) bool {
		return aws.ToTime(objects[i].LastModified).After(aws.ToTime(objects[j].LastModified))
	})
	for _, obj := range objects[b.Keep:] {
		_, err := b.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.Bucket),
			Key:    obj.Key,
		})
		if err != nil {
			b.Logger.Warn("Deleting old backup failed", zap.String("key", aws.ToString(obj.Key)), zap.Error(err))
			continue
		}
		b.Logger.Info("Old backup deleted", zap.String("key", aws.ToString(obj.Key)))
	}
	return nil
}

// archiveDir packs the regular files of dir into a gzipped tarball with
// paths relative to dir.
func archiveDir(dir string) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", dir, err)
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// createDump runs pg_dump against the run-history database and gzips its output.
func createDump(ctx context.Context, cfg *config.Config) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "pg_dump",
		"-h", cfg.DBHost,
		"-p", strconv.Itoa(cfg.DBPort),
		"-U", cfg.DBUser,
		"-d", cfg.DBName,
		"-w",
	)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+cfg.DBPassword)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := io.Copy(gz, stdout); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
