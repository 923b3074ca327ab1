package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_Save(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := NewLocalStorage(filepath.Join(dir, "exports"))
	require.NoError(t, err)

	t.Run("Success - Writes nested key", func(t *testing.T) {
		loc, err := st.Save(ctx, "referrals/2026/report.xlsx", strings.NewReader("data"), "")
		require.NoError(t, err)

		content, err := os.ReadFile(loc)
		require.NoError(t, err)
		assert.Equal(t, "data", string(content))
		assert.True(t, strings.HasPrefix(loc, filepath.Join(dir, "exports")))
	})

	t.Run("Success - Traversal stays inside the directory", func(t *testing.T) {
		loc, err := st.Save(ctx, "../../escape.txt", strings.NewReader("x"), "")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(loc, filepath.Join(dir, "exports")))
	})
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	b, _ := io.ReadAll(params.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Storage_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - Uploads under prefix", func(t *testing.T) {
		client := &fakeS3{}
		st := NewS3StorageWithClient(client, "affiliate-exports", "exports")

		loc, err := st.Save(ctx, "referrals.xlsx", strings.NewReader("sheet"), "application/octet-stream")
		require.NoError(t, err)

		assert.Equal(t, "s3://affiliate-exports/exports/referrals.xlsx", loc)
		assert.Equal(t, "affiliate-exports", aws.ToString(client.input.Bucket))
		assert.Equal(t, "exports/referrals.xlsx", aws.ToString(client.input.Key))
		assert.Equal(t, "application/octet-stream", aws.ToString(client.input.ContentType))
		assert.Equal(t, "sheet", client.body)
	})

	t.Run("Failure - Upload error", func(t *testing.T) {
		st := NewS3StorageWithClient(&fakeS3{err: errors.New("denied")}, "b", "")

		_, err := st.Save(ctx, "x.xlsx", strings.NewReader(""), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "denied")
	})
}
