//go:build integration

package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/cloo-solutions/medicalchat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Client_RoundTrip(t *testing.T) {
	ctx := context.Background()
	rc := testutil.NewRustFSContainer(ctx, t)
	defer rc.Terminate(ctx)

	client, err := NewS3Client(ctx, S3ClientConfig{
		Endpoint:        rc.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "documents",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	require.NoError(t, client.EnsureBucket(ctx))

	key := DocumentKey("report.pdf")
	body := "%PDF-1.4 test"
	require.NoError(t, client.PutObject(ctx, key, strings.NewReader(body), int64(len(body)), "application/pdf"))

	rc2, err := client.GetObject(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc2)
	rc2.Close()
	require.NoError(t, err)
	assert.Equal(t, body, string(data))

	url, err := client.GenerateUploadURL(ctx, key, "application/pdf")
	require.NoError(t, err)
	assert.Contains(t, url, "report.pdf")

	require.NoError(t, client.DeleteObject(ctx, key))
	_, err = client.GetObject(ctx, key)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
