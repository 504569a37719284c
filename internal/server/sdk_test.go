package server

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSDKClient builds an aws-sdk-go-v2 S3 client against the test server.
// Flexible checksums are restricted to operations that require them; the
// default would wrap bodies in aws-chunked trailer encoding.
func newSDKClient(ts *httptest.Server) *s3.Client {
	return s3.New(s3.Options{
		BaseEndpoint:               aws.String(ts.URL),
		Region:                     "us-east-1",
		Credentials:                credentials.NewStaticCredentialsProvider("accessKey", "secretKey", ""),
		UsePathStyle:               true,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})
}

func TestSDKBucketAndObjectRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	client := newSDKClient(ts)
	ctx := context.Background()

	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String("sdk-bucket"),
	})
	require.NoError(t, err)

	put, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String("sdk-bucket"),
		Key:         aws.String("greeting.txt"),
		Body:        strings.NewReader("hello from the sdk"),
		ContentType: aws.String("text/plain"),
	})
	require.NoError(t, err)
	require.NotNil(t, put.ETag)

	get, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String("sdk-bucket"),
		Key:    aws.String("greeting.txt"),
	})
	require.NoError(t, err)
	defer get.Body.Close()
	body, err := io.ReadAll(get.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello from the sdk", string(body))
	assert.Equal(t, *put.ETag, *get.ETag)
	assert.Equal(t, "text/plain", *get.ContentType)

	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String("sdk-bucket"),
		Key:    aws.String("greeting.txt"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(18), *head.ContentLength)

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String("sdk-bucket"),
		Key:    aws.String("greeting.txt"),
	})
	require.NoError(t, err)

	_, err = client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String("sdk-bucket"),
		Key:    aws.String("greeting.txt"),
	})
	require.Error(t, err)
}

func TestSDKListObjectsV2(t *testing.T) {
	ts := newTestServer(t)
	client := newSDKClient(ts)
	ctx := context.Background()

	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String("sdk-list")})
	require.NoError(t, err)

	for _, key := range []string{"logs/2026/one", "logs/2026/two", "readme"} {
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String("sdk-list"),
			Key:    aws.String(key),
			Body:   strings.NewReader("x"),
		})
		require.NoError(t, err)
	}

	out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String("sdk-list"),
		Delimiter: aws.String("/"),
	})
	require.NoError(t, err)
	require.Len(t, out.Contents, 1)
	assert.Equal(t, "readme", *out.Contents[0].Key)
	require.Len(t, out.CommonPrefixes, 1)
	assert.Equal(t, "logs/", *out.CommonPrefixes[0].Prefix)
}

func TestSDKMultipartUpload(t *testing.T) {
	ts := newTestServer(t)
	client := newSDKClient(ts)
	ctx := context.Background()

	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String("sdk-mp")})
	require.NoError(t, err)

	create, err := client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String("sdk-mp"),
		Key:    aws.String("assembled"),
	})
	require.NoError(t, err)

	part1 := bytes.Repeat([]byte("p"), 5*1024*1024)
	part2 := []byte("tail")

	up1, err := client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String("sdk-mp"),
		Key:        aws.String("assembled"),
		UploadId:   create.UploadId,
		PartNumber: aws.Int32(1),
		Body:       bytes.NewReader(part1),
	})
	require.NoError(t, err)
	up2, err := client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String("sdk-mp"),
		Key:        aws.String("assembled"),
		UploadId:   create.UploadId,
		PartNumber: aws.Int32(2),
		Body:       bytes.NewReader(part2),
	})
	require.NoError(t, err)

	complete, err := client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String("sdk-mp"),
		Key:      aws.String("assembled"),
		UploadId: create.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: []types.CompletedPart{
				{PartNumber: aws.Int32(1), ETag: up1.ETag},
				{PartNumber: aws.Int32(2), ETag: up2.ETag},
			},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, complete.ETag)
	assert.True(t, strings.HasSuffix(strings.Trim(*complete.ETag, `"`), "-2"))

	get, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String("sdk-mp"),
		Key:    aws.String("assembled"),
	})
	require.NoError(t, err)
	defer get.Body.Close()
	body, err := io.ReadAll(get.Body)
	require.NoError(t, err)
	assert.Len(t, body, len(part1)+len(part2))
}

func TestSDKVersioning(t *testing.T) {
	ts := newTestServer(t)
	client := newSDKClient(ts)
	ctx := context.Background()

	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String("sdk-ver")})
	require.NoError(t, err)

	_, err = client.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket: aws.String("sdk-ver"),
		VersioningConfiguration: &types.VersioningConfiguration{
			Status: types.BucketVersioningStatusEnabled,
		},
	})
	require.NoError(t, err)

	first, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String("sdk-ver"),
		Key:    aws.String("doc"),
		Body:   strings.NewReader("v1"),
	})
	require.NoError(t, err)
	require.NotNil(t, first.VersionId)

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String("sdk-ver"),
		Key:    aws.String("doc"),
		Body:   strings.NewReader("v2"),
	})
	require.NoError(t, err)

	del, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String("sdk-ver"),
		Key:    aws.String("doc"),
	})
	require.NoError(t, err)
	require.NotNil(t, del.DeleteMarker)
	assert.True(t, *del.DeleteMarker)

	// The old version stays readable through the SDK.
	get, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket:    aws.String("sdk-ver"),
		Key:       aws.String("doc"),
		VersionId: first.VersionId,
	})
	require.NoError(t, err)
	defer get.Body.Close()
	body, err := io.ReadAll(get.Body)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(body))

	versions, err := client.ListObjectVersions(ctx, &s3.ListObjectVersionsInput{
		Bucket: aws.String("sdk-ver"),
	})
	require.NoError(t, err)
	assert.Len(t, versions.Versions, 2)
	assert.Len(t, versions.DeleteMarkers, 1)
}

func TestSDKCopyObject(t *testing.T) {
	ts := newTestServer(t)
	client := newSDKClient(ts)
	ctx := context.Background()

	for _, name := range []string{"sdk-src", "sdk-dst"} {
		_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)})
		require.NoError(t, err)
	}

	put, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String("sdk-src"),
		Key:    aws.String("original"),
		Body:   strings.NewReader("copy payload"),
	})
	require.NoError(t, err)

	copied, err := client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String("sdk-dst"),
		Key:        aws.String("replica"),
		CopySource: aws.String("sdk-src/original"),
	})
	require.NoError(t, err)
	require.NotNil(t, copied.CopyObjectResult)
	assert.Equal(t, *put.ETag, *copied.CopyObjectResult.ETag)
}
