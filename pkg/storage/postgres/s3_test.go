package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Reainz/Snapflow-sub001/pkg/storage"
)

// fakeS3 serves pageSizes as consecutive ListObjectsV2 pages
type fakeS3 struct {
	pageSizes []int
	listErr   error
	headErr   error
	calls     int
	prefixes  []string
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.calls++
	f.prefixes = append(f.prefixes, aws.ToString(in.Prefix))
	if f.listErr != nil {
		return nil, f.listErr
	}

	page := 0
	if in.ContinuationToken != nil {
		page, _ = strconv.Atoi(*in.ContinuationToken)
	}

	out := &s3.ListObjectsV2Output{}
	for i := 0; i < f.pageSizes[page]; i++ {
		out.Contents = append(out.Contents, types.Object{Key: aws.String("raw/" + strconv.Itoa(page) + "/" + strconv.Itoa(i))})
	}
	if page+1 < len(f.pageSizes) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(strconv.Itoa(page + 1))
	} else {
		out.IsTruncated = aws.Bool(false)
	}
	return out, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func testS3Config() storage.Config {
	cfg := storage.DefaultConfig()
	cfg.S3Bucket = "snapflow-media"
	return cfg
}

func TestCountObjects_AllPages(t *testing.T) {
	fake := &fakeS3{pageSizes: []int{1000, 1000, 250}}
	obs := &recordingObserver{}
	client := newS3Client(fake, nil, testS3Config())
	client.SetObserver(obs)

	n, err := client.CountObjects(context.Background(), "raw/")
	require.NoError(t, err)
	assert.Equal(t, int64(2250), n)
	assert.Equal(t, 3, fake.calls)
	assert.Equal(t, "raw/", fake.prefixes[0])

	require.Len(t, obs.seen, 1)
	assert.Equal(t, observed{"CountObjects", "s3", nil}, obs.seen[0])
}

func TestCountObjects_StopsAtCap(t *testing.T) {
	fake := &fakeS3{pageSizes: []int{1000, 1000, 1000, 1000}}
	cfg := testS3Config()
	cfg.S3MaxObjectScan = 1500

	n, err := newS3Client(fake, nil, cfg).CountObjects(context.Background(), "raw/")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), n)
	assert.Equal(t, 2, fake.calls, "listing stops once the cap is reached")
}

func TestCountObjects_Empty(t *testing.T) {
	fake := &fakeS3{pageSizes: []int{0}}
	n, err := newS3Client(fake, nil, testS3Config()).CountObjects(context.Background(), "raw/")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCountObjects_Error(t *testing.T) {
	fake := &fakeS3{listErr: errors.New("access denied")}
	obs := &recordingObserver{}
	client := newS3Client(fake, nil, testS3Config())
	client.SetObserver(obs)

	_, err := client.CountObjects(context.Background(), "raw/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	require.Len(t, obs.seen, 1)
	assert.Error(t, obs.seen[0].err)
}

func TestS3HealthCheck(t *testing.T) {
	assert.NoError(t, newS3Client(&fakeS3{}, nil, testS3Config()).HealthCheck(context.Background()))

	err := newS3Client(&fakeS3{headErr: errors.New("no such bucket")}, nil, testS3Config()).HealthCheck(context.Background())
	assert.Error(t, err)
}

func TestPresignGet(t *testing.T) {
	api := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
		BaseEndpoint: aws.String("http://localhost:9000"),
		UsePathStyle: true,
	})
	client := newS3Client(api, s3.NewPresignClient(api), testS3Config())

	url, err := client.PresignGet(context.Background(), "videos/v1/master.m3u8", 300*time.Second)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:9000/snapflow-media/videos/v1/master.m3u8?"), url)
	assert.Contains(t, url, "X-Amz-Expires=300")
	assert.Contains(t, url, "X-Amz-Signature=")
}

func TestPresignGet_NotConfigured(t *testing.T) {
	_, err := newS3Client(&fakeS3{}, nil, testS3Config()).PresignGet(context.Background(), "k", time.Minute)
	assert.Error(t, err)
}

func TestNewS3Client_RequiresBucket(t *testing.T) {
	_, err := NewS3Client(context.Background(), storage.DefaultConfig())
	assert.Error(t, err)
}
