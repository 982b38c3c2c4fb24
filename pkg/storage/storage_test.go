package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *mockS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func (m *mockS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.DeleteObjectOutput), args.Error(1)
}

func (m *mockS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.HeadObjectOutput), args.Error(1)
}

func newTestStorage(client *mockS3) *S3Storage {
	s := newS3Storage(client, S3Config{Bucket: "vouch-exports", Region: "eu-west-1"})
	s.retry.InitialBackoff = time.Millisecond
	s.retry.EnableJitter = false
	return s
}

func TestReportKey(t *testing.T) {
	at := time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "reports/2024-03-09/run-1/summary.json", ReportKey("/reports/", "run-1", at, "summary.json"))
	assert.Equal(t, "2024-03-09/run-1/scores.csv", ReportKey("", "run-1", at, "scores.csv"))
}

func TestParseURI(t *testing.T) {
	bucket, key, err := ParseURI("s3://vouch-exports/2024/vouches.json")
	require.NoError(t, err)
	assert.Equal(t, "vouch-exports", bucket)
	assert.Equal(t, "2024/vouches.json", key)

	for _, bad := range []string{"vouches.json", "s3://", "s3://bucket", "s3://bucket/", "s3:///key"} {
		_, _, err := ParseURI(bad)
		assert.ErrorIs(t, err, ErrInvalidURI, bad)
	}

	assert.True(t, IsURI("s3://a/b"))
	assert.False(t, IsURI("/tmp/vouches.json"))
}

func TestGetMimeTypeFromExtension(t *testing.T) {
	assert.Equal(t, "application/json", GetMimeTypeFromExtension("summary.JSON"))
	assert.Equal(t, "text/csv", GetMimeTypeFromExtension("scores.csv"))
	assert.Equal(t, "application/octet-stream", GetMimeTypeFromExtension("blob"))
}

func TestS3Storage_GetURL(t *testing.T) {
	s := newS3Storage(&mockS3{}, S3Config{Bucket: "b", Region: "us-east-1"})
	assert.Equal(t, "https://b.s3.us-east-1.amazonaws.com/k.json", s.GetURL("k.json"))

	s = newS3Storage(&mockS3{}, S3Config{Bucket: "b", Endpoint: "http://minio:9000"})
	assert.Equal(t, "http://minio:9000/b/k.json", s.GetURL("k.json"))
}

func TestS3Storage_UploadRetriesSeekableBody(t *testing.T) {
	client := &mockS3{}
	s := newTestStorage(client)

	client.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("slow down")).Once()
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Key == "reports/summary.json" && *in.ContentType == "application/json"
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	res, err := s.Upload(context.Background(), "reports/summary.json", bytes.NewReader([]byte("{}")), 2, "application/json")
	require.NoError(t, err)
	assert.Equal(t, "reports/summary.json", res.Key)
	assert.Equal(t, int64(2), res.Size)
	client.AssertNumberOfCalls(t, "PutObject", 2)
}

func TestS3Storage_UploadNonSeekableSingleAttempt(t *testing.T) {
	client := &mockS3{}
	s := newTestStorage(client)

	client.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("slow down"))

	_, err := s.Upload(context.Background(), "k", io.NopCloser(strings.NewReader("x")), 1, "text/plain")
	require.Error(t, err)
	client.AssertNumberOfCalls(t, "PutObject", 1)
}

func TestS3Storage_Download(t *testing.T) {
	client := &mockS3{}
	s := newTestStorage(client)

	client.On("GetObject", mock.Anything, mock.Anything).
		Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("[]"))}, nil).Once()

	body, err := s.Download(context.Background(), "vouches.json")
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	assert.Equal(t, "[]", string(data))

	client.On("GetObject", mock.Anything, mock.Anything).Return(nil, &types.NoSuchKey{}).Once()
	_, err = s.Download(context.Background(), "missing.json")
	require.Error(t, err)
	client.AssertNumberOfCalls(t, "GetObject", 2)
}

func TestS3Storage_Exists(t *testing.T) {
	client := &mockS3{}
	s := newTestStorage(client)

	client.On("HeadObject", mock.Anything, mock.Anything).Return(&s3.HeadObjectOutput{}, nil).Once()
	ok, err := s.Exists(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, ok)

	client.On("HeadObject", mock.Anything, mock.Anything).Return(nil, &types.NotFound{}).Once()
	ok, err = s.Exists(context.Background(), "b")
	require.NoError(t, err)
	assert.False(t, ok)

	client.On("HeadObject", mock.Anything, mock.Anything).Return(nil, errors.New("forbidden")).Once()
	_, err = s.Exists(context.Background(), "c")
	assert.Error(t, err)
}

func TestS3Storage_Delete(t *testing.T) {
	client := &mockS3{}
	s := newTestStorage(client)

	client.On("DeleteObject", mock.Anything, mock.Anything).Return(&s3.DeleteObjectOutput{}, nil)
	assert.NoError(t, s.Delete(context.Background(), "old.json"))
	client.AssertExpectations(t)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(&types.NoSuchKey{}))
	assert.True(t, IsRetryable(errors.New("connection reset")))
}
