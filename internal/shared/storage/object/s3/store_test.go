package s3

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "outputs/job.md", want: "outputs/job.md"},
		{name: "simple prefix", prefix: "root", key: "outputs/job.md", want: "root/outputs/job.md"},
		{name: "prefix trailing slash", prefix: "root/", key: "outputs/job.md", want: "root/outputs/job.md"},
		{name: "prefix and key slashes", prefix: "/root/", key: "/outputs/job.md", want: "root/outputs/job.md"},
		{name: "nested prefix", prefix: "root/sub", key: "outputs/job.md", want: "root/sub/outputs/job.md"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

type fakeS3 struct {
	put     *s3.PutObjectInput
	putBody []byte
	objects map[string][]byte
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.put = in
	f.putBody = body
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.objects[aws.ToString(in.Key)]))}, nil
}

func TestSaveWithKeyUsesKMSWhenConfigured(t *testing.T) {
	fake := &fakeS3{}
	store := &Store{client: fake, bucket: "b", prefix: "tenant", kmsKeyID: "kms-1"}

	n, err := store.SaveWithKey(context.Background(), "outputs/job-1.md", "text/markdown", strings.NewReader("## Summary"))
	if err != nil {
		t.Fatalf("SaveWithKey: %v", err)
	}
	if n != int64(len("## Summary")) {
		t.Fatalf("unexpected size %d", n)
	}
	if aws.ToString(fake.put.Key) != "tenant/outputs/job-1.md" {
		t.Fatalf("unexpected key %q", aws.ToString(fake.put.Key))
	}
	if fake.put.ServerSideEncryption != s3types.ServerSideEncryptionAwsKms {
		t.Fatalf("expected kms encryption, got %q", fake.put.ServerSideEncryption)
	}

	rc, err := store.Open(context.Background(), "outputs/job-1.md")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if string(body) != "## Summary" {
		t.Fatalf("unexpected body %q", body)
	}
}
