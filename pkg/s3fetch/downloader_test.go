package s3fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/eunmann/asorg-db/pkg/snapshot"
)

// fakeS3 is an in-memory bucket. Ranged GETs return the whole object, which
// the download manager accepts as long as it fits in one part.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]map[string]string
	gets    int
	puts    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (f *fakeS3) put(key, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = []byte(body)
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	prefix := aws.ToString(in.Prefix)
	for key, body := range f.objects {
		if !strings.HasPrefix(key, prefix) || strings.Contains(strings.TrimPrefix(key, prefix), "/") {
			continue
		}
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key), Size: aws.Int64(int64(len(body)))})
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	n := int64(len(body))
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: aws.Int64(n),
		ContentRange:  aws.String(fmt.Sprintf("bytes 0-%d/%d", n-1, n)),
	}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	body, ok := f.objects[key]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(body))), Metadata: f.meta[key]}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	key := aws.ToString(in.Key)
	f.objects[key] = body
	f.meta[key] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

var errMultipart = errors.New("multipart upload not supported by fake")

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errMultipart
}

const snapText = "# format:org_id|changed|org_name|country|source\n" +
	"O1|x|Acme|US|ARIN\n" +
	"# format:aut|changed|aut_name|org_id|opaque_id|source\n" +
	"1234||ACME-AS|O1|x|ARIN\n"

func TestDefaultDownloaderConfig(t *testing.T) {
	cfg := DefaultDownloaderConfig()
	if cfg.Files != 4 {
		t.Errorf("Files = %d, want 4", cfg.Files)
	}
	if cfg.PartConcurrency < 2 {
		t.Errorf("PartConcurrency = %d, want >= 2", cfg.PartConcurrency)
	}
	if cfg.PartSize != 8*1024*1024 {
		t.Errorf("PartSize = %d, want 8MB", cfg.PartSize)
	}

	d := NewDownloader(NewClientWithAPI(newFakeS3()), DownloaderConfig{Files: 7})
	if got := d.Config(); got.Files != 7 || got.PartSize != cfg.PartSize {
		t.Errorf("Config() = %+v", got)
	}
}

func TestSource_ListAndLoad(t *testing.T) {
	fake := newFakeS3()
	fake.put("as-organizations/20200101.as-org2info.txt", snapText)
	fake.put("as-organizations/20200201.as-org2info.txt", snapText)
	fake.put("as-organizations/README", "not a snapshot")
	fake.put("as-organizations/nested/20200301.as-org2info.txt", snapText)
	fake.put("other/20200401.as-org2info.txt", snapText)

	src := NewSource(NewClientWithAPI(fake), "bucket", "as-organizations/")
	refs, err := src.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	snapshot.SortRefs(refs)
	if len(refs) != 2 || refs[0].Day != "20200101" || refs[1].Day != "20200201" {
		t.Fatalf("refs = %+v", refs)
	}

	facts, err := snapshot.Load(context.Background(), src, refs[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) != 1 || facts[0].OrgName != "Acme" {
		t.Errorf("facts = %+v", facts)
	}
}

func TestSource_DuplicateDay(t *testing.T) {
	fake := newFakeS3()
	fake.put("p/20200101.as-org2info.txt", snapText)
	fake.put("p/20200101.as-org2info.txt.gz", snapText)

	_, err := NewSource(NewClientWithAPI(fake), "bucket", "p/").List(context.Background())
	if !errors.Is(err, snapshot.ErrDuplicateDay) {
		t.Errorf("err = %v, want ErrDuplicateDay", err)
	}
}

func TestDownloader_Sync(t *testing.T) {
	fake := newFakeS3()
	fake.put("p/20200101.as-org2info.txt", snapText)
	fake.put("p/20200201.as-org2info.txt", snapText+"10||TEN|O1|x|ARIN\n")
	fake.put("p/index.html", "<html>")

	dir := filepath.Join(t.TempDir(), "cache")
	d := NewDownloader(NewClientWithAPI(fake), DownloaderConfig{Files: 2})

	res, err := d.Sync(context.Background(), "bucket", "p/", dir)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Downloaded != 2 || res.Skipped != 0 {
		t.Errorf("first sync = %+v", res)
	}
	data, err := os.ReadFile(filepath.Join(dir, "20200201.as-org2info.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "10||TEN|O1|x|ARIN\n") {
		t.Errorf("content = %q", data)
	}

	fake.put("p/20200301.as-org2info.txt", snapText)
	gets := fake.gets
	res, err = d.Sync(context.Background(), "bucket", "p/", dir)
	if err != nil {
		t.Fatal(err)
	}
	if res.Downloaded != 1 || res.Skipped != 2 {
		t.Errorf("second sync = %+v", res)
	}
	if fake.gets-gets != 1 {
		t.Errorf("second sync issued %d GETs, want 1", fake.gets-gets)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestDownloader_MissingObject(t *testing.T) {
	dir := t.TempDir()
	d := NewDownloader(NewClientWithAPI(newFakeS3()), DownloaderConfig{})
	dest := filepath.Join(dir, "20200101.as-org2info.txt")
	if _, err := d.DownloadToFile(context.Background(), "bucket", "missing", dest); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("dir not empty after failed download: %v", entries)
	}
}
