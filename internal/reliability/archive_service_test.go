package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/reports"
	testutil "github.com/aristath/rebalancer/internal/testing"
)

type memoryStore struct {
	objects   map[string][]byte
	uploadErr error
	listErr   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (s *memoryStore) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.objects[key] = data
	return nil
}

func (s *memoryStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []ObjectInfo
	for key, data := range s.objects {
		out = append(out, ObjectInfo{Key: key, SizeBytes: int64(len(data))})
	}
	return out, nil
}

type staticExports map[string][]byte

func (e staticExports) Exports(report *reports.Report) (map[string][]byte, error) {
	out := make(map[string][]byte, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out, nil
}

func testReport() *reports.Report {
	return &reports.Report{
		Name:        "acct-main",
		Target:      domain.TargetOverseas,
		CreatedTime: "20240304_09_00_00",
		Status:      reports.StatusExecuted,
	}
}

func readArchive(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	files := make(map[string][]byte)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[header.Name] = content
	}
	return files
}

func TestArchive(t *testing.T) {
	store := newMemoryStore()
	exports := staticExports{
		"summary.csv": []byte("created_time,deposit\n20240304_09_00_00,1000\n"),
		"orders.csv":  []byte("product_code,market_code\nSPY,NYSE\n"),
	}
	svc := NewArchiveService(store, exports, nil, testutil.NopLogger())
	svc.now = func() time.Time { return time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC) }

	key, err := svc.Archive(context.Background(), testReport())
	require.NoError(t, err)
	assert.Equal(t, "rebalance-acct-main-20240304_09_00_00.tar.gz", key)
	require.Contains(t, store.objects, key)

	files := readArchive(t, store.objects[key])
	assert.Len(t, files, 3)
	assert.Equal(t, exports["orders.csv"], files["orders.csv"])

	var meta ArchiveMetadata
	require.NoError(t, json.Unmarshal(files["metadata.json"], &meta))
	assert.Equal(t, "acct-main", meta.ReportName)
	assert.Equal(t, "overseas", meta.Target)
	assert.Equal(t, "EXECUTED", meta.Status)
	require.Len(t, meta.Files, 2)
	assert.Equal(t, "orders.csv", meta.Files[0].Name, "files are sorted")
	assert.Equal(t, checksum(exports["orders.csv"]), meta.Files[0].Checksum)
	assert.Equal(t, int64(len(exports["summary.csv"])), meta.Files[1].SizeBytes)
}

func TestArchive_UploadError(t *testing.T) {
	store := newMemoryStore()
	store.uploadErr = errors.New("access denied")
	svc := NewArchiveService(store, staticExports{}, nil, testutil.NopLogger())

	_, err := svc.Archive(context.Background(), testReport())
	assert.ErrorIs(t, err, domain.ErrExternal)
}

func TestListArchives(t *testing.T) {
	store := newMemoryStore()
	store.objects["rebalance-acct-main-20240304_09_00_00.tar.gz"] = []byte("a")
	store.objects["rebalance-5001-20240305_10_00_00.tar.gz"] = []byte("bb")
	store.objects["rebalance-broken.tar.gz"] = []byte("c")
	store.objects["other/file.txt"] = []byte("d")
	svc := NewArchiveService(store, staticExports{}, nil, testutil.NopLogger())

	archives, err := svc.ListArchives(context.Background())
	require.NoError(t, err)
	require.Len(t, archives, 2)
	assert.Equal(t, "5001", archives[0].ReportName)
	assert.Equal(t, int64(2), archives[0].SizeBytes)
	assert.Equal(t, "acct-main", archives[1].ReportName)
	assert.Equal(t, "20240304_09_00_00", archives[1].CreatedTime)

	store.listErr = errors.New("timeout")
	_, err = svc.ListArchives(context.Background())
	assert.ErrorIs(t, err, domain.ErrExternal)
}

func TestParseArchiveKey(t *testing.T) {
	testCases := []struct {
		key         string
		name        string
		createdTime string
		ok          bool
	}{
		{"rebalance-a-20240304_09_00_00.tar.gz", "a", "20240304_09_00_00", true},
		{"rebalance-a-b-c-20240304_09_00_00.tar.gz", "a-b-c", "20240304_09_00_00", true},
		{"rebalance--20240304_09_00_00.tar.gz", "", "", false},
		{"rebalance-a-20241304_09_00_00.tar.gz", "", "", false},
		{"rebalance-a-20240304_09_00_00.zip", "", "", false},
		{"backup-a-20240304_09_00_00.tar.gz", "", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.key, func(t *testing.T) {
			name, createdTime, ok := parseArchiveKey(tc.key)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.name, name)
			assert.Equal(t, tc.createdTime, createdTime)
		})
	}
}
