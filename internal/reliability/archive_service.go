// Package reliability archives finished reports to object storage and runs
// database maintenance.
package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/events"
	"github.com/aristath/rebalancer/internal/modules/reports"
)

const (
	archivePrefix = "rebalance-"
	archiveSuffix = ".tar.gz"
	metadataName  = "metadata.json"
)

// ExportSource renders the CSV exports of a report.
type ExportSource interface {
	Exports(report *reports.Report) (map[string][]byte, error)
}

// ArchiveMetadata is written into every archive as metadata.json.
type ArchiveMetadata struct {
	ReportName  string         `json:"report_name"`
	CreatedTime string         `json:"created_time"`
	Target      string         `json:"target"`
	Test        bool           `json:"test"`
	Status      string         `json:"status"`
	ArchivedAt  time.Time      `json:"archived_at"`
	Files       []FileMetadata `json:"files"`
}

// FileMetadata describes one file of an archive.
type FileMetadata struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// ArchiveInfo is a stored archive.
type ArchiveInfo struct {
	Key         string    `json:"key"`
	ReportName  string    `json:"report_name"`
	CreatedTime string    `json:"created_time"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// ArchiveService packs report exports into tar.gz archives and uploads them.
type ArchiveService struct {
	store  ObjectStore
	source ExportSource
	events *events.Manager
	now    func() time.Time
	log    zerolog.Logger
}

// NewArchiveService creates a new archive service
func NewArchiveService(store ObjectStore, source ExportSource, eventManager *events.Manager, log zerolog.Logger) *ArchiveService {
	return &ArchiveService{
		store:  store,
		source: source,
		events: eventManager,
		now:    time.Now,
		log:    log.With().Str("service", "archive").Logger(),
	}
}

// ArchiveKey is the object key of a report's archive.
func ArchiveKey(report *reports.Report) string {
	return archivePrefix + report.Name + "-" + report.CreatedTime + archiveSuffix
}

// Archive uploads the exports of report and returns the object key.
func (s *ArchiveService) Archive(ctx context.Context, report *reports.Report) (string, error) {
	startTime := s.now()

	files, err := s.source.Exports(report)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	metadata := ArchiveMetadata{
		ReportName:  report.Name,
		CreatedTime: report.CreatedTime,
		Target:      string(report.Target),
		Test:        report.Test,
		Status:      string(report.Status),
		ArchivedAt:  startTime.UTC(),
		Files:       make([]FileMetadata, 0, len(names)),
	}
	for _, name := range names {
		metadata.Files = append(metadata.Files, FileMetadata{
			Name:      name,
			SizeBytes: int64(len(files[name])),
			Checksum:  checksum(files[name]),
		})
	}

	meta, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	files[metadataName] = meta
	names = append(names, metadataName)

	archive, err := createArchive(files, names, startTime)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	key := ArchiveKey(report)
	if err := s.store.Upload(ctx, key, bytes.NewReader(archive), "application/gzip"); err != nil {
		return "", domain.External("archive upload", err)
	}

	s.log.Info().
		Str("report", report.Title()).
		Str("key", key).
		Int("files", len(names)).
		Int("size_bytes", len(archive)).
		Dur("duration_ms", s.now().Sub(startTime)).
		Msg("Report archived")

	if s.events != nil {
		s.events.EmitTyped("reliability", &events.ReportArchivedData{
			ReportName: report.Name,
			Key:        key,
			SizeBytes:  int64(len(archive)),
		})
	}
	return key, nil
}

// ListArchives returns the stored archives, newest report first.
func (s *ArchiveService) ListArchives(ctx context.Context) ([]ArchiveInfo, error) {
	objects, err := s.store.List(ctx, archivePrefix)
	if err != nil {
		return nil, domain.External("archive list", err)
	}

	archives := make([]ArchiveInfo, 0, len(objects))
	for _, obj := range objects {
		name, createdTime, ok := parseArchiveKey(obj.Key)
		if !ok {
			s.log.Warn().Str("key", obj.Key).Msg("Skipping object with unexpected key")
			continue
		}
		archives = append(archives, ArchiveInfo{
			Key:         obj.Key,
			ReportName:  name,
			CreatedTime: createdTime,
			SizeBytes:   obj.SizeBytes,
			UploadedAt:  obj.LastModified,
		})
	}

	sort.Slice(archives, func(i, j int) bool {
		if archives[i].CreatedTime != archives[j].CreatedTime {
			return archives[i].CreatedTime > archives[j].CreatedTime
		}
		return archives[i].ReportName < archives[j].ReportName
	})
	return archives, nil
}

// parseArchiveKey splits rebalance-<name>-<created_time>.tar.gz. Names may
// contain dashes; the created time has a fixed width.
func parseArchiveKey(key string) (name, createdTime string, ok bool) {
	if !strings.HasPrefix(key, archivePrefix) || !strings.HasSuffix(key, archiveSuffix) {
		return "", "", false
	}
	body := strings.TrimSuffix(strings.TrimPrefix(key, archivePrefix), archiveSuffix)

	width := len(reports.CreatedTimeLayout)
	if len(body) < width+2 || body[len(body)-width-1] != '-' {
		return "", "", false
	}
	createdTime = body[len(body)-width:]
	if _, err := time.Parse(reports.CreatedTimeLayout, createdTime); err != nil {
		return "", "", false
	}
	return body[:len(body)-width-1], createdTime, true
}

func createArchive(files map[string][]byte, order []string, modTime time.Time) ([]byte, error) {
	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, name := range order {
		data := files[name]
		header := &tar.Header{
			Name:    name,
			Size:    int64(len(data)),
			Mode:    0644,
			ModTime: modTime,
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", name, err)
		}
		if _, err := tarWriter.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func checksum(data []byte) string {
	return fmt.Sprintf("sha256:%x", sha256.Sum256(data))
}
