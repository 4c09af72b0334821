// Package drive replicates partitions to a Google Drive folder using a
// service account. Blob ids are Drive file ids.
package drive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const mimeCSV = "text/csv"

// DefaultScope is full Drive access. The narrower drive.file scope only sees
// files the app created, so it cannot find a folder a user shared with the
// service account.
const DefaultScope = drive.DriveScope

const scopeBase = "https://www.googleapis.com/auth/"

// Store is a replication.BlobStore over the Drive v3 files API.
type Store struct {
	files *drive.FilesService
}

// New authenticates with the service-account key at credentialsPath.
// scope is an OAuth scope URL or a short name such as "drive.file"; empty
// means DefaultScope. Extra options are appended, which tests use to point
// at a local server.
func New(ctx context.Context, credentialsPath, scope string, opts ...option.ClientOption) (*Store, error) {
	all := append([]option.ClientOption{
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(ResolveScope(scope)),
	}, opts...)
	return NewWithOptions(ctx, all...)
}

// ResolveScope expands a short scope name to its URL.
func ResolveScope(scope string) string {
	scope = strings.TrimSpace(scope)
	switch {
	case scope == "":
		return DefaultScope
	case strings.Contains(scope, "://"):
		return scope
	default:
		return scopeBase + scope
	}
}

// NewWithOptions builds a Store from raw client options.
func NewWithOptions(ctx context.Context, opts ...option.ClientOption) (*Store, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Store{files: svc.Files}, nil
}

// List returns ids of non-trashed files called name in folder parent.
func (s *Store) List(ctx context.Context, parent, name string) ([]string, error) {
	res, err := s.files.List().
		Q(searchQuery(parent, name)).
		Fields("files(id)").
		Spaces("drive").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", name, err)
	}
	ids := make([]string, 0, len(res.Files))
	for _, f := range res.Files {
		ids = append(ids, f.Id)
	}
	return ids, nil
}

// Create uploads a new file into parent and returns its id.
func (s *Store) Create(ctx context.Context, parent, name string, content []byte) (string, error) {
	meta := &drive.File{Name: name, MimeType: mimeCSV}
	if parent != "" {
		meta.Parents = []string{parent}
	}
	f, err := s.files.Create(meta).
		Media(bytes.NewReader(content), googleapi.ContentType(mimeCSV)).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	return f.Id, nil
}

// Update replaces the media of file id.
func (s *Store) Update(ctx context.Context, id string, content []byte) error {
	_, err := s.files.Update(id, &drive.File{}).
		Media(bytes.NewReader(content), googleapi.ContentType(mimeCSV)).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	return nil
}

func searchQuery(parent, name string) string {
	q := fmt.Sprintf("name = '%s' and trashed = false", escapeQuery(name))
	if parent != "" {
		q = fmt.Sprintf("'%s' in parents and %s", escapeQuery(parent), q)
	}
	return q
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}
