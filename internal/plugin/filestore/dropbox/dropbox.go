package dropbox

import (
	"context"
	"fmt"
	"io"

	"github.com/corval/docqa-service/internal/config"
	"github.com/corval/docqa-service/internal/model"
	registryfilestore "github.com/corval/docqa-service/internal/registry/filestore"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
)

func init() {
	registryfilestore.Register(registryfilestore.Plugin{
		Name:   "dropbox",
		Loader: load,
	})
}

func load(ctx context.Context) (registryfilestore.FileStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.DropboxAccessToken == "" {
		return nil, fmt.Errorf("dropbox: DOCQA_SERVICE_DROPBOX_ACCESS_TOKEN is required")
	}
	client := files.New(dropbox.Config{Token: cfg.DropboxAccessToken})
	return &DropboxStore{client: client, rootPath: cfg.DropboxRootPath}, nil
}

// DropboxStore reads files from a Dropbox account. The SDK's generated client
// does not accept a context; cancellation applies between calls only.
type DropboxStore struct {
	client   files.Client
	rootPath string
}

func (s *DropboxStore) ListPage(ctx context.Context, cursor string) ([]model.FileInfo, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	var entries []files.IsMetadata
	var next string
	if cursor == "" {
		arg := files.NewListFolderArg(s.rootPath)
		arg.Recursive = true
		res, err := s.client.ListFolder(arg)
		if err != nil {
			return nil, "", fmt.Errorf("dropbox: list folder %q: %w", s.rootPath, err)
		}
		entries = res.Entries
		if res.HasMore {
			next = res.Cursor
		}
	} else {
		res, err := s.client.ListFolderContinue(files.NewListFolderContinueArg(cursor))
		if err != nil {
			return nil, "", fmt.Errorf("dropbox: continue listing: %w", err)
		}
		entries = res.Entries
		if res.HasMore {
			next = res.Cursor
		}
	}

	var infos []model.FileInfo
	for _, entry := range entries {
		// Folders and deleted entries come through the same listing.
		fm, ok := entry.(*files.FileMetadata)
		if !ok {
			continue
		}
		infos = append(infos, model.FileInfo{
			ID:   fm.Id,
			Name: fm.Name,
			Path: fm.PathLower,
		})
	}
	return infos, next, nil
}

func (s *DropboxStore) Download(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, content, err := s.client.Download(files.NewDownloadArg(path))
	if err != nil {
		return nil, fmt.Errorf("dropbox: download %q: %w", path, err)
	}
	defer content.Close()
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("dropbox: read %q: %w", path, err)
	}
	return data, nil
}

func (s *DropboxStore) TemporaryLink(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	res, err := s.client.GetTemporaryLink(files.NewGetTemporaryLinkArg(path))
	if err != nil {
		return "", fmt.Errorf("dropbox: temporary link for %q: %w", path, err)
	}
	return res.Link, nil
}
