package usecase

import (
	"context"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reposync/pkg/domain/interfaces"
	"github.com/m-mizutani/reposync/pkg/domain/model"
	"github.com/m-mizutani/reposync/pkg/domain/types"
	"github.com/m-mizutani/reposync/pkg/utils/async"
)

// assetContentTypes are the types GitHub expects for common release files
var assetContentTypes = map[string]string{
	".zip":      "application/zip",
	".vsix":     "application/zip",
	".tgz":      "application/gzip",
	".gz":       "application/gzip",
	".json":     "application/json",
	".manifest": "application/manifest+json",
	".p7s":      "application/pkcs7-signature",
}

func assetContentType(asset *model.Asset) string {
	ext := strings.ToLower(filepath.Ext(asset.Name))
	if ct, ok := assetContentTypes[ext]; ok {
		return ct
	}
	if asset.ContentType != "" {
		return asset.ContentType
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

type releaseMapper struct {
	src        interfaces.SourceRepository
	dest       interfaces.DestinationRepository
	prov       *provenance
	maxThreads int
	dryRun     bool
}

// Sync replicates release and the assets the destination is missing
func (m *releaseMapper) Sync(ctx context.Context, release *model.Release) (*itemResult, error) {
	logger := ctxlog.From(ctx)

	target, err := m.dest.GetReleaseByTag(ctx, release.TagName)
	if err != nil {
		return nil, err
	}

	if target != nil {
		logger.Info("Release already exists in destination", "tag", release.TagName, "release_id", target.ID)
	} else {
		target, err = m.create(ctx, release)
		if err != nil {
			return nil, err
		}
	}
	result := &itemResult{Destination: target.ID, Status: types.StatusSynced}

	present := make(map[string]struct{}, len(target.Assets))
	for _, asset := range target.Assets {
		present[asset.Name] = struct{}{}
	}
	var missing []*model.Asset
	for _, asset := range release.Assets {
		if _, ok := present[asset.Name]; !ok {
			missing = append(missing, asset)
		}
	}
	if len(missing) == 0 {
		return result, nil
	}

	if m.dryRun {
		for _, asset := range missing {
			logger.Info("[dry-run] transfer asset", "tag", release.TagName, "name", asset.Name, "size", asset.Size)
		}
		return result, nil
	}

	staged, err := m.stageAssets(ctx, missing)
	if err != nil {
		return result, err
	}
	defer func() {
		if err := os.RemoveAll(staged.TempDir); err != nil {
			logger.Warn("Failed to remove staging directory", "temp_dir", staged.TempDir, "error", err)
		}
	}()

	logger.Info("Staged release assets",
		"tag", release.TagName,
		"temp_dir", staged.TempDir,
		"file_count", len(staged.Files),
		"total_size_bytes", staged.Size,
	)

	if err := m.uploadAssets(ctx, target.ID, missing, staged); err != nil {
		return result, err
	}
	return result, nil
}

func (m *releaseMapper) create(ctx context.Context, release *model.Release) (*model.Release, error) {
	sha, err := m.src.ResolveCommit(ctx, release.TagName)
	if err != nil {
		return nil, err
	}
	if sha == "" && release.TargetCommitish != "" {
		sha, err = m.src.ResolveCommit(ctx, release.TargetCommitish)
		if err != nil {
			return nil, err
		}
	}
	if sha == "" {
		return nil, goerr.Wrap(&types.PermanentError{
			StatusCode: http.StatusNotFound,
			Message:    "release tag does not resolve to a commit in the source repository",
		}, "cannot resolve release commit", goerr.V("tag", release.TagName))
	}

	exists, err := m.dest.CommitExists(ctx, sha)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, goerr.Wrap(&types.MissingCommitError{SHA: sha, Tag: release.TagName}, "release commit is missing in destination")
	}

	body, err := m.prov.releaseBody(release)
	if err != nil {
		return nil, err
	}

	created, err := m.dest.CreateRelease(ctx, &model.Release{
		TagName:         release.TagName,
		TargetCommitish: sha,
		Name:            release.Name,
		Body:            body,
		Draft:           release.Draft,
		Prerelease:      release.Prerelease,
	})
	if err != nil {
		return nil, err
	}

	ctxlog.From(ctx).Info("Created release", "tag", release.TagName, "release_id", created.ID, "commit", sha)
	return created, nil
}

// stageAssets downloads assets into a private temporary directory
func (m *releaseMapper) stageAssets(ctx context.Context, assets []*model.Asset) (*model.StagedAssets, error) {
	logger := ctxlog.From(ctx)

	tempDir, err := os.MkdirTemp("", "reposync-release-*")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create temporary directory")
	}
	if err := os.Chmod(tempDir, 0700); err != nil {
		_ = os.RemoveAll(tempDir)
		return nil, goerr.Wrap(err, "failed to set directory permissions", goerr.V("temp_dir", tempDir))
	}
	logger.Debug("Created temporary directory", "temp_dir", tempDir)

	staged := &model.StagedAssets{
		TempDir: tempDir,
		Files:   make([]string, len(assets)),
	}
	var total atomic.Int64

	g := async.NewGroup(ctx, m.maxThreads)
	for i, asset := range assets {
		g.Go(func(ctx context.Context) error {
			path, size, err := m.downloadAsset(ctx, tempDir, asset)
			if err != nil {
				return err
			}
			staged.Files[i] = path
			total.Add(size)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = os.RemoveAll(tempDir)
		return nil, err
	}

	staged.Size = total.Load()
	return staged, nil
}

func (m *releaseMapper) downloadAsset(ctx context.Context, dir string, asset *model.Asset) (string, int64, error) {
	// Asset names come from the source repository; keep them inside dir
	destPath := filepath.Join(dir, asset.Name)
	if filepath.Base(asset.Name) != asset.Name || !strings.HasPrefix(destPath, filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", 0, goerr.New("invalid asset name", goerr.V("name", asset.Name))
	}

	rc, err := m.src.DownloadAsset(ctx, asset.ID)
	if err != nil {
		return "", 0, err
	}
	defer rc.Close()

	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", 0, goerr.Wrap(err, "failed to create staging file", goerr.V("path", destPath))
	}
	defer f.Close()

	size, err := io.Copy(f, rc)
	if err != nil {
		return "", 0, goerr.Wrap(err, "failed to download asset", goerr.V("name", asset.Name), goerr.V("asset_id", asset.ID))
	}
	if asset.Size > 0 && size != asset.Size {
		return "", 0, goerr.New("downloaded asset size mismatch",
			goerr.V("name", asset.Name),
			goerr.V("expected", asset.Size),
			goerr.V("actual", size))
	}

	ctxlog.From(ctx).Debug("Downloaded asset", "name", asset.Name, "size", size)
	return destPath, size, nil
}

func (m *releaseMapper) uploadAssets(ctx context.Context, releaseID int64, assets []*model.Asset, staged *model.StagedAssets) error {
	g := async.NewGroup(ctx, m.maxThreads)
	for i, asset := range assets {
		g.Go(func(ctx context.Context) error {
			f, err := os.Open(staged.Files[i])
			if err != nil {
				return goerr.Wrap(err, "failed to open staged asset", goerr.V("path", staged.Files[i]))
			}
			defer f.Close()

			if err := m.dest.UploadAsset(ctx, releaseID, asset.Name, assetContentType(asset), f); err != nil {
				return err
			}
			ctxlog.From(ctx).Info("Uploaded asset", "release_id", releaseID, "name", asset.Name)
			return nil
		})
	}
	return g.Wait()
}
