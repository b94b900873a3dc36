package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/evault/evault/internal/apperr"
	"github.com/evault/evault/internal/document"
	"github.com/evault/evault/internal/document/repository"
	"github.com/evault/evault/internal/integrity"
	"github.com/evault/evault/internal/storage"
	"github.com/evault/evault/pkg/logger"
	"github.com/evault/evault/pkg/metrics"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

var (
	errDocumentNotFound = apperr.NotFound("document not found")
	errContentNotFound  = apperr.NotFound("document content not found")
	errOwnerOnly        = apperr.Authorization("only the owner can perform this action")
	errUnchanged        = errors.New("unchanged")
)

// Directory resolves account ids. Username returns an error wrapping
// apperr.ErrNotFound for unknown ids.
type Directory interface {
	Username(ctx context.Context, id string) (string, error)
}

// Service defines the document business operations used by the handler layer.
// Every operation acts on behalf of principal, the authenticated account id.
type Service interface {
	Upload(ctx context.Context, principal string, in UploadInput) (*document.Document, error)
	ReplaceContent(ctx context.Context, principal, id string, f FileInput) (*document.Document, error)
	UpdateMetadata(ctx context.Context, principal, id string, in MetadataInput) (*document.Document, error)
	Share(ctx context.Context, principal, id, target string) (*document.Document, error)
	Verify(ctx context.Context, principal, id string) (*VerifyResult, error)
	Comment(ctx context.Context, principal, id, text string) (*document.Comment, error)
	Comments(ctx context.Context, principal, id string) ([]document.Comment, error)
	Delete(ctx context.Context, principal, id string) error
	Get(ctx context.Context, principal, id string) (*document.Document, error)
	Download(ctx context.Context, principal, id string) (*document.Document, io.ReadCloser, error)
	Versions(ctx context.Context, principal, id string) ([]document.VersionSnapshot, error)
	List(ctx context.Context, principal string) ([]*document.Document, error)
	Search(ctx context.Context, principal string, f document.Filter) ([]*document.Document, error)
}

// Config bounds uploads and blob store calls.
type Config struct {
	MaxUploadBytes int64
	AllowedTypes   []string
	StorageTimeout time.Duration
}

// DefaultAllowedTypes are the content types accepted for upload.
var DefaultAllowedTypes = []string{
	"application/pdf",
	"image/jpeg",
	"image/png",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
}

// DefaultConfig accepts up to 10 MiB of the default types.
func DefaultConfig() Config {
	return Config{
		MaxUploadBytes: 10 << 20,
		AllowedTypes:   DefaultAllowedTypes,
		StorageTimeout: 30 * time.Second,
	}
}

// VerifyResult is the outcome of an integrity check.
type VerifyResult struct {
	Verified bool
	Document *document.Document
}

// Manager implements Service over a document repository and a blob store.
type Manager struct {
	repo   repository.Repository
	blobs  storage.BlobStore
	engine *integrity.Engine
	dir    Directory
	cfg    Config
	log    *logger.Logger
	now    func() time.Time
}

func New(repo repository.Repository, blobs storage.BlobStore, engine *integrity.Engine, dir Directory, cfg Config) *Manager {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultConfig().MaxUploadBytes
	}
	if len(cfg.AllowedTypes) == 0 {
		cfg.AllowedTypes = DefaultAllowedTypes
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = DefaultConfig().StorageTimeout
	}
	if engine == nil {
		engine = integrity.NewEngine(nil)
	}
	return &Manager{
		repo:   repo,
		blobs:  blobs,
		engine: engine,
		dir:    dir,
		cfg:    cfg,
		log:    logger.Named("documents"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func record(op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case apperr.HTTPStatus(err) < 500:
		outcome = "rejected"
	default:
		outcome = "error"
	}
	metrics.DocumentOperations.WithLabelValues(op, outcome).Inc()
}

func requirePrincipal(p string) error {
	if p == "" {
		return apperr.Authentication("authentication required")
	}
	return nil
}

// readable hides documents the principal cannot read behind NotFound.
func readable(p string, d *document.Document) error {
	if !document.CanRead(p, d) {
		return errDocumentNotFound
	}
	return nil
}

func mutable(p string, d *document.Document) error {
	if err := readable(p, d); err != nil {
		return err
	}
	if !document.CanMutate(p, d) {
		return errOwnerOnly
	}
	return nil
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return errDocumentNotFound
	case errors.Is(err, repository.ErrConflict):
		return apperr.Wrap(apperr.ErrConflict, "document is being modified, try again", err)
	}
	return err
}

// load fetches id and applies gate.
func (s *Manager) load(ctx context.Context, p, id string, gate func(string, *document.Document) error) (*document.Document, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if err := gate(p, d); err != nil {
		return nil, err
	}
	return d, nil
}

// writeContent fingerprints, anchors and stores data under a fresh key.
func (s *Manager) writeContent(ctx context.Context, name, contentType string, data []byte) (document.ContentState, error) {
	digest := s.engine.Fingerprint(data)
	anchor, err := s.engine.Anchor(ctx, digest)
	if err != nil {
		return document.ContentState{}, fmt.Errorf("anchor: %w", err)
	}
	key := storage.GenerateKey(s.now(), name)
	sctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()
	if err := s.blobs.Put(sctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return document.ContentState{}, fmt.Errorf("store content: %w", err)
	}
	return document.ContentState{
		Fingerprint: digest,
		Anchor:      anchor,
		StorageKey:  key,
		FileName:    name,
		FileType:    contentType,
		FileSize:    int64(len(data)),
	}, nil
}

// discardBlob removes bytes written for a record that was never saved. If the
// removal fails too, both errors are returned together.
func (s *Manager) discardBlob(key string, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StorageTimeout)
	defer cancel()
	if err := s.blobs.Delete(ctx, key); err != nil {
		merr := multierror.Append(cause, fmt.Errorf("discard blob %s: %w", key, err))
		metrics.OrphanedBlobs.Inc()
		s.log.Errorf("orphaned blob %s: %v", key, merr)
		return merr.ErrorOrNil()
	}
	return cause
}

func (s *Manager) Upload(ctx context.Context, p string, in UploadInput) (d *document.Document, err error) {
	defer func() { record("upload", err) }()
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	cat, err := in.normalize()
	if err != nil {
		return nil, err
	}
	ct, err := s.checkFile(in.File)
	if err != nil {
		return nil, err
	}
	content, err := s.writeContent(ctx, in.File.Name, ct, in.File.Data)
	if err != nil {
		return nil, err
	}

	now := s.now()
	d = document.New(uuid.NewString(), p, content, now)
	d.Title = in.Title
	d.Description = in.Description
	d.Category = cat
	d.Tags = in.Tags
	d.ExpiryDate = in.ExpiryDate
	d.Audit(document.ActionCreated, p, "", now)

	if err := s.repo.Create(ctx, d); err != nil {
		return nil, s.discardBlob(content.StorageKey, fmt.Errorf("save document: %w", err))
	}
	s.log.Infof("document %s uploaded by %s (%d bytes)", d.ID, p, d.FileSize)
	return d, nil
}

func (s *Manager) ReplaceContent(ctx context.Context, p, id string, f FileInput) (d *document.Document, err error) {
	defer func() { record("replace", err) }()
	ct, err := s.checkFile(f)
	if err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, p, id, mutable); err != nil {
		return nil, err
	}
	content, err := s.writeContent(ctx, f.Name, ct, f.Data)
	if err != nil {
		return nil, err
	}
	d, err = s.repo.Update(ctx, id, func(d *document.Document) error {
		if err := mutable(p, d); err != nil {
			return err
		}
		now := s.now()
		d.ReplaceContent(content, now)
		d.Audit(document.ActionModified, p, "version "+strconv.Itoa(d.Version), now)
		return nil
	})
	if err != nil {
		return nil, s.discardBlob(content.StorageKey, mapRepoErr(err))
	}
	s.log.Infof("document %s replaced by %s, now version %d", id, p, d.Version)
	return d, nil
}

func (s *Manager) UpdateMetadata(ctx context.Context, p, id string, in MetadataInput) (d *document.Document, err error) {
	defer func() { record("update_metadata", err) }()
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	cat, err := in.normalize()
	if err != nil {
		return nil, err
	}
	d, err = s.repo.Update(ctx, id, func(d *document.Document) error {
		if err := mutable(p, d); err != nil {
			return err
		}
		if in.Title != nil {
			d.Title = *in.Title
		}
		if in.Description != nil {
			d.Description = *in.Description
		}
		if cat != nil {
			d.Category = *cat
		}
		if in.Tags != nil {
			d.Tags = *in.Tags
		}
		switch {
		case in.ClearExpiry:
			d.ExpiryDate = nil
		case in.ExpiryDate != nil:
			exp := *in.ExpiryDate
			d.ExpiryDate = &exp
		}
		now := s.now()
		d.UpdatedAt = now
		d.Audit(document.ActionModified, p, "metadata", now)
		return nil
	})
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return d, nil
}

func (s *Manager) Share(ctx context.Context, p, id, target string) (d *document.Document, err error) {
	defer func() { record("share", err) }()
	if target == "" {
		return nil, apperr.Validation("userId is required")
	}
	cur, err := s.load(ctx, p, id, mutable)
	if err != nil {
		return nil, err
	}
	if target == cur.Owner {
		return nil, apperr.Validation("cannot share a document with its owner")
	}
	if _, err := s.dir.Username(ctx, target); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("lookup share target: %w", err)
	}

	d, err = s.repo.Update(ctx, id, func(d *document.Document) error {
		if err := mutable(p, d); err != nil {
			return err
		}
		if !d.AddSharedPrincipal(target) {
			cur = d
			return errUnchanged
		}
		now := s.now()
		d.UpdatedAt = now
		d.Audit(document.ActionShared, p, target, now)
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return cur, nil
	}
	if err != nil {
		return nil, mapRepoErr(err)
	}
	s.log.Infof("document %s shared with %s by %s", id, target, p)
	return d, nil
}

func (s *Manager) Verify(ctx context.Context, p, id string) (res *VerifyResult, err error) {
	defer func() { record("verify", err) }()
	cur, err := s.load(ctx, p, id, readable)
	if err != nil {
		return nil, err
	}
	digest, err := s.fingerprintStored(ctx, cur.StorageKey)
	if err != nil {
		return nil, err
	}
	ok, err := s.engine.Verify(ctx, digest, cur.Anchor)
	if err != nil {
		return nil, err
	}

	d, err := s.repo.Update(ctx, id, func(d *document.Document) error {
		if err := readable(p, d); err != nil {
			return err
		}
		if d.StorageKey != cur.StorageKey {
			return apperr.Conflict("document content changed during verification")
		}
		now := s.now()
		d.ApplyVerification(ok)
		d.UpdatedAt = now
		d.Audit(document.ActionVerified, p, strconv.FormatBool(ok), now)
		return nil
	})
	if err != nil {
		return nil, mapRepoErr(err)
	}
	result := "verified"
	if !ok {
		result = "rejected"
		s.log.Warnf("document %s failed verification: stored bytes do not match anchor", id)
	}
	metrics.Verifications.WithLabelValues(result).Inc()
	return &VerifyResult{Verified: ok, Document: d}, nil
}

func (s *Manager) fingerprintStored(ctx context.Context, key string) (integrity.Digest, error) {
	if key == "" {
		return "", errContentNotFound
	}
	sctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()
	rc, err := s.blobs.Open(sctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return "", errContentNotFound
		}
		return "", fmt.Errorf("open content: %w", err)
	}
	defer rc.Close()
	digest, err := integrity.FingerprintReader(rc)
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return digest, nil
}

func (s *Manager) Comment(ctx context.Context, p, id, text string) (c *document.Comment, err error) {
	defer func() { record("comment", err) }()
	text, err = checkComment(text)
	if err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, p, id, readable); err != nil {
		return nil, err
	}
	name, err := s.dir.Username(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("lookup comment author: %w", err)
	}
	_, err = s.repo.Update(ctx, id, func(d *document.Document) error {
		if !document.CanComment(p, d) {
			return errDocumentNotFound
		}
		c = &document.Comment{
			ID:         uuid.NewString(),
			Author:     p,
			AuthorName: name,
			Content:    text,
			CreatedAt:  s.now(),
		}
		d.Comments = append(d.Comments, *c)
		return nil
	})
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return c, nil
}

func (s *Manager) Comments(ctx context.Context, p, id string) ([]document.Comment, error) {
	d, err := s.load(ctx, p, id, readable)
	if err != nil {
		return nil, err
	}
	return d.Comments, nil
}

// Delete removes the record first and then the bytes of every version.
// Blob removal is best effort; leftovers are logged and counted.
func (s *Manager) Delete(ctx context.Context, p, id string) (err error) {
	defer func() { record("delete", err) }()
	if err := requirePrincipal(p); err != nil {
		return err
	}
	d, err := s.repo.Delete(ctx, id, func(d *document.Document) error {
		return mutable(p, d)
	})
	if err != nil {
		return mapRepoErr(err)
	}
	s.log.Infof("document %s deleted by %s", id, p)

	var result *multierror.Error
	for _, key := range d.StorageKeys() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StorageTimeout)
		if err := s.blobs.Delete(sctx, key); err != nil {
			metrics.OrphanedBlobs.Inc()
			result = multierror.Append(result, fmt.Errorf("remove blob %s: %w", key, err))
		}
		cancel()
	}
	if merr := result.ErrorOrNil(); merr != nil {
		s.log.Errorf("document %s deleted with orphaned blobs: %v", id, merr)
	}
	return nil
}

func (s *Manager) Get(ctx context.Context, p, id string) (*document.Document, error) {
	return s.load(ctx, p, id, readable)
}

// Download opens the current bytes. The reader is bound to ctx, not to the
// storage timeout, so large files can stream to slow clients.
func (s *Manager) Download(ctx context.Context, p, id string) (*document.Document, io.ReadCloser, error) {
	d, err := s.load(ctx, p, id, readable)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, d.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, nil, errContentNotFound
		}
		return nil, nil, fmt.Errorf("open content: %w", err)
	}
	return d, rc, nil
}

func (s *Manager) Versions(ctx context.Context, p, id string) ([]document.VersionSnapshot, error) {
	d, err := s.load(ctx, p, id, readable)
	if err != nil {
		return nil, err
	}
	return document.ListVersions(d), nil
}

func (s *Manager) List(ctx context.Context, p string) ([]*document.Document, error) {
	return s.Search(ctx, p, document.Filter{})
}

func (s *Manager) Search(ctx context.Context, p string, f document.Filter) ([]*document.Document, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	f.Tags = document.NormalizeTags(f.Tags)
	docs, err := s.repo.List(ctx, p, f)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}
