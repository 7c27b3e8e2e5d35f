package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gncimport/internal/fileutil"
	"gncimport/internal/logging"
	"gncimport/internal/services"
)

// Uploader copies a local file to remote storage under key.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) error
}

// Publisher places artifacts in the import directory.
type Publisher struct {
	dir    string
	mirror Uploader
	prefix string
	logger *slog.Logger
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithMirror uploads every published file to u under prefix.
func WithMirror(u Uploader, prefix string) Option {
	return func(p *Publisher) {
		p.mirror = u
		p.prefix = strings.Trim(prefix, "/")
	}
}

// New returns a Publisher writing into dir.
func New(dir string, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{dir: dir, logger: logging.NewComponentLogger(logger, "publish")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dir returns the import directory.
func (p *Publisher) Dir() string { return p.dir }

// Publish moves src into the import directory as name and returns the final
// path. An existing file with the same name is replaced.
func (p *Publisher) Publish(ctx context.Context, src, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", services.Wrap(services.ErrValidation, "publish", "name", fmt.Sprintf("invalid artifact name %q", name), nil)
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "publish", "ensure dir", p.dir, err)
	}
	dst := filepath.Join(p.dir, name)
	if err := fileutil.MoveFile(src, dst); err != nil {
		return "", services.Wrap(services.ErrTransient, "publish", "move", fmt.Sprintf("%s -> %s", src, dst), err)
	}
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("artifact published",
		logging.String("artifact", name),
		logging.String("path", dst),
		logging.String(logging.FieldEventType, "artifact_published"),
	)

	if p.mirror != nil {
		key := name
		if p.prefix != "" {
			key = path.Join(p.prefix, name)
		}
		if err := p.mirror.Upload(ctx, dst, key); err != nil {
			logging.WarnWithContext(logger, "object store upload failed; local copy kept", "mirror_upload_failed",
				logging.String("artifact", name),
				logging.String("key", key),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check object_store endpoint, bucket and credentials"),
				logging.String(logging.FieldImpact, "artifact is only available in the import directory"),
			)
		} else {
			logger.Debug("artifact mirrored", logging.String("key", key))
		}
	}
	return dst, nil
}
