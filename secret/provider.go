package secret

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Provider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// ErrSecretNotFound is returned when a reference names nothing.
var ErrSecretNotFound = errors.New("secret: not found")

// EnvProvider resolves secretref:env:<VAR>.
type EnvProvider struct {
	lookup LookupFunc
}

// NewEnvProvider reads variables through lookup, or the process
// environment when lookup is nil.
func NewEnvProvider(lookup LookupFunc) *EnvProvider {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &EnvProvider{lookup: lookup}
}

// Name returns "env".
func (p *EnvProvider) Name() string { return "env" }

// Resolve returns the variable named ref.
func (p *EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := p.lookup(ref)
	if !ok {
		return "", fmt.Errorf("%w: env %q", ErrSecretNotFound, ref)
	}
	return v, nil
}

// Close is a no-op.
func (p *EnvProvider) Close() error { return nil }

// MaxSecretFileSize caps what FileProvider will read.
const MaxSecretFileSize = 64 << 10

// FileProvider resolves secretref:file:<path>, the layout used by mounted
// container secrets. Trailing newlines are trimmed.
type FileProvider struct {
	root string
}

// NewFileProvider restricts references to files under root. An empty root
// allows any absolute path.
func NewFileProvider(root string) *FileProvider {
	if root != "" {
		root = filepath.Clean(root)
	}
	return &FileProvider{root: root}
}

// Name returns "file".
func (p *FileProvider) Name() string { return "file" }

// Resolve reads the file at ref.
func (p *FileProvider) Resolve(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Clean(ref)
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("secret: file reference %q must be absolute", ref)
	}
	if p.root != "" {
		rel, err := filepath.Rel(p.root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("secret: file reference %q is outside %s", ref, p.root)
		}
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: file %q", ErrSecretNotFound, ref)
	}
	if err != nil {
		return "", fmt.Errorf("secret: open %q: %w", ref, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, MaxSecretFileSize+1))
	if err != nil {
		return "", fmt.Errorf("secret: read %q: %w", ref, err)
	}
	if len(data) > MaxSecretFileSize {
		return "", fmt.Errorf("secret: file %q exceeds %d bytes", ref, MaxSecretFileSize)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// Close is a no-op.
func (p *FileProvider) Close() error { return nil }

var (
	_ Provider = (*EnvProvider)(nil)
	_ Provider = (*FileProvider)(nil)
)
