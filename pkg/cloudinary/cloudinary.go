package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Archiver mirrors stored detection artifacts into a Cloudinary folder.
type Archiver struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// NewArchiver validates credentials and builds the client.
func NewArchiver(cfg Config, logger zerolog.Logger) (*Archiver, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Archiver{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "artifact_archiver").Logger(),
	}, nil
}

// Upload copies the artifact stored as name and returns its secure URL.
// Images and videos share the "auto" resource type.
func (a *Archiver) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	publicID := PublicID(name)
	overwrite := false

	result, err := a.client.Upload.Upload(ctx, reader, uploader.UploadParams{
		Folder:       a.folder,
		PublicID:     publicID,
		ResourceType: "auto",
		Overwrite:    &overwrite,
	})
	if err != nil {
		return "", fmt.Errorf("archive artifact %s: %w", name, err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("archive artifact %s: %s", name, result.Error.Message)
	}

	a.logger.Debug().Str("public_id", result.PublicID).Str("resource_type", result.ResourceType).Msg("artifact archived")

	return result.SecureURL, nil
}

// PublicID derives the Cloudinary id from a stored artifact name. Stored
// names are already unique, so only the extension and unsafe runes are dropped.
func PublicID(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	if base == "" {
		return "artifact"
	}
	return base
}
