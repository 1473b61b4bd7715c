// Package media keeps payment proofs and QR codes on the local filesystem under MEDIA_ROOT.
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
	"github.com/vasiliy-maslov/storefront/internal/config"
)

const (
	PaymentProofDir = "payment_proofs"
	QRCodeDir       = "qr_codes"
	StaticQRName    = "order_payment_qr.png"

	MaxProofSize = 5 << 20
	qrSize       = 256
)

var (
	ErrUnsupportedFileType = errors.New("unsupported file type, allowed: png, jpg, jpeg, gif, webp, pdf")
	ErrFileTooLarge        = errors.New("file too large (max 5MB)")
)

var allowedProofExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".pdf":  true,
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type Store struct {
	root string
	url  string
}

func NewStore(cfg config.MediaConfig) *Store {
	url := cfg.URL
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	return &Store{root: cfg.Root, url: url}
}

// URL turns a path relative to the media root into its public URL.
func (s *Store) URL(rel string) string {
	return s.url + filepath.ToSlash(rel)
}

func (s *Store) Path(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

func StaticQRPath() string {
	return path.Join(QRCodeDir, StaticQRName)
}

func OrderQRPath(orderID uuid.UUID) string {
	return path.Join(QRCodeDir, fmt.Sprintf("order_%s.png", orderID))
}

// SanitizeFilename strips directories and anything outside [A-Za-z0-9._-].
func SanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.ReplaceAll(base, " ", "_")
	base = unsafeChars.ReplaceAllString(base, "")
	base = strings.TrimLeft(base, ".")
	if base == "" {
		return "upload"
	}
	if len(base) > 100 {
		ext := filepath.Ext(base)
		base = base[:100-len(ext)] + ext
	}
	return base
}

// ValidateProofName reports whether filename carries an allowed payment proof extension.
func ValidateProofName(filename string) error {
	ext := strings.ToLower(filepath.Ext(SanitizeFilename(filename)))
	if !allowedProofExtensions[ext] {
		return ErrUnsupportedFileType
	}
	return nil
}

// SavePaymentProof writes the upload under payment_proofs/ with a timestamp prefix and returns
// its path relative to the media root.
func (s *Store) SavePaymentProof(filename string, r io.Reader) (string, error) {
	if err := ValidateProofName(filename); err != nil {
		return "", err
	}
	clean := SanitizeFilename(filename)

	dir := filepath.Join(s.root, PaymentProofDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("media: failed to create %s: %w", dir, err)
	}

	name := fmt.Sprintf("%d_%s", time.Now().UnixNano(), clean)
	full := filepath.Join(dir, name)

	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("media: failed to create %s: %w", full, err)
	}

	n, err := io.Copy(f, io.LimitReader(r, MaxProofSize+1))
	closeErr := f.Close()
	if err == nil && n > MaxProofSize {
		err = ErrFileTooLarge
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		if rmErr := os.Remove(full); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", full).Msg("media: failed to remove partial upload")
		}
		if errors.Is(err, ErrFileTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("media: failed to write %s: %w", full, err)
	}

	return path.Join(PaymentProofDir, name), nil
}

// Remove deletes a file previously stored under the media root. Missing files are not an error.
func (s *Store) Remove(rel string) error {
	if err := os.Remove(s.Path(rel)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("media: failed to remove %s: %w", rel, err)
	}
	return nil
}

// GenerateOrderQR writes qr_codes/order_{id}.png encoding payload.
func (s *Store) GenerateOrderQR(orderID uuid.UUID, payload string) (string, error) {
	rel := OrderQRPath(orderID)
	if err := s.writeQR(rel, payload); err != nil {
		return "", err
	}
	return rel, nil
}

// EnsureStaticQR writes the shared checkout QR code unless it already exists.
func (s *Store) EnsureStaticQR(payload string) (string, error) {
	rel := StaticQRPath()
	if _, err := os.Stat(s.Path(rel)); err == nil {
		return rel, nil
	}
	if err := s.writeQR(rel, payload); err != nil {
		return "", err
	}
	log.Info().Str("path", rel).Msg("media: static payment QR code generated")
	return rel, nil
}

func (s *Store) writeQR(rel, payload string) error {
	full := s.Path(rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("media: failed to create %s: %w", filepath.Dir(full), err)
	}
	if err := qrcode.WriteFile(payload, qrcode.Medium, qrSize, full); err != nil {
		return fmt.Errorf("media: failed to write QR code %s: %w", rel, err)
	}
	return nil
}
