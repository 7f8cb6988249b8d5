package helper

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"document-qa/internal/models"
)

// identityLength is the number of hex characters kept from the content hash
const identityLength = 16

// GenerateUUID creates a random unique UUID string
func GenerateUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID: %v", err)
	}
	return id.String(), nil
}

// pretty print
func PrettyPrint(w io.Writer, v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Error pretty printing")
		return
	}
	fmt.Fprintln(w, string(b))
}

// DocumentIdentity hashes the file content. Identical bytes give identical identities
// regardless of the file name or location.
func DocumentIdentity(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", models.ErrFileNotFound, path)
		}
		return "", fmt.Errorf("%w: %v", models.ErrExtractionFailed, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrExtractionFailed, err)
	}
	return hex.EncodeToString(h.Sum(nil))[:identityLength], nil
}

// NewDocument resolves path into a Document with its content identity
func NewDocument(path string) (models.Document, error) {
	id, err := DocumentIdentity(path)
	if err != nil {
		return models.Document{}, err
	}
	return models.Document{
		ID:   id,
		Path: path,
		Name: filepath.Base(path),
	}, nil
}

// CreateFolder creates path and any missing parents
func CreateFolder(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create folder %s: %v", path, err)
	}
	return nil
}
