package forecast

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/greenledger/cbio-forecast/internal/gbm"
)

// ArtifactStore persists the fitted model and its feature list as two files.
// The model is written first; the feature list records the model's checksum so a
// pair left torn by a crash between the two writes is rejected on load.
// ⭐ SSOT: artifact paths are only read and written here
type ArtifactStore struct {
	modelPath    string
	featuresPath string
	mu           sync.RWMutex
}

// featureFile is the on-disk feature list
type featureFile struct {
	Features    []string  `json:"features"`
	ModelSHA256 string    `json:"model_sha256"`
	RunID       string    `json:"run_id"`
	SavedAt     time.Time `json:"saved_at"`
}

// NewArtifactStore creates a store over the two artifact paths
func NewArtifactStore(modelPath, featuresPath string) *ArtifactStore {
	return &ArtifactStore{modelPath: modelPath, featuresPath: featuresPath}
}

// Save writes the model then the feature list, each atomically
func (s *ArtifactStore) Save(m *Model, columns []string, runID string) error {
	if !m.Fitted() {
		return &ModelError{Op: "save", Err: ErrModelNotTrained}
	}
	if !slices.Equal(columns, m.ensemble.Features) {
		return &ModelError{Op: "save", Err: ErrFeatureMismatch}
	}

	modelData, err := m.ensemble.Encode()
	if err != nil {
		return &ModelError{Op: "save", Err: err}
	}
	sum := sha256.Sum256(modelData)

	featureData, err := json.MarshalIndent(featureFile{
		Features:    columns,
		ModelSHA256: hex.EncodeToString(sum[:]),
		RunID:       runID,
		SavedAt:     time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return &ModelError{Op: "save", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.modelPath, modelData); err != nil {
		return &ModelError{Op: "save", Err: err}
	}
	if err := writeAtomic(s.featuresPath, featureData); err != nil {
		return &ModelError{Op: "save", Err: err}
	}
	return nil
}

// Load reads both artifacts. Either file missing is ErrModelNotFound.
func (s *ArtifactStore) Load() (*Model, []string, error) {
	s.mu.RLock()
	modelData, modelErr := os.ReadFile(s.modelPath)
	featureData, featureErr := os.ReadFile(s.featuresPath)
	s.mu.RUnlock()

	for _, err := range []error{modelErr, featureErr} {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrModelNotFound
		}
		if err != nil {
			return nil, nil, &ModelError{Op: "load", Err: err}
		}
	}

	var ff featureFile
	if err := json.Unmarshal(featureData, &ff); err != nil {
		return nil, nil, &ModelError{Op: "load", Err: fmt.Errorf("feature list: %w", err)}
	}
	sum := sha256.Sum256(modelData)
	if ff.ModelSHA256 != hex.EncodeToString(sum[:]) {
		return nil, nil, &ModelError{Op: "load", Err: errors.New("model and feature list come from different training runs")}
	}

	ensemble, err := gbm.Decode(modelData)
	if err != nil {
		return nil, nil, &ModelError{Op: "load", Err: err}
	}
	if !slices.Equal(ff.Features, ensemble.Features) {
		return nil, nil, &ModelError{Op: "load", Err: ErrFeatureMismatch}
	}
	return modelFromEnsemble(ensemble), ff.Features, nil
}

// writeAtomic replaces path with data via a temp file in the same directory
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
