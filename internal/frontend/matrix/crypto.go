// ABOUTME: Encryption setup for the threadloom Matrix bridge
// ABOUTME: Configures E2EE with a SQLite-backed store using mautrix cryptohelper

package matrix

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	// SQLite driver for the mautrix crypto store.
	_ "github.com/mattn/go-sqlite3"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/crypto/cryptohelper"

	"github.com/2389/threadloom/internal/config"
)

// CryptoManager handles Matrix E2EE setup and lifecycle.
type CryptoManager struct {
	helper *cryptohelper.CryptoHelper
	logger *slog.Logger
}

// SetupCrypto initializes E2EE for the Matrix client using the configured
// SQLite crypto store. The pickle key encrypts the store at rest; when unset,
// a deterministic key derived from the user id is used instead.
func SetupCrypto(ctx context.Context, client *mautrix.Client, cfg config.MatrixConfig, logger *slog.Logger) (*CryptoManager, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.CryptoDBPath), 0700); err != nil {
		return nil, fmt.Errorf("creating crypto db directory: %w", err)
	}

	storeKey := []byte(cfg.PickleKey)
	if len(storeKey) == 0 {
		storeKey = deriveStoreKey(cfg.UserID)
	}

	logger.Info("setting up encryption", "db", cfg.CryptoDBPath)

	helper, err := cryptohelper.NewCryptoHelper(client, storeKey, cfg.CryptoDBPath)
	if err != nil {
		return nil, fmt.Errorf("creating crypto helper: %w", err)
	}
	if err := helper.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing crypto helper: %w", err)
	}

	logger.Info("encryption initialized")
	return &CryptoManager{helper: helper, logger: logger}, nil
}

// Helper returns the underlying CryptoHelper for advanced operations.
func (cm *CryptoManager) Helper() *cryptohelper.CryptoHelper {
	return cm.helper
}

// Close cleans up crypto resources.
func (cm *CryptoManager) Close() error {
	if cm.helper != nil {
		return cm.helper.Close()
	}
	return nil
}

// deriveStoreKey creates a deterministic store encryption key from the user
// id, giving per-user isolation without requiring an external secret.
func deriveStoreKey(userID string) []byte {
	h := sha256.Sum256([]byte("threadloom-crypto:" + userID))
	return h[:]
}
