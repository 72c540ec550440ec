package station

import (
	"crypto/rand"
	"os"

	"github.com/libp2p/go-libp2p/core/crypto"

	"github.com/hmatuschek/vlfnet/internal/vlferr"
)

// loadOrCreateIdentity reads the station's persistent keypair from path,
// generating and persisting a new Ed25519 key if the file doesn't exist
// yet. The on-disk encoding is opaque to the rest of the core, owned
// entirely by the overlay's crypto package.
func loadOrCreateIdentity(path string) (crypto.PrivKey, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		priv, _, genErr := crypto.GenerateEd25519Key(rand.Reader)
		if genErr != nil {
			return nil, vlferr.Wrap(vlferr.ConfigError, "generate identity: %v", genErr)
		}
		marshaled, marshalErr := crypto.MarshalPrivateKey(priv)
		if marshalErr != nil {
			return nil, vlferr.Wrap(vlferr.ConfigError, "marshal identity: %v", marshalErr)
		}
		if writeErr := os.WriteFile(path, marshaled, 0o600); writeErr != nil {
			return nil, vlferr.Wrap(vlferr.ConfigError, "write %s: %v", path, writeErr)
		}
		return priv, nil
	}
	if err != nil {
		return nil, vlferr.Wrap(vlferr.ConfigError, "read %s: %v", path, err)
	}

	priv, err := crypto.UnmarshalPrivateKey(raw)
	if err != nil {
		return nil, vlferr.Wrap(vlferr.ConfigError, "unmarshal %s: %v", path, err)
	}
	return priv, nil
}
