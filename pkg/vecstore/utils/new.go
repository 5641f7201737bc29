package vecstoreutils

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/anatolykoptev/MemOS/pkg/vecstore"
	"github.com/anatolykoptev/MemOS/pkg/vecstore/memvec"
	"github.com/anatolykoptev/MemOS/pkg/vecstore/qdrant"
	"github.com/anatolykoptev/MemOS/pkg/vecstore/router"
)

type NewStoreOpts struct {
	ProviderType   string
	Collection     string
	Dimension      int
	DistanceMetric string
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	Logger         *zap.Logger
}

// NewStore builds a single-collection vector store for the configured
// provider.
func NewStore(o *NewStoreOpts) (vecstore.Store, error) {
	switch o.ProviderType {
	case "qdrant":
		return qdrant.NewStore(qdrant.Config{
			Collection:     o.Collection,
			Dimension:      o.Dimension,
			DistanceMetric: o.DistanceMetric,
			Host:           o.Host,
			Port:           o.Port,
			APIKey:         o.APIKey,
			UseTLS:         o.UseTLS,
		}, o.Logger)
	case "memvec", "memory":
		return memvec.NewStore(memvec.Config{
			Collection: o.Collection,
			Dimension:  o.Dimension,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}

// NewRouter builds one store per collection from the shared options,
// specialized only by collection name, and wires them into a router.
func NewRouter(collections []string, o *NewStoreOpts) (*router.Router, error) {
	build := func(collection string) (vecstore.Store, error) {
		opts := *o
		opts.Collection = collection
		return NewStore(&opts)
	}
	return router.New(collections, build, o.Logger)
}
