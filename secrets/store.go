package secrets

import (
	"context"
)

type Store interface {
	Get(key string, ctx context.Context) (*Credential, error)
	Write(key string, credential *Credential, ctx context.Context) error
	// Delete removes a credential. Deleting an absent key is not an error.
	Delete(key string, ctx context.Context) error
	Provider() string
}
