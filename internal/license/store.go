package license

import "context"

// Store persists collections. Implementations must make Update atomic with
// respect to other Update and Save calls on the same collection.
type Store interface {
	Load(ctx context.Context, id string) (Collection, error)
	Save(ctx context.Context, id string, coll Collection) error
	Update(ctx context.Context, id string, fn func(Collection) (Collection, error)) error
	List(ctx context.Context) ([]string, error)
}
