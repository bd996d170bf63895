// Package ops routes validated content operations to the BookStack API and
// reshapes responses into the uniform tool envelope.
package ops

// Entity identifies one of the remote content types.
type Entity string

const (
	EntityBook      Entity = "book"
	EntityBookshelf Entity = "bookshelf"
	EntityChapter   Entity = "chapter"
	EntityPage      Entity = "page"
	EntityImage     Entity = "image"
)

// Entities lists every valid entity type, in tool-schema order.
var Entities = []Entity{EntityBook, EntityBookshelf, EntityChapter, EntityPage, EntityImage}

// Valid reports whether e names a known entity type.
func (e Entity) Valid() bool {
	switch e {
	case EntityBook, EntityBookshelf, EntityChapter, EntityPage, EntityImage:
		return true
	}
	return false
}

// Resource returns the upstream API path segment for the entity.
func (e Entity) Resource() string {
	switch e {
	case EntityBook:
		return "books"
	case EntityBookshelf:
		return "bookshelves"
	case EntityChapter:
		return "chapters"
	case EntityPage:
		return "pages"
	case EntityImage:
		return "image-gallery"
	}
	return ""
}

// DefaultCount is the default list page size per entity.
func (e Entity) DefaultCount() int {
	if e == EntityImage {
		return 20
	}
	return 100
}

// Operation is one of the CRUD+list verbs applied to an entity type.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpList   Operation = "list"
)

// Valid reports whether o names a known operation.
func (o Operation) Valid() bool {
	switch o {
	case OpCreate, OpRead, OpUpdate, OpDelete, OpList:
		return true
	}
	return false
}

// Mutates reports whether the operation changes upstream state (and must
// therefore invalidate the cache on success).
func (o Operation) Mutates() bool {
	return o == OpCreate || o == OpUpdate || o == OpDelete
}
