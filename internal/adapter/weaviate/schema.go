package weaviate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// DefaultClass is the class chunks are stored under when none is configured.
const DefaultClass = "DocumentChunk"

const (
	propDocID      = "docId"
	propChunkIndex = "chunkIndex"
	propSection    = "section"
	propContent    = "content"
	propFilename   = "filename"
)

// ErrSchemaConflict means an existing class declares a chunk property with a
// different data type. Weaviate cannot change a property's type in place.
var ErrSchemaConflict = errors.New("weaviate schema conflict")

// chunkProperties is the chunk class layout. Identifier-like fields use field
// tokenization so equality filters match the whole value.
func chunkProperties() []*models.Property {
	return []*models.Property{
		{Name: propContent, DataType: []string{"text"}, Description: "chunk text"},
		{Name: propDocID, DataType: []string{"text"}, Tokenization: "field", Description: "document id"},
		{Name: propChunkIndex, DataType: []string{"int"}, Description: "position of the chunk in its document"},
		{Name: propSection, DataType: []string{"text"}, Tokenization: "field", Description: "nearest heading"},
		{Name: propFilename, DataType: []string{"text"}, Tokenization: "field", Description: "display name"},
	}
}

// schemaAPI is the slice of the Weaviate schema endpoints ensureSchema needs.
type schemaAPI interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

type clientSchema struct {
	client *weaviate.Client
}

func (c clientSchema) ClassExists(ctx context.Context, className string) (bool, error) {
	return c.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
}

func (c clientSchema) CreateClass(ctx context.Context, class *models.Class) error {
	return c.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (c clientSchema) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return c.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
}

func (c clientSchema) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return c.client.Schema().PropertyCreator().WithClassName(className).WithProperty(property).Do(ctx)
}

// ensureSchema creates className with the chunk layout, or brings an older
// class up to date by adding the properties it lacks.
func ensureSchema(ctx context.Context, api schemaAPI, className string) error {
	exists, err := api.ClassExists(ctx, className)
	if err != nil {
		return fmt.Errorf("check class %s: %w", className, err)
	}
	if !exists {
		err := api.CreateClass(ctx, &models.Class{
			Class:       className,
			Description: "A chunk of an indexed document",
			Vectorizer:  "none",
			Properties:  chunkProperties(),
		})
		if err != nil {
			return fmt.Errorf("create class %s: %w", className, err)
		}
		slog.InfoContext(ctx, "weaviate class created", "class", className)
		return nil
	}

	class, err := api.GetClass(ctx, className)
	if err != nil {
		return fmt.Errorf("get class %s: %w", className, err)
	}
	existing := make(map[string]*models.Property, len(class.Properties))
	for _, p := range class.Properties {
		existing[p.Name] = p
	}

	for _, want := range chunkProperties() {
		have, ok := existing[want.Name]
		if !ok {
			if err := api.AddProperty(ctx, className, want); err != nil {
				return fmt.Errorf("add property %s.%s: %w", className, want.Name, err)
			}
			slog.InfoContext(ctx, "weaviate property added", "class", className, "property", want.Name)
			continue
		}
		if !slices.Equal(have.DataType, want.DataType) {
			return fmt.Errorf("%w: %s.%s is %v, want %v", ErrSchemaConflict, className, want.Name, have.DataType, want.DataType)
		}
	}
	return nil
}
