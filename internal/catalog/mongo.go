package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

// Options configures the MongoDB question catalog.
type Options struct {
	URI        string
	Database   string
	Collection string
	// Timeout bounds each catalog operation. Zero means 10 seconds.
	Timeout time.Duration
}

// MongoCatalog serves interview questions from a MongoDB collection.
// Documents carry a string "id" field alongside the Mongo object id;
// lookups use the string id so question references in session documents
// stay storage-agnostic.
type MongoCatalog struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
}

// NewMongoCatalog connects to MongoDB and verifies connectivity.
func NewMongoCatalog(ctx context.Context, opts Options) (*MongoCatalog, error) {
	if opts.URI == "" {
		return nil, errors.New("mongo catalog requires a connection URI")
	}
	if opts.Database == "" {
		opts.Database = "codepair"
	}
	if opts.Collection == "" {
		opts.Collection = "questions"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	client, err := mongo.Connect(options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoCatalog{
		client:     client,
		collection: client.Database(opts.Database).Collection(opts.Collection),
		timeout:    opts.Timeout,
	}, nil
}

// ListQuestions returns all questions in the collection.
func (c *MongoCatalog) ListQuestions(ctx context.Context) ([]*types.Question, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cursor, err := c.collection.Find(opCtx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer func() { _ = cursor.Close(opCtx) }()

	var questions []*types.Question
	if err := cursor.All(opCtx, &questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}
	return questions, nil
}

// GetQuestion returns one question by its string id.
func (c *MongoCatalog) GetQuestion(ctx context.Context, id string) (*types.Question, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var question types.Question
	err := c.collection.FindOne(opCtx, bson.M{"id": id}).Decode(&question)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, interfaces.ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to query question %s: %w", id, err)
	}
	return &question, nil
}

// StarterCode returns the starter snippet for a question in one language.
func (c *MongoCatalog) StarterCode(ctx context.Context, id, language string) (string, error) {
	question, err := c.GetQuestion(ctx, id)
	if err != nil {
		return "", err
	}
	return question.StarterCode[language], nil
}

// Close disconnects the MongoDB client.
func (c *MongoCatalog) Close(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}
