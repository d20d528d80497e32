package repo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/vgarzom/miso4208-project-cypress-executor/internal/domain"
)

// Имена коллекций.
const (
	CollectionJobs         = "testobjects"
	CollectionCases        = "test-cases"
	CollectionCompilations = "appcompilationmodels"
)

const (
	defaultMongoDatabase = "test"
	pingTimeout          = 5 * time.Second
)

// MongoStore — хранилище job'ов в MongoDB.
type MongoStore struct {
	uri    string
	dbName string
	logger *slog.Logger

	mu     sync.RWMutex
	client *mongo.Client
	jobs   *mongo.Collection
}

// MongoConfig — конфигурация MongoStore.
type MongoConfig struct {
	// URI — строка подключения (mongodb:// или mongodb+srv://).
	URI string

	// Database — имя БД. Если пусто — берётся из URI, иначе "test".
	Database string

	Logger *slog.Logger
}

// NewMongoStore создаёт MongoStore. Соединение устанавливается в Connect.
func NewMongoStore(cfg MongoConfig) *MongoStore {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dbName := cfg.Database
	if dbName == "" {
		if cs, err := connstring.ParseAndValidate(cfg.URI); err == nil && cs.Database != "" {
			dbName = cs.Database
		} else {
			dbName = defaultMongoDatabase
		}
	}

	return &MongoStore{uri: cfg.URI, dbName: dbName, logger: logger}
}

// Connect подключается к MongoDB и проверяет соединение ping'ом.
func (s *MongoStore) Connect(ctx context.Context) error {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(s.uri).
		SetServerSelectionTimeout(pingTimeout))
	if err != nil {
		return fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("mongo ping: %w", err)
	}

	s.mu.Lock()
	s.client = client
	s.jobs = client.Database(s.dbName).Collection(CollectionJobs)
	s.mu.Unlock()

	s.logger.Info("connected to MongoDB", "database", s.dbName)
	return nil
}

// Connected возвращает true после успешного Connect.
func (s *MongoStore) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil
}

// Close закрывает соединение.
func (s *MongoStore) Close(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.jobs = nil
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Disconnect(ctx)
}

func (s *MongoStore) collection() (*mongo.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.jobs == nil {
		return nil, ErrNotConnected
	}
	return s.jobs, nil
}

// FetchFull возвращает job вместе с тест-кейсом и сборкой.
// Job без любой из ссылок считается ненайденным.
func (s *MongoStore) FetchFull(ctx context.Context, id string) (*domain.Job, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid job id %q", ErrNotFound, id)
	}

	jobs, err := s.collection()
	if err != nil {
		return nil, err
	}

	cur, err := jobs.Aggregate(ctx, jobPipeline(oid))
	if err != nil {
		return nil, fmt.Errorf("%w: aggregate job %s: %v", ErrQuery, id, err)
	}

	var docs []jobDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: decode job %s: %v", ErrQuery, id, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}

	return docs[0].toDomain(), nil
}

// SetStatus обновляет статус, если переход из текущего статуса допустим.
func (s *MongoStore) SetStatus(ctx context.Context, id string, status domain.JobStatus) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: invalid job id %q", ErrNotFound, id)
	}

	jobs, err := s.collection()
	if err != nil {
		return err
	}

	filter := transitionFilter(oid, status)
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: string(status)}}}}

	res, err := jobs.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: job %s cannot move to %s", ErrInvalidState, id, status)
	}
	return nil
}

// SaveResult записывает итог прогона: status, reporterStats, error, screenshots.
// Уже завершённый job не перезаписывается.
func (s *MongoStore) SaveResult(ctx context.Context, job *domain.Job) error {
	oid, err := primitive.ObjectIDFromHex(job.ID)
	if err != nil {
		return fmt.Errorf("%w: invalid job id %q", ErrNotFound, job.ID)
	}

	jobs, err := s.collection()
	if err != nil {
		return err
	}

	filter := unfinishedFilter(oid)
	update := bson.D{{Key: "$set", Value: resultFields(job)}}

	res, err := jobs.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: job %s already finished", ErrInvalidState, job.ID)
	}
	return nil
}

// jobPipeline — $match по id и обязательные связи (unwind без preserveNull).
func jobPipeline(id primitive.ObjectID) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "_id", Value: id}}}},
		lookup(CollectionCases, "case_id", "case"),
		{{Key: "$unwind", Value: "$case"}},
		lookup(CollectionCompilations, "app_compilation_id", "compilation"),
		{{Key: "$unwind", Value: "$compilation"}},
		{{Key: "$limit", Value: 1}},
	}
}

func lookup(from, localField, as string) bson.D {
	return bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: from},
		{Key: "localField", Value: localField},
		{Key: "foreignField", Value: "_id"},
		{Key: "as", Value: as},
	}}}
}

// transitionFilter выбирает job, из текущего статуса которого допустим
// переход в next. Отсутствующий статус считается pending.
func transitionFilter(id primitive.ObjectID, next domain.JobStatus) bson.D {
	var sources []any
	for _, s := range domain.SourcesOf(next) {
		sources = append(sources, string(s))
		if s == domain.JobStatusPending {
			// null в $in совпадает и с отсутствующим полем.
			sources = append(sources, "", nil)
		}
	}
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "status", Value: bson.D{{Key: "$in", Value: sources}}},
	}
}

// unfinishedFilter выбирает job, который ещё не завершён.
// $nin совпадает и с документами без поля status.
func unfinishedFilter(id primitive.ObjectID) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "status", Value: bson.D{{Key: "$nin", Value: domain.Strings(terminalStatuses())}}},
	}
}

func terminalStatuses() []domain.JobStatus {
	var out []domain.JobStatus
	for _, s := range domain.Statuses {
		if s.IsTerminal() {
			out = append(out, s)
		}
	}
	return out
}

func resultFields(job *domain.Job) bson.D {
	screenshots := job.Screenshots
	if screenshots == nil {
		screenshots = []domain.Screenshot{}
	}
	return bson.D{
		{Key: "status", Value: string(job.Status)},
		{Key: "reporterStats", Value: job.ReporterStats},
		{Key: "error", Value: job.Error},
		{Key: "screenshots", Value: screenshots},
	}
}

// jobDoc — документ job после aggregation.
type jobDoc struct {
	ID            primitive.ObjectID    `bson:"_id"`
	CaseID        primitive.ObjectID    `bson:"case_id"`
	CompilationID primitive.ObjectID    `bson:"app_compilation_id"`
	Status        string                `bson:"status"`
	ReporterStats *domain.ReporterStats `bson:"reporterStats,omitempty"`
	Error         *string               `bson:"error,omitempty"`
	Screenshots   []domain.Screenshot   `bson:"screenshots,omitempty"`
	Case          caseDoc               `bson:"case"`
	Compilation   bson.M                `bson:"compilation"`
}

type caseDoc struct {
	ID       primitive.ObjectID `bson:"_id"`
	Name     string             `bson:"name,omitempty"`
	FileName string             `bson:"file_name"`
}

func (d *jobDoc) toDomain() *domain.Job {
	job := &domain.Job{
		ID:            d.ID.Hex(),
		CaseID:        d.CaseID.Hex(),
		CompilationID: d.CompilationID.Hex(),
		Status:        domain.JobStatus(d.Status),
		ReporterStats: d.ReporterStats,
		Error:         d.Error,
		Screenshots:   d.Screenshots,
		Case: domain.Case{
			ID:       d.Case.ID.Hex(),
			Name:     d.Case.Name,
			FileName: d.Case.FileName,
		},
	}

	attrs := make(map[string]any, len(d.Compilation))
	for k, v := range d.Compilation {
		if k == "_id" {
			if oid, ok := v.(primitive.ObjectID); ok {
				job.Compilation.ID = oid.Hex()
			}
			continue
		}
		attrs[k] = v
	}
	job.Compilation.Attributes = attrs

	return job
}
