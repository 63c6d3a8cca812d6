package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/intbuddy/internal/chat"
	"github.com/jonathan/intbuddy/internal/knowledge"
	"github.com/jonathan/intbuddy/internal/llm"
	"github.com/jonathan/intbuddy/internal/metrics"
	"github.com/jonathan/intbuddy/internal/normalize"
	"github.com/jonathan/intbuddy/internal/scrape"
	"github.com/jonathan/intbuddy/internal/types"
)

// Session errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotLoaded       = errors.New("session has no loaded interview data")
	ErrSessionEnded    = errors.New("session ended")
)

var exitCommands = map[string]bool{"exit": true, "quit": true, "bye": true}

// IsExitCommand reports whether the input ends the session.
func IsExitCommand(input string) bool {
	return exitCommands[strings.ToLower(strings.TrimSpace(input))]
}

// Scraper runs a scrape for a query.
type Scraper interface {
	RunWithProgress(ctx context.Context, q types.Query, progress scrape.ProgressFunc) (*types.ResultSet, error)
}

// ClientFactory creates the model client on first use.
type ClientFactory func(ctx context.Context) (llm.Client, error)

// Archiver persists a finished scrape. Optional.
type Archiver interface {
	SaveResultSet(ctx context.Context, q types.Query, rs *types.ResultSet) (uuid.UUID, error)
}

// ChunkArchiver is implemented by archivers that also keep the embedded chunks.
type ChunkArchiver interface {
	SaveChunks(ctx context.Context, runID uuid.UUID, chunks []types.Chunk, vectors [][]float32) error
}

// Session is one user's conversation state.
type Session struct {
	ID string

	mu     sync.Mutex
	entry  *Entry
	engine *chat.Engine
}

// Config holds Manager tunables.
type Config struct {
	TopK      int
	ChunkSize int
}

// Manager owns sessions, the query cache and the lazily created model client.
type Manager struct {
	scraper   Scraper
	newClient ClientFactory
	archiver  Archiver
	cache     *Cache
	config    Config
	logger    *zap.Logger

	mu       sync.Mutex
	client   *lease
	sessions map[string]*Session
	retiring sync.WaitGroup
}

// lease is a model client plus the calls currently running on it. A retired
// lease is closed once its calls drain.
type lease struct {
	client llm.Client
	calls  sync.WaitGroup
}

func (l *lease) release() error {
	l.calls.Wait()
	return l.client.Close()
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithArchiver persists every freshly built result set.
func WithArchiver(a Archiver) ManagerOption {
	return func(m *Manager) { m.archiver = a }
}

// WithCache shares a cache between managers.
func WithCache(c *Cache) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.cache = c
		}
	}
}

// NewManager creates a manager.
func NewManager(scraper Scraper, newClient ClientFactory, config Config, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TopK <= 0 {
		config.TopK = knowledge.DefaultTopK
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = normalize.DefaultChunkSize
	}
	m := &Manager{
		scraper:   scraper,
		newClient: newClient,
		cache:     NewCache(),
		config:    config,
		logger:    logger,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Cache returns the manager's cache.
func (m *Manager) Cache() *Cache {
	return m.cache
}

// Create starts a new, unloaded session.
func (m *Manager) Create() *Session {
	s := &Session{ID: uuid.NewString()}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get looks up a session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete removes a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Load scrapes, normalizes and indexes the query, reusing a cached build when
// one exists, and attaches a fresh conversation to the session. An entry
// without an index (no links, nothing scraped) leaves the session unloaded
// and is returned without error.
func (m *Manager) Load(ctx context.Context, id string, q types.Query, progress scrape.ProgressFunc) (*Entry, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	q = normalizeQuery(q)

	s.mu.Lock()
	defer s.mu.Unlock()

	// The build can outlive this caller when another session shares it, so
	// progress stops reaching this caller once Load returns.
	report, detach := detachable(progress)
	defer detach()

	entry, hit, err := m.cache.GetOrBuild(ctx, q, func(ctx context.Context) (*Entry, error) {
		return m.build(ctx, q, report)
	})
	if err != nil {
		return nil, err
	}
	if hit {
		m.logger.Info("using cached interview index", zap.String("key", q.Key()))
	}

	m.attach(s, entry)
	return entry, nil
}

// LoadRecords indexes records scraped earlier, such as a CSV export, and
// attaches a fresh conversation to the session. Nothing is scraped, cached or
// archived.
func (m *Manager) LoadRecords(ctx context.Context, id string, q types.Query, records []types.InterviewRecord) (*Entry, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	q = normalizeQuery(q)

	s.mu.Lock()
	defer s.mu.Unlock()

	rs := &types.ResultSet{Records: records, LinksFound: len(records), Status: types.StatusComplete}
	entry := &Entry{Query: q, Result: rs}
	if rs.Empty() {
		rs.Status = types.StatusNothingScraped
	} else if entry, err = m.index(ctx, q, rs, uuid.Nil); err != nil {
		return nil, err
	}

	m.attach(s, entry)
	return entry, nil
}

func normalizeQuery(q types.Query) types.Query {
	q.Company = strings.TrimSpace(q.Company)
	q.Role = scrape.NormalizeRole(q.Role)
	q.Pages = max(q.Pages, 1)
	return q
}

// attach points the session at entry with an empty conversation. Callers hold s.mu.
func (m *Manager) attach(s *Session, entry *Entry) {
	s.entry = entry
	s.engine = nil
	if entry.Ready() {
		s.engine = chat.NewEngine(entry.Index, m.handle(),
			chat.WithTopK(m.config.TopK),
			chat.WithLogger(m.logger.With(zap.String("session", s.ID))),
		)
	}
}

// detachable wraps progress so that it goes quiet after detach is called.
func detachable(progress scrape.ProgressFunc) (scrape.ProgressFunc, func()) {
	if progress == nil {
		return nil, func() {}
	}
	var mu sync.Mutex
	attached := true
	report := func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		if attached {
			progress(done, total)
		}
	}
	detach := func() {
		mu.Lock()
		attached = false
		mu.Unlock()
	}
	return report, detach
}

func (m *Manager) build(ctx context.Context, q types.Query, progress scrape.ProgressFunc) (*Entry, error) {
	if m.scraper == nil {
		return nil, errors.New("no scraper configured")
	}
	rs, err := m.scraper.RunWithProgress(ctx, q, progress)
	if err != nil {
		return nil, fmt.Errorf("scrape failed: %w", err)
	}

	if rs.Empty() {
		return &Entry{Query: q, Result: rs}, nil
	}

	runID := m.archive(ctx, q, rs)
	return m.index(ctx, q, rs, runID)
}

// index structures and embeds a non-empty result set. Chunks are archived
// under runID unless it is uuid.Nil.
func (m *Manager) index(ctx context.Context, q types.Query, rs *types.ResultSet, runID uuid.UUID) (*Entry, error) {
	entry := &Entry{Query: q, Result: rs}
	entry.Data = normalize.Structure(normalize.Join(rs.Records))
	if err := normalize.Validate(entry.Data); err != nil {
		m.logger.Warn("structured data failed schema validation", zap.String("key", q.Key()), zap.Error(err))
	}
	chunks := normalize.Chunks(entry.Data, m.config.ChunkSize)

	idx, err := knowledge.Build(ctx, m.handle(), chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to build knowledge index: %w", err)
	}
	entry.Index = idx

	if ca, ok := m.archiver.(ChunkArchiver); ok && runID != uuid.Nil {
		if err := ca.SaveChunks(ctx, runID, idx.Chunks(), idx.Vectors()); err != nil {
			m.logger.Warn("failed to archive chunks", zap.String("run_id", runID.String()), zap.Error(err))
		}
	}

	m.logger.Info("knowledge index ready",
		zap.Int("records", len(rs.Records)),
		zap.Int("chunks", idx.Len()),
		zap.String("status", string(rs.Status)))
	return entry, nil
}

// archive stores the result set when an archiver is configured. Archive
// failures are logged and never fail the load.
func (m *Manager) archive(ctx context.Context, q types.Query, rs *types.ResultSet) uuid.UUID {
	if m.archiver == nil {
		return uuid.Nil
	}
	runID, err := m.archiver.SaveResultSet(ctx, q, rs)
	if err != nil {
		m.logger.Warn("failed to archive result set", zap.Error(err))
		return uuid.Nil
	}
	m.logger.Info("archived result set", zap.String("run_id", runID.String()))
	return runID
}

// Ask routes a question to the session's conversation. Exit commands end the
// session: its data and history are dropped along with the cache, the model
// client is retired, and ErrSessionEnded is returned.
func (m *Manager) Ask(ctx context.Context, id, question string) (chat.Answer, error) {
	s, err := m.Get(id)
	if err != nil {
		return chat.Answer{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if IsExitCommand(question) {
		s.entry = nil
		s.engine = nil
		m.cache.Clear()
		m.dropClient()
		metrics.QuestionsTotal.WithLabelValues("ended").Inc()
		m.logger.Info("session ended", zap.String("session", s.ID))
		return chat.Answer{}, ErrSessionEnded
	}

	if s.engine == nil {
		return chat.Answer{}, ErrNotLoaded
	}

	ans, err := s.engine.Ask(ctx, question)
	if err != nil {
		metrics.QuestionsTotal.WithLabelValues("error").Inc()
		return chat.Answer{}, err
	}
	metrics.QuestionsTotal.WithLabelValues("answered").Inc()
	return ans, nil
}

// Export returns the session's loaded entry.
func (m *Manager) Export(id string) (*Entry, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == nil {
		return nil, ErrNotLoaded
	}
	return s.entry, nil
}

// History returns the session's conversation so far.
func (m *Manager) History(id string) ([]types.Turn, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return nil, nil
	}
	return s.engine.History(), nil
}

// Close releases the model client once its in-flight calls finish, and
// waits for clients retired by earlier exits.
func (m *Manager) Close() error {
	l := m.detachClient()
	m.retiring.Wait()
	if l == nil {
		return nil
	}
	return l.release()
}

// acquire returns the current client, creating it on first use, and counts
// the caller as in flight until done is called.
func (m *Manager) acquire(ctx context.Context) (llm.Client, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		if m.newClient == nil {
			return nil, nil, errors.New("no model client configured")
		}
		c, err := m.newClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create model client: %w", err)
		}
		m.client = &lease{client: c}
	}
	l := m.client
	l.calls.Add(1)
	return l.client, l.calls.Done, nil
}

func (m *Manager) detachClient() *lease {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.client
	m.client = nil
	return l
}

// dropClient retires the current client. Calls already running on it finish
// normally; the next call creates a new client.
func (m *Manager) dropClient() {
	l := m.detachClient()
	if l == nil {
		return
	}
	m.retiring.Add(1)
	go func() {
		defer m.retiring.Done()
		if err := l.release(); err != nil {
			m.logger.Warn("failed to close model client", zap.Error(err))
		}
	}()
}

func (m *Manager) handle() *modelHandle {
	return &modelHandle{m: m}
}

// modelHandle resolves the current client on every call so indexes and
// engines survive the client being dropped and recreated. Each call holds
// its client open until it returns.
type modelHandle struct {
	m *Manager
}

func (h *modelHandle) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	c, done, err := h.m.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer done()
	return c.GenerateContent(ctx, prompt, tier)
}

func (h *modelHandle) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	c, done, err := h.m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return c.EmbedDocuments(ctx, texts)
}

func (h *modelHandle) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	c, done, err := h.m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return c.EmbedQuery(ctx, text)
}
