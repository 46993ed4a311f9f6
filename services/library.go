package services

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/philippgille/chromem-go"

	"analystbot/config"
	"analystbot/logger"
	"analystbot/models"
)

// LibraryService indexes a local folder of analyst briefings into a
// chromem-go collection and serves them as fallback sources when web
// retrieval degrades.
type LibraryService struct {
	db          *chromem.DB
	collection  *chromem.Collection
	dataPath    string
	collName    string
	chunkSize   int
	watch       bool
	watcher     *fsnotify.Watcher
	cancelWatch context.CancelFunc
	initialized bool
}

// NewLibraryService creates a new library service instance
func NewLibraryService(cfg config.LibraryConfig) *LibraryService {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &LibraryService{
		dataPath:  cfg.DataPath,
		collName:  cfg.Collection,
		chunkSize: chunkSize,
		watch:     cfg.Watch,
	}
}

// Initialize sets up the collection, indexes existing documents, and starts
// the folder watcher when enabled. OpenAI embeddings are used when an API key
// is present, chromem's default embeddings otherwise.
func (l *LibraryService) Initialize() error {
	db := chromem.NewDB()

	var embeddingFunc chromem.EmbeddingFunc
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		embeddingFunc = chromem.NewEmbeddingFuncOpenAI(key, chromem.EmbeddingModelOpenAI3Small)
	} else {
		logger.Info("no OpenAI API key, library uses default embeddings")
	}

	collection, err := db.GetOrCreateCollection(l.collName, nil, embeddingFunc)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	l.db = db
	l.collection = collection
	l.initialized = true

	if err := l.indexAll(); err != nil {
		return err
	}

	if l.watch {
		if err := l.startWatcher(); err != nil {
			logger.Warn("library watcher unavailable, live indexing disabled", "error", err)
		}
	}

	logger.Info("library initialized", "collection", l.collName, "data_path", l.dataPath)
	return nil
}

// Retrieve queries the library for chunks relevant to the prompt and maps
// them into sources (title = file name, no URL).
func (l *LibraryService) Retrieve(ctx context.Context, query string, limit int) ([]models.Source, error) {
	if !l.initialized {
		return nil, fmt.Errorf("library not initialized")
	}
	if limit <= 0 {
		limit = 5
	}
	if n := l.collection.Count(); n < limit {
		if n == 0 {
			return nil, nil
		}
		limit = n
	}

	results, err := l.collection.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query library: %w", err)
	}

	sources := make([]models.Source, 0, len(results))
	for _, r := range results {
		doc := models.LibraryDocument{
			ID:      r.ID,
			Content: r.Content,
			Source:  r.Metadata["file_path"],
			Score:   float64(r.Similarity),
			Meta:    r.Metadata,
		}
		title := doc.Meta["file_name"]
		if title == "" {
			title = doc.ID
		}
		logger.Debug("library hit", "id", doc.ID, "score", doc.Score)
		sources = append(sources, models.Source{
			Title:   title,
			Snippet: doc.Content,
		})
	}
	return sources, nil
}

// indexAll walks the data folder and indexes every supported file
func (l *LibraryService) indexAll() error {
	if _, err := os.Stat(l.dataPath); os.IsNotExist(err) {
		logger.Info("library data path missing, creating it", "data_path", l.dataPath)
		if err := os.MkdirAll(l.dataPath, 0755); err != nil {
			return fmt.Errorf("failed to create data path: %w", err)
		}
		return nil
	}

	count := 0
	err := filepath.WalkDir(l.dataPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if !isSupportedFileType(filepath.Ext(path)) {
			return nil
		}
		if err := l.indexFile(path); err != nil {
			logger.Warn("failed to index file", "path", path, "error", err)
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk data directory: %w", err)
	}

	logger.Info("library documents indexed", "files", count, "data_path", l.dataPath)
	return nil
}

// indexFile chunks one briefing file and adds the chunks to the collection
func (l *LibraryService) indexFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	base := strings.TrimSuffix(name, filepath.Ext(name))

	chunks := chunkText(string(content), l.chunkSize)
	for i, chunk := range chunks {
		doc := chromem.Document{
			ID:      fmt.Sprintf("%s_chunk_%d", base, i),
			Content: chunk,
			Metadata: map[string]string{
				"file_name":  name,
				"file_path":  path,
				"indexed_at": time.Now().UTC().Format(time.RFC3339),
			},
		}
		if err := l.collection.AddDocument(context.Background(), doc); err != nil {
			return fmt.Errorf("failed to add chunk %d: %w", i, err)
		}
	}
	return nil
}

// startWatcher indexes briefing files as they are created or modified
func (l *LibraryService) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(l.dataPath); err != nil {
		watcher.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.watcher = watcher
	l.cancelWatch = cancel

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				if !isSupportedFileType(filepath.Ext(event.Name)) {
					continue
				}
				if err := l.indexFile(event.Name); err != nil {
					logger.Warn("failed to index changed file", "path", event.Name, "error", err)
				} else {
					logger.Debug("indexed changed file", "path", event.Name)
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("library watcher error", "error", werr)
			}
		}
	}()

	logger.Info("library watcher started", "data_path", l.dataPath)
	return nil
}

// IsEnabled returns whether the library is initialized
func (l *LibraryService) IsEnabled() bool {
	return l.initialized
}

// Close stops the watcher and marks the library inactive
func (l *LibraryService) Close() error {
	if l.cancelWatch != nil {
		l.cancelWatch()
	}
	l.initialized = false
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

// GetStatus returns the status of the library service
func (l *LibraryService) GetStatus() map[string]interface{} {
	status := map[string]interface{}{
		"collection": l.collName,
		"data_path":  l.dataPath,
		"chunk_size": l.chunkSize,
		"watching":   l.watcher != nil,
	}
	if l.initialized {
		status["status"] = "active"
		status["documents"] = l.collection.Count()
	} else {
		status["status"] = "inactive"
	}
	return status
}

// isSupportedFileType checks if file type is indexable
func isSupportedFileType(ext string) bool {
	switch strings.ToLower(ext) {
	case ".txt", ".md", ".json", ".csv", ".log", ".yml", ".yaml":
		return true
	}
	return false
}

var sentenceRegex = regexp.MustCompile(`[.!?]+\s+`)

// chunkText splits text into sentence-aligned chunks of roughly maxChunkSize
// characters.
func chunkText(text string, maxChunkSize int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxChunkSize {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	for _, sentence := range sentenceRegex.Split(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if current.Len()+len(sentence) > maxChunkSize && current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(sentence)
		current.WriteString(" ")
	}

	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	return chunks
}
