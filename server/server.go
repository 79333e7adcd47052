package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/spindexlabs/spindex/pkg/config"
	"github.com/spindexlabs/spindex/pkg/extract"
	"github.com/spindexlabs/spindex/pkg/graph"
	"github.com/spindexlabs/spindex/pkg/index/pgstore"
	"github.com/spindexlabs/spindex/pkg/index/searchclient"
	"github.com/spindexlabs/spindex/pkg/llm"
	"github.com/spindexlabs/spindex/pkg/pipeline"
	"github.com/spindexlabs/spindex/pkg/processor"
	"github.com/spindexlabs/spindex/pkg/security"

	itypes "github.com/spindexlabs/spindex/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is the frame exchanged over the socket. Clients send ingest and
// query requests; the server answers with status, progress, result and
// error frames tagged with the originating run id.
type Message struct {
	Type    string      `json:"type"`
	RunID   string      `json:"run_id,omitempty"`
	Content string      `json:"content,omitempty"`
	Group   string      `json:"group,omitempty"`
	Limit   int         `json:"limit,omitempty"`
	Pages   bool        `json:"pages,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type WSServer struct {
	config   *config.Config
	embedder itypes.Embedder
	indexer  itypes.Indexer
}

func NewWSServer(cfg *config.Config) (*WSServer, error) {
	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Endpoint:   cfg.Embedding.Endpoint,
		APIKey:     cfg.Embedding.APIKey,
		Deployment: cfg.Embedding.Deployment,
		Model:      cfg.Embedding.Model,
		APIVersion: cfg.Embedding.APIVersion,
		MaxRetries: cfg.Embedding.MaxRetries,
		RetryDelay: time.Duration(cfg.Embedding.RetryDelayMS) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	var indexer itypes.Indexer
	switch cfg.Index.Backend {
	case "postgres":
		indexer, err = pgstore.NewWithConfig(context.Background(), pgstore.StoreConfig{
			ConnString: cfg.Index.DatabaseURL,
			TableName:  cfg.Index.TableName,
			VectorDim:  cfg.Index.VectorDim,
			BatchSize:  cfg.Index.BatchSize,
		})
	default:
		indexer, err = searchclient.NewWithConfig(searchclient.ClientConfig{
			Endpoint:   cfg.Index.Endpoint,
			APIKey:     cfg.Index.APIKey,
			IndexName:  cfg.Index.IndexName,
			APIVersion: cfg.Index.APIVersion,
			BatchSize:  cfg.Index.BatchSize,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize indexer: %w", err)
	}

	return &WSServer{
		config:   cfg,
		embedder: embedder,
		indexer:  indexer,
	}, nil
}

func (s *WSServer) Close() {
	s.indexer.Close()
}

func (s *WSServer) newPipeline(ctx context.Context, includePages bool, onEvent func(pipeline.Event)) (*pipeline.Pipeline, error) {
	client, err := graph.NewWithConfig(ctx, graph.ClientConfig{
		TenantID:      s.config.Graph.TenantID,
		ClientID:      s.config.Graph.ClientID,
		ClientSecret:  s.config.Graph.ClientSecret,
		RateLimit:     s.config.Graph.RateLimit,
		FileFormats:   s.config.Graph.FileFormats,
		ModifiedSince: time.Duration(s.config.Graph.ModifiedSinceMinutes) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize graph client: %w", err)
	}

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:      s.config.Processor.ChunkSize,
		ChunkOverlap:   s.config.Processor.ChunkOverlap,
		MinChunkLength: s.config.Processor.MinChunkLength,
	})

	manager := security.NewManager(s.config.Security.GroupMapping, s.config.Security.DefaultGroup)

	return pipeline.New(client, extract.New(), &proc, s.embedder, s.indexer, manager, pipeline.Config{
		SiteDomain:   s.config.Graph.SiteDomain,
		SiteName:     s.config.Graph.SiteName,
		FolderPath:   s.config.Graph.FolderPath,
		IncludePages: includePages,
		OnEvent:      onEvent,
	}), nil
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Error reading message: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling message: %v", err)
			continue
		}

		go s.handleMessage(r.Context(), &syncConn{conn: conn}, msg)
	}
}

func (s *WSServer) handleMessage(ctx context.Context, conn *syncConn, msg Message) {
	runID := uuid.NewString()

	switch msg.Type {
	case "ingest":
		s.handleIngest(ctx, conn, runID, msg)
	case "query":
		s.handleQuery(ctx, conn, runID, msg)
	default:
		conn.send(Message{Type: "error", RunID: runID,
			Content: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

func (s *WSServer) handleIngest(ctx context.Context, conn *syncConn, runID string, msg Message) {
	conn.send(Message{Type: "status", RunID: runID, Content: "starting ingestion"})

	p, err := s.newPipeline(ctx, msg.Pages, func(e pipeline.Event) {
		conn.send(Message{
			Type:    "progress",
			RunID:   runID,
			Content: e.Stage,
			Data:    map[string]string{"path": e.Path, "message": e.Message},
		})
	})
	if err != nil {
		conn.send(Message{Type: "error", RunID: runID, Content: err.Error()})
		return
	}

	stats, err := p.Ingest(ctx)
	if err != nil {
		conn.send(Message{Type: "error", RunID: runID, Content: err.Error()})
		return
	}

	conn.send(Message{Type: "result", RunID: runID, Content: "ingestion complete", Data: stats})
}

func (s *WSServer) handleQuery(ctx context.Context, conn *syncConn, runID string, msg Message) {
	p, err := s.newPipeline(ctx, false, nil)
	if err != nil {
		conn.send(Message{Type: "error", RunID: runID, Content: err.Error()})
		return
	}

	results, err := p.Query(ctx, msg.Content, msg.Group, msg.Limit)
	if err != nil {
		conn.send(Message{Type: "error", RunID: runID, Content: err.Error()})
		return
	}

	conn.send(Message{Type: "result", RunID: runID, Data: results})
}

// syncConn serializes writes; ingest and query runs report progress from
// their own goroutines.
type syncConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *syncConn) send(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

// Run starts the WebSocket server and blocks until it fails.
func Run(cfg *config.Config) error {
	server, err := NewWSServer(cfg)
	if err != nil {
		return err
	}
	defer server.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	log.Printf("Starting WebSocket server on port %s", cfg.Server.Port)
	return http.ListenAndServe(":"+cfg.Server.Port, mux)
}
