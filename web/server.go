package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/xcono/gridbase/perm"
	"github.com/xcono/gridbase/schema"
	"github.com/xcono/gridbase/store"
	"github.com/xcono/gridbase/view"
	"github.com/xcono/gridbase/web/handlers"
)

// NewLogger builds the process logger: verbose development output when debug
// is set, JSON production output otherwise.
func NewLogger(debug bool) (*zap.SugaredLogger, error) {
	var logger *zap.Logger
	var err error
	if debug {
		z := zap.NewDevelopmentConfig()
		z.OutputPaths = []string{"stdout"}
		logger, err = z.Build()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger.Sugar(), nil
}

// Wire opens the database, runs migrations and assembles the service bundle.
func Wire(c schema.Config, logger *zap.SugaredLogger) (*handlers.Services, func(), error) {
	db, flavor, err := store.OpenDB(c.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, nil, err
	}

	views := store.NewViewStore(db, flavor, logger)
	databases := store.NewDatabaseStore(db, flavor, c, views, logger)
	records := store.NewRecordStore(db, flavor, databases, c, logger)
	engine := view.NewEngine(views, databases, records, logger)
	gate := perm.NewGate(db, flavor, logger)

	svc := &handlers.Services{
		Databases: databases,
		Records:   records,
		Views:     engine,
		Gate:      gate,
		Cfg:       c,
		Logger:    logger,
	}
	return svc, func() { db.Close() }, nil
}

// StartServer wires the stores and serves the entity API. Blocking call.
func StartServer(c schema.Config) {
	c.Normalize()

	logger, err := NewLogger(c.Debug)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	svc, closeDB, err := Wire(c, logger)
	if err != nil {
		logger.Fatalw("failed to wire services", "error", err)
	}
	defer closeDB()

	router := handlers.NewRouter(svc)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, X-Workspace-ID, X-Actor-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		path := strings.Trim(r.URL.Path, "/")
		if path == "" {
			handleRoot(w, r)
			return
		}

		logger.Debugw("request", "method", r.Method, "path", r.URL.Path)
		router.Handle(w, r)
	})

	logger.Infow("starting server", "listen", c.Listen)
	logger.Infof("entity API available at http://localhost%s/{entity}", c.Listen)
	log.Fatal(http.ListenAndServe(c.Listen, mux))
}

// handleRoot returns API information for the bare root path.
func handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
  "name": "gridbase",
  "description": "schema-driven record store with saved views",
  "endpoints": {
    "GET /{entity}": "list records (page, limit, search, filters, sort, view, includeDeleted)",
    "POST /{entity}": "create record",
    "GET /{entity}/{id}": "get record",
    "PUT /{entity}/{id}": "update record properties",
    "DELETE /{entity}/{id}": "delete record (permanent=true to purge)",
    "POST /{entity}/{id}/duplicate": "duplicate record",
    "PUT /{entity}/bulk": "bulk update",
    "DELETE /{entity}/bulk": "bulk delete",
    "GET /{entity}/views": "list views",
    "POST /{entity}/views": "create view",
    "GET /{entity}/views/{viewId}": "get view ('default' resolves the default view)",
    "PUT /{entity}/views/{viewId}": "update view, or patch filters/sorts/visibleProperties",
    "DELETE /{entity}/views/{viewId}": "delete view",
    "POST /{entity}/views/{viewId}/duplicate": "duplicate view",
    "GET /{entity}/properties": "list schema properties",
    "POST /{entity}/properties": "add property",
    "PUT /{entity}/properties/{propertyId}": "update property",
    "DELETE /{entity}/properties/{propertyId}": "delete property",
    "PUT /{entity}/properties/reorder": "reorder properties",
    "GET /{entity}/config": "entity template",
    "GET /{entity}/frozen-config": "protected property sets",
    "GET /entity-types": "registered entity types"
  }
}`)
}
